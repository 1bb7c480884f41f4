package httporacle

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"xdao.co/covenants/chain"
	"xdao.co/covenants/chain/oracleregistry"
)

var (
	flagURL     string
	flagTimeout time.Duration
	flagRPS     float64
	flagBurst   int
)

func init() {
	oracleregistry.MustRegister(oracleregistry.Backend{
		Name:        "esplora",
		Description: "Esplora-compatible REST indexer",
		Usage:       oracleregistry.UsageCLI | oracleregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagURL, "esplora-url", "", "Esplora API base URL (for --oracle=esplora)")
			fs.DurationVar(&flagTimeout, "esplora-timeout", 10*time.Second, "Per-request timeout (for --oracle=esplora)")
			fs.Float64Var(&flagRPS, "esplora-rps", 5, "Client-side request rate limit; 0 disables (for --oracle=esplora)")
			fs.IntVar(&flagBurst, "esplora-burst", 5, "Rate limit burst (for --oracle=esplora)")
		},
		Open: func() (chain.Oracle, func() error, error) {
			if strings.TrimSpace(flagURL) == "" {
				return nil, nil, fmt.Errorf("missing --esplora-url")
			}
			c, err := New(Options{BaseURL: flagURL, Timeout: flagTimeout, RPS: flagRPS, Burst: flagBurst})
			return c, nil, err
		},
	})
}
