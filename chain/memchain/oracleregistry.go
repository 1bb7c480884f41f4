package memchain

import (
	"flag"

	"xdao.co/covenants/chain"
	"xdao.co/covenants/chain/oracleregistry"
)

var flagMemHeight uint

func init() {
	oracleregistry.MustRegister(oracleregistry.Backend{
		Name:        "memchain",
		Description: "In-memory ledger (demos and local testing; state is lost on exit)",
		Usage:       oracleregistry.UsageCLI | oracleregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.UintVar(&flagMemHeight, "memchain-height", 0, "Starting chain height (for --oracle=memchain)")
		},
		Open: func() (chain.Oracle, func() error, error) {
			return New(WithHeight(uint32(flagMemHeight))), nil, nil
		},
	})
}
