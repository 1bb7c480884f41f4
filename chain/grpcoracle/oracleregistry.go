package grpcoracle

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"xdao.co/covenants/chain"
	"xdao.co/covenants/chain/oracleregistry"
)

var (
	flagTarget      string
	flagDialTimeout time.Duration
	flagTimeout     time.Duration
	flagMaxMsgBytes int
)

func init() {
	oracleregistry.MustRegister(oracleregistry.Backend{
		Name:        "grpc",
		Description: "gRPC oracle client (talks to covenant-oracled)",
		Usage:       oracleregistry.UsageCLI,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagTarget, "grpc-target", "", "gRPC target host:port (for --oracle=grpc)")
			fs.DurationVar(&flagDialTimeout, "grpc-dial-timeout", 5*time.Second, "Dial timeout (for --oracle=grpc)")
			fs.DurationVar(&flagTimeout, "grpc-timeout", 10*time.Second, "Per-RPC timeout (for --oracle=grpc)")
			fs.IntVar(&flagMaxMsgBytes, "grpc-max-msg-bytes", 0, "Max gRPC message size in bytes (send+recv); 0 uses grpc defaults")
		},
		Open: func() (chain.Oracle, func() error, error) {
			target := strings.TrimSpace(flagTarget)
			if target == "" {
				return nil, nil, fmt.Errorf("missing --grpc-target")
			}
			client, err := Dial(target, DialOptions{Timeout: flagDialTimeout, MaxMsgBytes: flagMaxMsgBytes})
			if err != nil {
				return nil, nil, err
			}
			client.Timeout = flagTimeout
			return client, client.Close, nil
		},
	})
}
