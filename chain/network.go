package chain

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
)

// Networks lists the accepted network names.
var Networks = []string{"mainnet", "testnet", "regtest", "simnet"}

// Params maps a network name to its chain parameters. "testnet3" is accepted
// as an alias for "testnet".
func Params(name string) (*chaincfg.Params, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mainnet", "main":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest", "":
		return &chaincfg.RegressionNetParams, nil
	case "simnet":
		return &chaincfg.SimNetParams, nil
	default:
		return nil, fmt.Errorf("chain: unknown network %q (want one of %s)", name, strings.Join(Networks, ", "))
	}
}

// NetworkName is the canonical name of p as accepted by Params.
func NetworkName(p *chaincfg.Params) string {
	switch p.Net {
	case chaincfg.MainNetParams.Net:
		return "mainnet"
	case chaincfg.TestNet3Params.Net:
		return "testnet"
	case chaincfg.SimNetParams.Net:
		return "simnet"
	default:
		return "regtest"
	}
}
