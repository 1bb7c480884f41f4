package chain

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

func TestParams(t *testing.T) {
	for _, name := range Networks {
		p, err := Params(name)
		require.NoError(t, err, name)
		require.Equal(t, name, NetworkName(p))
	}

	p, err := Params("testnet3")
	require.NoError(t, err)
	require.Equal(t, &chaincfg.TestNet3Params, p)

	p, err = Params("")
	require.NoError(t, err)
	require.Equal(t, &chaincfg.RegressionNetParams, p)

	_, err = Params("litenet")
	require.Error(t, err)
}
