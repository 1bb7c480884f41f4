package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	assert.Equal(t, "0.00010000", FormatCoins(10000))
	assert.Equal(t, "1.00000000", FormatCoins(100_000_000))
	assert.Equal(t, "9700 sat (0.00009700 BCH)", Format(9700))
}

func TestParseAmount(t *testing.T) {
	ok := map[string]int64{
		"10000":        10000,
		"10000sat":     10000,
		" 20000 sats ": 20000,
		"0.0001":       10000,
		"0.0002 BCH":   20000,
		"1coin":        100_000_000,
		"21000000bch":  2_100_000_000_000_000,
		"0.00000001":   1,
	}
	for in, want := range ok {
		got, err := ParseAmount(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "abc", "0", "-5", "0.000000001", "1.5sat", "21000001bch"} {
		_, err := ParseAmount(bad)
		assert.Error(t, err, bad)
	}
}
