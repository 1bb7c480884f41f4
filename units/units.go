// Package units converts between satoshi amounts and human-readable coin
// strings.
package units

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"
)

// CoinExp is the number of decimal places in one coin.
const CoinExp = 8

var satsPerCoin = decimal.New(1, CoinExp)

// FormatCoins renders sats as a coin amount with all eight decimals.
func FormatCoins(sats int64) string {
	return decimal.New(sats, -CoinExp).StringFixed(CoinExp)
}

// Format renders sats as "<sats> sat (<coins> BCH)".
func Format(sats int64) string {
	return fmt.Sprintf("%d sat (%s BCH)", sats, FormatCoins(sats))
}

// ParseAmount reads an amount in satoshis.
//
// A "sat"/"sats" suffix or a bare integer means satoshis; a "bch"/"coin"
// suffix or a decimal point means coins. Amounts must be positive, have at
// most eight decimals, and not exceed the coin supply.
func ParseAmount(s string) (int64, error) {
	in := strings.ToLower(strings.TrimSpace(s))
	coins := strings.Contains(in, ".")
	switch {
	case strings.HasSuffix(in, "sats"):
		in, coins = strings.TrimSuffix(in, "sats"), false
	case strings.HasSuffix(in, "sat"):
		in, coins = strings.TrimSuffix(in, "sat"), false
	case strings.HasSuffix(in, "bch"):
		in, coins = strings.TrimSuffix(in, "bch"), true
	case strings.HasSuffix(in, "coin"):
		in, coins = strings.TrimSuffix(in, "coin"), true
	}
	in = strings.TrimSpace(in)

	d, err := decimal.NewFromString(in)
	if err != nil {
		return 0, fmt.Errorf("units: invalid amount %q", s)
	}
	if coins {
		d = d.Mul(satsPerCoin)
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("units: %q is finer than one satoshi", s)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("units: amount %q must be positive", s)
	}
	if d.GreaterThan(decimal.NewFromInt(btcutil.MaxSatoshi)) {
		return 0, fmt.Errorf("units: amount %q exceeds the coin supply", s)
	}
	return d.IntPart(), nil
}
