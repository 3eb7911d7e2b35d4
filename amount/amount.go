package amount

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// Decimals is the number of decimals between the display unit (ETH) and the ledger unit (wei).
	Decimals int32 = 18
	// DisplayDecimals is the number of decimals shown to users.
	DisplayDecimals int32 = 2
	// DefaultDisplayFloor is shown as minimum bid when the auction has no bids yet.
	DefaultDisplayFloor = "0.01"
)

var (
	// ErrEmpty is returned when parsing an empty amount.
	ErrEmpty = errors.New("empty amount")
	// ErrNegative is returned when parsing a negative amount.
	ErrNegative = errors.New("negative amount")
	// ErrPrecision is returned when an amount has more precision than the ledger unit.
	ErrPrecision = errors.New("amount precision exceeds ledger unit")
)

var hundred = decimal.NewFromInt(100)

// MinimumNextBid returns the smallest integer amount that is at least
// current*(1+minIncPercentage/100). A nil percentage means it isn't known yet, and zero
// is returned; callers must not treat that as a valid floor.
func MinimumNextBid(current *big.Int, minIncPercentage *decimal.Decimal) *big.Int {
	if minIncPercentage == nil || current == nil {
		return new(big.Int)
	}
	factor := hundred.Add(*minIncPercentage)
	return decimal.NewFromBigInt(current, 0).
		Mul(factor).
		Shift(-2).
		Ceil().
		BigInt()
}

// FormatForDisplay converts a minimum bid in wei to ETH with two decimals, always rounding
// up so the displayed minimum is never understated. A zero minimum shows floor.
func FormatForDisplay(minBid *big.Int, floor string) string {
	if minBid == nil || minBid.Sign() == 0 {
		return floor
	}
	return decimal.NewFromBigInt(minBid, -Decimals).
		RoundCeil(DisplayDecimals).
		StringFixed(DisplayDecimals)
}

// Parse parses a decimal ETH string into wei.
func Parse(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmpty
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing amount %q: %v", raw, err)
	}
	if d.IsNegative() {
		return nil, ErrNegative
	}
	wei := d.Shift(Decimals)
	if !wei.IsInteger() {
		return nil, ErrPrecision
	}
	return wei.BigInt(), nil
}

// ParsePercentage parses a decimal percentage such as "5" or "2.5".
func ParsePercentage(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsing percentage %q: %v", raw, err)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, ErrNegative
	}
	return d, nil
}
