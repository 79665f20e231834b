package units

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/templui/piggybank/internal/apperr"
)

var maxUint64 = decimal.NewFromUint64(math.MaxUint64)

// maxDigits is the number of digits in math.MaxUint64.
const maxDigits = 20

// Converter moves amounts between an asset's smallest integer unit and its decimal
// display unit, scaling by 10^Decimals.
type Converter struct {
	Symbol   string
	Decimals int32
}

func New(symbol string, decimals int32) Converter {
	return Converter{Symbol: symbol, Decimals: decimals}
}

// ToSmallestUnit converts "1.5" to "1500000000" at 9 decimals. Digits beyond the
// scale are truncated, never rounded.
func (c Converter) ToSmallestUnit(amount string) (string, error) {
	d, err := c.parse(amount)
	if err != nil {
		return "", err
	}
	return d.Shift(c.Decimals).Truncate(0).String(), nil
}

// ToSmallestUint is ToSmallestUnit returning a uint64.
func (c Converter) ToSmallestUint(amount string) (uint64, error) {
	d, err := c.parse(amount)
	if err != nil {
		return 0, err
	}
	return d.Shift(c.Decimals).Truncate(0).BigInt().Uint64(), nil
}

// ToDecimalUnit converts an integer smallest-unit string back to display form.
func (c Converter) ToDecimalUnit(amount string) (string, error) {
	trimmed := strings.TrimSpace(amount)
	d, err := decimal.NewFromString(trimmed)
	if err != nil || trimmed == "" {
		return "", apperr.ErrInvalidAmount.WithDetail("amount", amount).WithError(err)
	}
	if d.IsZero() {
		return "0", nil
	}
	if d.IsNegative() || integerDigits(d, 0) > maxDigits || !d.IsInteger() || d.GreaterThan(maxUint64) {
		return "", apperr.ErrInvalidAmount.WithDetail("amount", amount)
	}
	return d.Shift(-c.Decimals).String(), nil
}

// FormatUint renders a smallest-unit amount in display form.
func (c Converter) FormatUint(amount uint64) string {
	return decimal.NewFromUint64(amount).Shift(-c.Decimals).String()
}

// Decimal returns the display-unit value of a smallest-unit amount.
func (c Converter) Decimal(amount uint64) decimal.Decimal {
	return decimal.NewFromUint64(amount).Shift(-c.Decimals)
}

func (c Converter) parse(amount string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return decimal.Zero, apperr.ErrInvalidAmount.WithDetail("amount", amount)
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, apperr.ErrInvalidAmount.WithDetail("amount", amount).WithError(err)
	}
	if d.IsNegative() {
		return decimal.Zero, apperr.ErrInvalidAmount.WithDetail("amount", amount)
	}
	if d.IsZero() {
		return decimal.Zero, nil
	}

	// Checked on coefficient and exponent before any rescaling, so "1e2000000000"
	// is refused without building its digits.
	digits := integerDigits(d, c.Decimals)
	if digits > maxDigits {
		return decimal.Zero, apperr.ErrInvalidAmount.WithDetail("amount", amount)
	}
	if digits <= 0 {
		// below one smallest unit, truncates to zero
		return decimal.Zero, nil
	}
	if d.Shift(c.Decimals).Truncate(0).GreaterThan(maxUint64) {
		return decimal.Zero, apperr.ErrInvalidAmount.WithDetail("amount", amount)
	}
	return d, nil
}

// integerDigits counts the digits left of the decimal point of d*10^shift.
func integerDigits(d decimal.Decimal, shift int32) int64 {
	return int64(d.NumDigits()) + int64(d.Exponent()) + int64(shift)
}
