package validation

import (
	"encoding/hex"
	"errors"
	"strings"
)

// ValidateAddress checks a ledger account or object address: 0x followed by up to 64 hex digits.
func ValidateAddress(address string) error {
	if address == "" {
		return errors.New("address is required")
	}

	digits, ok := strings.CutPrefix(strings.ToLower(address), "0x")
	if !ok || digits == "" || len(digits) > 64 {
		return errors.New("address must be 0x followed by 1 to 64 hex digits")
	}

	if len(digits)%2 == 1 {
		digits = "0" + digits
	}
	if _, err := hex.DecodeString(digits); err != nil {
		return errors.New("address must be 0x followed by 1 to 64 hex digits")
	}

	return nil
}

// NormalizeAddress lower-cases and left-pads an address to 64 hex digits so that
// "0x6" and "0x000...006" compare equal.
func NormalizeAddress(address string) string {
	digits, ok := strings.CutPrefix(strings.ToLower(strings.TrimSpace(address)), "0x")
	if !ok || len(digits) > 64 {
		return address
	}
	return "0x" + strings.Repeat("0", 64-len(digits)) + digits
}
