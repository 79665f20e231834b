package validation

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxGoalNameRunes bounds a goal name as stored on the ledger and shown in lists.
const MaxGoalNameRunes = 64

var (
	errNameRequired = errors.New("name is required")
	errNameTooLong  = errors.New("name is too long (max 64 characters)")
	errNameEncoding = errors.New("name must be valid UTF-8")
	errNameControl  = errors.New("name must not contain control characters")
	errNamePadding  = errors.New("name must not start or end with whitespace")
)

// ValidateGoalName checks the name a guardian gives a savings goal. The ledger
// stores it verbatim, so padding and control characters are refused rather than
// trimmed.
func ValidateGoalName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errNameRequired
	}
	if !utf8.ValidString(name) {
		return errNameEncoding
	}
	if strings.TrimSpace(name) != name {
		return errNamePadding
	}
	if utf8.RuneCountInString(name) > MaxGoalNameRunes {
		return errNameTooLong
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return errNameControl
	}
	return nil
}
