package util

import (
	"fmt"
)

// ValidateLength checks the trimmed rune length of value is within [min, max]
func ValidateLength(field, value string, min, max int) error {
	n := TrimmedLength(value)
	if n < min || n > max {
		return fmt.Errorf("%s must be between %d and %d characters", field, min, max)
	}
	return nil
}
