package validation

import (
	"errors"
	"strings"
	"unicode"
)

// ErrCityEmpty is returned when the city is empty or whitespace-only after trim.
var ErrCityEmpty = errors.New("City cannot be empty")

// ErrCityTooLong is returned when the city length exceeds the maximum.
var ErrCityTooLong = errors.New("City name too long")

// ErrCityInvalidChars is returned when the city contains characters that are
// not safe in a cache file name or provider query.
var ErrCityInvalidChars = errors.New("City contains invalid characters")

// ValidateCity trims the input, enforces maxLen (in runes, 0 disables) and
// restricts to letters, digits, space, comma, hyphen, period and apostrophe.
// Returns the trimmed city. Lowercasing for cache keys is left to the caller.
func ValidateCity(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrCityEmpty
	}
	if maxLen > 0 && len(r) > maxLen {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrCityInvalidChars
		}
	}
	return s, nil
}

func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.Is(unicode.Mn, r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}
