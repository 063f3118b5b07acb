package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateCity_EmptyAndWhitespace(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"spaces", "   "},
		{"tab", "\t"},
		{"newline", "\n \r\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateCity(tc.input, 100)
			if !errors.Is(err, ErrCityEmpty) {
				t.Errorf("error = %v, want ErrCityEmpty", err)
			}
			if err != nil && err.Error() != "City cannot be empty" {
				t.Errorf("message = %q", err.Error())
			}
		})
	}
}

func TestValidateCity_TooLong(t *testing.T) {
	_, err := ValidateCity(strings.Repeat("a", 101), 100)
	if !errors.Is(err, ErrCityTooLong) {
		t.Errorf("error = %v, want ErrCityTooLong", err)
	}
	// maxLen 0 disables the bound
	if _, err := ValidateCity(strings.Repeat("a", 500), 0); err != nil {
		t.Errorf("maxLen 0: err = %v", err)
	}
}

func TestValidateCity_InvalidChars(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"slash", "../etc/passwd"},
		{"backslash", "sea\\ttle"},
		{"question", "sea?ttle"},
		{"control", "sea\x00ttle"},
		{"percent", "sea%ttle"},
		{"ampersand", "q=x&appid=y"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateCity(tc.input, 100)
			if !errors.Is(err, ErrCityInvalidChars) {
				t.Errorf("error = %v, want ErrCityInvalidChars", err)
			}
		})
	}
}

func TestValidateCity_Valid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "Karachi", "Karachi"},
		{"with space", "Dera Ghazi Khan", "Dera Ghazi Khan"},
		{"comma", "London,uk", "London,uk"},
		{"hyphen", "Tando-Adam", "Tando-Adam"},
		{"period and apostrophe", "St. John's", "St. John's"},
		{"trimmed", "  Lahore  ", "Lahore"},
		{"unicode", "Zürich", "Zürich"},
		{"urdu", "کراچی", "کراچی"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateCity(tc.input, 100)
			if err != nil {
				t.Fatalf("ValidateCity() err = %v", err)
			}
			if got != tc.want {
				t.Errorf("ValidateCity() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestValidateCity_LengthBoundary(t *testing.T) {
	s := strings.Repeat("ب", 100)
	got, err := ValidateCity(s, 100)
	if err != nil {
		t.Fatalf("max boundary: err = %v", err)
	}
	if len([]rune(got)) != 100 {
		t.Errorf("rune count = %d, want 100", len([]rune(got)))
	}
}
