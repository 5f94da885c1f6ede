package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// MaxCityLength bounds a configured city name in runes.
const MaxCityLength = 100

var (
	// ErrCityEmpty is returned when a city name is empty or whitespace-only after trim.
	ErrCityEmpty = errors.New("city is required")

	// ErrCityTooLong is returned when a city name exceeds MaxCityLength.
	ErrCityTooLong = errors.New("city too long")

	// ErrCityInvalidChars is returned when a city name contains disallowed characters.
	ErrCityInvalidChars = errors.New("city contains invalid characters")

	// ErrCityDuplicate is returned when the same city (case-insensitive) is listed twice.
	ErrCityDuplicate = errors.New("duplicate city")

	// ErrNoCities is returned when the monitored city list is empty.
	ErrNoCities = errors.New("at least one city is required")
)

// ValidateCity trims the input and restricts it to letters (Unicode), digits, space,
// comma, hyphen, period and apostrophe. The provider accepts "City,CC" forms so the
// comma stays allowed.
func ValidateCity(input string) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrCityEmpty
	}
	if len(r) > MaxCityLength {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrCityInvalidChars
		}
	}
	return s, nil
}

// ValidateCities validates every entry and rejects case-insensitive duplicates.
// Order is preserved; the poller fetches cities in this order.
func ValidateCities(cities []string) ([]string, error) {
	if len(cities) == 0 {
		return nil, ErrNoCities
	}
	seen := make(map[string]struct{}, len(cities))
	out := make([]string, 0, len(cities))
	for i, c := range cities {
		city, err := ValidateCity(c)
		if err != nil {
			return nil, fmt.Errorf("cities[%d]: %w", i, err)
		}
		key := strings.ToLower(city)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("cities[%d] %q: %w", i, city, ErrCityDuplicate)
		}
		seen[key] = struct{}{}
		out = append(out, city)
	}
	return out, nil
}

// NormalizeConditions trims entries of a condition watch-list and drops empty ones.
// Case is kept for logging; the poller compares case-insensitively.
func NormalizeConditions(conditions []string) []string {
	out := make([]string, 0, len(conditions))
	for _, c := range conditions {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}
