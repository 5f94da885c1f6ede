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
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateCity(tc.input)
			if !errors.Is(err, ErrCityEmpty) {
				t.Errorf("error = %v, want ErrCityEmpty", err)
			}
		})
	}
}

func TestValidateCity_TooLong(t *testing.T) {
	_, err := ValidateCity(strings.Repeat("a", MaxCityLength+1))
	if !errors.Is(err, ErrCityTooLong) {
		t.Errorf("error = %v, want ErrCityTooLong", err)
	}
}

func TestValidateCity_InvalidChars(t *testing.T) {
	for _, input := range []string{"Del/hi", "Mum&bai", "Chennai;", "a<b>"} {
		if _, err := ValidateCity(input); !errors.Is(err, ErrCityInvalidChars) {
			t.Errorf("ValidateCity(%q) error = %v, want ErrCityInvalidChars", input, err)
		}
	}
}

func TestValidateCity_Valid(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Delhi", "Delhi"},
		{"  Mumbai  ", "Mumbai"},
		{"St. John's", "St. John's"},
		{"London,GB", "London,GB"},
		{"São Paulo", "São Paulo"},
		{"Winston-Salem", "Winston-Salem"},
	}
	for _, tt := range tests {
		got, err := ValidateCity(tt.input)
		if err != nil {
			t.Errorf("ValidateCity(%q) error = %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ValidateCity(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestValidateCities(t *testing.T) {
	got, err := ValidateCities([]string{"Delhi", " Mumbai", "Chennai "})
	if err != nil {
		t.Fatalf("ValidateCities() error = %v", err)
	}
	want := []string{"Delhi", "Mumbai", "Chennai"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("ValidateCities() = %v, want %v", got, want)
	}
}

func TestValidateCities_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantErr error
	}{
		{"empty list", nil, ErrNoCities},
		{"duplicate ignoring case", []string{"Delhi", "delhi"}, ErrCityDuplicate},
		{"invalid entry", []string{"Delhi", ""}, ErrCityEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ValidateCities(tt.input); !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateCities() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeConditions(t *testing.T) {
	got := NormalizeConditions([]string{" Rain", "", "  ", "Snow"})
	if len(got) != 2 || got[0] != "Rain" || got[1] != "Snow" {
		t.Errorf("NormalizeConditions() = %v, want [Rain Snow]", got)
	}
}
