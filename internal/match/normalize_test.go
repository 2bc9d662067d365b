package match

import (
	"slices"
	"testing"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		// CamelCase
		{"SeriesDescription", "seriesdescription"},
		{"seriesDescription", "seriesdescription"},
		{"MRAcquisitionType", "mracquisitiontype"},
		{"EchoNumbers", "echonumbers"},

		// Separators
		{"series_description", "seriesdescription"},
		{"Series Description", "seriesdescription"},
		{"series-description", "seriesdescription"},
		{"Private.Field", "privatefield"},

		// Edge cases
		{"", ""},
		{"a", "a"},
		{"TR", "tr"},
		{"__", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := NormalizeName(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestTokenizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"SeriesDescription", []string{"series", "description"}},
		{"MRAcquisitionType", []string{"mr", "acquisition", "type"}},
		{"echo_time", []string{"echo", "time"}},
		{"ImageType", []string{"image", "type"}},
		{"ID", []string{"id"}},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := TokenizeName(tt.input)
			if !slices.Equal(result, tt.expected) {
				t.Errorf("TokenizeName(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}
