package config

import "testing"

func TestParseAllowedSizesEmptyDisablesWhitelist(t *testing.T) {
	sizes, err := parseAllowedSizes("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sizes != nil {
		t.Errorf("sizes = %v, want nil", sizes)
	}
}

func TestParseAllowedSizes(t *testing.T) {
	sizes, err := parseAllowedSizes("100x100, 200x300,50x50")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Size{{100, 100}, {200, 300}, {50, 50}}
	if len(sizes) != len(want) {
		t.Fatalf("len(sizes) = %d, want %d", len(sizes), len(want))
	}
	for i, s := range want {
		if sizes[i] != s {
			t.Errorf("sizes[%d] = %v, want %v", i, sizes[i], s)
		}
	}
}

func TestParseAllowedSizesMalformed(t *testing.T) {
	cases := []string{"100", "100x", "xabc", "0x10", "100x-5"}
	for _, c := range cases {
		if _, err := parseAllowedSizes(c); err == nil {
			t.Errorf("parseAllowedSizes(%q) returned nil error, want malformedSizeError", c)
		}
	}
}
