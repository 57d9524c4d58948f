package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in   interface{}
		want int64
		ok   bool
	}{
		{float64(450000), 450000, true},
		{"RM 1,250,000", 1250000, true},
		{"880,500.50", 880501, true},
		{"no digits here", 0, false},
		{"350000", 350000, true},
	}
	for _, c := range cases {
		got, ok := ParseMoney(c.in)
		assert.Equal(t, c.ok, ok, "input %v", c.in)
		if c.ok {
			assert.Equal(t, c.want, got, "input %v", c.in)
		}
	}
}

func TestDigitsOnly(t *testing.T) {
	assert.Equal(t, "123", DigitsOnly("RM1,23 /month"))
	assert.Equal(t, "", DigitsOnly("no digits"))
}

func TestMapTenure(t *testing.T) {
	assert.Equal(t, "Freehold", MapTenure("F"))
	assert.Equal(t, "Leasehold", MapTenure("L"))
	assert.Equal(t, "Freehold", MapTenure("Freehold"))
}

func TestFindStateInAddress(t *testing.T) {
	assert.Equal(t, "Pulau Pinang", FindStateInAddress("Georgetown, Penang, Malaysia"))
	assert.Equal(t, "Kuala Lumpur", FindStateInAddress("Bukit Bintang, W.P. Kuala Lumpur"))
	assert.Equal(t, "Selangor", FindStateInAddress("Shah Alam, Selangor"))
	assert.Equal(t, "", FindStateInAddress("Singapore"))
}

func TestNormalizeFurnishing(t *testing.T) {
	cases := map[string]string{
		"Fully Furnished":    "Fully Furnished",
		"Furnished":          "Fully Furnished",
		"Fully":              "",
		"Partially Furnished": "Partially Furnished",
		"Semi-Furnished":     "Partially Furnished",
		"Unfurnished":        "Unfurnished",
		"Bare":               "Unfurnished",
		"  furnished  ":      "Fully Furnished",
		"":                   "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeFurnishing(in), "input %q", in)
	}
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "Jalan Ampang, KL", NormalizeAddress("  Jalan   Ampang ,  KL  "))
	assert.Equal(t, "A, B", NormalizeAddress("A,, B"))
	assert.Equal(t, "Jalan A & B", NormalizeAddress("Jalan A &amp; B."))
	assert.Equal(t, "No trailing dot", NormalizeAddress("No trailing dot."))
}

func TestSqmToSqft(t *testing.T) {
	assert.InDelta(t, 1076.39, SqmToSqft(100), 0.01)
}
