package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// reDigits strips everything but digits, ported from digits_only's
// \d+ findall+join.
var reDigits = regexp.MustCompile(`\d+`)

// DigitsOnly returns the concatenation of every digit run in s.
func DigitsOnly(s string) string {
	return strings.Join(reDigits.FindAllString(s, -1), "")
}

// reMoney matches thousand-separated or plain integers with an optional
// decimal tail, ported from parse_money_value's string branch.
var reMoney = regexp.MustCompile(`(\d{1,3}(?:,\d{3})+|\d+)(?:\.(\d+))?`)

// ParseMoney normalizes a price-like value (already-numeric JSON float or a
// currency-formatted string) to its nearest whole-unit integer. Returns
// (0, false) if nothing numeric could be found.
func ParseMoney(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case float64:
		return int64(math.Round(x)), true
	case string:
		m := reMoney.FindStringSubmatch(x)
		if m == nil {
			return 0, false
		}
		whole := strings.ReplaceAll(m[1], ",", "")
		wv, err := strconv.ParseFloat(whole, 64)
		if err != nil {
			return 0, false
		}
		if m[2] != "" {
			frac, _ := strconv.ParseFloat("0."+m[2], 64)
			wv += frac
		}
		return int64(math.Round(wv)), true
	default:
		return 0, false
	}
}

// tenureCodes maps the single-letter tenure code used in some payloads to
// its display form, ported from map_tenure.
var tenureCodes = map[string]string{
	"F": "Freehold",
	"L": "Leasehold",
}

// MapTenure expands a tenure code; values it doesn't recognize pass through
// unchanged (e.g. the payload already spelled out "Freehold").
func MapTenure(code string) string {
	if v, ok := tenureCodes[code]; ok {
		return v
	}
	return code
}

// malaysianStates is the canonical state-name set plus the synonyms in
// stateSynonyms, checked in this order; the first whole-word match wins.
// "Kuala Lumpur" precedes "W.P. Kuala Lumpur", so an address carrying the
// longer form matches the shorter one, which yields the same result.
var malaysianStates = []string{
	"Johor", "Kedah", "Kelantan", "Melaka", "Negeri Sembilan", "Pahang",
	"Perak", "Perlis", "Pulau Pinang", "Penang", "Sabah", "Sarawak",
	"Selangor", "Terengganu", "Kuala Lumpur", "W.P. Kuala Lumpur",
	"Putrajaya", "Labuan",
}

var stateSynonyms = map[string]string{
	"penang":               "Pulau Pinang",
	"w.p. kuala lumpur":    "Kuala Lumpur",
}

var stateWordRe = map[string]*regexp.Regexp{}

func init() {
	for _, s := range malaysianStates {
		escaped := regexp.QuoteMeta(s)
		stateWordRe[s] = regexp.MustCompile(`(?i)\b` + escaped + `\b`)
	}
}

// FindStateInAddress searches a free-text address for a known Malaysian
// state name, applying synonym canonicalization, ported from
// find_state_in_address.
func FindStateInAddress(address string) string {
	for _, s := range malaysianStates {
		if stateWordRe[s].MatchString(address) {
			if canon, ok := stateSynonyms[strings.ToLower(s)]; ok {
				return canon
			}
			return s
		}
	}
	return ""
}

// furnishingUnfurnished/Partial/Full are exact-match whitelists (after
// lowercasing+trimming), ported from normalize_furnishing. This is
// deliberately set-membership rather than regex alternation, matching the
// grounded source's simpler behavior.
var (
	furnishingUnfurnished = map[string]bool{
		"bare": true, "unfurnished": true, "not furnished": true,
		"non furnished": true, "no furnishing": true,
	}
	furnishingPartial = map[string]bool{
		"partly furnished": true, "partially furnished": true,
		"semi furnished": true, "semi-furnished": true,
	}
	furnishingFull = map[string]bool{
		"fully furnished": true, "furnished": true,
	}
)

// NormalizeFurnishing maps free text to one of the three canonical
// furnishing labels, or "" if it matches none of the whitelists.
func NormalizeFurnishing(s string) string {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case furnishingUnfurnished[v]:
		return "Unfurnished"
	case furnishingPartial[v]:
		return "Partially Furnished"
	case furnishingFull[v]:
		return "Fully Furnished"
	default:
		return ""
	}
}

// reTrailingPeriod matches a trailing "." (with optional trailing
// whitespace already collapsed away by the time it's applied), ported
// from _normalize_address's re.sub(r"\.\s*$", "", s).
var reTrailingPeriod = regexp.MustCompile(`\.\s*$`)

// NormalizeAddress trims whitespace runs, normalizes comma spacing, strips
// a trailing period, and decodes a literal "&amp;" entity back to "&", the
// bounded whitespace/punctuation/entity cleanup spec.md's address
// normalizer describes, ported from _normalize_address.
func NormalizeAddress(s string) string {
	fields := strings.Fields(s)
	joined := strings.Join(fields, " ")
	joined = strings.ReplaceAll(joined, " ,", ",")
	for strings.Contains(joined, ",,") {
		joined = strings.ReplaceAll(joined, ",,", ",")
	}
	joined = strings.TrimSpace(strings.Trim(joined, ","))
	joined = reTrailingPeriod.ReplaceAllString(joined, "")
	joined = strings.ReplaceAll(joined, "&amp;", "&")
	return joined
}

// sqmToSqft is the conversion factor used for derived floor/land areas
// supplied in square meters.
const sqmToSqft = 10.7639

// SqmToSqft converts a square-meter area to square feet.
func SqmToSqft(sqm float64) float64 {
	return sqm * sqmToSqft
}
