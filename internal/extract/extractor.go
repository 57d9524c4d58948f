package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// Free-text supplementation regexes, ported verbatim (as regex semantics,
// not Python syntax) from original_source/propertyguru_extract_spyder.py's
// R_BUMI/R_TITLE/R_DEV/R_COMPLETE_YR/R_FLOOR/R_LAND/R_PSF/R_TENURE_TXT.
// spec.md's prose groups these under six thematic bullets (title-type,
// bumi-lot, developer, completion-year, floor/land area, psf+tenure); the
// source defines eight distinct patterns because floor/land area and
// psf/tenure each cover two of the bullets. All eight are implemented.
var (
	reBumi       = regexp.MustCompile(`(?i)\b(?:Not\s+)?Bumi\s+Lot\b`)
	reTitle      = regexp.MustCompile(`(?i)\b(Individual|Strata|Master)\s+title\b`)
	reDev        = regexp.MustCompile(`(?im)^Developed by\s+(.+)$`)
	reCompleteYr = regexp.MustCompile(`(?i)\b(?:Completed|Completion)\s+in\s+(\d{4})\b`)
	reFloor      = regexp.MustCompile(`(?i)([\d,.]+)\s*(sqft|sf)\s*floor\s*area\b`)
	reLand       = regexp.MustCompile(`(?i)([\d,.]+)\s*(sqft|sf)\s*land\s*area\b`)
	rePSF        = regexp.MustCompile(`(?i)\bRM\s*([\d.,]+)\s*psf\b`)
	reTenureTxt  = regexp.MustCompile(`(?i)\b(Freehold|Leasehold)\s+tenure\b`)
)

// reRoomToken parses a bedroom/bathroom token of the form "N", "N+M" (two
// structures summed, e.g. a unit with a maid's room), or "N R"/"N B"
// (room/bath-suffixed counts some payloads use), ported from
// parse_room_token.
var reRoomToken = regexp.MustCompile(`(?i)^\s*(\d+)\s*(?:\+\s*(\d+))?\s*([RB])?\s*$`)

// ParseRoomCount normalizes a bedroom/bathroom field to an integer count.
// Tokens that don't match the known shapes fall back to concatenating any
// digit runs found (DigitsOnly), so an unexpected-but-numeric payload still yields a count
// rather than silently dropping the field.
func ParseRoomCount(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if m := reRoomToken.FindStringSubmatch(raw); m != nil {
		n, _ := strconv.Atoi(m[1])
		if m[2] != "" {
			extra, _ := strconv.Atoi(m[2])
			n += extra
		}
		return n
	}
	d := DigitsOnly(raw)
	if d == "" {
		return 0
	}
	n, _ := strconv.Atoi(d)
	return n
}

// reCarParkCount matches "<digits> car park" / "<digits> parking
// lot|bay|space|slot" occurrences in free-text metadata-table strings,
// ported from R_CARPARK. The Extractor takes the maximum count seen across
// every match, since the same figure is often repeated in different
// phrasing within the same metatable.
var reCarParkCount = regexp.MustCompile(`(?i)(\d+)\s*(?:car[ ]?park|parking\s*(?:lot|bay|space|slot))`)

// maxCarParkCount scans a set of free-text strings and returns the largest
// car-park count mentioned, or (0, false) if none matched.
func maxCarParkCount(strs []string) (int, bool) {
	found := false
	best := 0
	for _, s := range strs {
		for _, m := range reCarParkCount.FindAllStringSubmatch(s, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if !found || n > best {
				best = n
				found = true
			}
		}
	}
	return best, found
}

// extractCarPark prefers the structured schema path (digits-only); when
// that's empty it falls back to scanning the metatable's free-text strings
// for the maximum car-park count mentioned.
func extractCarPark(root interface{}, schema Schema, metatableStrings []string) string {
	if structured := DigitsOnly(FirstNonEmptyString(root, schema.CarPark)); structured != "" {
		return structured
	}
	if n, ok := maxCarParkCount(metatableStrings); ok {
		return strconv.Itoa(n)
	}
	return ""
}

// extractFurnishing applies the priority order the source uses: a
// structured metatable item tagged icon=="furnished-o", then the strict
// candidate-path list, then a recursive scan for any labeled item whose
// label starts with "furnish". Returns the normalized value and the path
// or method that produced it, for traceability (not part of the output
// row itself).
func extractFurnishing(root interface{}, schema Schema) (string, string) {
	if v, ok := Lookup(root, "detailsData.metatable.items"); ok {
		if items, ok := v.([]interface{}); ok {
			for _, it := range items {
				m, ok := it.(map[string]interface{})
				if !ok {
					continue
				}
				if icon, _ := m["icon"].(string); icon == "furnished-o" {
					val, _ := m["value"].(string)
					if val == "" {
						val, _ = m["title"].(string)
					}
					if norm := NormalizeFurnishing(val); norm != "" {
						return norm, "metatable"
					}
				}
			}
		}
	}

	if val, path, ok := FirstNonEmpty(root, schema.FurnishStrict); ok {
		if norm := NormalizeFurnishing(AsString(val)); norm != "" {
			return norm, path
		}
	}

	for _, base := range []string{"detailsData.details", "detailsData.data"} {
		if v, ok := Lookup(root, base); ok {
			if norm, ok := scanLabeledFurnishing(v); ok {
				return norm, base + " (labeled item)"
			}
		}
	}
	return "", ""
}

func scanLabeledFurnishing(node interface{}) (string, bool) {
	switch x := node.(type) {
	case map[string]interface{}:
		if label, ok := x["label"].(string); ok && strings.HasPrefix(strings.ToLower(label), "furnish") {
			if val, ok := x["value"].(string); ok {
				if norm := NormalizeFurnishing(val); norm != "" {
					return norm, true
				}
			}
		}
		for _, v := range x {
			if norm, ok := scanLabeledFurnishing(v); ok {
				return norm, true
			}
		}
	case []interface{}:
		for _, v := range x {
			if norm, ok := scanLabeledFurnishing(v); ok {
				return norm, true
			}
		}
	}
	return "", false
}

// fillFromDetails applies the eight free-text regexes over the bounded
// detail strings, filling any row field still empty. Structured values
// always win; this only supplements what Lookup/FirstNonEmpty missed,
// ported from fill_from_details's "if not seed[x]" precedence.
func fillFromDetails(row *DetailRow, strings_ []string) {
	blob := strings.Join(strings_, "\n")

	if row.PropertyTitle == "" {
		if m := reTitle.FindStringSubmatch(blob); m != nil {
			row.PropertyTitle = m[1]
		}
	}
	if row.BumiLot == "" {
		if m := reBumi.FindString(blob); m != "" {
			if strings.Contains(strings.ToLower(m), "not") {
				row.BumiLot = "Not Bumi Lot"
			} else {
				row.BumiLot = "Bumi Lot"
			}
		}
	}
	if row.Developer == "" {
		if m := reDev.FindStringSubmatch(blob); m != nil {
			row.Developer = strings.TrimSpace(m[1])
		}
	}
	if row.CompletionYear == "" {
		if m := reCompleteYr.FindStringSubmatch(blob); m != nil {
			row.CompletionYear = m[1]
		}
	}
	if row.FloorAreaSqft == 0 {
		if m := reFloor.FindStringSubmatch(blob); m != nil {
			if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil {
				row.FloorAreaSqft = v
			}
		}
	}
	if row.LandAreaSqft == 0 {
		if m := reLand.FindStringSubmatch(blob); m != nil {
			if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil {
				row.LandAreaSqft = v
			}
		}
	}
	if row.PSF == 0 {
		if m := rePSF.FindStringSubmatch(blob); m != nil {
			if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil {
				row.PSF = v
			}
		}
	}
	if row.Tenure == "" {
		if m := reTenureTxt.FindStringSubmatch(blob); m != nil {
			row.Tenure = m[1]
		}
	}
}

// Derived price-per-sqft bounds from spec.md: floor area must fall within
// 400-20000 sqft and price within $10k-$50M for a derived PSF to be
// trusted; outside those bounds the derived value is left unset rather
// than published as a clearly-wrong figure.
const (
	minFloorAreaSqft = 400
	maxFloorAreaSqft = 20000
	minPriceForPSF   = 10_000
	maxPriceForPSF   = 50_000_000
)

// isForSaleListing reports whether a RentSale field value denotes a for-sale
// (as opposed to for-rent) listing. PropertyGuru's listingType and
// IProperty's channel spell this differently ("SALE"/"RENT" vs.
// "sale"/"rent"), so this checks for the absence of "rent" rather than
// matching a specific enum member, mirrored from is_rent_page's "not rent"
// gate in original_source/iproperty_extract_spyder.py.
func isForSaleListing(rentSale string) bool {
	return !strings.Contains(strings.ToLower(rentSale), "rent")
}

func maybeDerivePSF(row *DetailRow) {
	if !isForSaleListing(row.RentSale) {
		return
	}
	if row.PSF != 0 || row.FloorAreaSqft == 0 || row.Price == 0 {
		return
	}
	if row.FloorAreaSqft < minFloorAreaSqft || row.FloorAreaSqft > maxFloorAreaSqft {
		return
	}
	if row.Price < minPriceForPSF || row.Price > maxPriceForPSF {
		return
	}
	row.PSF = float64(row.Price) / row.FloorAreaSqft
}

// composeLocation builds the joined location string: "subarea, district,
// state" with empty segments dropped, falling back to the raw address if
// none of the three parts are present.
func composeLocation(subarea, district, state, address string) string {
	var parts []string
	for _, p := range []string{subarea, district, state} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}
	return address
}

// buildAmenities joins an amenities list's "{value} {unit}" (or
// "{unit} {value}" for sqft/sf, matching the source's unit-position rule)
// entries with "; ".
func buildAmenities(root interface{}) string {
	v, ok := Lookup(root, "amenities")
	if !ok {
		return ""
	}
	list, ok := v.([]interface{})
	if !ok {
		return ""
	}
	var parts []string
	for _, it := range list {
		m, ok := it.(map[string]interface{})
		if !ok {
			continue
		}
		val := AsString(m["value"])
		unit, _ := m["unit"].(string)
		if val == "" {
			continue
		}
		switch strings.ToLower(unit) {
		case "sqft", "sf":
			parts = append(parts, strings.TrimSpace(val+" "+unit))
		default:
			parts = append(parts, strings.TrimSpace(unit+" "+val))
		}
	}
	return strings.Join(parts, "; ")
}

// buildFacilities extracts facilitiesData.data[].text values, comma-joined.
func buildFacilities(root interface{}) string {
	v, ok := Lookup(root, "facilitiesData.data")
	if !ok {
		return ""
	}
	list, ok := v.([]interface{})
	if !ok {
		return ""
	}
	var parts []string
	for _, it := range list {
		m, ok := it.(map[string]interface{})
		if !ok {
			continue
		}
		if t, ok := m["text"].(string); ok && t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, ", ")
}

// Extract turns a decoded JSON payload into a DetailRow using schema's
// field-path lists, normalizers, and free-text supplementation. It is a
// pure function: no I/O, no browser or filesystem dependency, usable
// identically for live-fetched payloads and offline file-replay.
func Extract(payload interface{}, schema Schema) DetailRow {
	root := DataRoot(payload)

	var row DetailRow
	row.URL = FirstNonEmptyString(root, schema.URL)
	row.Title = FirstNonEmptyString(root, schema.Title)
	row.PropertyType = FirstNonEmptyString(root, schema.PropertyType)

	row.ListingUUID = FirstNonEmptyString(root, schema.ListingUUID)
	row.AdIdentifier = FirstNonEmptyString(root, schema.AdID)
	if row.AdIdentifier == "" {
		row.AdIdentifier = row.ListingUUID
	}
	if row.AdIdentifier == "" {
		row.AdIdentifier = FirstNonEmptyString(root, schema.ListingNumericID)
	}

	rawAddress := FirstNonEmptyString(root, schema.Address)
	row.Address = NormalizeAddress(rawAddress)
	row.State = FirstNonEmptyString(root, schema.State)
	if row.State == "" {
		row.State = FindStateInAddress(row.Address)
	}
	row.District = FirstNonEmptyString(root, schema.District)
	row.Subarea = FirstNonEmptyString(root, schema.Subarea)
	row.Location = composeLocation(row.Subarea, row.District, row.State, row.Address)

	row.ListerName = FirstNonEmptyString(root, schema.ListerName)
	row.ListerURL = FirstNonEmptyString(root, schema.ListerURL)
	row.Phone = FirstNonEmptyString(root, schema.Phone)
	row.Phone2 = FirstNonEmptyString(root, schema.Phone2)
	row.AgencyName = FirstNonEmptyString(root, schema.AgencyName)
	row.AgencyReg = FirstNonEmptyString(root, schema.AgencyReg)
	row.REN = FirstNonEmptyString(root, schema.REN)
	row.SellerName = FirstNonEmptyString(root, schema.SellerName)
	row.Email = FirstNonEmptyString(root, schema.Email)

	if priceVal, _, ok := FirstNonEmpty(root, schema.Price); ok {
		if p, ok := ParseMoney(priceVal); ok {
			row.Price = p
		}
	}
	row.Currency = FirstNonEmptyString(root, schema.Currency)
	row.RentSale = FirstNonEmptyString(root, schema.RentSale)
	row.Type = FirstNonEmptyString(root, schema.Type)
	row.Market = FirstNonEmptyString(root, schema.Market)
	row.Region = FirstNonEmptyString(root, schema.Region)
	metatableStrings := MetatableStrings(root)
	row.CarPark = extractCarPark(root, schema, metatableStrings)
	if n := ParseRoomCount(FirstNonEmptyString(root, schema.Rooms)); n > 0 {
		row.Rooms = strconv.Itoa(n)
	}
	if n := ParseRoomCount(FirstNonEmptyString(root, schema.Toilets)); n > 0 {
		row.Toilets = strconv.Itoa(n)
	}

	row.PostedDate = FirstNonEmptyString(root, schema.PostedDate)
	row.PostedTime = FirstNonEmptyString(root, schema.PostedTime)
	row.CreatedTime = FirstNonEmptyString(root, schema.CreatedTime)
	row.UpdatedDate = FirstNonEmptyString(root, schema.UpdatedDate)
	row.ActivateDate = FirstNonEmptyString(root, schema.ActivateDate)

	if psfVal := FirstNonEmptyString(root, schema.PSF); psfVal != "" {
		if f, err := strconv.ParseFloat(strings.ReplaceAll(psfVal, ",", ""), 64); err == nil {
			row.PSF = f
		}
	}
	row.FloorAreaSqft = parseAreaSqft(FirstNonEmptyString(root, schema.FloorArea))
	row.LandAreaSqft = parseAreaSqft(FirstNonEmptyString(root, schema.LandArea))

	rawTenure := FirstNonEmptyString(root, schema.Tenure)
	row.Tenure = MapTenure(rawTenure)
	row.PropertyTitle = FirstNonEmptyString(root, schema.PropertyTitle)
	row.BumiLot = FirstNonEmptyString(root, schema.BumiLot)
	row.TotalUnits = DigitsOnly(FirstNonEmptyString(root, schema.TotalUnits))
	row.CompletionYear = DigitsOnly(FirstNonEmptyString(root, schema.CompletionYear))
	row.Developer = FirstNonEmptyString(root, schema.Developer)

	row.Furnishing, row.FurnishingSource = extractFurnishing(root, schema)

	row.Amenities = buildAmenities(root)
	row.Facilities = buildFacilities(root)

	fillFromDetails(&row, IterDetailStrings(root))
	maybeDerivePSF(&row)

	return row
}

// ExtractListings turns an ADLIST-phase payload into one ListingRow per
// entry in the schema's listing array. intent/segment/pageNo/scrapeAtUnix
// are carried through from the task that produced the payload, since the
// list page itself doesn't name its own search parameters.
func ExtractListings(payload interface{}, schema ListSchema, intent, segment string, pageNo int, scrapeAtUnix int64) []ListingRow {
	root := DataRoot(payload)
	v, ok := Lookup(root, schema.ListPath)
	if !ok {
		return nil
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}

	rows := make([]ListingRow, 0, len(list))
	for _, item := range list {
		row := ListingRow{
			URL:          FirstNonEmptyString(item, schema.URL),
			Title:        FirstNonEmptyString(item, schema.Title),
			ListingID:    FirstNonEmptyString(item, schema.ListingID),
			AgentName:    FirstNonEmptyString(item, schema.AgentName),
			AgentID:      FirstNonEmptyString(item, schema.AgentID),
			Intent:       intent,
			Segment:      segment,
			PageNo:       pageNo,
			ScrapeAtUnix: scrapeAtUnix,
		}
		if raw := FirstNonEmptyString(item, schema.ListedAt); raw != "" {
			row.ListedAtUnix = parseEpochLike(raw)
		}
		if row.URL == "" {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// parseEpochLike accepts either an already-numeric unix-seconds string or
// leaves unparsable values as zero; the source payloads use unix seconds
// for every "listed date" field observed.
func parseEpochLike(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// parseAreaSqft parses a free-form area value, converting sqm to sqft when
// the string carries an "sqm"/"m2" unit suffix; otherwise treats the
// numeric portion as already being in sqft.
func parseAreaSqft(s string) float64 {
	if s == "" {
		return 0
	}
	digits := regexp.MustCompile(`[\d,.]+`).FindString(s)
	if digits == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(digits, ",", ""), 64)
	if err != nil {
		return 0
	}
	low := strings.ToLower(s)
	if strings.Contains(low, "sqm") || strings.Contains(low, "m2") || strings.Contains(low, "m²") {
		return SqmToSqft(v)
	}
	return v
}
