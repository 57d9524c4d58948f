package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"harvester/internal/extract"
)

// bom is the UTF-8 byte-order mark spec.md §6 requires every CSV to open
// with, for Excel compatibility on the Windows desktops the original
// output was consumed on.
var bom = []byte{0xEF, 0xBB, 0xBF}

// kualaLumpur is the fixed UTC+8 offset spec.md §4.5 names ("local
// wall-clock string (UTC+8)"); using a fixed offset rather than a
// tzdata-backed *time.Location keeps the conversion deterministic without
// depending on the host having the Asia/Kuala_Lumpur zoneinfo installed.
var kualaLumpur = time.FixedZone("UTC+8", 8*60*60)

// wallClockDateTime splits a unix timestamp into its UTC+8 date and
// time-of-day components, or ("", "") for an unset (zero) timestamp.
func wallClockDateTime(unix int64) (date, clock string) {
	if unix == 0 {
		return "", ""
	}
	t := time.Unix(unix, 0).In(kualaLumpur)
	return t.Format("2006-01-02"), t.Format("15:04:05")
}

// wallClockFull renders a full "date time" UTC+8 string, used for
// scrape_date columns which spec.md's worked examples show as a single
// combined field rather than split date/time.
func wallClockFull(unix int64) string {
	if unix == 0 {
		return ""
	}
	return time.Unix(unix, 0).In(kualaLumpur).Format("2006-01-02 15:04:05")
}

func newBOMWriter(path string) (*os.File, *csv.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("output: mkdir for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("output: create %s: %w", path, err)
	}
	if _, err := f.Write(bom); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("output: write BOM to %s: %w", path, err)
	}
	return f, csv.NewWriter(f), nil
}

var adlistHeader = []string{
	"intent", "segment", "url", "title", "updated_date", "listed_time",
	"scrape_date", "agent_name", "agent_id", "ad_id",
}

// WriteADListCSV writes the ADLIST-phase CSV per spec.md §6's column list.
// Rows should already be deduplicated by (url, intent, segment) before
// calling this (the Phase Sequencer's responsibility, not this writer's).
func WriteADListCSV(path string, rows []extract.ListingRow) error {
	f, w, err := newBOMWriter(path)
	if err != nil {
		return err
	}
	defer f.Close()
	defer w.Flush()

	if err := w.Write(adlistHeader); err != nil {
		return err
	}
	for _, r := range rows {
		updatedDate, listedTime := wallClockDateTime(r.ListedAtUnix)
		scrapeDate := wallClockFull(r.ScrapeAtUnix)
		rec := []string{
			r.Intent, r.Segment, r.URL, r.Title, updatedDate, listedTime,
			scrapeDate, r.AgentName, r.AgentID, r.ListingID,
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return w.Error()
}

var adviewHeader = []string{
	"url", "ad_id", "title", "property_type", "state", "subregion", "subarea",
	"location", "address", "price", "price_per_square_feet", "rooms",
	"toilets", "furnishing", "build_up", "land_area", "tenure",
	"property_title", "bumi_lot", "total_units", "completion_year",
	"developer", "lister", "lister_url", "phone_number", "agency",
	"agency_registration_number", "ren", "amenities", "facilities",
	"updated_date", "listed_time", "scrape_date", "agent_id",
}

// ListingIndex maps an ADLIST row's URL to the row, used to look up its
// timing/identity columns when assembling the final ADVIEW CSV, keyed by
// URL alone per spec.md §8
// property 6 ("if a row with the same URL exists in the ADLIST CSV").
type ListingIndex map[string]extract.ListingRow

// BuildListingIndex indexes ADLIST rows by URL for the ADVIEW join.
func BuildListingIndex(rows []extract.ListingRow) ListingIndex {
	idx := make(ListingIndex, len(rows))
	for _, r := range rows {
		idx[r.URL] = r
	}
	return idx
}

// WriteADViewCSV writes the final ADVIEW-phase CSV, left-joining each row
// against the ADLIST index by URL to fold in updated_date, listed_time,
// scrape_date, and agent_id. Rows with no matching ADLIST entry get empty
// strings for those four columns, per spec.md §8 property/scenario 5.
func WriteADViewCSV(path string, rows []extract.DetailRow, adlist ListingIndex, scrapeAtUnix int64) error {
	f, w, err := newBOMWriter(path)
	if err != nil {
		return err
	}
	defer f.Close()
	defer w.Flush()

	if err := w.Write(adviewHeader); err != nil {
		return err
	}
	for _, r := range rows {
		var updatedDate, listedTime, scrapeDate, agentID string
		if listing, ok := adlist[r.URL]; ok {
			updatedDate, listedTime = wallClockDateTime(listing.ListedAtUnix)
			scrapeDate = wallClockFull(listing.ScrapeAtUnix)
			agentID = listing.AgentID
		}

		rec := []string{
			r.URL, r.AdIdentifier, r.Title, r.PropertyType, r.State, r.District,
			r.Subarea, r.Location, r.Address, strconv.FormatInt(r.Price, 10),
			formatFloat(r.PSF), r.Rooms, r.Toilets, r.Furnishing,
			formatFloat(r.FloorAreaSqft), formatFloat(r.LandAreaSqft), r.Tenure,
			r.PropertyTitle, r.BumiLot, r.TotalUnits, r.CompletionYear,
			r.Developer, r.ListerName, r.ListerURL, r.Phone, r.AgencyName,
			r.AgencyReg, r.REN, r.Amenities, r.Facilities,
			updatedDate, listedTime, scrapeDate, agentID,
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return w.Error()
}

// formatFloat renders a derived numeric field empty when zero (field was
// never resolved) rather than printing a misleading "0.00".
func formatFloat(f float64) string {
	if f == 0 {
		return ""
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}
