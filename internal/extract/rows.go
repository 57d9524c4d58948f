package extract

// ListingRow is one row of the ADLIST-phase CSV: a discovered listing
// identity plus the minimal fields needed to seed the ADVIEW phase and,
// per spec.md §3/§4.5, the timing/identity columns folded into the final
// ADVIEW CSV via a left join on URL.
type ListingRow struct {
	URL         string
	Title       string
	ListedAtUnix int64 // 0 if the list page didn't carry a listed-at timestamp
	AgentName   string
	AgentID     string
	ListingID   string
	Intent      string
	Segment     string
	PageNo      int
	ScrapeAtUnix int64
}

// DetailRow is one row of the ADVIEW-phase CSV: the full extracted record
// for a single listing, field names matching spec.md §6's ADVIEW column
// list.
type DetailRow struct {
	URL              string
	ListingUUID      string
	ListingID        string
	AdIdentifier     string
	AgentID          string // folded in from the matching ADLIST row, not extracted directly
	Title            string
	PropertyType     string
	Address          string
	State            string
	District         string
	Subarea          string
	Location         string

	ListerName string
	ListerURL  string
	Phone      string
	Phone2     string
	AgencyName string
	AgencyReg  string
	REN        string
	SellerName string
	Email      string

	Price        int64
	Currency     string
	RentSale     string
	Type         string
	Market       string
	Region       string
	CarPark      string
	Rooms        string
	Toilets      string

	PostedDate   string
	PostedTime   string
	CreatedTime  string
	UpdatedDate  string
	ActivateDate string

	PSF              float64
	FloorAreaSqft    float64
	LandAreaSqft     float64
	Tenure           string
	PropertyTitle    string
	BumiLot          string
	TotalUnits       string
	CompletionYear   string
	Developer        string

	Furnishing       string
	FurnishingSource string

	Amenities  string
	Facilities string
}
