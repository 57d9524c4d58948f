package extract

import "fmt"

// Schema is a per-site description of where each output field lives in
// that site's payload shape: an ordered list of dotted candidate paths,
// first-non-empty-wins. Both fetch-and-extract (live) and file-replay
// (offline) modes consume the same Schema type, per SPEC_FULL.md's
// resolution of the second-site-engine-identity open question.
type Schema struct {
	Name string

	URL          []string
	Title        []string
	PropertyType []string
	Address      []string
	State        []string
	District     []string
	Subarea      []string

	// AdID, ListingUUID and ListingNumericID feed the ad_id column's
	// fallback chain (adId or id or listingId), ported from
	// propertyguru_extract_spyder.py's ad_identifier/listing_uuid
	// computation. ListingNumericID is the detail payload's own listingId
	// field, distinct from the task-supplied listing ID the Phase
	// Sequencer carries over from the ADLIST phase.
	AdID             []string
	ListingUUID      []string
	ListingNumericID []string

	ListerName []string
	ListerURL  []string
	Phone      []string
	Phone2     []string
	AgencyName []string
	AgencyReg  []string
	REN        []string
	SellerName []string

	Price     []string
	CarPark   []string
	Email     []string
	Market    []string
	Region    []string
	RentSale  []string
	Type      []string

	PostedDate   []string
	PostedTime   []string
	CreatedTime  []string
	UpdatedDate  []string
	ActivateDate []string
	Currency     []string

	Rooms   []string
	Toilets []string

	PSF              []string
	FloorArea        []string
	LandArea         []string
	Tenure           []string
	PropertyTitle    []string
	BumiLot          []string
	TotalUnits       []string
	CompletionYear   []string
	Developer        []string

	FurnishStrict []string // FURNISH_PATHS_STRICT
}

// PropertyGuru is the live-fetched primary site's schema, ported field for
// field (same dotted strings, same ordering) from
// original_source/propertyguru_extract_spyder.py's *_PATHS constants.
var PropertyGuru = Schema{
	Name: "propertyguru",

	URL:              []string{"listingData.listingUrl", "shareData.url"},
	Title:            []string{"listingData.title", "propertyOverviewData.propertyInfo.propertyName", "seoData.title"},
	AdID:             []string{"listingData.adId"},
	ListingUUID:      []string{"listingData.id"},
	ListingNumericID: []string{"listingData.listingId"},
	PropertyType:     []string{"propertyOverviewData.propertyInfo.propertyType", "listingData.propertyType"},
	Address:          []string{"propertyOverviewData.propertyInfo.address.formattedAddress", "listingData.address", "propertyOverviewData.propertyInfo.address.text"},
	State:            []string{"propertyOverviewData.propertyInfo.address.state", "listingData.state"},
	District:         []string{"propertyOverviewData.propertyInfo.address.district", "listingData.district"},
	Subarea:          []string{"propertyOverviewData.propertyInfo.address.area", "listingData.area"},

	ListerName: []string{"listingData.agent.name", "contactAgentData.agent.name"},
	ListerURL:  []string{"listingData.agent.profileUrl", "contactAgentData.agent.profileUrl"},
	Phone:      []string{"listingData.agent.mobilePhone", "contactAgentData.agent.mobilePhone"},
	Phone2:     []string{"listingData.agent.officePhone", "contactAgentData.agent.officePhone"},
	AgencyName: []string{"listingData.agent.agency.name", "contactAgentData.agency.name"},
	AgencyReg:  []string{"listingData.agent.agency.licenseNumber", "contactAgentData.agency.licenseNumber"},
	REN:        []string{"listingData.agent.ren", "contactAgentData.agent.ren"},
	SellerName: []string{"listingData.agent.name", "listingData.seller.name"},

	Price:    []string{"propertyOverviewData.propertyInfo.price.amount", "listingData.priceValue", "listingData.pricePretty", "listingData.price"},
	CarPark:  []string{"propertyOverviewData.propertyInfo.carPark", "listingData.carPark"},
	Email:    []string{"listingData.agent.email", "contactAgentData.agent.email"},
	Market:   []string{"listingData.market", "trackingData.market"},
	Region:   []string{"listingData.region", "trackingData.region"},
	RentSale: []string{"listingData.listingType", "trackingData.listingType"},
	Type:     []string{"listingData.type", "trackingData.propertyType"},

	PostedDate:   []string{"listingData.postedDate", "trackingData.postedDate"},
	PostedTime:   []string{"listingData.postedTime", "trackingData.postedTime"},
	CreatedTime:  []string{"listingData.createdTime", "trackingData.createdTime"},
	UpdatedDate:  []string{"listingData.updatedDate", "trackingData.updatedDate"},
	ActivateDate: []string{"listingData.activateDate", "trackingData.activateDate"},
	Currency:     []string{"listingData.currency", "propertyOverviewData.propertyInfo.price.currency"},

	Rooms:   []string{"propertyOverviewData.propertyInfo.bedrooms", "listingData.bedrooms"},
	Toilets: []string{"propertyOverviewData.propertyInfo.bathrooms", "listingData.bathrooms"},

	PSF:            []string{"propertyOverviewData.propertyInfo.psf", "listingData.psf"},
	FloorArea:      []string{"propertyOverviewData.propertyInfo.floorArea", "listingData.floorArea"},
	LandArea:       []string{"propertyOverviewData.propertyInfo.landArea", "listingData.landArea"},
	Tenure:         []string{"propertyOverviewData.propertyInfo.tenure", "listingData.tenure"},
	PropertyTitle:  []string{"propertyOverviewData.propertyInfo.titleType", "listingData.titleType"},
	BumiLot:        []string{"propertyOverviewData.propertyInfo.bumiLot", "listingData.bumiLot"},
	TotalUnits:     []string{"propertyOverviewData.propertyInfo.totalUnits", "listingData.totalUnits"},
	CompletionYear: []string{"propertyOverviewData.propertyInfo.completionYear", "listingData.completionYear"},
	Developer:      []string{"propertyOverviewData.propertyInfo.developer", "listingData.developer"},

	FurnishStrict: []string{
		"propertyOverviewData.propertyInfo.furnishing",
		"listingData.furnishing",
		"detailsData.furnishing",
		"detailsData.metatable.furnishing",
	},
}

// IProperty is the second site's schema. Same payload shape (an embedded
// Next.js props.pageProps.pageData.data root), different field-path
// vocabulary, ported from original_source/iproperty_extract_spyder.py.
var IProperty = Schema{
	Name: "iproperty",

	URL:              []string{"listingData.listingUrl", "seoMetaData.canonicalUrl"},
	Title:            []string{"listingData.title", "propertyData.name"},
	AdID:             []string{"listingData.adId"},
	ListingUUID:      []string{"listingData.id"},
	ListingNumericID: []string{"listingData.listingId"},
	PropertyType:     []string{"propertyData.type.name", "listingData.propertyType"},
	Address:          []string{"propertyData.address.fullAddress", "listingData.address"},
	State:            []string{"propertyData.address.state.name", "listingData.state"},
	District:         []string{"propertyData.address.area.name", "listingData.district"},
	Subarea:          []string{"propertyData.address.subarea.name", "listingData.subarea"},

	ListerName: []string{"agentData.name"},
	ListerURL:  []string{"agentData.profileUrl"},
	Phone:      []string{"agentData.mobile"},
	Phone2:     []string{"agentData.phone"},
	AgencyName: []string{"agentData.agencyName"},
	AgencyReg:  []string{"agentData.agencyLicense"},
	REN:        []string{"agentData.renNumber"},
	SellerName: []string{"agentData.name"},

	Price:    []string{"propertyData.price.value", "listingData.price"},
	CarPark:  []string{"propertyData.carParks", "listingData.carParks"},
	Email:    []string{"agentData.email"},
	Market:   []string{"trackingData.market"},
	Region:   []string{"trackingData.region"},
	RentSale: []string{"listingData.channel", "trackingData.channel"},
	Type:     []string{"trackingData.propertyType"},

	PostedDate:   []string{"listingData.postedAt"},
	PostedTime:   []string{"listingData.postedAtTime"},
	CreatedTime:  []string{"listingData.createdAt"},
	UpdatedDate:  []string{"listingData.updatedAt"},
	ActivateDate: []string{"listingData.activatedAt"},
	Currency:     []string{"propertyData.price.currency"},

	Rooms:   []string{"propertyData.rooms"},
	Toilets: []string{"propertyData.bathrooms"},

	PSF:            []string{"propertyData.psf"},
	FloorArea:      []string{"propertyData.builtUp"},
	LandArea:       []string{"propertyData.landArea"},
	Tenure:         []string{"propertyData.tenure.name"},
	PropertyTitle:  []string{"propertyData.titleType.name"},
	BumiLot:        []string{"propertyData.bumiLot"},
	TotalUnits:     []string{"propertyData.totalUnits"},
	CompletionYear: []string{"propertyData.completionYear"},
	Developer:      []string{"propertyData.developer.name"},

	FurnishStrict: []string{
		"propertyData.furnishing.name",
		"detailsData.furnishing",
	},
}

// ListSchema describes where each ADLIST-phase field lives within one
// element of a list-page payload's listing array, plus the dotted path to
// that array itself (relative to the payload's data root).
type ListSchema struct {
	Name string

	ListPath  string // path to the array of per-listing objects
	URL       []string
	Title     []string
	ListingID []string
	ListedAt  []string // epoch seconds; ExtractListings leaves a non-numeric value as 0
	AgentName []string
	AgentID   []string
}

// PropertyGuruList is the live-fetched primary site's list-page schema,
// ported from original_source/propertyguru_full_scrape.py's ADLIST
// row-building logic (the listingResultList iteration in the scrape
// function, not a separate file — the full-scrape script handles both
// phases inline).
var PropertyGuruList = ListSchema{
	Name:      "propertyguru",
	ListPath:  "listingResultList",
	URL:       []string{"listingUrl", "shareData.url"},
	Title:     []string{"title", "localizedTitle"},
	ListingID: []string{"listingId", "id"},
	ListedAt:  []string{"listedDate", "freshness.dateListed"},
	AgentName: []string{"agent.name", "ownerName"},
	AgentID:   []string{"agent.id", "agent.agentId"},
}

// IPropertyList is the second site's list-page schema, ported from
// original_source/iproperty_extract_spyder.py's equivalent field names.
var IPropertyList = ListSchema{
	Name:      "iproperty",
	ListPath:  "listingResultList",
	URL:       []string{"listingUrl", "seo.canonicalUrl"},
	Title:     []string{"title"},
	ListingID: []string{"id", "listingId"},
	ListedAt:  []string{"postedAt"},
	AgentName: []string{"agent.name"},
	AgentID:   []string{"agent.id"},
}

// SchemaFor resolves a configured site name to its detail and list-page
// schemas. Shared by the Phase Sequencer (live fetch) and the
// extract-offline command (file replay), per SPEC_FULL.md's resolution of
// spec.md §9's "second-site engine identity" open question: both consume
// the same Schema/ListSchema pair through a single lookup.
func SchemaFor(site string) (Schema, ListSchema, error) {
	switch site {
	case "", "propertyguru":
		return PropertyGuru, PropertyGuruList, nil
	case "iproperty":
		return IProperty, IPropertyList, nil
	default:
		return Schema{}, ListSchema{}, fmt.Errorf("extract: unknown site %q", site)
	}
}
