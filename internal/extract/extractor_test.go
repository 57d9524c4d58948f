package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wrapPayload(data map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"props": map[string]interface{}{
			"pageProps": map[string]interface{}{
				"pageData": map[string]interface{}{
					"data": data,
				},
			},
		},
	}
}

func TestExtract_StructuredFieldsWin(t *testing.T) {
	payload := wrapPayload(map[string]interface{}{
		"listingData": map[string]interface{}{
			"listingUrl": "https://propertyguru.com.my/listing/123",
			"title":      "Lovely 3BR Condo",
		},
		"propertyOverviewData": map[string]interface{}{
			"propertyInfo": map[string]interface{}{
				"address": map[string]interface{}{
					"formattedAddress": "Jalan Bukit Bintang, Kuala Lumpur",
					"state":            "Kuala Lumpur",
					"district":         "Bukit Bintang",
				},
				"price":     map[string]interface{}{"amount": float64(850000)},
				"furnishing": "Fully Furnished",
				"tenure":     "F",
			},
		},
	})

	row := Extract(payload, PropertyGuru)
	assert.Equal(t, "https://propertyguru.com.my/listing/123", row.URL)
	assert.Equal(t, "Lovely 3BR Condo", row.Title)
	assert.Equal(t, "Kuala Lumpur", row.State)
	assert.Equal(t, int64(850000), row.Price)
	assert.Equal(t, "Fully Furnished", row.Furnishing)
	assert.Equal(t, "Freehold", row.Tenure)
}

func TestExtract_StateDerivedFromAddressWhenMissing(t *testing.T) {
	payload := wrapPayload(map[string]interface{}{
		"propertyOverviewData": map[string]interface{}{
			"propertyInfo": map[string]interface{}{
				"address": map[string]interface{}{
					"formattedAddress": "Georgetown, Penang",
				},
			},
		},
	})
	row := Extract(payload, PropertyGuru)
	assert.Equal(t, "Pulau Pinang", row.State)
}

func TestExtract_FreeTextSupplementation(t *testing.T) {
	payload := wrapPayload(map[string]interface{}{
		"detailsData": map[string]interface{}{
			"details": map[string]interface{}{
				"items": []interface{}{
					map[string]interface{}{"label": "info", "value": "Individual title"},
					map[string]interface{}{"label": "info", "value": "Not Bumi Lot"},
					map[string]interface{}{"label": "info", "value": "Developed by Sunway Berhad"},
					map[string]interface{}{"label": "info", "value": "Completed in 2021"},
					map[string]interface{}{"label": "info", "value": "1,200 sqft floor area"},
					map[string]interface{}{"label": "info", "value": "RM 650 psf"},
					map[string]interface{}{"label": "info", "value": "Freehold tenure"},
				},
			},
		},
	})
	row := Extract(payload, PropertyGuru)
	assert.Equal(t, "Individual", row.PropertyTitle)
	assert.Equal(t, "Not Bumi Lot", row.BumiLot)
	assert.Equal(t, "Sunway Berhad", row.Developer)
	assert.Equal(t, "2021", row.CompletionYear)
	assert.Equal(t, float64(1200), row.FloorAreaSqft)
	assert.Equal(t, float64(650), row.PSF)
	assert.Equal(t, "Freehold", row.Tenure)
}

func TestExtract_DerivedPSFWithinBounds(t *testing.T) {
	payload := wrapPayload(map[string]interface{}{
		"propertyOverviewData": map[string]interface{}{
			"propertyInfo": map[string]interface{}{
				"price":     map[string]interface{}{"amount": float64(1000000)},
				"floorArea": "1000 sqft",
			},
		},
	})
	row := Extract(payload, PropertyGuru)
	require.NotZero(t, row.FloorAreaSqft)
	assert.Equal(t, float64(1000), row.PSF)
}

func TestExtract_DerivedPSFSkippedOutOfBounds(t *testing.T) {
	payload := wrapPayload(map[string]interface{}{
		"propertyOverviewData": map[string]interface{}{
			"propertyInfo": map[string]interface{}{
				"price":     map[string]interface{}{"amount": float64(1000000)},
				"floorArea": "50 sqft",
			},
		},
	})
	row := Extract(payload, PropertyGuru)
	assert.Equal(t, float64(0), row.PSF, "floor area below the 400 sqft bound must not produce a derived psf")
}

func TestExtract_DerivedPSFSkippedForRentListing(t *testing.T) {
	payload := wrapPayload(map[string]interface{}{
		"listingData": map[string]interface{}{
			"listingType": "RENT",
		},
		"propertyOverviewData": map[string]interface{}{
			"propertyInfo": map[string]interface{}{
				"price":     map[string]interface{}{"amount": float64(1000000)},
				"floorArea": "1000 sqft",
			},
		},
	})
	row := Extract(payload, PropertyGuru)
	require.NotZero(t, row.FloorAreaSqft)
	assert.Equal(t, float64(0), row.PSF, "a for-rent listing must never get a derived psf, even within the area/price bounds")
}

func TestExtract_AdIdentifierFallsBackThroughListingUUIDAndListingID(t *testing.T) {
	payload := wrapPayload(map[string]interface{}{
		"listingData": map[string]interface{}{
			"adId": "AD-777",
		},
	})
	row := Extract(payload, PropertyGuru)
	assert.Equal(t, "AD-777", row.AdIdentifier)

	payload = wrapPayload(map[string]interface{}{
		"listingData": map[string]interface{}{
			"id": "uuid-123",
		},
	})
	row = Extract(payload, PropertyGuru)
	assert.Equal(t, "uuid-123", row.AdIdentifier, "falls back to the listing uuid when adId is absent")
	assert.Equal(t, "uuid-123", row.ListingUUID)

	payload = wrapPayload(map[string]interface{}{
		"listingData": map[string]interface{}{
			"listingId": "987654",
		},
	})
	row = Extract(payload, PropertyGuru)
	assert.Equal(t, "987654", row.AdIdentifier, "falls back to the numeric listing id when neither adId nor listingData.id is present")
}

func TestExtract_MissingPayloadYieldsEmptyRow(t *testing.T) {
	row := Extract(map[string]interface{}{}, PropertyGuru)
	assert.Equal(t, "", row.URL)
	assert.Equal(t, int64(0), row.Price)
}

func TestParseRoomCount(t *testing.T) {
	assert.Equal(t, 3, ParseRoomCount("3"))
	assert.Equal(t, 4, ParseRoomCount("3+1"))
	assert.Equal(t, 2, ParseRoomCount("2 R"))
	assert.Equal(t, 1, ParseRoomCount("1B"))
	assert.Equal(t, 0, ParseRoomCount(""))
}

func TestExtract_CarParkPrefersStructuredOverMetatable(t *testing.T) {
	payload := wrapPayload(map[string]interface{}{
		"propertyOverviewData": map[string]interface{}{
			"propertyInfo": map[string]interface{}{"carPark": float64(2)},
		},
		"detailsData": map[string]interface{}{
			"metatable": map[string]interface{}{
				"items": []interface{}{
					map[string]interface{}{"icon": "carpark-o", "value": "5 car park"},
				},
			},
		},
	})
	row := Extract(payload, PropertyGuru)
	assert.Equal(t, "2", row.CarPark)
}

func TestExtract_CarParkFallsBackToMetatableMax(t *testing.T) {
	payload := wrapPayload(map[string]interface{}{
		"detailsData": map[string]interface{}{
			"metatable": map[string]interface{}{
				"items": []interface{}{
					map[string]interface{}{"icon": "carpark-o", "value": "2 parking lots"},
					map[string]interface{}{"icon": "carpark-o", "value": "3 car park"},
				},
			},
		},
	})
	row := Extract(payload, PropertyGuru)
	assert.Equal(t, "3", row.CarPark)
}
