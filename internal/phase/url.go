package phase

import (
	"strconv"
	"strings"
)

// BuildListURL appends a page-number query parameter to a category's
// configured search-URL base, the way the original scraper pages through a
// site's search-result listing ("...&page=N"): append with "&" if the base
// already carries a query string, "?" otherwise.
func BuildListURL(base string, pageNo int) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "page=" + strconv.Itoa(pageNo)
}
