// Package announce holds the announcement-title parsing shared by every
// HTML/announcement-scraping trigger part: a parenthesized ticker plus a
// listing-keyword filter (§4.6).
package announce

import (
	"regexp"
	"strings"
)

var tickerInParens = regexp.MustCompile(`\(([A-Za-z0-9]+)\)`)

// ListingKeywords are substrings that mark a title as an actual listing
// announcement rather than a maintenance notice or unrelated post.
var ListingKeywords = []string{"lists", "list", "상장", "마켓 추가"}

// ExtractTicker returns the upper-cased ticker inside the first
// parenthesized group of title, if any.
func ExtractTicker(title string) (string, bool) {
	m := tickerInParens.FindStringSubmatch(title)
	if m == nil {
		return "", false
	}
	return strings.ToUpper(m[1]), true
}

// HasListingKeyword reports whether title contains one of ListingKeywords,
// case-insensitively for the ASCII ones.
func HasListingKeyword(title string) bool {
	lower := strings.ToLower(title)
	for _, kw := range ListingKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
