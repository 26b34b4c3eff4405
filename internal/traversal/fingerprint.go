package traversal

import "github.com/JakeFAU/tcg-catalog-crawler/internal/catalog"

// Signature identifies a page by its first record.
type Signature struct {
	EntityID string
	Locator  string
}

// Fingerprint returns the signature of records, or false when there are none.
// It is order sensitive: only the first record counts.
func Fingerprint[R catalog.Record](records []R) (Signature, bool) {
	if len(records) == 0 {
		return Signature{}, false
	}
	first := records[0]
	return Signature{EntityID: first.EntityID(), Locator: first.Locator()}, true
}
