package catalog

import (
	"regexp"
	"strings"
)

// SkipReason explains why a record was not written. It is not an error: the
// batch carries on and the written count simply excludes the record.
type SkipReason string

// Skip reasons, checked in this order.
const (
	SkipNone         SkipReason = ""
	SkipMissingID    SkipReason = "missing_entity_id"
	SkipMissingURL   SkipReason = "missing_url"
	SkipMissingName  SkipReason = "missing_name"
	SkipMissingPrice SkipReason = "missing_price"
)

// ValidateProduct checks identifying fields first, then the price.
func ValidateProduct(p Product) SkipReason {
	if reason := validateIdentity(p); reason != SkipNone {
		return reason
	}
	if p.Price() == nil {
		return SkipMissingPrice
	}
	return SkipNone
}

// ValidateCard checks identifying fields. Rarity is auxiliary and may be empty.
func ValidateCard(c Card) SkipReason {
	return validateIdentity(c)
}

func validateIdentity(r Record) SkipReason {
	switch {
	case strings.TrimSpace(r.EntityID()) == "":
		return SkipMissingID
	case strings.TrimSpace(r.Locator()) == "":
		return SkipMissingURL
	case strings.TrimSpace(r.DisplayName()) == "":
		return SkipMissingName
	default:
		return SkipNone
	}
}

var invalidFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SafeFilename converts a segment or card identifier into a filesystem-safe
// archive stem.
func SafeFilename(value string) string {
	return invalidFilenameChars.ReplaceAllString(strings.TrimSpace(value), "_")
}
