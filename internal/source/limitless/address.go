package limitless

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/catalog"
)

// Defaults for Limitless enumeration.
const (
	DefaultBaseURL = "https://limitlesstcg.com"
	// DefaultMaxCards bounds a set whose size could not be discovered.
	DefaultMaxCards = 400
)

// ParseSetPath splits a segment base address of the form "<lang>/<set>".
func ParseSetPath(p string) (lang, set string, err error) {
	parts := strings.Split(strings.Trim(strings.TrimSpace(p), "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("set path %q must look like <lang>/<set>", p)
	}
	return strings.ToLower(parts[0]), parts[1], nil
}

// SetAddress is the set overview page that links every card in the set.
func SetAddress(base, lang, set string) (string, error) {
	u, err := parseBase(base)
	if err != nil {
		return "", err
	}
	u = u.JoinPath("cards", lang, set)
	if lang == "jp" {
		u.RawQuery = "translate=en"
	}
	return u.String(), nil
}

// CardAddress is the detail page of card number index. Japanese pages are
// requested with English translation.
func CardAddress(base, lang, set string, index int) (string, error) {
	if index < 1 {
		return "", fmt.Errorf("card index must be >= 1, got %d", index)
	}
	u, err := parseBase(base)
	if err != nil {
		return "", err
	}
	u = u.JoinPath("cards", lang, set, strconv.Itoa(index))
	if lang == "jp" {
		u.RawQuery = "translate=en"
	}
	return u.String(), nil
}

// ArchiveName is the archive stem for a card page.
func ArchiveName(lang, set string, index int) string {
	return catalog.SafeFilename(fmt.Sprintf("%s_%s_%d", lang, set, index))
}

// Addresser returns the index-to-address resolver for seg, whose BaseAddress
// is "<lang>/<set>" relative to base.
func Addresser(seg catalog.Segment, base string) (func(int) (catalog.Address, error), error) {
	lang, set, err := ParseSetPath(seg.BaseAddress)
	if err != nil {
		return nil, err
	}
	if _, err := parseBase(base); err != nil {
		return nil, err
	}
	return func(index int) (catalog.Address, error) {
		raw, err := CardAddress(base, lang, set, index)
		if err != nil {
			return catalog.Address{}, err
		}
		return catalog.Address{URL: raw, Name: ArchiveName(lang, set, index)}, nil
	}, nil
}

func parseBase(base string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return nil, fmt.Errorf("parse base address %q: %w", base, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("base address %q must be an absolute http(s) URL", base)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
