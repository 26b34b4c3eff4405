package cardrush

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/catalog"
)

// Defaults for CardRush listings.
const (
	DefaultBaseURL  = "https://www.cardrush-pokemon.jp"
	DefaultPageSize = 100
	DefaultMaxPages = 14
)

// PageAddress builds the listing URL for page index of a product group:
// "<base>/0/photo?num=<pageSize>&page=<index>".
func PageAddress(base string, index, pageSize int) (string, error) {
	u, err := parseBase(base)
	if err != nil {
		return "", err
	}
	if index < 1 {
		return "", fmt.Errorf("page index must be >= 1, got %d", index)
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/0/photo"
	u.RawQuery = url.Values{
		"num":  []string{strconv.Itoa(pageSize)},
		"page": []string{strconv.Itoa(index)},
	}.Encode()
	u.Fragment = ""
	return u.String(), nil
}

// ArchiveName is the archive stem for a listing page.
func ArchiveName(segment string, index int) string {
	return fmt.Sprintf("%s_%d", catalog.SafeFilename(segment), index)
}

// Addresser returns the index-to-address resolver for seg. The base address is
// validated up front so a malformed segment fails before any fetch.
func Addresser(seg catalog.Segment, pageSize int) (func(int) (catalog.Address, error), error) {
	if _, err := parseBase(seg.BaseAddress); err != nil {
		return nil, err
	}
	return func(index int) (catalog.Address, error) {
		raw, err := PageAddress(seg.BaseAddress, index, pageSize)
		if err != nil {
			return catalog.Address{}, err
		}
		return catalog.Address{URL: raw, Name: ArchiveName(seg.ID, index)}, nil
	}, nil
}

func parseBase(base string) (*url.URL, error) {
	if strings.TrimSpace(base) == "" {
		return nil, fmt.Errorf("base address is empty")
	}
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return nil, fmt.Errorf("parse base address %q: %w", base, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base address %q must be http or https", base)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base address %q has no host", base)
	}
	return u, nil
}
