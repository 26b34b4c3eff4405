package catalog

import (
	"fmt"
	"strings"
	"time"
)

// Source names a catalog origin. Segments, stores, and metrics are keyed by it.
type Source string

// Supported sources.
const (
	SourceCardrush  Source = "cardrush"
	SourceLimitless Source = "limitless"
)

// ParseSource normalizes a user-supplied source name.
func ParseSource(raw string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(raw))) {
	case SourceCardrush:
		return SourceCardrush, nil
	case SourceLimitless:
		return SourceLimitless, nil
	default:
		return "", fmt.Errorf("unknown source %q", raw)
	}
}

// Segment is one independently enumerated sub-catalog (a card series or set).
//
// For CardRush, BaseAddress is the product-group listing URL. For Limitless it
// is "<lang>/<set>", resolved against the configured site root. MaxPages is the
// traversal ceiling; zero means "use the source default".
type Segment struct {
	Source      Source `mapstructure:"source" json:"source"`
	ID          string `mapstructure:"id" json:"id"`
	BaseAddress string `mapstructure:"base_address" json:"base_address"`
	MaxPages    int    `mapstructure:"max_pages" json:"max_pages"`
}

// Address is a resolved fetch target. Name is an optional archive stem; when
// empty the archiver falls back to a content-addressed name.
type Address struct {
	URL  string
	Name string
}

// Page is the raw result of one successful fetch.
type Page struct {
	Address    Address
	FinalURL   string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Record is the minimal view the traversal controller needs of any extracted
// entity: its stable identifier, canonical locator, and display name.
type Record interface {
	EntityID() string
	Locator() string
	DisplayName() string
}

// Product is one CardRush listing entry. Empty strings mean "not found in the
// markup" and are stored as NULL.
type Product struct {
	ProductID   string `json:"product_id"`
	URL         string `json:"url"`
	Name        string `json:"name"`
	NameFull    string `json:"name_full"`
	Condition   string `json:"condition"`
	ModelNumber string `json:"model_number"`
	SetSize     string `json:"set_size"`
	ModelCode   string `json:"model_code"`
	PriceText   string `json:"price_text"`
	StockText   string `json:"stock_text"`
	ImageURL    string `json:"image_url"`
	ImageAlt    string `json:"image_alt"`
}

// EntityID implements Record.
func (p Product) EntityID() string { return p.ProductID }

// Locator implements Record.
func (p Product) Locator() string { return p.URL }

// DisplayName implements Record.
func (p Product) DisplayName() string { return p.Name }

// Price parses PriceText.
func (p Product) Price() *float64 { return ParsePrice(p.PriceText) }

// Card is one Limitless card detail page.
type Card struct {
	CardID   string `json:"card_id"`
	DataID   string `json:"data_id"`
	URL      string `json:"url"`
	Name     string `json:"name"`
	Lang     string `json:"lang"`
	SetCode  string `json:"set_code"`
	CardCode string `json:"card_code"`
	Rarity   string `json:"rarity"`
}

// EntityID implements Record.
func (c Card) EntityID() string { return c.CardID }

// Locator implements Record.
func (c Card) Locator() string { return c.URL }

// DisplayName implements Record.
func (c Card) DisplayName() string { return c.Name }

// Batch is the unit handed to a Persister: the records accepted from one
// traversal index, tagged with the segment they belong to.
type Batch[R Record] struct {
	Source     Source
	Segment    string
	Index      int
	ObservedAt time.Time
	Records    []R
}

// ObservationDate returns the history bucket for t: its UTC calendar day.
func ObservationDate(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
