package limitless

import (
	"bytes"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/catalog"
)

const (
	cardIDMarker = "CARD ID"
	dataIDMarker = "DATA ID"
	raritySelect = ".card-prints-current .prints-current-details span:not(.text-lg)"
)

// CardRef is a card link found on a page.
type CardRef struct {
	Lang     string
	SetCode  string
	CardCode string
}

// Extract parses one card detail page. Identifiers come from the CARD ID and
// DATA ID HTML comments; language, set, and card code come from address. A
// page with neither a CARD ID marker nor a card name yields no records.
func Extract(markup []byte, address string) []catalog.Card {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil
	}

	card := catalog.Card{
		URL:    strings.TrimSpace(address),
		Name:   strings.TrimSpace(doc.Find(".card-text-name").First().Text()),
		Rarity: rarity(doc),
	}
	for _, n := range doc.Nodes {
		walkComments(n, func(text string) {
			switch {
			case card.CardID == "" && strings.HasPrefix(text, cardIDMarker):
				card.CardID = strings.TrimSpace(strings.TrimPrefix(text, cardIDMarker))
			case card.DataID == "" && strings.HasPrefix(text, dataIDMarker):
				card.DataID = strings.TrimSpace(strings.TrimPrefix(text, dataIDMarker))
			}
		})
	}
	if card.CardID == "" && card.Name == "" {
		return nil
	}
	if ref, ok := parseCardPath(address); ok {
		card.Lang = ref.Lang
		card.SetCode = ref.SetCode
		card.CardCode = ref.CardCode
	}
	return []catalog.Card{card}
}

// ExtractCardLinks returns every "/cards/<lang>/<set>/<code>" link in document
// order.
func ExtractCardLinks(markup []byte) []CardRef {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil
	}
	var refs []CardRef
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if !strings.HasPrefix(href, "/cards/") {
			return
		}
		if ref, ok := parseCardPath(href); ok {
			refs = append(refs, ref)
		}
	})
	return refs
}

// SetSize returns the highest numeric card code linked for lang/set, or 0 when
// none is found.
func SetSize(refs []CardRef, lang, set string) int {
	size := 0
	for _, ref := range refs {
		if !strings.EqualFold(ref.Lang, lang) || !strings.EqualFold(ref.SetCode, set) {
			continue
		}
		n, err := strconv.Atoi(ref.CardCode)
		if err == nil && n > size {
			size = n
		}
	}
	return size
}

func rarity(doc *goquery.Document) string {
	raw := strings.TrimSpace(doc.Find(raritySelect).First().Text())
	_, after, found := strings.Cut(raw, "·")
	if !found {
		return ""
	}
	return strings.TrimSpace(after)
}

func walkComments(n *html.Node, visit func(string)) {
	if n.Type == html.CommentNode {
		visit(strings.TrimSpace(n.Data))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkComments(c, visit)
	}
}

func parseCardPath(raw string) (CardRef, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return CardRef{}, false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 4 || parts[0] != "cards" {
		return CardRef{}, false
	}
	if parts[1] == "" || parts[2] == "" || parts[3] == "" {
		return CardRef{}, false
	}
	return CardRef{Lang: parts[1], SetCode: parts[2], CardCode: parts[3]}, true
}
