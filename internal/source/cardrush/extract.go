package cardrush

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/catalog"
)

var (
	conditionPattern  = regexp.MustCompile(`〔(.*?)〕`)
	decorationPattern = regexp.MustCompile(`〔.*?〕|\(.*?\)|【.*?】|\{.*?\}`)
	setNumberPattern  = regexp.MustCompile(`\{(\d+)\s*/\s*(\d+)\}`)
	modelCodePattern  = regexp.MustCompile(`\](.+)$`)
)

// Extract parses every product block in document order. Missing elements
// leave fields empty; records are never dropped here so diagnostics can show
// why a product was later skipped.
func Extract(markup []byte, address string) []catalog.Product {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil
	}
	base := resolveBase(address)

	var products []catalog.Product
	doc.Find("div.item_data").Each(func(_ int, item *goquery.Selection) {
		p := catalog.Product{
			ProductID: strings.TrimSpace(item.AttrOr("data-product-id", "")),
			NameFull:  text(item.Find("p.item_name span.goods_name")),
			PriceText: text(item.Find("p.selling_price span.figure")),
			StockText: text(item.Find("p.stock")),
		}
		if href, ok := item.Find("a.item_data_link").First().Attr("href"); ok {
			p.URL = resolve(base, href)
		}
		name := DecodeName(p.NameFull)
		p.Name = name.Name
		p.Condition = name.Condition
		p.ModelNumber = name.ModelNumber
		p.SetSize = name.SetSize
		p.ModelCode = ModelCode(text(item.Find("p.item_name span.model_number_value")))

		img := item.Find("div.global_photo img").First()
		p.ImageURL = strings.TrimSpace(img.AttrOr("src", ""))
		p.ImageAlt = strings.TrimSpace(img.AttrOr("alt", ""))

		products = append(products, p)
	})
	return products
}

// DecodedName is the structured form of a CardRush display name such as
// "〔状態A-〕かがやくゲッコウガ(K仕様)【-】{003/019}".
type DecodedName struct {
	Name        string
	Condition   string
	ModelNumber string
	SetSize     string
}

// DecodeName splits a full display name into its parts.
func DecodeName(full string) DecodedName {
	if full == "" {
		return DecodedName{}
	}
	var out DecodedName
	if m := conditionPattern.FindStringSubmatch(full); m != nil {
		out.Condition = m[1]
	}
	out.Name = strings.TrimSpace(decorationPattern.ReplaceAllString(full, ""))
	if m := setNumberPattern.FindStringSubmatch(full); m != nil {
		out.ModelNumber = m[1]
		out.SetSize = m[2]
	}
	return out
}

// ModelCode keeps the text after the closing bracket, e.g. "[SV2a]SVJP" -> "SVJP".
func ModelCode(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if m := modelCodePattern.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return raw
}

func text(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.First().Text())
}

func resolveBase(address string) *url.URL {
	if u, err := url.Parse(address); err == nil && u.Scheme != "" && u.Host != "" {
		return u
	}
	u, _ := url.Parse(DefaultBaseURL)
	return u
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
