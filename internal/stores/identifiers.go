package stores

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pmprecos/comparador/internal/match"
)

// codeScan finds identifier-like tokens. The "+" stays in the character
// class on purpose: kit listings join their part references with it, and
// the validator's kit guard needs to see the joiner.
var codeScan = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9.\-_+]{2,}`)

// ExtractIdentifiers collects the SKU and general-code candidates the
// validator scores a page with. Values are raw as found; the validator
// normalizes.
func ExtractIdentifiers(doc *goquery.Document) match.Identifiers {
	var ids match.Identifiers
	seenSKU := make(map[string]struct{})
	seenCode := make(map[string]struct{})

	addSKU := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, ok := seenSKU[s]; ok {
			return
		}
		seenSKU[s] = struct{}{}
		ids.SKUs = append(ids.SKUs, s)
	}
	addCodes := func(text string) {
		for _, tok := range codeScan.FindAllString(strings.ToUpper(text), -1) {
			if _, ok := seenCode[tok]; ok {
				continue
			}
			seenCode[tok] = struct{}{}
			ids.Codes = append(ids.Codes, tok)
		}
	}

	// Explicit SKU carriers first: Magento data attributes, microdata,
	// then JSON-LD sku/mpn.
	doc.Find("[data-product-sku]").Each(func(_ int, sel *goquery.Selection) {
		if sku, ok := sel.Attr("data-product-sku"); ok {
			addSKU(strings.ToUpper(sku))
			addCodes(sku)
		}
	})
	doc.Find(`[itemprop="sku"]`).Each(func(_ int, sel *goquery.Selection) {
		content, ok := sel.Attr("content")
		if !ok {
			content = sel.Text()
		}
		addSKU(strings.ToUpper(strings.TrimSpace(content)))
		addCodes(content)
	})
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		var data any
		if err := json.Unmarshal([]byte(sel.Text()), &data); err != nil {
			return
		}
		for _, sku := range jsonSKUs(data) {
			addSKU(strings.ToUpper(sku))
			addCodes(sku)
		}
	})

	// General codes: title, meta keywords, Open Graph, then the page
	// text (breadcrumbs, spec tables, descriptions).
	addCodes(doc.Find("title").Text())
	doc.Find(`meta[name="keywords"]`).Each(func(_ int, sel *goquery.Selection) {
		if content, ok := sel.Attr("content"); ok {
			addCodes(content)
		}
	})
	doc.Find(`meta[property="og:title"], meta[property="og:description"]`).Each(func(_ int, sel *goquery.Selection) {
		if content, ok := sel.Attr("content"); ok {
			addCodes(content)
		}
	})
	addCodes(doc.Find("body").Text())

	return ids
}

// jsonSKUs walks JSON-LD collecting sku and mpn values.
func jsonSKUs(node any) []string {
	var out []string
	switch v := node.(type) {
	case map[string]any:
		for _, key := range []string{"sku", "mpn"} {
			if s, ok := v[key].(string); ok && s != "" {
				out = append(out, s)
			}
		}
		for _, child := range v {
			out = append(out, jsonSKUs(child)...)
		}
	case []any:
		for _, item := range v {
			out = append(out, jsonSKUs(item)...)
		}
	}
	return out
}

// PageText flattens the document body for the validator's fuzzy scan.
func PageText(doc *goquery.Document) string {
	return strings.Join(strings.Fields(doc.Find("body").Text()), " ")
}
