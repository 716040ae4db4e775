// Package price extracts and parses product prices.
package price

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	currencyPattern = regexp.MustCompile(`(€|\bEUR\b)\s*([\d.,]+)`)
	nonNumeric      = regexp.MustCompile(`[^\d,.\s-]`)
	spaceRun        = regexp.MustCompile(`\s+`)
)

// Parse converts a price string into a number, handling both the European
// decimal comma ("1.234,56") and the plain dot format ("365.50"). Returns
// nil when no number can be read.
func Parse(text string) *float64 {
	if text == "" {
		return nil
	}

	s := strings.NewReplacer("€", " ", "EUR", " ").Replace(text)
	s = nonNumeric.ReplaceAllString(s, " ")
	s = strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
	if s == "" {
		return nil
	}

	// Comma after the last dot marks the European decimal separator.
	if strings.Count(s, ",") == 1 && strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// ExtractFromDocument pulls a formatted price out of a parsed product
// page, trying structured data before falling back to a text scan:
// JSON-LD Product offers, then itemprop="price", then a currency regex
// over the visible text.
func ExtractFromDocument(doc *goquery.Document) string {
	if p := fromJSONLD(doc); p != "" {
		return p
	}

	if sel := doc.Find(`[itemprop="price"]`).First(); sel.Length() > 0 {
		content, ok := sel.Attr("content")
		if !ok {
			content = strings.TrimSpace(sel.Text())
		}
		if content != "" {
			return "€ " + content
		}
	}

	text := doc.Find("body").Text()
	if m := currencyPattern.FindStringSubmatch(text); m != nil {
		return m[1] + " " + m[2]
	}
	return ""
}

func fromJSONLD(doc *goquery.Document) string {
	var found string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var data any
		if err := json.Unmarshal([]byte(sel.Text()), &data); err != nil {
			return true
		}
		if p := findProductPrice(data); p != "" {
			found = p
			return false
		}
		return true
	})
	return found
}

// findProductPrice walks arbitrary JSON-LD looking for a Product node with
// an offer price.
func findProductPrice(node any) string {
	switch v := node.(type) {
	case map[string]any:
		if v["@type"] == "Product" {
			if offers, ok := v["offers"].(map[string]any); ok {
				if p := offerPrice(offers); p != "" {
					return p
				}
			}
		}
		for _, child := range v {
			if p := findProductPrice(child); p != "" {
				return p
			}
		}
	case []any:
		for _, item := range v {
			if p := findProductPrice(item); p != "" {
				return p
			}
		}
	}
	return ""
}

func offerPrice(offers map[string]any) string {
	raw, ok := offers["price"]
	if !ok {
		return ""
	}
	currency, _ := offers["priceCurrency"].(string)
	if currency == "" {
		currency = "EUR"
	}
	switch p := raw.(type) {
	case string:
		if p == "" {
			return ""
		}
		return currency + " " + p
	case float64:
		return fmt.Sprintf("%s %.2f", currency, p)
	default:
		return ""
	}
}
