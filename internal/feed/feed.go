// Package feed reads the merchant product feed that drives the audit.
package feed

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/pmprecos/comparador/internal/price"
	"github.com/pmprecos/comparador/internal/refs"
)

// Product is one feed item with its manufacturer reference resolved.
type Product struct {
	ID        string
	Title     string
	Link      string
	PriceText string
	PriceNum  *float64
	RefRaw    string
	RefNorm   string
	RefParts  []string
}

// IsComposite reports whether the product's reference names a kit.
func (p Product) IsComposite() bool {
	return refs.IsComposite(p.RefParts)
}

// promoCurrent matches promotional price texts where the current price
// follows a "Por:"/"Agora" style marker; the last amount is the live one.
var promoCurrent = regexp.MustCompile(`(?i)\b(?:por|agora)\b\s*:?\s*`)

// ParsePrice reads a feed price, preferring the current amount in
// promotional "was/now" texts.
func ParsePrice(text string) *float64 {
	if text == "" {
		return nil
	}
	if loc := promoCurrent.FindStringIndex(text); loc != nil {
		if v := price.Parse(text[loc[1]:]); v != nil {
			return v
		}
	}
	// Strikethrough formats list the old amount first and the current one
	// last.
	if strings.Contains(text, "~~") {
		parts := strings.Split(text, "~~")
		if v := price.Parse(parts[len(parts)-1]); v != nil {
			return v
		}
	}
	return price.Parse(text)
}

// Load parses the XML feed at path. Items without an extractable
// manufacturer reference are skipped and logged; they cannot be matched
// against any store.
func Load(path string, logger *zap.Logger) ([]Product, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feed: %w", err)
	}
	defer f.Close()

	doc, err := xmlquery.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := xmlquery.Find(doc, "//item")
	products := make([]Product, 0, len(items))
	skipped := 0
	for _, item := range items {
		p, ok := fromItem(item)
		if !ok {
			skipped++
			continue
		}
		products = append(products, p)
	}

	logger.Info("feed loaded",
		zap.String("path", path),
		zap.Int("products", len(products)),
		zap.Int("skipped", skipped))
	return products, nil
}

func fromItem(item *xmlquery.Node) (Product, bool) {
	desc := childText(item, "description")
	refRaw := refs.FromDescription(desc)
	if refRaw == "" {
		return Product{}, false
	}
	refNorm, refParts := refs.Normalize(refRaw)
	if refNorm == "" {
		return Product{}, false
	}

	priceText := childText(item, "price")
	return Product{
		ID:        childText(item, "id"),
		Title:     childText(item, "title"),
		Link:      childText(item, "link"),
		PriceText: priceText,
		PriceNum:  ParsePrice(priceText),
		RefRaw:    refRaw,
		RefNorm:   refNorm,
		RefParts:  refParts,
	}, true
}

// childText reads the first child element with the given local name,
// ignoring the g: namespace prefix merchant feeds use.
func childText(item *xmlquery.Node, local string) string {
	node := xmlquery.FindOne(item, fmt.Sprintf("*[local-name()='%s']", local))
	if node == nil {
		return ""
	}
	return strings.TrimSpace(node.InnerText())
}
