package stores

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/pmprecos/comparador/internal/match"
	"github.com/pmprecos/comparador/internal/price"
	"github.com/pmprecos/comparador/internal/refs"
	"github.com/pmprecos/comparador/internal/scraper"
)

// Product pages on Omnia all carry a "-p-<id>" slug, search pages do not.
const omniaProductMarker = "-p-"

// Omnia looks parts up on Omnia Racing. The storefront renders results
// with JavaScript, so it runs behind a chromedp transport.
type Omnia struct {
	baseURL   string
	nav       *Navigator
	validator *match.Validator
	logger    *zap.Logger
}

// NewOmnia builds the Omnia Racing collaborator.
func NewOmnia(baseURL string, nav *Navigator, validator *match.Validator, logger *zap.Logger) *Omnia {
	if baseURL == "" {
		baseURL = "https://www.omniaracing.net/"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Omnia{
		baseURL:   strings.TrimRight(baseURL, "/") + "/",
		nav:       nav,
		validator: validator,
		logger:    logger.With(zap.String("store", "omniaracing")),
	}
}

// Name implements scraper.Store.
func (s *Omnia) Name() string { return "omniaracing" }

// Close releases the navigator's transport.
func (s *Omnia) Close() error { return s.nav.Close() }

// FetchAndScore runs the advanced search and validates product links in
// page order until one passes or the candidate budget runs out.
func (s *Omnia) FetchAndScore(ctx context.Context, refParts []string, refRaw string) (*scraper.SearchResult, error) {
	query := refRaw
	if query == "" && len(refParts) > 0 {
		query = refParts[0]
	}
	searchURL := fmt.Sprintf("%sindex.php?keywords=%s&action=advanced_search&language=en",
		s.baseURL, url.QueryEscape(query))

	page, err := s.nav.Fetch(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("omniaracing search: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, fmt.Errorf("omniaracing parse results: %w", err)
	}

	links := productLinks(doc)
	limit := defaultMaxCandidatesSimple
	if refs.IsComposite(refParts) {
		limit = defaultMaxCandidatesComposite
	}
	if len(links) > limit {
		links = links[:limit]
	}

	for _, link := range links {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if result, ok := s.scoreCandidate(ctx, link, refParts); ok {
			return result, nil
		}
	}
	return nil, nil
}

func (s *Omnia) scoreCandidate(ctx context.Context, link string, refParts []string) (*scraper.SearchResult, bool) {
	prodPage, err := s.nav.Fetch(ctx, link)
	if err != nil {
		s.logger.Debug("candidate page failed", zap.String("url", link), zap.Error(err))
		return nil, false
	}
	prodDoc, err := goquery.NewDocumentFromReader(strings.NewReader(prodPage.HTML))
	if err != nil {
		return nil, false
	}

	priceText := price.ExtractFromDocument(prodDoc)
	if priceText == "" {
		return nil, false
	}

	validation := s.validator.Validate(refParts, ExtractIdentifiers(prodDoc), prodPage.URL, PageText(prodDoc))
	s.logger.Debug("candidate validated",
		zap.String("url", prodPage.URL),
		zap.Bool("valid", validation.Valid),
		zap.Float64("confidence", validation.Confidence),
		zap.String("reason", validation.Reason))
	if !validation.Valid {
		return nil, false
	}

	return &scraper.SearchResult{
		URL:        prodPage.URL,
		PriceText:  priceText,
		PriceNum:   price.Parse(priceText),
		Validation: validation,
	}, true
}

// productLinks collects unique product-page hrefs from a results page,
// keeping page order and dropping anything off-site.
func productLinks(doc *goquery.Document) []string {
	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href*='" + omniaProductMarker + "']").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if !strings.Contains(href, "omniaracing.net") {
			return
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}
		links = append(links, href)
	})
	return links
}
