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
	"github.com/pmprecos/comparador/internal/scraper"
)

// JBS result pages list more near-misses than the other stores, so its
// candidate budget is wider.
const jbsMaxCandidates = 10

// JBSMotos looks parts up on JBS-Motos.pt, a PrestaShop storefront with
// a plain search controller and static result markup.
type JBSMotos struct {
	baseURL   string
	nav       *Navigator
	validator *match.Validator
	logger    *zap.Logger
}

// NewJBSMotos builds the JBS Motos collaborator.
func NewJBSMotos(baseURL string, nav *Navigator, validator *match.Validator, logger *zap.Logger) *JBSMotos {
	if baseURL == "" {
		baseURL = "https://jbs-motos.pt/"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JBSMotos{
		baseURL:   strings.TrimRight(baseURL, "/") + "/",
		nav:       nav,
		validator: validator,
		logger:    logger.With(zap.String("store", "jbsmotos")),
	}
}

// Name implements scraper.Store.
func (s *JBSMotos) Name() string { return "jbsmotos" }

// Close releases the navigator's transport.
func (s *JBSMotos) Close() error { return s.nav.Close() }

// FetchAndScore runs the search controller and validates each result
// tile's product page until one passes.
func (s *JBSMotos) FetchAndScore(ctx context.Context, refParts []string, refRaw string) (*scraper.SearchResult, error) {
	query := refRaw
	if query == "" {
		query = strings.Join(refParts, "")
	}
	searchURL := fmt.Sprintf("%spt/search?controller=search&s=%s", s.baseURL, url.QueryEscape(query))

	page, err := s.nav.Fetch(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("jbsmotos search: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, fmt.Errorf("jbsmotos parse results: %w", err)
	}

	links := s.productLinks(doc)
	if len(links) > jbsMaxCandidates {
		links = links[:jbsMaxCandidates]
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

func (s *JBSMotos) scoreCandidate(ctx context.Context, link string, refParts []string) (*scraper.SearchResult, bool) {
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

// productLinks reads the result tiles: PrestaShop wraps each product in
// .product-miniature with the link inside the h3 title.
func (s *JBSMotos) productLinks(doc *goquery.Document) []string {
	seen := make(map[string]struct{})
	var links []string
	doc.Find(".product-miniature h3 a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		if !strings.HasPrefix(href, "http") {
			href = strings.TrimRight(s.baseURL, "/") + "/" + strings.TrimLeft(href, "/")
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}
		links = append(links, href)
	})
	return links
}
