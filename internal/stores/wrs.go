package stores

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/pmprecos/comparador/internal/match"
	"github.com/pmprecos/comparador/internal/price"
	"github.com/pmprecos/comparador/internal/scraper"
)

// SniperFast rarely returns more than a handful of relevant hits.
const wrsMaxCandidates = 5

// WRS looks parts up on WRS.it. Search results come from the SniperFast
// widget, which only renders under a real browser, so this store runs
// behind the chromedp transport.
type WRS struct {
	baseURL   string
	nav       *Navigator
	validator *match.Validator
	logger    *zap.Logger
}

// NewWRS builds the WRS collaborator.
func NewWRS(baseURL string, nav *Navigator, validator *match.Validator, logger *zap.Logger) *WRS {
	if baseURL == "" {
		baseURL = "https://www.wrs.it/"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WRS{
		baseURL:   strings.TrimRight(baseURL, "/") + "/",
		nav:       nav,
		validator: validator,
		logger:    logger.With(zap.String("store", "wrs")),
	}
}

// Name implements scraper.Store.
func (s *WRS) Name() string { return "wrs" }

// Close releases the navigator's transport.
func (s *WRS) Close() error { return s.nav.Close() }

// FetchAndScore loads the rendered search page and validates SniperFast
// hits in widget order until one passes.
func (s *WRS) FetchAndScore(ctx context.Context, refParts []string, refRaw string) (*scraper.SearchResult, error) {
	query := refRaw
	if query == "" {
		query = strings.Join(refParts, "+")
	}
	searchURL := fmt.Sprintf("%sen/search?s=%s", s.baseURL, url.QueryEscape(query))

	page, err := s.nav.Fetch(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("wrs search: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, fmt.Errorf("wrs parse results: %w", err)
	}

	links := s.resultLinks(doc)
	if len(links) > wrsMaxCandidates {
		links = links[:wrsMaxCandidates]
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

func (s *WRS) scoreCandidate(ctx context.Context, link string, refParts []string) (*scraper.SearchResult, bool) {
	prodPage, err := s.nav.Fetch(ctx, link)
	if err != nil {
		s.logger.Debug("candidate page failed", zap.String("url", link), zap.Error(err))
		return nil, false
	}
	prodDoc, err := goquery.NewDocumentFromReader(strings.NewReader(prodPage.HTML))
	if err != nil {
		return nil, false
	}

	priceText := wrsPriceText(prodDoc)
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

// resultLinks reads the SniperFast widget first and falls back to the
// regular result grid when the widget markup is absent.
func (s *WRS) resultLinks(doc *goquery.Document) []string {
	seen := make(map[string]struct{})
	var links []string
	collect := func(_ int, sel *goquery.Selection) {
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
	}

	doc.Find("#sniperfast_results .sniperfast_product a, .sniperfast_product a").Each(collect)
	if len(links) == 0 {
		doc.Find(".product-miniature a, article.product a").Each(collect)
	}
	return links
}

// wrsPriceText prefers the itemprop price meta tag WRS always carries,
// then the shared extraction heuristics.
func wrsPriceText(doc *goquery.Document) string {
	if content, ok := doc.Find(`meta[itemprop="price"]`).First().Attr("content"); ok {
		if v, err := strconv.ParseFloat(strings.TrimSpace(content), 64); err == nil {
			return fmt.Sprintf("€%.2f", v)
		}
	}
	return price.ExtractFromDocument(doc)
}
