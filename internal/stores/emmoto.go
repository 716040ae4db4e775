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

// Candidate limits per reference kind: composites get one extra page
// because their listings are spread across more results.
const (
	defaultMaxCandidatesSimple    = 3
	defaultMaxCandidatesComposite = 4
)

// Emmoto looks parts up on EM Moto, a Magento storefront with a direct
// catalog-search URL and static result markup.
type Emmoto struct {
	baseURL   string
	nav       *Navigator
	validator *match.Validator
	logger    *zap.Logger
}

// NewEmmoto builds the EM Moto collaborator.
func NewEmmoto(baseURL string, nav *Navigator, validator *match.Validator, logger *zap.Logger) *Emmoto {
	if baseURL == "" {
		baseURL = "https://em-moto.com/"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emmoto{
		baseURL:   strings.TrimRight(baseURL, "/") + "/",
		nav:       nav,
		validator: validator,
		logger:    logger.With(zap.String("store", "emmoto")),
	}
}

// Name implements scraper.Store.
func (s *Emmoto) Name() string { return "emmoto" }

// Close releases the navigator's transport.
func (s *Emmoto) Close() error { return s.nav.Close() }

// FetchAndScore searches the catalog with the raw reference (separators
// help Magento's tokenizer), then walks the first results validating each
// product page until one passes.
func (s *Emmoto) FetchAndScore(ctx context.Context, refParts []string, refRaw string) (*scraper.SearchResult, error) {
	query := refRaw
	if query == "" && len(refParts) > 0 {
		query = refParts[0]
	}
	searchURL := fmt.Sprintf("%sen/catalogsearch/result/?q=%s", s.baseURL, url.QueryEscape(query))

	page, err := s.nav.Fetch(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("emmoto search: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, fmt.Errorf("emmoto parse results: %w", err)
	}

	limit := defaultMaxCandidatesSimple
	if refs.IsComposite(refParts) {
		limit = defaultMaxCandidatesComposite
	}

	var result *scraper.SearchResult
	doc.Find("li.item.product.product-item").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if i >= limit {
			return false
		}
		candidate, ok := s.scoreCandidate(ctx, sel, refParts)
		if ok {
			result = candidate
			return false
		}
		return ctx.Err() == nil
	})
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return result, nil
}

func (s *Emmoto) scoreCandidate(ctx context.Context, sel *goquery.Selection, refParts []string) (*scraper.SearchResult, bool) {
	href, ok := sel.Find("a.product-item-link").First().Attr("href")
	if !ok || href == "" {
		return nil, false
	}
	if !strings.HasPrefix(href, "http") {
		href = strings.TrimRight(s.baseURL, "/") + href
	}

	listingPrice := listingPriceText(sel)

	prodPage, err := s.nav.Fetch(ctx, href)
	if err != nil {
		s.logger.Debug("candidate page failed", zap.String("url", href), zap.Error(err))
		return nil, false
	}
	prodDoc, err := goquery.NewDocumentFromReader(strings.NewReader(prodPage.HTML))
	if err != nil {
		return nil, false
	}

	priceText := listingPrice
	if priceText == "" {
		priceText = price.ExtractFromDocument(prodDoc)
	}
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

// listingPriceText reads the price straight off the result tile, trying
// the Magento data attribute, the promotional price, then the regular one.
func listingPriceText(sel *goquery.Selection) string {
	if amount, ok := sel.Find("span.price-wrapper[data-price-amount]").First().Attr("data-price-amount"); ok {
		if v := price.Parse(amount); v != nil {
			return fmt.Sprintf("€%.2f", *v)
		}
	}
	if text := strings.TrimSpace(sel.Find("span.special-price span.price").First().Text()); strings.Contains(text, "€") {
		return text
	}
	if text := strings.TrimSpace(sel.Find("span.price-wrapper span.price").First().Text()); strings.Contains(text, "€") {
		return text
	}
	return ""
}
