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

// Search and account pages that never lead to a product.
var genialSkipFragments = []string{"/cart", "/login", "/wishlist", "/compare", "/search", "/category", "/brand"}

// GenialMotor looks parts up on GenialMotor.it. The search endpoint
// sometimes redirects straight to the product page, so the result page
// itself is validated before any candidate links are followed.
type GenialMotor struct {
	baseURL   string
	nav       *Navigator
	validator *match.Validator
	logger    *zap.Logger
}

// NewGenialMotor builds the GenialMotor collaborator.
func NewGenialMotor(baseURL string, nav *Navigator, validator *match.Validator, logger *zap.Logger) *GenialMotor {
	if baseURL == "" {
		baseURL = "https://www.genialmotor.it/"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenialMotor{
		baseURL:   strings.TrimRight(baseURL, "/") + "/",
		nav:       nav,
		validator: validator,
		logger:    logger.With(zap.String("store", "genialmotor")),
	}
}

// Name implements scraper.Store.
func (s *GenialMotor) Name() string { return "genialmotor" }

// Close releases the navigator's transport.
func (s *GenialMotor) Close() error { return s.nav.Close() }

// FetchAndScore searches, accepts the result page itself when the search
// redirected to a product, and otherwise walks candidate links in page
// order until one validates.
func (s *GenialMotor) FetchAndScore(ctx context.Context, refParts []string, refRaw string) (*scraper.SearchResult, error) {
	query := refRaw
	if query == "" {
		query = strings.Join(refParts, "+")
	}
	searchURL := fmt.Sprintf("%sen/search?s=%s", s.baseURL, url.QueryEscape(query))

	page, err := s.nav.Fetch(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("genialmotor search: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, fmt.Errorf("genialmotor parse results: %w", err)
	}

	// Direct hit: the search page already is the product page.
	if priceText := price.ExtractFromDocument(doc); priceText != "" {
		validation := s.validator.Validate(refParts, s.identifiers(doc), page.URL, PageText(doc))
		if validation.Valid {
			return &scraper.SearchResult{
				URL:        page.URL,
				PriceText:  priceText,
				PriceNum:   price.Parse(priceText),
				Validation: validation,
			}, nil
		}
	}

	limit := defaultMaxCandidatesSimple
	if refs.IsComposite(refParts) {
		limit = defaultMaxCandidatesComposite
	}
	links := s.candidateLinks(doc, refParts)
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

func (s *GenialMotor) scoreCandidate(ctx context.Context, link string, refParts []string) (*scraper.SearchResult, bool) {
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

	validation := s.validator.Validate(refParts, s.identifiers(prodDoc), prodPage.URL, PageText(prodDoc))
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

// identifiers augments the shared extractor with image source tokens;
// GenialMotor often carries the reference only in the product photo name.
func (s *GenialMotor) identifiers(doc *goquery.Document) match.Identifiers {
	ids := ExtractIdentifiers(doc)
	seen := make(map[string]struct{}, len(ids.Codes))
	for _, code := range ids.Codes {
		seen[code] = struct{}{}
	}
	doc.Find("img[src]").Each(func(_ int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		for _, code := range codeScan.FindAllString(strings.ToUpper(src), -1) {
			if _, dup := seen[code]; dup {
				continue
			}
			seen[code] = struct{}{}
			ids.Codes = append(ids.Codes, code)
		}
	})
	return ids
}

// candidateLinks prefers links whose text or URL mentions the reference;
// when nothing matches it falls back to every product-looking link and
// lets validation decide.
func (s *GenialMotor) candidateLinks(doc *goquery.Document, refParts []string) []string {
	var targets []string
	if len(refParts) > 0 {
		targets = append(targets, refs.Token(refParts[0]))
	}
	if len(refParts) > 2 {
		reversed := make([]string, 0, len(refParts)-1)
		for i := len(refParts) - 1; i >= 1; i-- {
			reversed = append(reversed, refParts[i])
		}
		targets = append(targets, refs.Token(strings.Join(reversed, "")))
	}

	seen := make(map[string]struct{})
	var mentioned, products []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		if !strings.HasPrefix(href, "http") {
			href = strings.TrimRight(s.baseURL, "/") + "/" + strings.TrimLeft(href, "/")
		}
		lower := strings.ToLower(href)
		for _, skip := range genialSkipFragments {
			if strings.Contains(lower, skip) {
				return
			}
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}

		haystack := refs.Token(sel.Text()) + " " + refs.Token(href)
		for _, target := range targets {
			if target != "" && strings.Contains(haystack, target) {
				mentioned = append(mentioned, href)
				return
			}
		}
		if strings.Contains(lower, "/product") || strings.Contains(lower, "/p-") ||
			strings.Contains(lower, "/item") || strings.HasSuffix(lower, ".html") {
			products = append(products, href)
		}
	})

	if len(mentioned) > 0 {
		return mentioned
	}
	return products
}
