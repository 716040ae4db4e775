// Package match scores whether page-extracted data corresponds to a
// normalized part reference.
package match

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pmprecos/comparador/internal/refs"
)

// Type labels the rung of the decision ladder that produced a Result.
type Type string

// Match outcome labels.
const (
	TypeSKUExact          Type = "SKU_EXACT"
	TypeCodeExact         Type = "CODE_EXACT"
	TypeURLMatch          Type = "URL_MATCH"
	TypeCompositeComplete Type = "COMPOSITE_COMPLETE"
	TypeCompositePartial  Type = "COMPOSITE_PARTIAL"
	TypeFuzzy             Type = "FUZZY_MATCH"
	TypeKitRejected       Type = "KIT_REJECTED"
	TypeNoMatch           Type = "NO_MATCH"
)

// Result is the immutable outcome of validating one fetched page against a
// reference.
type Result struct {
	Valid        bool
	Confidence   float64
	Type         Type
	MatchedParts []string
	Reason       string
}

// Identifiers partitions the identifier strings a store collaborator
// extracted from a product page. Values are raw as found on the page;
// normalization happens here.
type Identifiers struct {
	SKUs  []string
	Codes []string
}

// Config lifts the hand-tuned ladder thresholds out of the code. The
// partial and fuzzy confidence formulas are empirically chosen legacy
// behavior, preserved as constants rather than derived from a model.
type Config struct {
	SKUExactConfidence      float64 `mapstructure:"sku_exact_confidence"`
	CodeExactConfidence     float64 `mapstructure:"code_exact_confidence"`
	URLMatchConfidence      float64 `mapstructure:"url_match_confidence"`
	CompositeBaseConfidence float64 `mapstructure:"composite_base_confidence"`
	CompositePartBonus      float64 `mapstructure:"composite_part_bonus"`
	CompositeMaxConfidence  float64 `mapstructure:"composite_max_confidence"`
	PartialBaseConfidence   float64 `mapstructure:"partial_base_confidence"`
	PartialPerMatchBonus    float64 `mapstructure:"partial_per_match_bonus"`
	KitRejectConfidence     float64 `mapstructure:"kit_reject_confidence"`
	MinPartLength           int     `mapstructure:"min_part_length"`
	FuzzyMinTokenLength     int     `mapstructure:"fuzzy_min_token_length"`
	FuzzyLengthTolerance    int     `mapstructure:"fuzzy_length_tolerance"`
	FuzzyOversizeScore      float64 `mapstructure:"fuzzy_oversize_score"`
	FuzzyOversizePenalty    float64 `mapstructure:"fuzzy_oversize_penalty"`
	FuzzyAcceptScore        float64 `mapstructure:"fuzzy_accept_score"`
	FuzzyBaseConfidence     float64 `mapstructure:"fuzzy_base_confidence"`
	FuzzyScoreWeight        float64 `mapstructure:"fuzzy_score_weight"`
	FuzzyValidConfidence    float64 `mapstructure:"fuzzy_valid_confidence"`
}

// DefaultConfig returns the tuned production thresholds.
func DefaultConfig() Config {
	return Config{
		SKUExactConfidence:      1.0,
		CodeExactConfidence:     0.95,
		URLMatchConfidence:      0.90,
		CompositeBaseConfidence: 0.85,
		CompositePartBonus:      0.05,
		CompositeMaxConfidence:  0.95,
		PartialBaseConfidence:   0.30,
		PartialPerMatchBonus:    0.10,
		KitRejectConfidence:     0.40,
		MinPartLength:           3,
		FuzzyMinTokenLength:     5,
		FuzzyLengthTolerance:    3,
		FuzzyOversizeScore:      0.85,
		FuzzyOversizePenalty:    0.9,
		FuzzyAcceptScore:        0.75,
		FuzzyBaseConfidence:     0.55,
		FuzzyScoreWeight:        0.20,
		FuzzyValidConfidence:    0.70,
	}
}

// Validator applies the decision ladder. It is stateless beyond its config
// and safe for concurrent use.
type Validator struct {
	cfg Config
}

// NewValidator builds a Validator with the given thresholds.
func NewValidator(cfg Config) *Validator {
	return &Validator{cfg: cfg}
}

// Validate compares a normalized reference (parts as produced by
// refs.Normalize) against one page's extracted identifiers, URL and text.
// The ladder is evaluated top-down; the first rung that fires wins.
func (v *Validator) Validate(parts []string, ids Identifiers, pageURL, pageText string) Result {
	if len(parts) == 0 {
		return Result{Type: TypeNoMatch, Reason: "no reference parts to validate"}
	}

	ref := parts[0]
	composite := refs.IsComposite(parts)

	skus := normalizeAll(ids.SKUs)
	codes := normalizeAll(ids.Codes)
	urlNorm := refs.Token(pageURL)

	// A single part must never be priced against a bundle that merely
	// contains it, even when every other signal matches.
	if !composite {
		if joined, ok := v.kitContaining(ref, ids, pageURL); ok {
			return Result{
				Valid:      false,
				Confidence: v.cfg.KitRejectConfidence,
				Type:       TypeKitRejected,
				Reason:     fmt.Sprintf("page offers kit %q containing %s", joined, ref),
			}
		}
	}

	if contains(skus, ref) {
		return Result{
			Valid:        true,
			Confidence:   v.cfg.SKUExactConfidence,
			Type:         TypeSKUExact,
			MatchedParts: []string{ref},
			Reason:       "exact SKU: " + ref,
		}
	}

	if contains(codes, ref) {
		return Result{
			Valid:        true,
			Confidence:   v.cfg.CodeExactConfidence,
			Type:         TypeCodeExact,
			MatchedParts: []string{ref},
			Reason:       "exact code: " + ref,
		}
	}

	if urlNorm != "" && strings.Contains(urlNorm, ref) {
		return Result{
			Valid:        true,
			Confidence:   v.cfg.URLMatchConfidence,
			Type:         TypeURLMatch,
			MatchedParts: []string{ref},
			Reason:       "reference in URL",
		}
	}

	if composite {
		return v.validateComposite(parts[1:], skus, codes, urlNorm)
	}

	return v.fuzzyMatch(ref, pageText)
}

// validateComposite requires every sub-part to appear somewhere on the
// page. A partial hit is a rejection: accepting "ABC123" when the audit
// asks for "ABC123+DEF456" would price a part against half a kit. The
// fuzzy tier is never attempted for composites: concatenated tokens make
// its false-positive risk unacceptable.
func (v *Validator) validateComposite(subParts, skus, codes []string, urlNorm string) Result {
	var matched []string
	considered := 0
	for _, part := range subParts {
		if len(part) < v.cfg.MinPartLength {
			continue
		}
		considered++
		if contains(skus, part) || contains(codes, part) || strings.Contains(urlNorm, part) {
			matched = append(matched, part)
		}
	}

	switch {
	case considered > 0 && len(matched) == considered:
		confidence := v.cfg.CompositeBaseConfidence + float64(len(matched)-2)*v.cfg.CompositePartBonus
		if confidence > v.cfg.CompositeMaxConfidence {
			confidence = v.cfg.CompositeMaxConfidence
		}
		if confidence < v.cfg.CompositeBaseConfidence {
			confidence = v.cfg.CompositeBaseConfidence
		}
		return Result{
			Valid:        true,
			Confidence:   confidence,
			Type:         TypeCompositeComplete,
			MatchedParts: matched,
			Reason:       fmt.Sprintf("composite complete: all %d parts found", len(matched)),
		}
	case len(matched) > 0:
		return Result{
			Valid:        false,
			Confidence:   v.cfg.PartialBaseConfidence + float64(len(matched))*v.cfg.PartialPerMatchBonus,
			Type:         TypeCompositePartial,
			MatchedParts: matched,
			Reason:       fmt.Sprintf("composite incomplete: %d/%d parts found", len(matched), considered),
		}
	default:
		return Result{
			Valid:  false,
			Type:   TypeNoMatch,
			Reason: "composite not found (fuzzy tier disabled for composites)",
		}
	}
}

// fuzzyMatch scans the page text for identifier-like tokens and scores
// character overlap. Candidates close in length are preferred; a large
// length difference is tolerated only on near-perfect raw similarity, at a
// penalty.
func (v *Validator) fuzzyMatch(ref, pageText string) Result {
	candidates := refs.ExtractCodes(pageText, v.cfg.FuzzyMinTokenLength)

	bestScore := 0.0
	best := ""
	for _, candidate := range candidates {
		score := overlapScore(ref, candidate)
		if score <= bestScore {
			continue
		}
		lenDiff := len(ref) - len(candidate)
		if lenDiff < 0 {
			lenDiff = -lenDiff
		}
		if lenDiff <= v.cfg.FuzzyLengthTolerance {
			bestScore = score
			best = candidate
		} else if score >= v.cfg.FuzzyOversizeScore {
			bestScore = score * v.cfg.FuzzyOversizePenalty
			best = candidate
		}
	}

	if bestScore >= v.cfg.FuzzyAcceptScore {
		confidence := v.cfg.FuzzyBaseConfidence + bestScore*v.cfg.FuzzyScoreWeight
		var matched []string
		if best != "" {
			matched = []string{best}
		}
		return Result{
			Valid:        confidence >= v.cfg.FuzzyValidConfidence,
			Confidence:   confidence,
			Type:         TypeFuzzy,
			MatchedParts: matched,
			Reason:       fmt.Sprintf("fuzzy match %s (score %.2f)", best, bestScore),
		}
	}

	return Result{
		Valid:      false,
		Confidence: bestScore,
		Type:       TypeNoMatch,
		Reason:     "no valid match",
	}
}

// plusJoined finds composite-looking tokens: two or more identifier
// segments joined by "+".
var plusJoined = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9.\-_]*(?:\+[A-Za-z0-9][A-Za-z0-9.\-_]*)+`)

// kitContaining reports whether any page identifier (or a plus-joined URL
// substring) is a kit that lists ref as one of its joined sub-parts.
func (v *Validator) kitContaining(ref string, ids Identifiers, pageURL string) (string, bool) {
	probe := func(raw string) bool {
		if !strings.Contains(raw, "+") {
			return false
		}
		segments := strings.Split(raw, "+")
		if len(segments) < 2 {
			return false
		}
		for _, seg := range segments {
			if refs.Token(strings.TrimSpace(seg)) == ref {
				return true
			}
		}
		return false
	}

	for _, raw := range ids.SKUs {
		if probe(raw) {
			return raw, true
		}
	}
	for _, raw := range ids.Codes {
		if probe(raw) {
			return raw, true
		}
	}

	// URLs carry the joiner either literally or percent-encoded.
	decoded := strings.ReplaceAll(pageURL, "%2B", "+")
	decoded = strings.ReplaceAll(decoded, "%2b", "+")
	for _, token := range plusJoined.FindAllString(decoded, -1) {
		if probe(token) {
			return token, true
		}
	}
	return "", false
}

// overlapScore is the legacy similarity metric: the count of reference
// characters also present in the candidate, over the longer length.
func overlapScore(ref, candidate string) float64 {
	if ref == "" || candidate == "" {
		return 0
	}
	common := 0
	for _, r := range ref {
		if strings.ContainsRune(candidate, r) {
			common++
		}
	}
	longer := len(ref)
	if len(candidate) > longer {
		longer = len(candidate)
	}
	return float64(common) / float64(longer)
}

func normalizeAll(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if tok := refs.Token(s); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
