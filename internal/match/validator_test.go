package match_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pmprecos/comparador/internal/match"
	"github.com/pmprecos/comparador/internal/refs"
)

func newValidator() *match.Validator {
	return match.NewValidator(match.DefaultConfig())
}

func TestValidateExactTiers(t *testing.T) {
	v := newValidator()
	_, parts := refs.Normalize("71821-AKN")

	t.Run("SKUExact", func(t *testing.T) {
		res := v.Validate(parts, match.Identifiers{SKUs: []string{"71821AKN"}}, "", "")
		assert.True(t, res.Valid)
		assert.Equal(t, match.TypeSKUExact, res.Type)
		assert.InDelta(t, 1.0, res.Confidence, 1e-9)
		assert.Equal(t, []string{"71821AKN"}, res.MatchedParts)
	})

	t.Run("SKUExactNormalizesPageSide", func(t *testing.T) {
		res := v.Validate(parts, match.Identifiers{SKUs: []string{"71821-akn"}}, "", "")
		assert.True(t, res.Valid)
		assert.Equal(t, match.TypeSKUExact, res.Type)
	})

	t.Run("CodeExact", func(t *testing.T) {
		res := v.Validate(parts, match.Identifiers{Codes: []string{"71821AKN"}}, "", "")
		assert.True(t, res.Valid)
		assert.Equal(t, match.TypeCodeExact, res.Type)
		assert.InDelta(t, 0.95, res.Confidence, 1e-9)
	})

	t.Run("URLContainment", func(t *testing.T) {
		res := v.Validate(parts, match.Identifiers{}, "https://shop.example/product/71821-akn.html", "")
		assert.True(t, res.Valid)
		assert.Equal(t, match.TypeURLMatch, res.Type)
		assert.InDelta(t, 0.90, res.Confidence, 1e-9)
	})

	t.Run("NoSignals", func(t *testing.T) {
		res := v.Validate(parts, match.Identifiers{}, "https://shop.example/other", "unrelated text")
		assert.False(t, res.Valid)
		assert.Equal(t, match.TypeNoMatch, res.Type)
	})
}

func TestValidateKitRejection(t *testing.T) {
	v := newValidator()
	_, parts := refs.Normalize("ABC123")

	t.Run("KitSKU", func(t *testing.T) {
		res := v.Validate(parts, match.Identifiers{SKUs: []string{"ABC123+DEF456"}}, "", "")
		assert.False(t, res.Valid)
		assert.Equal(t, match.TypeKitRejected, res.Type)
		assert.InDelta(t, 0.40, res.Confidence, 1e-9)
	})

	t.Run("KitCode", func(t *testing.T) {
		res := v.Validate(parts, match.Identifiers{Codes: []string{"abc-123+def-456"}}, "", "")
		assert.False(t, res.Valid)
		assert.Equal(t, match.TypeKitRejected, res.Type)
	})

	t.Run("KitInURL", func(t *testing.T) {
		res := v.Validate(parts, match.Identifiers{}, "https://shop.example/kit/ABC123%2BDEF456", "")
		assert.False(t, res.Valid)
		assert.Equal(t, match.TypeKitRejected, res.Type)
	})

	t.Run("GuardBeatsExactSKU", func(t *testing.T) {
		// Even a perfect SKU match elsewhere on the page must not price a
		// single part against a bundle listing.
		ids := match.Identifiers{SKUs: []string{"ABC123", "ABC123+DEF456"}}
		res := v.Validate(parts, ids, "", "")
		assert.False(t, res.Valid)
		assert.Equal(t, match.TypeKitRejected, res.Type)
	})

	t.Run("CompositeRefsSkipGuard", func(t *testing.T) {
		_, composite := refs.Normalize("ABC123+DEF456")
		res := v.Validate(composite, match.Identifiers{SKUs: []string{"ABC123+DEF456"}}, "", "")
		assert.True(t, res.Valid)
	})

	t.Run("UnrelatedKitIgnored", func(t *testing.T) {
		res := v.Validate(parts, match.Identifiers{SKUs: []string{"XYZ999+QQQ111", "ABC123"}}, "", "")
		assert.True(t, res.Valid)
		assert.Equal(t, match.TypeSKUExact, res.Type)
	})
}

func TestValidateComposite(t *testing.T) {
	v := newValidator()
	_, parts := refs.Normalize("ABC123+DEF456")

	t.Run("AllPartsPresent", func(t *testing.T) {
		ids := match.Identifiers{SKUs: []string{"ABC123"}, Codes: []string{"DEF456"}}
		res := v.Validate(parts, ids, "https://shop.example/p", "")
		assert.True(t, res.Valid)
		assert.Equal(t, match.TypeCompositeComplete, res.Type)
		assert.GreaterOrEqual(t, res.Confidence, 0.85)
		assert.LessOrEqual(t, res.Confidence, 0.95)
		assert.ElementsMatch(t, []string{"ABC123", "DEF456"}, res.MatchedParts)
	})

	t.Run("PartsSplitAcrossURLAndCodes", func(t *testing.T) {
		ids := match.Identifiers{Codes: []string{"DEF456"}}
		res := v.Validate(parts, ids, "https://shop.example/abc-123.html", "")
		assert.True(t, res.Valid)
		assert.Equal(t, match.TypeCompositeComplete, res.Type)
	})

	t.Run("OnlyOnePartPresent", func(t *testing.T) {
		ids := match.Identifiers{SKUs: []string{"ABC123"}}
		res := v.Validate(parts, ids, "https://shop.example/p", "")
		assert.False(t, res.Valid)
		assert.Equal(t, match.TypeCompositePartial, res.Type)
		// Legacy formula 0.30 + 0.1*matches; approximate behavior, not a
		// guaranteed semantic.
		assert.InDelta(t, 0.40, res.Confidence, 1e-9)
	})

	t.Run("FuzzyNeverAttempted", func(t *testing.T) {
		// Near-perfect textual token must not rescue a composite.
		res := v.Validate(parts, match.Identifiers{}, "https://shop.example/p",
			"Produto ABC123DEF456X disponivel")
		assert.False(t, res.Valid)
		assert.Equal(t, match.TypeNoMatch, res.Type)
		assert.Zero(t, res.Confidence)
	})

	t.Run("ThreePartBonus", func(t *testing.T) {
		_, three := refs.Normalize("AAA111+BBB222+CCC333")
		ids := match.Identifiers{SKUs: []string{"AAA111", "BBB222", "CCC333"}}
		res := v.Validate(three, ids, "", "")
		assert.True(t, res.Valid)
		assert.Greater(t, res.Confidence, 0.85)
		assert.LessOrEqual(t, res.Confidence, 0.95)
	})
}

func TestValidateFuzzy(t *testing.T) {
	v := newValidator()

	t.Run("CloseTokenAccepted", func(t *testing.T) {
		_, parts := refs.Normalize("H085LR1X")
		res := v.Validate(parts, match.Identifiers{}, "https://shop.example/p",
			"Disco travao H085LR1XA em stock")
		assert.Equal(t, match.TypeFuzzy, res.Type)
		assert.True(t, res.Valid)
		assert.GreaterOrEqual(t, res.Confidence, 0.70)
	})

	t.Run("MuchLongerTokenRejected", func(t *testing.T) {
		_, parts := refs.Normalize("ABC12")
		res := v.Validate(parts, match.Identifiers{}, "",
			"codigo ABC12XYZ9999QQ em stock")
		assert.False(t, res.Valid)
	})

	t.Run("NothingComparable", func(t *testing.T) {
		_, parts := refs.Normalize("H085LR1X")
		res := v.Validate(parts, match.Identifiers{}, "", "texto sem nada")
		assert.False(t, res.Valid)
		assert.Equal(t, match.TypeNoMatch, res.Type)
	})
}

func TestValidateEmptyParts(t *testing.T) {
	v := newValidator()
	res := v.Validate(nil, match.Identifiers{SKUs: []string{"ABC123"}}, "", "")
	assert.False(t, res.Valid)
	assert.Equal(t, match.TypeNoMatch, res.Type)
}
