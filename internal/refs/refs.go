// Package refs normalizes manufacturer part references into comparable tokens.
package refs

import (
	"regexp"
	"strings"
)

// descriptionPatterns match the manufacturer-reference label variants found
// in feed description text.
var descriptionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bref\.\s*fabricante\s*:\s*([^\r\n<]+)`),
	regexp.MustCompile(`(?i)\bref\s+fabricante\s*:\s*([^\r\n<]+)`),
	regexp.MustCompile(`(?i)\bref\s+do\s+fabricante\s*:\s*([^\r\n<]+)`),
}

var whitespaceRun = regexp.MustCompile(`\s+`)

var tokenStripper = strings.NewReplacer("-", "", ".", "", " ", "", "_", "", "+", "")

// Token canonicalizes a single token: separators stripped, upper-cased.
func Token(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(tokenStripper.Replace(s))
}

// Normalize canonicalizes a raw reference.
//
// A raw reference containing "+" names a composite (a kit of parts); each
// segment is normalized independently and parts holds the concatenation
// followed by the individual segments. A simple reference yields a single
// part, or none if normalization collapses it to nothing; callers must
// reject empty references before cache or validator use.
//
//	"H.085.LR1X"    -> ("H085LR1X", ["H085LR1X"])
//	"ABC123+DEF456" -> ("ABC123DEF456", ["ABC123DEF456", "ABC123", "DEF456"])
func Normalize(raw string) (string, []string) {
	if raw == "" {
		return "", nil
	}

	if strings.Contains(raw, "+") {
		var segments []string
		for _, seg := range strings.Split(raw, "+") {
			if tok := Token(strings.TrimSpace(seg)); tok != "" {
				segments = append(segments, tok)
			}
		}
		if len(segments) == 0 {
			return "", nil
		}
		normalized := strings.Join(segments, "")
		parts := append([]string{normalized}, segments...)
		return normalized, parts
	}

	normalized := Token(raw)
	if normalized == "" {
		return "", nil
	}
	return normalized, []string{normalized}
}

// IsComposite reports whether a parts slice produced by Normalize describes
// a composite reference (concatenation plus at least two segments).
func IsComposite(parts []string) bool {
	return len(parts) > 2
}

// FromDescription extracts a manufacturer reference from feed description
// text. Runs of whitespace inside the captured value are replaced with "+"
// so multi-part references survive as composites. Returns "" when no label
// is present.
func FromDescription(desc string) string {
	if desc == "" {
		return ""
	}
	for _, pat := range descriptionPatterns {
		if m := pat.FindStringSubmatch(desc); m != nil {
			ref := strings.TrimSpace(m[1])
			return whitespaceRun.ReplaceAllString(ref, "+")
		}
	}
	return ""
}

var codePattern = regexp.MustCompile(`(?i)\b([A-Z0-9][\w\-.]{2,})\b`)

// ExtractCodes scans free text for alphanumeric identifier candidates of at
// least minLength normalized characters, deduplicated in order of first
// appearance.
func ExtractCodes(text string, minLength int) []string {
	if text == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var codes []string
	for _, m := range codePattern.FindAllStringSubmatch(text, -1) {
		code := Token(m[1])
		if len(code) < minLength {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes
}
