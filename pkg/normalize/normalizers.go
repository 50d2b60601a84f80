// Package normalize maps raw source records onto the canonical recall shape
// using per-source declarative mapping tables.
package normalize

import (
	"strings"
	"unicode"
)

// ValueNormalizer is a function that normalizes a string value
type ValueNormalizer func(string) string

var registry = make(map[string]ValueNormalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("uppercase", Uppercase)
	Register("trim", Trim)
	Register("collapse_whitespace", CollapseWhitespace)
	Register("remove_punctuation", RemovePunctuation)
	Register("nproduct", NormalizeProductName)
	Register("nbrand", NormalizeBrand)
	Register("ncountry", NormalizeCountry)
	Register("alphanumeric", Alphanumeric)
}

// Register adds a normalizer to the registry
func Register(name string, fn ValueNormalizer) {
	registry[name] = fn
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Uppercase converts string to uppercase
func Uppercase(s string) string {
	return strings.ToUpper(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// CollapseWhitespace folds runs of whitespace into single spaces
func CollapseWhitespace(s string) string {
	var result strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
			continue
		}
		result.WriteRune(r)
		prevSpace = false
	}
	return strings.TrimSpace(result.String())
}

// RemovePunctuation removes all punctuation characters
func RemovePunctuation(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsPunct(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// NormalizeProductName prepares a product name for matching
// - Lowercase
// - Strip punctuation
// - Collapse whitespace
// - Drop marketing filler tokens that defeat similarity matching
func NormalizeProductName(s string) string {
	s = strings.ToLower(s)

	var result strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
			prevSpace = false
		} else if unicode.IsSpace(r) || unicode.IsPunct(r) {
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	filler := map[string]struct{}{
		"the": {}, "a": {}, "an": {}, "new": {}, "official": {},
	}
	tokens := strings.Fields(result.String())
	kept := tokens[:0]
	for _, t := range tokens {
		if _, ok := filler[t]; ok {
			continue
		}
		kept = append(kept, t)
	}
	return strings.Join(kept, " ")
}

// NormalizeBrand prepares a brand for matching: lowercase, strip punctuation
// and legal suffixes.
func NormalizeBrand(s string) string {
	s = NormalizeProductName(s)

	suffixes := []string{" inc", " llc", " ltd", " gmbh", " co", " corp", " company", " pty"}
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			s = strings.TrimSuffix(s, suffix)
			break
		}
	}
	return strings.TrimSpace(s)
}

var countryAliases = map[string]string{
	"usa":            "US",
	"united states":  "US",
	"canada":         "CA",
	"united kingdom": "GB",
	"uk":             "GB",
	"australia":      "AU",
	"south korea":    "KR",
	"korea":          "KR",
	"european union": "EU",
}

// NormalizeCountry maps country names onto ISO codes, passing through
// anything already code-shaped.
func NormalizeCountry(s string) string {
	trimmed := strings.TrimSpace(s)
	if code, ok := countryAliases[strings.ToLower(trimmed)]; ok {
		return code
	}
	if len(trimmed) == 2 {
		return strings.ToUpper(trimmed)
	}
	return trimmed
}

// Alphanumeric keeps only alphanumeric characters
func Alphanumeric(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}
