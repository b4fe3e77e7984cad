// Package normalizers provides named string normalizers used to canonicalize product text
package normalizers

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("fold_accents", FoldAccents)
	Register("strip_quotes", StripQuotes)
	Register("remove_punctuation", RemovePunctuation)
	Register("collapse_whitespace", CollapseWhitespace)
	Register("canonical_units", CanonicalUnits)
	Register("attribute_key", AttributeKey)
	Register("alphanumeric", Alphanumeric)
	Register("digits_only", DigitsOnly)
	Register("strip_quoted_lines", StripQuotedLines)
	Register("redact_contacts", RedactContacts)
}

// TextChain is the default chain applied to titles and descriptions.
var TextChain = []string{"fold_accents", "lowercase", "strip_quotes", "remove_punctuation", "canonical_units", "collapse_whitespace", "trim"}

// DescriptionChain scrubs seller copy before TextChain. It has to run on the
// raw value while line breaks are still present.
var DescriptionChain = append([]string{"strip_quoted_lines", "redact_contacts"}, TextChain...)

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value. Unknown names leave the value unchanged.
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

// Text applies TextChain.
func Text(s string) string {
	return ApplyChain(s, TextChain...)
}

// Description applies DescriptionChain.
func Description(s string) string {
	return ApplyChain(s, DescriptionChain...)
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// FoldAccents decomposes the string and drops combining marks ("Café" -> "Cafe").
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// StripQuotes removes straight and typographic quote characters
func StripQuotes(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '"', '\'', '`', '‘', '’', '“', '”', '«', '»':
			return -1
		}
		return r
	}, s)
}

// RemovePunctuation replaces punctuation and symbols with a space so that
// "widget-5000" and "widget 5000" tokenize the same way. Decimal points
// between digits are kept.
func RemovePunctuation(s string) string {
	rs := []rune(s)
	var result strings.Builder
	for i, r := range rs {
		if r == '.' && i > 0 && i < len(rs)-1 && unicode.IsDigit(rs[i-1]) && unicode.IsDigit(rs[i+1]) {
			result.WriteRune(r)
			continue
		}
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			result.WriteRune(' ')
			continue
		}
		result.WriteRune(r)
	}
	return result.String()
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// CollapseWhitespace replaces runs of whitespace with a single space
func CollapseWhitespace(s string) string {
	return whitespaceRe.ReplaceAllString(s, " ")
}

var unitReplacements = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(?:ounces|ounce)\b`), "${1}oz"},
	{regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(?:inches|inch)\b`), "${1}in"},
	{regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(?:gigabytes|gigabyte)\b`), "${1}gb"},
	{regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(?:terabytes|terabyte)\b`), "${1}tb"},
	{regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(?:milliliters|millilitres|milliliter|millilitre)\b`), "${1}ml"},
	{regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(?:liters|litres|liter|litre)\b`), "${1}l"},
	{regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(?:pounds|pound|lbs)\b`), "${1}lb"},
	{regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(?:grams|gram)\b`), "${1}g"},
	{regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s+(oz|gb|tb|ml|mg|kg|lb|g)\b`), "${1}${2}"},
}

// CanonicalUnits rewrites spelled-out or spaced units onto their quantity
// ("12 ounces" -> "12oz"). Expects lowercase input.
func CanonicalUnits(s string) string {
	for _, u := range unitReplacements {
		s = u.re.ReplaceAllString(s, u.repl)
	}
	return s
}

// AttributeKey canonicalizes an attribute name ("Screen Size" -> "screen_size")
func AttributeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var result strings.Builder
	prevSep := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
			prevSep = false
			continue
		}
		if !prevSep && result.Len() > 0 {
			result.WriteRune('_')
			prevSep = true
		}
	}
	return strings.TrimSuffix(result.String(), "_")
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
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

var quotedLineRe = regexp.MustCompile(`(?m)^[ \t]*>.*$`)

// StripQuotedLines drops lines quoted with a leading '>', as pasted from
// marketplace messages.
func StripQuotedLines(s string) string {
	return quotedLineRe.ReplaceAllString(s, "")
}

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phoneRe = regexp.MustCompile(`(?:\+\d{1,3}[ .-]?)?(?:\(\d{3}\)|\b\d{3})[ .-]\d{3}[ .-]\d{4}\b`)
)

// RedactContacts removes email addresses and separated phone numbers so
// seller contact details never reach tokens or embeddings. Bare digit runs
// such as model numbers are left alone.
func RedactContacts(s string) string {
	s = emailRe.ReplaceAllString(s, " ")
	return phoneRe.ReplaceAllString(s, " ")
}
