package projectspec

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
	underscoreRuns    = regexp.MustCompile(`_+`)
)

// pythonKeywords are the lower-case reserved words that cannot name a package.
var pythonKeywords = map[string]struct{}{
	"and": {}, "as": {}, "assert": {}, "async": {}, "await": {}, "break": {},
	"class": {}, "continue": {}, "def": {}, "del": {}, "elif": {}, "else": {},
	"except": {}, "finally": {}, "for": {}, "from": {}, "global": {}, "if": {},
	"import": {}, "in": {}, "is": {}, "lambda": {}, "nonlocal": {}, "not": {},
	"or": {}, "pass": {}, "raise": {}, "return": {}, "try": {}, "while": {},
	"with": {}, "yield": {},
}

// Normalize turns a free-form name into a package identifier candidate.
//
// Diacritics are folded to ASCII, the result is lower-cased, every rune
// outside [a-z0-9_] becomes '_', runs of '_' collapse to one and leading or
// trailing '_' are trimmed. The output may still be invalid (empty, leading
// digit, keyword); use ValidIdentifier to check.
//
// Normalize is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(name string) string {
	folded, _, err := transform.String(foldChain(), name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}

	out := underscoreRuns.ReplaceAllString(b.String(), "_")
	return strings.Trim(out, "_")
}

// foldChain strips combining marks after canonical decomposition.
// transform.Chain values are stateful, so each call builds its own.
func foldChain() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// ValidIdentifier reports whether s can be used as a package name: lower-case
// letters, digits and underscores, not starting with a digit, not a keyword.
func ValidIdentifier(s string) bool {
	if !identifierPattern.MatchString(s) {
		return false
	}
	_, reserved := pythonKeywords[s]
	return !reserved
}

// ContextCap derives the capitalized form of a bounded-context name: the
// name is split on non-alphanumeric separators, the first character of each
// segment is upper-cased, the rest is kept as is and the segments are
// concatenated.
//
//	ContextCap("customer")     == "Customer"
//	ContextCap("order-item")   == "OrderItem"
//	ContextCap("billing_v2")   == "BillingV2"
//	ContextCap("order_2fa")    == "Order2fa"
func ContextCap(name string) string {
	segments := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var b strings.Builder
	b.Grow(len(name))
	for _, seg := range segments {
		first, size := utf8.DecodeRuneInString(seg)
		b.WriteRune(unicode.ToTitle(first))
		b.WriteString(seg[size:])
	}
	return b.String()
}
