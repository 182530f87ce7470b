package domain

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var slugSeparators = regexp.MustCompile(`[^a-z0-9]+`)

// foldText lower-cases s and strips combining marks, so "Dhaka Topī" and "dhaka topi" compare equal.
func foldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// Slugify turns a product name into a URL fragment. Names with no latin letters or digits yield "".
func Slugify(name string) string {
	return strings.Trim(slugSeparators.ReplaceAllString(foldText(name), "-"), "-")
}

// SearchTokens splits text into folded, de-duplicated words used for keyword lookups.
func SearchTokens(text ...string) []string {
	seen := make(map[string]struct{})
	var tokens []string
	for _, part := range text {
		for _, word := range strings.FieldsFunc(foldText(part), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			if len([]rune(word)) < 2 {
				continue
			}
			if _, ok := seen[word]; ok {
				continue
			}
			seen[word] = struct{}{}
			tokens = append(tokens, word)
		}
	}
	return tokens
}

// SearchKey folds a single user supplied keyword the same way SearchTokens folds product text.
func SearchKey(keyword string) string {
	return strings.TrimSpace(foldText(keyword))
}
