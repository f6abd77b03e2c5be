package dedupe

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Fingerprint is the sorted set of normalized content tokens of a ticket.
type Fingerprint []string

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "have": {}, "hi": {}, "hello": {},
	"i": {}, "in": {}, "is": {}, "it": {}, "me": {}, "my": {}, "of": {}, "on": {},
	"or": {}, "please": {}, "so": {}, "thanks": {}, "that": {}, "the": {}, "this": {},
	"to": {}, "was": {}, "we": {}, "with": {}, "you": {}, "your": {},
}

// NewFingerprint folds case, splits on anything that is not a letter or
// digit, and drops stopwords and single-character tokens.
func NewFingerprint(text string) Fingerprint {
	folded := cases.Fold().String(text)
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(words))
	fp := make(Fingerprint, 0, len(words))
	for _, w := range words {
		if len([]rune(w)) < 2 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		fp = append(fp, w)
	}
	sort.Strings(fp)
	return fp
}

// Similarity is the Jaccard index of two fingerprints. Two empty
// fingerprints have similarity 0.
func Similarity(a, b Fingerprint) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	// Both sides are sorted; walk them together.
	var inter, i, j int
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			inter++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
