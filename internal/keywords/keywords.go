// Package keywords matches configured keyword lists against ticket text.
package keywords

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Matcher finds whole-word, case-insensitive occurrences of a keyword list.
// A Matcher is immutable and safe for concurrent use.
type Matcher struct {
	words []string
	res   []*regexp.Regexp
}

// Compile builds a Matcher. Blank and duplicate keywords are skipped.
func Compile(words []string) *Matcher {
	m := &Matcher{}
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		m.words = append(m.words, w)
		m.res = append(m.res, regexp.MustCompile(pattern(w)))
	}
	return m
}

// pattern anchors w on word boundaries where its edges are word characters
// and lets inner whitespace match any run of whitespace.
func pattern(w string) string {
	var b strings.Builder
	b.WriteString("(?i)")
	first, _ := utf8.DecodeRuneInString(w)
	if isWord(first) {
		b.WriteString(`\b`)
	}
	for i, part := range strings.Fields(w) {
		if i > 0 {
			b.WriteString(`\s+`)
		}
		b.WriteString(regexp.QuoteMeta(part))
	}
	last, _ := utf8.DecodeLastRuneInString(w)
	if isWord(last) {
		b.WriteString(`\b`)
	}
	return b.String()
}

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Len returns the number of distinct keywords.
func (m *Matcher) Len() int {
	return len(m.words)
}

// Find returns the keywords present in text, in configured order.
func (m *Matcher) Find(text string) []string {
	var out []string
	for i, re := range m.res {
		if re.MatchString(text) {
			out = append(out, m.words[i])
		}
	}
	return out
}

// FindSpan returns the first matched keyword's source text, or "".
func (m *Matcher) FindSpan(text string) string {
	for _, re := range m.res {
		if loc := re.FindStringIndex(text); loc != nil {
			return text[loc[0]:loc[1]]
		}
	}
	return ""
}
