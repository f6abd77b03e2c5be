// Package sanitize normalizes raw ticket text and flags prompt-injection
// attempts before the text reaches any workflow step.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// Default length limits, in runes.
const (
	DefaultMaxSubject = 500
	DefaultMaxBody    = 50000
)

var (
	// ErrEmptyTicket is returned when subject and body are both empty after
	// normalization.
	ErrEmptyTicket = eris.New("sanitize: ticket has no content")
	// ErrTooLong is returned when subject or body exceeds its limit.
	ErrTooLong = eris.New("sanitize: ticket exceeds length limit")
)

var spaceRun = regexp.MustCompile(`[ \t]{2,}`)

// Result is the sanitized ticket text plus any warnings.
type Result struct {
	Subject  string
	Body     string
	Warnings []string
}

// Option configures a Sanitizer.
type Option func(*Sanitizer)

// WithPatternSet replaces the injection signatures.
func WithPatternSet(ps *PatternSet) Option {
	return func(s *Sanitizer) {
		s.patterns = ps
	}
}

// WithMaxLengths overrides the subject and body limits.
func WithMaxLengths(subject, body int) Option {
	return func(s *Sanitizer) {
		if subject > 0 {
			s.maxSubject = subject
		}
		if body > 0 {
			s.maxBody = body
		}
	}
}

// Sanitizer validates and cleans ticket text. It is safe for concurrent use.
type Sanitizer struct {
	patterns   *PatternSet
	maxSubject int
	maxBody    int
}

// New creates a Sanitizer.
func New(opts ...Option) *Sanitizer {
	s := &Sanitizer{
		patterns:   NewPatternSet(),
		maxSubject: DefaultMaxSubject,
		maxBody:    DefaultMaxBody,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check normalizes subject and body and scans them for injection patterns.
// Injection matches only produce warnings. Over-limit or empty input is
// rejected.
func (s *Sanitizer) Check(subject, body string) (Result, error) {
	if n := utf8.RuneCountInString(subject); n > s.maxSubject {
		return Result{}, eris.Wrapf(ErrTooLong, "subject has %d characters, limit %d", n, s.maxSubject)
	}
	if n := utf8.RuneCountInString(body); n > s.maxBody {
		return Result{}, eris.Wrapf(ErrTooLong, "body has %d characters, limit %d", n, s.maxBody)
	}

	res := Result{
		Subject: Clean(subject),
		Body:    Clean(body),
	}
	if res.Subject == "" && res.Body == "" {
		return Result{}, ErrEmptyTicket
	}

	combined := res.Subject + " " + res.Body
	for _, p := range s.patterns.Patterns() {
		if p.Regex.MatchString(combined) {
			res.Warnings = append(res.Warnings, "potential prompt injection: "+p.Name)
		}
	}
	if len(res.Warnings) > 0 {
		zap.L().Warn("sanitize: injection patterns detected", zap.Strings("warnings", res.Warnings))
	}
	return res, nil
}

// Clean applies NFKC normalization, drops control characters other than
// newline and tab, collapses runs of blanks and trims each line.
func Clean(text string) string {
	text = norm.NFKC.String(text)
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r == '\r' || unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
