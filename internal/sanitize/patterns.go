package sanitize

import "regexp"

// Pattern is one prompt-injection signature.
type Pattern struct {
	Name  string
	Regex *regexp.Regexp
}

// PatternSet holds the injection signatures scanned on every ticket.
type PatternSet struct {
	patterns []*Pattern
}

// NewPatternSet returns the default prompt-injection signatures.
func NewPatternSet() *PatternSet {
	return &PatternSet{patterns: defaultPatterns()}
}

// Patterns returns every pattern in the set.
func (ps *PatternSet) Patterns() []*Pattern {
	return ps.patterns
}

// Add appends a custom pattern.
func (ps *PatternSet) Add(name, expr string) error {
	re, err := regexp.Compile(expr)
	if err != nil {
		return err
	}
	ps.patterns = append(ps.patterns, &Pattern{Name: name, Regex: re})
	return nil
}

func defaultPatterns() []*Pattern {
	defs := []struct{ name, expr string }{
		{"ignore_previous", `(?i)ignore\s+(?:all\s+)?(?:previous|prior)\s+instructions`},
		{"disregard_previous", `(?i)disregard\s+(?:all\s+)?previous`},
		{"you_are_now", `(?i)you\s+are\s+now\b`},
		{"act_as", `(?i)act\s+as\s+(?:if\s+)?you\s+are`},
		{"pretend", `(?i)pretend\s+(?:to\s+be|you\s+are)`},
		{"new_role", `(?i)your\s+new\s+role`},
		{"override_instructions", `(?i)override\s+(?:previous\s+)?(?:instructions|rules)`},
		{"system_prefix", `(?i)\bsystem\s*:`},
		{"special_token", `<\|.*?\|>`},
		{"system_tag", `(?i)\[SYSTEM\]`},
		{"inst_tag", `(?i)\[INST\]`},
	}
	out := make([]*Pattern, len(defs))
	for i, d := range defs {
		out[i] = &Pattern{Name: d.name, Regex: regexp.MustCompile(d.expr)}
	}
	return out
}
