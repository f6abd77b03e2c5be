// Package extract pulls structured fields out of ticket text with
// deterministic patterns and, when available, an AI strategy.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/ticket-workflow/internal/config"
	"github.com/sells-group/ticket-workflow/internal/keywords"
	"github.com/sells-group/ticket-workflow/internal/model"
)

type compiledPattern struct {
	find       *regexp.Regexp
	exact      *regexp.Regexp
	confidence float64
}

type compiledField struct {
	name     string
	patterns []compiledPattern
}

// Patterns runs the configured field patterns. The same patterns validate
// values supplied by other strategies, so a value the extractor could have
// produced never fails validation.
type Patterns struct {
	fields       []compiledField
	byName       map[string]*compiledField
	priority     *keywords.Matcher
	priorityConf float64
}

// NewPatterns compiles the extraction rules. Rules are expected to have
// passed config.Rules.Validate.
func NewPatterns(rules config.ExtractionRules) *Patterns {
	p := &Patterns{
		fields:       make([]compiledField, 0, len(rules.Fields)),
		byName:       make(map[string]*compiledField, len(rules.Fields)),
		priority:     keywords.Compile(rules.PriorityKeywords),
		priorityConf: rules.PriorityKeywordConfidence,
	}
	for _, f := range rules.Fields {
		cf := compiledField{name: f.Name}
		for _, fp := range f.Patterns {
			cf.patterns = append(cf.patterns, compiledPattern{
				find:       regexp.MustCompile(fp.Regex),
				exact:      regexp.MustCompile(`^(?:` + fp.Regex + `)$`),
				confidence: fp.Confidence,
			})
		}
		p.fields = append(p.fields, cf)
	}
	for i := range p.fields {
		p.byName[p.fields[i].name] = &p.fields[i]
	}
	return p
}

// Find returns every pattern match in text. Within a field, repeated values
// collapse to the highest-confidence match; fields keep configured order and
// values keep first-seen order.
func (p *Patterns) Find(text string) []model.ExtractedField {
	var out []model.ExtractedField
	for _, f := range p.fields {
		index := make(map[string]int)
		for _, cp := range f.patterns {
			for _, m := range cp.find.FindAllString(text, -1) {
				val := strings.TrimSpace(m)
				if val == "" {
					continue
				}
				if i, ok := index[val]; ok {
					if cp.confidence > out[i].Confidence {
						out[i].Confidence = cp.confidence
					}
					continue
				}
				index[val] = len(out)
				out = append(out, model.ExtractedField{
					Name:       f.name,
					Value:      val,
					Confidence: cp.confidence,
					SourceSpan: m,
				})
			}
		}
	}

	if found := p.priority.Find(text); len(found) > 0 {
		out = append(out, model.ExtractedField{
			Name:       model.FieldPriorityKeywords,
			Value:      found,
			Confidence: p.priorityConf,
			SourceSpan: p.priority.FindSpan(text),
		})
	}
	return out
}

// Validate checks each field that has configured patterns and returns one
// message per value that matches none of them in full. Fields are never
// removed.
func (p *Patterns) Validate(fields []model.ExtractedField) []string {
	var errs []string
	for _, f := range fields {
		cf, ok := p.byName[f.Name]
		if !ok || len(cf.patterns) == 0 {
			continue
		}
		for _, v := range scalars(f.Value) {
			if !cf.matches(v) {
				errs = append(errs, fmt.Sprintf("%s value %q does not match the expected format", f.Name, v))
			}
		}
	}
	return errs
}

func (cf *compiledField) matches(v string) bool {
	v = strings.TrimSpace(v)
	for _, cp := range cf.patterns {
		if cp.exact.MatchString(v) {
			return true
		}
	}
	return false
}

// scalars flattens a field value into the strings to validate.
func scalars(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, fmt.Sprint(e))
		}
		return out
	default:
		return []string{fmt.Sprint(t)}
	}
}
