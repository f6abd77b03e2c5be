// Package classify assigns a category and severity to a ticket.
package classify

import (
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/ticket-workflow/internal/config"
	"github.com/sells-group/ticket-workflow/internal/keywords"
	"github.com/sells-group/ticket-workflow/internal/model"
)

// defaultConfidence is reported for the general/low default when nothing
// matched.
const defaultConfidence = 0.3

// RuleClassifier is the keyword strategy. It is a pure function of its
// input and never fails.
type RuleClassifier struct {
	categories   map[model.Category]*keywords.Matcher
	severities   map[model.Severity]*keywords.Matcher
	minSecondary int
	maxSecondary int
	maxConf      float64
}

// NewRuleClassifier compiles the keyword tables.
func NewRuleClassifier(rules config.ClassificationRules) *RuleClassifier {
	rc := &RuleClassifier{
		categories:   make(map[model.Category]*keywords.Matcher, len(rules.CategoryKeywords)),
		severities:   make(map[model.Severity]*keywords.Matcher, len(rules.SeverityIndicators)),
		minSecondary: rules.SecondaryMinMatches,
		maxSecondary: rules.MaxSecondary,
		maxConf:      rules.MaxConfidence,
	}
	for cat, words := range rules.CategoryKeywords {
		rc.categories[cat] = keywords.Compile(words)
	}
	for sev, words := range rules.SeverityIndicators {
		rc.severities[sev] = keywords.Compile(words)
	}
	if rc.minSecondary <= 0 {
		rc.minSecondary = 2
	}
	if rc.maxConf <= 0 || rc.maxConf >= 1 {
		rc.maxConf = 0.95
	}
	return rc
}

// Classify scores every category by keyword matches in subject and body.
// The highest count wins; ties go to the earlier category in
// model.Categories. Severity is picked the same way, ties going to the more
// severe level.
func (rc *RuleClassifier) Classify(subject, body string) model.ClassificationResult {
	text := subject + "\n" + body

	res := model.ClassificationResult{
		Category:            model.CategoryGeneral,
		CategoryConfidence:  defaultConfidence,
		Severity:            model.SeverityLow,
		SeverityConfidence:  defaultConfidence,
		SecondaryCategories: []model.Category{},
		KeywordsMatched:     []string{},
		UrgencyIndicators:   []string{},
	}

	catMatches := make(map[model.Category][]string, len(model.Categories))
	best := 0
	for _, cat := range model.Categories {
		m, ok := rc.categories[cat]
		if !ok {
			continue
		}
		found := m.Find(text)
		catMatches[cat] = found
		if len(found) > best {
			best = len(found)
			res.Category = cat
			res.KeywordsMatched = found
			res.CategoryConfidence = rc.score(len(found), m.Len(), 0.5, 0.45, 0.05, rc.maxConf)
		}
	}

	bestSev := 0
	for _, sev := range model.Severities {
		m, ok := rc.severities[sev]
		if !ok {
			continue
		}
		found := m.Find(text)
		if len(found) > bestSev {
			bestSev = len(found)
			res.Severity = sev
			res.UrgencyIndicators = found
			res.SeverityConfidence = rc.score(len(found), m.Len(), 0.4, 0.5, 0, math.Min(0.9, rc.maxConf))
		}
	}

	if best > 0 {
		for _, cat := range model.Categories {
			if cat == res.Category || len(catMatches[cat]) < rc.minSecondary {
				continue
			}
			if rc.maxSecondary > 0 && len(res.SecondaryCategories) >= rc.maxSecondary {
				break
			}
			res.SecondaryCategories = append(res.SecondaryCategories, cat)
		}
	}

	res.Reasoning = reasoning(res)
	return res
}

// score maps a match count to a confidence: base + ratio*ratioWeight +
// n*countWeight, capped below 1.
func (rc *RuleClassifier) score(n, total int, base, ratioWeight, countWeight, ceiling float64) float64 {
	if total == 0 {
		return defaultConfidence
	}
	ratio := float64(n) / float64(total)
	return math.Min(ceiling, base+ratio*ratioWeight+float64(n)*countWeight)
}

func reasoning(res model.ClassificationResult) string {
	var parts []string
	if len(res.KeywordsMatched) > 0 {
		parts = append(parts, "Matched keywords: "+strings.Join(head(res.KeywordsMatched, 3), ", "))
	}
	if len(res.UrgencyIndicators) > 0 {
		parts = append(parts, "Urgency indicators: "+strings.Join(head(res.UrgencyIndicators, 2), ", "))
	}
	parts = append(parts, fmt.Sprintf("Classified as %s with %s severity", res.Category, res.Severity))
	return strings.Join(parts, ". ") + "."
}

func head(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
