package model

import (
	"fmt"
	"strings"
	"time"
)

// ClassificationResult is the output of the classification step.
type ClassificationResult struct {
	Category            Category   `json:"category"`
	CategoryConfidence  float64    `json:"category_confidence"`
	Severity            Severity   `json:"severity"`
	SeverityConfidence  float64    `json:"severity_confidence"`
	SecondaryCategories []Category `json:"secondary_categories"`
	Reasoning           string     `json:"reasoning,omitempty"`
	KeywordsMatched     []string   `json:"keywords_matched"`
	UrgencyIndicators   []string   `json:"urgency_indicators"`
}

// ExtractedField is a single candidate value for a named field. Value is a
// scalar or a slice of scalars.
type ExtractedField struct {
	Name       string  `json:"name"`
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
	SourceSpan string  `json:"source_span,omitempty"`
}

// ExtractionResult holds every candidate field found in a ticket. Names are
// not unique; callers needing one value per name should use Best.
type ExtractionResult struct {
	Fields           []ExtractedField `json:"fields"`
	MissingRequired  []string         `json:"missing_required"`
	ValidationErrors []string         `json:"validation_errors"`
}

// Has reports whether at least one field with the given name was extracted.
func (r ExtractionResult) Has(name string) bool {
	for _, f := range r.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Best returns the highest-confidence field with the given name. Earlier
// fields win ties.
func (r ExtractionResult) Best(name string) (ExtractedField, bool) {
	var best ExtractedField
	found := false
	for _, f := range r.Fields {
		if f.Name != name {
			continue
		}
		if !found || f.Confidence > best.Confidence {
			best = f
			found = true
		}
	}
	return best, found
}

// ResponseDraft is a drafted customer reply.
type ResponseDraft struct {
	Content            string   `json:"content"`
	Tone               Tone     `json:"tone"`
	TemplateUsed       string   `json:"template_used,omitempty"`
	SuggestedActions   []string `json:"suggested_actions"`
	RequiresEscalation bool     `json:"requires_escalation"`
	Greeting           string   `json:"greeting,omitempty"`
	Acknowledgment     string   `json:"acknowledgment,omitempty"`
	Explanation        string   `json:"explanation,omitempty"`
	ActionItems        []string `json:"action_items,omitempty"`
	Timeline           string   `json:"timeline,omitempty"`
	Closing            string   `json:"closing,omitempty"`
}

// RoutingDecision is the team assignment for a ticket.
type RoutingDecision struct {
	Team             Team     `json:"team"`
	Priority         Priority `json:"priority"`
	Reasoning        string   `json:"reasoning"`
	AlternativeTeams []Team   `json:"alternative_teams"`
	EscalationPath   []string `json:"escalation_path,omitempty"`
	Confidence       float64  `json:"confidence"`
}

// DuplicateRef points at an earlier ticket judged to be the same request.
type DuplicateRef struct {
	TicketID   string  `json:"ticket_id"`
	Similarity float64 `json:"similarity"`
}

// WorkflowResult is the sole externally visible artifact of a run.
type WorkflowResult struct {
	RunID          string               `json:"run_id"`
	TicketID       string               `json:"ticket_id"`
	Classification ClassificationResult `json:"classification"`
	Extraction     ExtractionResult     `json:"extraction"`
	Response       *ResponseDraft       `json:"response,omitempty"`
	Routing        RoutingDecision      `json:"routing"`
	Duplicate      *DuplicateRef        `json:"duplicate,omitempty"`
	Steps          []StepResult         `json:"steps"`
	Warnings       []string             `json:"warnings,omitempty"`
	Partial        bool                 `json:"partial"`
	TotalDuration  int64                `json:"total_duration_ms"`
	TotalTokens    int                  `json:"total_tokens"`
	TotalCost      float64              `json:"total_cost"`
	StartedAt      time.Time            `json:"started_at"`
}

// Step returns the recorded result for the named step, if any.
func (r *WorkflowResult) Step(name StepName) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}

// FallbackUsed reports whether any step resolved through its fallback path.
func (r *WorkflowResult) FallbackUsed() bool {
	for _, s := range r.Steps {
		if s.FallbackUsed {
			return true
		}
	}
	return false
}

// Compose joins the structural parts of a draft into the reply text, one
// blank line between sections. Empty sections are omitted.
func (d ResponseDraft) Compose() string {
	var sections []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			sections = append(sections, s)
		}
	}
	add(d.Greeting)
	add(d.Acknowledgment)
	add(d.Explanation)
	if len(d.ActionItems) > 0 {
		var b strings.Builder
		b.WriteString("Here are some steps you can take:")
		for i, item := range d.ActionItems {
			fmt.Fprintf(&b, "\n  %d. %s", i+1, item)
		}
		sections = append(sections, b.String())
	}
	add(d.Timeline)
	add(d.Closing)
	return strings.Join(sections, "\n\n")
}
