package inference

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ticket-workflow/internal/model"
)

type classificationReply struct {
	Category            *string  `json:"category"`
	CategoryConfidence  *float64 `json:"category_confidence"`
	Severity            *string  `json:"severity"`
	SeverityConfidence  *float64 `json:"severity_confidence"`
	SecondaryCategories []string `json:"secondary_categories"`
	Reasoning           string   `json:"reasoning"`
	KeywordsMatched     []string `json:"keywords_matched"`
	UrgencyIndicators   []string `json:"urgency_indicators"`
}

// DecodeClassification validates and converts a classification reply. A
// missing required field, an unknown category or severity, or a confidence
// outside [0,1] is a schema mismatch.
func DecodeClassification(raw json.RawMessage) (model.ClassificationResult, error) {
	var r classificationReply
	if err := json.Unmarshal(raw, &r); err != nil {
		return model.ClassificationResult{}, eris.Wrap(ErrSchemaMismatch, err.Error())
	}

	switch {
	case r.Category == nil:
		return model.ClassificationResult{}, eris.Wrap(ErrSchemaMismatch, "missing category")
	case r.Severity == nil:
		return model.ClassificationResult{}, eris.Wrap(ErrSchemaMismatch, "missing severity")
	case r.CategoryConfidence == nil:
		return model.ClassificationResult{}, eris.Wrap(ErrSchemaMismatch, "missing category_confidence")
	case r.SeverityConfidence == nil:
		return model.ClassificationResult{}, eris.Wrap(ErrSchemaMismatch, "missing severity_confidence")
	}

	cat := model.Category(strings.ToLower(strings.TrimSpace(*r.Category)))
	if !cat.Valid() {
		return model.ClassificationResult{}, eris.Wrapf(ErrSchemaMismatch, "unknown category %q", *r.Category)
	}
	sev := model.Severity(strings.ToLower(strings.TrimSpace(*r.Severity)))
	if !sev.Valid() {
		return model.ClassificationResult{}, eris.Wrapf(ErrSchemaMismatch, "unknown severity %q", *r.Severity)
	}
	if !inUnit(*r.CategoryConfidence) || !inUnit(*r.SeverityConfidence) {
		return model.ClassificationResult{}, eris.Wrap(ErrSchemaMismatch, "confidence out of range")
	}

	secondary := make([]model.Category, 0, len(r.SecondaryCategories))
	for _, s := range r.SecondaryCategories {
		c := model.Category(strings.ToLower(strings.TrimSpace(s)))
		if c.Valid() && c != cat {
			secondary = append(secondary, c)
		}
	}

	return model.ClassificationResult{
		Category:            cat,
		CategoryConfidence:  *r.CategoryConfidence,
		Severity:            sev,
		SeverityConfidence:  *r.SeverityConfidence,
		SecondaryCategories: secondary,
		Reasoning:           r.Reasoning,
		KeywordsMatched:     nonNil(r.KeywordsMatched),
		UrgencyIndicators:   nonNil(r.UrgencyIndicators),
	}, nil
}

type extractionReply struct {
	Fields *[]struct {
		Name       string   `json:"name"`
		Value      any      `json:"value"`
		Confidence *float64 `json:"confidence"`
		SourceText string   `json:"source_text"`
	} `json:"fields"`
}

// DecodeExtraction validates and converts an extraction reply. Fields with
// an empty name or null value are dropped; a field with a missing or
// out-of-range confidence fails the whole reply.
func DecodeExtraction(raw json.RawMessage) ([]model.ExtractedField, error) {
	var r extractionReply
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, eris.Wrap(ErrSchemaMismatch, err.Error())
	}
	if r.Fields == nil {
		return nil, eris.Wrap(ErrSchemaMismatch, "missing fields")
	}

	out := make([]model.ExtractedField, 0, len(*r.Fields))
	for _, f := range *r.Fields {
		if f.Confidence == nil || !inUnit(*f.Confidence) {
			return nil, eris.Wrapf(ErrSchemaMismatch, "field %q confidence missing or out of range", f.Name)
		}
		name := strings.TrimSpace(f.Name)
		if name == "" || f.Value == nil {
			continue
		}
		if s, ok := f.Value.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, model.ExtractedField{
			Name:       name,
			Value:      f.Value,
			Confidence: *f.Confidence,
			SourceSpan: f.SourceText,
		})
	}
	return out, nil
}

type responseReply struct {
	Greeting           string   `json:"greeting"`
	Acknowledgment     string   `json:"acknowledgment"`
	Explanation        string   `json:"explanation"`
	ActionItems        []string `json:"action_items"`
	Timeline           string   `json:"timeline"`
	Closing            string   `json:"closing"`
	FullResponse       string   `json:"full_response"`
	RequiresEscalation *bool    `json:"requires_escalation"`
}

// DecodeResponse validates and converts a response-generation reply. The
// draft must carry either full_response or an acknowledgment to compose one
// from, plus the requires_escalation flag.
func DecodeResponse(raw json.RawMessage) (model.ResponseDraft, error) {
	var r responseReply
	if err := json.Unmarshal(raw, &r); err != nil {
		return model.ResponseDraft{}, eris.Wrap(ErrSchemaMismatch, err.Error())
	}
	if r.RequiresEscalation == nil {
		return model.ResponseDraft{}, eris.Wrap(ErrSchemaMismatch, "missing requires_escalation")
	}
	if strings.TrimSpace(r.FullResponse) == "" && strings.TrimSpace(r.Acknowledgment) == "" {
		return model.ResponseDraft{}, eris.Wrap(ErrSchemaMismatch, "missing full_response")
	}

	draft := model.ResponseDraft{
		Greeting:           r.Greeting,
		Acknowledgment:     r.Acknowledgment,
		Explanation:        r.Explanation,
		ActionItems:        nonNil(r.ActionItems),
		Timeline:           r.Timeline,
		Closing:            r.Closing,
		SuggestedActions:   nonNil(r.ActionItems),
		RequiresEscalation: *r.RequiresEscalation,
		Content:            r.FullResponse,
	}
	if strings.TrimSpace(draft.Content) == "" {
		draft.Content = draft.Compose()
	}
	return draft, nil
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
