// Package respond drafts the customer reply for a classified ticket.
package respond

import (
	"strings"

	"github.com/sells-group/ticket-workflow/internal/config"
	"github.com/sells-group/ticket-workflow/internal/model"
)

// Templates renders the per-category fallback reply.
type Templates struct {
	rules config.ResponseRules
}

// NewTemplates creates a template renderer.
func NewTemplates(rules config.ResponseRules) *Templates {
	return &Templates{rules: rules}
}

// Render fills the category template, falling back to the general
// template for categories without one.
func (t *Templates) Render(category model.Category, severity model.Severity, customerName string, tone model.Tone) model.ResponseDraft {
	tmpl, ok := t.rules.Templates[category]
	if !ok {
		category = model.CategoryGeneral
		tmpl = t.rules.Templates[model.CategoryGeneral]
	}

	responseTime, ok := t.rules.ResponseTimes[severity]
	if !ok {
		responseTime = t.rules.DefaultResponseTime
	}
	name := ""
	if customerName != "" {
		name = " " + customerName
	}
	r := strings.NewReplacer(
		"{customer_name}", name,
		"{response_time}", responseTime,
		"{signature}", t.rules.Signature,
	)

	actions := make([]string, len(tmpl.ActionItems))
	for i, a := range tmpl.ActionItems {
		actions[i] = r.Replace(a)
	}

	draft := model.ResponseDraft{
		Tone:               tone,
		TemplateUsed:       string(category) + "_template",
		SuggestedActions:   actions,
		RequiresEscalation: t.RequiresEscalation(severity),
		Greeting:           r.Replace(tmpl.Greeting),
		Acknowledgment:     r.Replace(tmpl.Acknowledgment),
		Explanation:        r.Replace(tmpl.Explanation),
		ActionItems:        actions,
		Timeline:           r.Replace(tmpl.Timeline),
		Closing:            r.Replace(tmpl.Closing),
	}
	draft.Content = draft.Compose()
	return draft
}

// RequiresEscalation reports whether severity is configured to escalate.
func (t *Templates) RequiresEscalation(severity model.Severity) bool {
	for _, s := range t.rules.EscalationSeverities {
		if s == severity {
			return true
		}
	}
	return false
}

// CustomerName derives a greeting name: the local part of the first
// extracted account email, else of the ticket's customer email.
func CustomerName(ticket model.Ticket, fields []model.ExtractedField) string {
	for _, f := range fields {
		if f.Name != model.FieldAccountEmail {
			continue
		}
		if s, ok := f.Value.(string); ok {
			if name := localPart(s); name != "" {
				return name
			}
		}
	}
	return localPart(ticket.CustomerEmail)
}

func localPart(email string) string {
	email = strings.TrimSpace(email)
	at := strings.Index(email, "@")
	if at <= 0 {
		return ""
	}
	return email[:at]
}
