// Package route assigns a ticket to a team with a deterministic rule table.
package route

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ticket-workflow/internal/config"
	"github.com/sells-group/ticket-workflow/internal/model"
)

// ErrNoDefaultTeam is returned by NewRouter when the rules cannot route an
// unknown category.
var ErrNoDefaultTeam = eris.New("route: no default team configured")

// Router evaluates routing rules. It holds no mutable state.
type Router struct {
	rules config.RoutingRules
}

// NewRouter validates the routing table and creates a Router.
func NewRouter(rules config.RoutingRules) (*Router, error) {
	if rules.DefaultTeam == "" || !rules.DefaultTeam.Valid() {
		return nil, ErrNoDefaultTeam
	}
	return &Router{rules: rules}, nil
}

// Route picks a team, priority and alternatives. Critical severity always
// goes to the escalation team at urgent priority; an unknown category falls
// back to the default team at reduced confidence.
func (r *Router) Route(category model.Category, severity model.Severity, fields []model.ExtractedField) model.RoutingDecision {
	home, known := r.homeTeam(category)

	if severity == model.SeverityCritical {
		return r.escalate(category, home)
	}

	priority, ok := r.rules.SeverityPriority[severity]
	if !ok {
		priority = model.PriorityNormal
	}
	if rule, ok := r.rules.Team(home); ok {
		priority = priority.Shift(rule.PriorityModifier)
	}

	confidence := r.rules.BaseConfidence
	reasoning := r.reasoning(home, category, severity, fields)
	if !known {
		confidence = r.rules.FallbackConfidence
		if r.rules.DefaultReasoning != "" {
			reasoning = r.rules.DefaultReasoning + ". " + reasoning
		}
	}

	return model.RoutingDecision{
		Team:             home,
		Priority:         priority,
		Reasoning:        reasoning,
		AlternativeTeams: r.alternatives(home, category, fields),
		EscalationPath:   r.escalationPath(home),
		Confidence:       confidence,
	}
}

func (r *Router) escalate(category model.Category, home model.Team) model.RoutingDecision {
	alternatives := []model.Team{}
	if home != model.TeamEscalation {
		alternatives = append(alternatives, home)
	}
	return model.RoutingDecision{
		Team:             model.TeamEscalation,
		Priority:         model.PriorityUrgent,
		Reasoning:        fmt.Sprintf("Critical severity requires escalation team; %s category would otherwise go to %s.", category, home),
		AlternativeTeams: alternatives,
		EscalationPath:   r.escalationPath(home),
		Confidence:       r.rules.BaseConfidence,
	}
}

// homeTeam resolves the team for a category from the category table, then
// from team associations. The second result is false when the default team
// was used.
func (r *Router) homeTeam(category model.Category) (model.Team, bool) {
	if team, ok := r.rules.CategoryTeams[category]; ok && team != "" {
		return team, true
	}
	for _, t := range r.rules.Teams {
		if t.Name == model.TeamEscalation {
			continue
		}
		for _, c := range t.Categories {
			if c == category {
				return t.Name, true
			}
		}
	}
	return r.rules.DefaultTeam, false
}

func (r *Router) escalationPath(team model.Team) []string {
	rule, ok := r.rules.Team(team)
	if !ok || len(rule.EscalationPath) == 0 {
		return nil
	}
	return append([]string(nil), rule.EscalationPath...)
}

// alternatives ranks the other non-escalation teams by association: two
// points for handling the category, one per associated field present.
func (r *Router) alternatives(chosen model.Team, category model.Category, fields []model.ExtractedField) []model.Team {
	present := make(map[string]bool, len(fields))
	for _, f := range fields {
		present[f.Name] = true
	}

	type candidate struct {
		team  model.Team
		score int
		order int
	}
	var cands []candidate
	for i, t := range r.rules.Teams {
		if t.Name == chosen || t.Name == model.TeamEscalation {
			continue
		}
		score := 0
		for _, c := range t.Categories {
			if c == category {
				score += 2
				break
			}
		}
		for _, name := range t.Fields {
			if present[name] {
				score++
			}
		}
		if score > 0 {
			cands = append(cands, candidate{team: t.Name, score: score, order: i})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].order < cands[j].order
	})

	out := make([]model.Team, 0, len(cands))
	for _, c := range cands {
		if r.rules.MaxAlternatives > 0 && len(out) >= r.rules.MaxAlternatives {
			break
		}
		out = append(out, c.team)
	}
	if len(out) == 0 && chosen != r.rules.DefaultTeam {
		out = append(out, r.rules.DefaultTeam)
	}
	return out
}

func (r *Router) reasoning(team model.Team, category model.Category, severity model.Severity, fields []model.ExtractedField) string {
	parts := []string{"Routed to " + string(team)}
	if rule, ok := r.rules.Team(team); ok && rule.Description != "" {
		parts = append(parts, "("+rule.Description+")")
	}
	parts = append(parts, fmt.Sprintf("based on %s category", category))
	if severity == model.SeverityCritical || severity == model.SeverityHigh {
		parts = append(parts, fmt.Sprintf("with %s priority", severity))
	}
	if names := fieldNames(fields, 3); len(names) > 0 {
		parts = append(parts, "and detected fields: "+strings.Join(names, ", "))
	}
	return strings.Join(parts, " ") + "."
}

func fieldNames(fields []model.ExtractedField, limit int) []string {
	var names []string
	seen := make(map[string]bool)
	for _, f := range fields {
		if seen[f.Name] {
			continue
		}
		seen[f.Name] = true
		names = append(names, f.Name)
		if len(names) == limit {
			break
		}
	}
	return names
}
