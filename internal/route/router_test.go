package route

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ticket-workflow/internal/config"
	"github.com/sells-group/ticket-workflow/internal/model"
)

func newRouter(t *testing.T) *Router {
	t.Helper()
	r, err := NewRouter(config.DefaultRules().Routing)
	require.NoError(t, err)
	return r
}

func fields(names ...string) []model.ExtractedField {
	out := make([]model.ExtractedField, len(names))
	for i, n := range names {
		out[i] = model.ExtractedField{Name: n, Value: "x", Confidence: 1}
	}
	return out
}

func TestRoute_CriticalAlwaysEscalates(t *testing.T) {
	r := newRouter(t)
	for _, cat := range model.Categories {
		t.Run(string(cat), func(t *testing.T) {
			d := r.Route(cat, model.SeverityCritical, nil)
			assert.Equal(t, model.TeamEscalation, d.Team)
			assert.Equal(t, model.PriorityUrgent, d.Priority)
			assert.Contains(t, d.Reasoning, "Critical severity")
		})
	}

	d := r.Route(model.CategoryBilling, model.SeverityCritical, nil)
	assert.Equal(t, []string{"billing_manager", "finance_team"}, d.EscalationPath)
	assert.Equal(t, []model.Team{model.TeamBilling}, d.AlternativeTeams)

	d = r.Route(model.Category("sales"), model.SeverityCritical, nil)
	assert.Equal(t, model.TeamEscalation, d.Team)
}

func TestRoute_AccountScenario(t *testing.T) {
	d := newRouter(t).Route(model.CategoryAccount, model.SeverityMedium, nil)
	assert.Equal(t, model.TeamAccountManagement, d.Team)
	assert.Equal(t, model.PriorityNormal, d.Priority)
	assert.InDelta(t, 0.95, d.Confidence, 0.0001)
	assert.Equal(t, []string{"account_manager", "security_team"}, d.EscalationPath)
	assert.Equal(t, []model.Team{model.TeamTechnicalSupport}, d.AlternativeTeams)
	assert.Equal(t, "Routed to account_management (Account access, security, permissions) based on account category.", d.Reasoning)
}

func TestRoute_SeverityPriority(t *testing.T) {
	r := newRouter(t)
	tests := []struct {
		cat  model.Category
		sev  model.Severity
		want model.Priority
	}{
		{model.CategoryTechnical, model.SeverityHigh, model.PriorityHigh},
		{model.CategoryTechnical, model.SeverityMedium, model.PriorityNormal},
		{model.CategoryBilling, model.SeverityLow, model.PriorityLow},
		{model.CategoryFeatureRequest, model.SeverityMedium, model.PriorityHigh},
		{model.CategoryFeatureRequest, model.SeverityHigh, model.PriorityUrgent},
		{model.CategoryGeneral, model.Severity("unknown"), model.PriorityNormal},
	}
	for _, tt := range tests {
		t.Run(string(tt.cat)+"/"+string(tt.sev), func(t *testing.T) {
			assert.Equal(t, tt.want, r.Route(tt.cat, tt.sev, nil).Priority)
		})
	}
}

func TestRoute_AlternativesByFields(t *testing.T) {
	d := newRouter(t).Route(model.CategoryTechnical, model.SeverityHigh,
		fields(model.FieldErrorCode, model.FieldOrderID, "amount", model.FieldAccountEmail))

	assert.Equal(t, model.TeamTechnicalSupport, d.Team)
	assert.Equal(t, []model.Team{model.TeamBilling, model.TeamAccountManagement}, d.AlternativeTeams)
	assert.Equal(t,
		"Routed to technical_support (Technical issues, bugs, errors) based on technical category with high priority and detected fields: error_code, order_id, amount.",
		d.Reasoning)
}

func TestRoute_AlternativesByCategory(t *testing.T) {
	rules := config.DefaultRules().Routing
	rules.Teams[1].Categories = append(rules.Teams[1].Categories, model.CategoryAccount)
	r, err := NewRouter(rules)
	require.NoError(t, err)

	d := r.Route(model.CategoryAccount, model.SeverityLow, fields(model.FieldErrorCode))
	assert.Equal(t, []model.Team{model.TeamBilling, model.TeamTechnicalSupport}, d.AlternativeTeams)
}

func TestRoute_UnknownCategoryUsesDefault(t *testing.T) {
	d := newRouter(t).Route(model.Category("sales"), model.SeverityLow, nil)
	assert.Equal(t, model.TeamTechnicalSupport, d.Team)
	assert.InDelta(t, 0.6, d.Confidence, 0.0001)
	assert.Contains(t, d.Reasoning, "No routing rule for this category")
	assert.NotContains(t, d.AlternativeTeams, model.TeamTechnicalSupport)
	assert.NotNil(t, d.AlternativeTeams)
}

func TestRoute_Deterministic(t *testing.T) {
	r := newRouter(t)
	f := fields(model.FieldOrderID, "amount")
	assert.Equal(t, r.Route(model.CategoryBilling, model.SeverityHigh, f), r.Route(model.CategoryBilling, model.SeverityHigh, f))
}

func TestNewRouter_RequiresDefaultTeam(t *testing.T) {
	rules := config.DefaultRules().Routing
	rules.DefaultTeam = ""
	_, err := NewRouter(rules)
	assert.ErrorIs(t, err, ErrNoDefaultTeam)
}
