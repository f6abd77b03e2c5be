package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/ticket-workflow/internal/model"
)

// Rules holds the data-driven tables consumed by the rule engines. A Rules
// value is read-only once handed to an engine.
type Rules struct {
	Classification ClassificationRules `yaml:"classification" toml:"classification"`
	Extraction     ExtractionRules     `yaml:"extraction" toml:"extraction"`
	Routing        RoutingRules        `yaml:"routing" toml:"routing"`
	Responses      ResponseRules       `yaml:"responses" toml:"responses"`
}

// ClassificationRules configures the keyword classifier.
type ClassificationRules struct {
	CategoryKeywords    map[model.Category][]string `yaml:"category_keywords" toml:"category_keywords"`
	SeverityIndicators  map[model.Severity][]string `yaml:"severity_indicators" toml:"severity_indicators"`
	SecondaryMinMatches int                         `yaml:"secondary_min_matches" toml:"secondary_min_matches"`
	MaxSecondary        int                         `yaml:"max_secondary" toml:"max_secondary"`
	MaxConfidence       float64                     `yaml:"max_confidence" toml:"max_confidence"`
}

// ExtractionRules configures the pattern extractors and required fields.
type ExtractionRules struct {
	Fields                    []FieldRule                 `yaml:"fields" toml:"fields"`
	PriorityKeywords          []string                    `yaml:"priority_keywords" toml:"priority_keywords"`
	PriorityKeywordConfidence float64                     `yaml:"priority_keyword_confidence" toml:"priority_keyword_confidence"`
	RequiredFields            map[model.Category][]string `yaml:"required_fields" toml:"required_fields"`
}

// FieldRule names a field and the patterns that both extract it from text
// and validate a value supplied for it.
type FieldRule struct {
	Name     string         `yaml:"name" toml:"name"`
	Patterns []FieldPattern `yaml:"patterns" toml:"patterns"`
}

// FieldPattern is one extraction pattern with the confidence assigned to
// its matches.
type FieldPattern struct {
	Regex      string  `yaml:"regex" toml:"regex"`
	Confidence float64 `yaml:"confidence" toml:"confidence"`
}

// RoutingRules configures the routing engine.
type RoutingRules struct {
	DefaultTeam        model.Team                        `yaml:"default_team" toml:"default_team"`
	DefaultReasoning   string                            `yaml:"default_reasoning" toml:"default_reasoning"`
	CategoryTeams      map[model.Category]model.Team     `yaml:"category_teams" toml:"category_teams"`
	Teams              []TeamRule                        `yaml:"teams" toml:"teams"`
	SeverityPriority   map[model.Severity]model.Priority `yaml:"severity_priority" toml:"severity_priority"`
	BaseConfidence     float64                           `yaml:"base_confidence" toml:"base_confidence"`
	FallbackConfidence float64                           `yaml:"fallback_confidence" toml:"fallback_confidence"`
	MaxAlternatives    int                               `yaml:"max_alternatives" toml:"max_alternatives"`
}

// TeamRule describes one team's associations.
type TeamRule struct {
	Name             model.Team       `yaml:"name" toml:"name"`
	Description      string           `yaml:"description" toml:"description"`
	Categories       []model.Category `yaml:"categories" toml:"categories"`
	Fields           []string         `yaml:"fields" toml:"fields"`
	PriorityModifier int              `yaml:"priority_modifier" toml:"priority_modifier"`
	EscalationPath   []string         `yaml:"escalation_path" toml:"escalation_path"`
}

// ResponseRules configures template responses.
type ResponseRules struct {
	Templates            map[model.Category]ResponseTemplate `yaml:"templates" toml:"templates"`
	ResponseTimes        map[model.Severity]string           `yaml:"response_times" toml:"response_times"`
	DefaultResponseTime  string                              `yaml:"default_response_time" toml:"default_response_time"`
	Signature            string                              `yaml:"signature" toml:"signature"`
	EscalationSeverities []model.Severity                    `yaml:"escalation_severities" toml:"escalation_severities"`
}

// ResponseTemplate is the fallback reply for one category. Greeting,
// Timeline and Closing may contain {customer_name}, {response_time} and
// {signature} placeholders.
type ResponseTemplate struct {
	Greeting       string   `yaml:"greeting" toml:"greeting"`
	Acknowledgment string   `yaml:"acknowledgment" toml:"acknowledgment"`
	Explanation    string   `yaml:"explanation" toml:"explanation"`
	ActionItems    []string `yaml:"action_items" toml:"action_items"`
	Timeline       string   `yaml:"timeline" toml:"timeline"`
	Closing        string   `yaml:"closing" toml:"closing"`
}

// Team returns the rule for the named team.
func (r RoutingRules) Team(name model.Team) (TeamRule, bool) {
	for _, t := range r.Teams {
		if t.Name == name {
			return t, true
		}
	}
	return TeamRule{}, false
}

// Field returns the rule for the named field.
func (r ExtractionRules) Field(name string) (FieldRule, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldRule{}, false
}

// LoadRules reads rule tables from a YAML or TOML file. Sections absent
// from the file keep their built-in defaults.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read rules %s", path)
	}

	var overlay Rules
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &overlay); err != nil {
			return nil, eris.Wrap(err, "config: parse toml rules")
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &overlay); err != nil {
			return nil, eris.Wrap(err, "config: parse yaml rules")
		}
	default:
		return nil, eris.Errorf("config: unsupported rules format %q", filepath.Ext(path))
	}

	rules := DefaultRules()
	rules.merge(overlay)
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *Rules) merge(o Rules) {
	c := o.Classification
	if len(c.CategoryKeywords) > 0 {
		r.Classification.CategoryKeywords = c.CategoryKeywords
	}
	if len(c.SeverityIndicators) > 0 {
		r.Classification.SeverityIndicators = c.SeverityIndicators
	}
	if c.SecondaryMinMatches > 0 {
		r.Classification.SecondaryMinMatches = c.SecondaryMinMatches
	}
	if c.MaxSecondary > 0 {
		r.Classification.MaxSecondary = c.MaxSecondary
	}
	if c.MaxConfidence > 0 {
		r.Classification.MaxConfidence = c.MaxConfidence
	}

	e := o.Extraction
	if len(e.Fields) > 0 {
		r.Extraction.Fields = e.Fields
	}
	if len(e.PriorityKeywords) > 0 {
		r.Extraction.PriorityKeywords = e.PriorityKeywords
	}
	if e.PriorityKeywordConfidence > 0 {
		r.Extraction.PriorityKeywordConfidence = e.PriorityKeywordConfidence
	}
	if len(e.RequiredFields) > 0 {
		r.Extraction.RequiredFields = e.RequiredFields
	}

	rt := o.Routing
	if rt.DefaultTeam != "" {
		r.Routing.DefaultTeam = rt.DefaultTeam
	}
	if rt.DefaultReasoning != "" {
		r.Routing.DefaultReasoning = rt.DefaultReasoning
	}
	if len(rt.CategoryTeams) > 0 {
		r.Routing.CategoryTeams = rt.CategoryTeams
	}
	if len(rt.Teams) > 0 {
		r.Routing.Teams = rt.Teams
	}
	if len(rt.SeverityPriority) > 0 {
		r.Routing.SeverityPriority = rt.SeverityPriority
	}
	if rt.BaseConfidence > 0 {
		r.Routing.BaseConfidence = rt.BaseConfidence
	}
	if rt.FallbackConfidence > 0 {
		r.Routing.FallbackConfidence = rt.FallbackConfidence
	}
	if rt.MaxAlternatives > 0 {
		r.Routing.MaxAlternatives = rt.MaxAlternatives
	}

	resp := o.Responses
	for cat, tmpl := range resp.Templates {
		r.Responses.Templates[cat] = tmpl
	}
	for sev, t := range resp.ResponseTimes {
		r.Responses.ResponseTimes[sev] = t
	}
	if resp.DefaultResponseTime != "" {
		r.Responses.DefaultResponseTime = resp.DefaultResponseTime
	}
	if resp.Signature != "" {
		r.Responses.Signature = resp.Signature
	}
	if len(resp.EscalationSeverities) > 0 {
		r.Responses.EscalationSeverities = resp.EscalationSeverities
	}
}

// Validate reports configuration defects that would make a rule engine
// partial: unknown enum keys, a missing default team or default template,
// and patterns that do not compile.
func (r *Rules) Validate() error {
	for cat := range r.Classification.CategoryKeywords {
		if !cat.Valid() {
			return eris.Errorf("config: unknown category %q in category_keywords", cat)
		}
	}
	for sev := range r.Classification.SeverityIndicators {
		if !sev.Valid() {
			return eris.Errorf("config: unknown severity %q in severity_indicators", sev)
		}
	}
	if r.Classification.MaxConfidence <= 0 || r.Classification.MaxConfidence >= 1 {
		return eris.Errorf("config: classification max_confidence %.2f must be in (0,1)", r.Classification.MaxConfidence)
	}

	for _, f := range r.Extraction.Fields {
		if f.Name == "" {
			return eris.New("config: extraction field with empty name")
		}
		for _, p := range f.Patterns {
			if _, err := regexp.Compile(p.Regex); err != nil {
				return eris.Wrapf(err, "config: field %s pattern %q", f.Name, p.Regex)
			}
			if p.Confidence <= 0 || p.Confidence > 1 {
				return eris.Errorf("config: field %s pattern %q confidence %.2f out of range", f.Name, p.Regex, p.Confidence)
			}
		}
	}

	if r.Routing.DefaultTeam == "" {
		return eris.New("config: routing default_team is required")
	}
	if !r.Routing.DefaultTeam.Valid() {
		return eris.Errorf("config: unknown routing default_team %q", r.Routing.DefaultTeam)
	}
	for cat, team := range r.Routing.CategoryTeams {
		if !cat.Valid() || !team.Valid() {
			return eris.Errorf("config: invalid category_teams entry %q -> %q", cat, team)
		}
	}
	for _, t := range r.Routing.Teams {
		if !t.Name.Valid() {
			return eris.Errorf("config: unknown team %q", t.Name)
		}
	}
	for sev, p := range r.Routing.SeverityPriority {
		if !sev.Valid() || !p.Valid() {
			return eris.Errorf("config: invalid severity_priority entry %q -> %q", sev, p)
		}
	}

	if _, ok := r.Responses.Templates[model.CategoryGeneral]; !ok {
		return eris.New("config: responses must define a general template")
	}
	return nil
}

// DefaultRules returns the built-in rule tables. Each call returns a fresh
// copy that the caller may modify.
func DefaultRules() *Rules {
	return &Rules{
		Classification: ClassificationRules{
			CategoryKeywords: map[model.Category][]string{
				model.CategoryTechnical:      {"error", "bug", "crash", "not working", "failed", "broken", "issue", "problem"},
				model.CategoryBilling:        {"charge", "refund", "invoice", "payment", "subscription", "overcharged", "bill", "cost"},
				model.CategoryAccount:        {"login", "password", "account", "access", "locked", "credentials", "sign in", "signin", "signup"},
				model.CategoryFeatureRequest: {"wish", "request", "feature", "enhancement", "suggest", "idea", "would like", "need"},
				model.CategoryBugReport:      {"bug", "defect", "broken", "incorrect", "unexpected", "wrong", "does not work"},
				model.CategoryGeneral:        {"question", "help", "how to", "information", "inquiry", "wondering"},
			},
			SeverityIndicators: map[model.Severity][]string{
				model.SeverityCritical: {"urgent", "asap", "critical", "down", "emergency", "production", "immediately", "serious"},
				model.SeverityHigh:     {"important", "serious", "affecting", "quickly", "soon", "priority"},
				model.SeverityMedium:   {"issue", "problem", "help", "when possible"},
				model.SeverityLow:      {"minor", "small", "suggestion", "curious", "wondering", "sometime"},
			},
			SecondaryMinMatches: 2,
			MaxSecondary:        2,
			MaxConfidence:       0.95,
		},
		Extraction: ExtractionRules{
			Fields: []FieldRule{
				{Name: model.FieldOrderID, Patterns: []FieldPattern{
					{Regex: `(?i)\b(?:ORD|ORDER)-\d{5,10}\b`, Confidence: 1.0},
					{Regex: `(?i)\b(?:ORD|ORDER)\d{5,10}\b`, Confidence: 0.85},
					{Regex: `#\d{5,10}\b`, Confidence: 0.8},
				}},
				{Name: model.FieldAccountEmail, Patterns: []FieldPattern{
					{Regex: `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`, Confidence: 1.0},
				}},
				{Name: model.FieldPhoneNumber, Patterns: []FieldPattern{
					{Regex: `\(\d{3}\)\s?\d{3}-\d{4}\b`, Confidence: 1.0},
					{Regex: `\b\d{3}-\d{3}-\d{4}\b`, Confidence: 1.0},
					{Regex: `\+\d{1,3}[\s.-]\d{2,4}[\s.-]\d{3,4}[\s.-]\d{3,4}\b`, Confidence: 0.8},
					{Regex: `\b\d{3}[.\s]\d{3}[.\s]\d{4}\b`, Confidence: 0.75},
				}},
				{Name: model.FieldErrorCode, Patterns: []FieldPattern{
					{Regex: `(?i)\b(?:ERR|ERROR)-\d{3,6}\b`, Confidence: 1.0},
					{Regex: `(?i)\b(?:ERR|ERROR)\d{3,6}\b`, Confidence: 0.85},
					{Regex: `\b0x[0-9A-Fa-f]{4,8}\b`, Confidence: 0.9},
				}},
				{Name: "amount", Patterns: []FieldPattern{
					{Regex: `\$(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{2})?`, Confidence: 0.9},
					{Regex: `\b\d+(?:\.\d{2})?\s?(?:USD|EUR|GBP)\b`, Confidence: 0.85},
				}},
				{Name: "url", Patterns: []FieldPattern{
					{Regex: `\bhttps?://[^\s<>{}|\\^~\[\]]+`, Confidence: 0.95},
				}},
				{Name: "account_id", Patterns: []FieldPattern{
					{Regex: `(?i)\b(?:ACC|USR|CUST)-\d{4,15}\b`, Confidence: 0.9},
				}},
				{Name: "date", Patterns: []FieldPattern{
					{Regex: `\b\d{4}-\d{2}-\d{2}\b`, Confidence: 0.9},
					{Regex: `\b\d{1,2}/\d{1,2}/\d{2,4}\b`, Confidence: 0.75},
				}},
			},
			PriorityKeywords: []string{
				"urgent", "asap", "immediately", "critical", "emergency", "important", "priority",
				"quickly", "soon", "now", "as soon as possible", "right away", "help me",
			},
			PriorityKeywordConfidence: 0.9,
			RequiredFields: map[model.Category][]string{
				model.CategoryTechnical:      {model.FieldErrorCode},
				model.CategoryBilling:        {model.FieldOrderID, "amount"},
				model.CategoryAccount:        {model.FieldAccountEmail},
				model.CategoryBugReport:      {model.FieldErrorCode},
				model.CategoryFeatureRequest: {},
				model.CategoryGeneral:        {},
			},
		},
		Routing: RoutingRules{
			DefaultTeam:      model.TeamTechnicalSupport,
			DefaultReasoning: "No routing rule for this category; assigned to the default team",
			CategoryTeams: map[model.Category]model.Team{
				model.CategoryTechnical:      model.TeamTechnicalSupport,
				model.CategoryBilling:        model.TeamBilling,
				model.CategoryAccount:        model.TeamAccountManagement,
				model.CategoryFeatureRequest: model.TeamProduct,
				model.CategoryBugReport:      model.TeamTechnicalSupport,
				model.CategoryGeneral:        model.TeamTechnicalSupport,
			},
			Teams: []TeamRule{
				{
					Name:           model.TeamTechnicalSupport,
					Description:    "Technical issues, bugs, errors",
					Categories:     []model.Category{model.CategoryTechnical, model.CategoryBugReport},
					Fields:         []string{model.FieldErrorCode, "url"},
					EscalationPath: []string{"senior_technical", "engineering_team"},
				},
				{
					Name:           model.TeamBilling,
					Description:    "Payment, subscription, refund issues",
					Categories:     []model.Category{model.CategoryBilling},
					Fields:         []string{model.FieldOrderID, "amount"},
					EscalationPath: []string{"billing_manager", "finance_team"},
				},
				{
					Name:           model.TeamAccountManagement,
					Description:    "Account access, security, permissions",
					Categories:     []model.Category{model.CategoryAccount},
					Fields:         []string{model.FieldAccountEmail, "account_id"},
					EscalationPath: []string{"account_manager", "security_team"},
				},
				{
					Name:             model.TeamProduct,
					Description:      "Feature requests, product feedback",
					Categories:       []model.Category{model.CategoryFeatureRequest},
					Fields:           []string{model.FieldProductName},
					PriorityModifier: 1,
					EscalationPath:   []string{"product_manager"},
				},
				{
					Name:             model.TeamEscalation,
					Description:      "Critical issues requiring senior review",
					PriorityModifier: -1,
					EscalationPath:   []string{"senior_management"},
				},
			},
			SeverityPriority: map[model.Severity]model.Priority{
				model.SeverityCritical: model.PriorityUrgent,
				model.SeverityHigh:     model.PriorityHigh,
				model.SeverityMedium:   model.PriorityNormal,
				model.SeverityLow:      model.PriorityLow,
			},
			BaseConfidence:     0.95,
			FallbackConfidence: 0.6,
			MaxAlternatives:    2,
		},
		Responses: ResponseRules{
			Templates: map[model.Category]ResponseTemplate{
				model.CategoryTechnical: {
					Greeting:       "Hello{customer_name},",
					Acknowledgment: "Thank you for reaching out about the technical issue you're experiencing.",
					Explanation:    "Our technical team has been notified and is investigating the problem.",
					ActionItems: []string{
						"Please try clearing your browser cache and cookies",
						"Ensure you're using the latest version of the application",
						"If the issue persists, please provide any error messages you see",
					},
					Timeline: "We aim to respond within {response_time}.",
					Closing:  "Best regards,\n{signature}",
				},
				model.CategoryBilling: {
					Greeting:       "Dear{customer_name},",
					Acknowledgment: "Thank you for contacting us about your billing inquiry.",
					Explanation:    "Our billing team will review your request and get back to you shortly.",
					ActionItems: []string{
						"Please have your order ID ready for verification",
						"Check your account settings for recent transactions",
					},
					Timeline: "We typically resolve billing inquiries within {response_time}.",
					Closing:  "Sincerely,\n{signature}",
				},
				model.CategoryAccount: {
					Greeting:       "Hi{customer_name},",
					Acknowledgment: "Thank you for reaching out about your account.",
					Explanation:    "Our account management team is here to help you with your request.",
					ActionItems: []string{
						"Please verify your email address associated with the account",
						"For security purposes, do not share your password",
					},
					Timeline: "We'll respond to your request within {response_time}.",
					Closing:  "Best regards,\n{signature}",
				},
				model.CategoryFeatureRequest: {
					Greeting:       "Hello{customer_name},",
					Acknowledgment: "Thank you for taking the time to share your feature request with us.",
					Explanation:    "We value your feedback and will consider it for future product development.",
					ActionItems: []string{
						"Your request has been logged in our feature tracking system",
						"We'll notify you if this feature gets implemented",
					},
					Timeline: "Product updates are typically shared in our monthly newsletter.",
					Closing:  "Thank you for helping us improve!\n{signature}",
				},
				model.CategoryBugReport: {
					Greeting:       "Hi{customer_name},",
					Acknowledgment: "Thank you for reporting this issue. We appreciate your help in improving our product.",
					Explanation:    "Our engineering team has been notified and will investigate the bug.",
					ActionItems: []string{
						"If possible, please provide steps to reproduce the issue",
						"Include any screenshots or error messages if available",
					},
					Timeline: "Bug reports are typically addressed within {response_time}.",
					Closing:  "Best regards,\n{signature}",
				},
				model.CategoryGeneral: {
					Greeting:       "Hello{customer_name},",
					Acknowledgment: "Thank you for contacting our support team.",
					Explanation:    "We're here to help and will address your inquiry as soon as possible.",
					ActionItems: []string{
						"Please provide any additional details that might help us assist you better",
					},
					Timeline: "We aim to respond within {response_time}.",
					Closing:  "Best regards,\n{signature}",
				},
			},
			ResponseTimes: map[model.Severity]string{
				model.SeverityCritical: "1 hour",
				model.SeverityHigh:     "4 hours",
				model.SeverityMedium:   "24 hours",
				model.SeverityLow:      "72 hours",
			},
			DefaultResponseTime:  "24 hours",
			Signature:            "Customer Support Team",
			EscalationSeverities: []model.Severity{model.SeverityCritical, model.SeverityHigh},
		},
	}
}
