package model

import "strings"

// Category is the closed set of ticket categories.
type Category string

const (
	CategoryTechnical      Category = "technical"
	CategoryBilling        Category = "billing"
	CategoryAccount        Category = "account"
	CategoryFeatureRequest Category = "feature_request"
	CategoryBugReport      Category = "bug_report"
	CategoryGeneral        Category = "general"
)

// Categories lists every category in tie-break priority order. When two
// categories score the same, the one appearing first wins.
var Categories = []Category{
	CategoryTechnical,
	CategoryBilling,
	CategoryAccount,
	CategoryFeatureRequest,
	CategoryBugReport,
	CategoryGeneral,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Severity is the closed set of ticket severities.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities lists severities from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	for _, known := range Severities {
		if s == known {
			return true
		}
	}
	return false
}

// Team is the closed set of routing targets.
type Team string

const (
	TeamTechnicalSupport  Team = "technical_support"
	TeamBilling           Team = "billing_team"
	TeamAccountManagement Team = "account_management"
	TeamProduct           Team = "product_team"
	TeamEscalation        Team = "escalation_team"
)

// Teams lists every team in declaration order.
var Teams = []Team{
	TeamTechnicalSupport,
	TeamBilling,
	TeamAccountManagement,
	TeamProduct,
	TeamEscalation,
}

// Valid reports whether t is a known team.
func (t Team) Valid() bool {
	for _, known := range Teams {
		if t == known {
			return true
		}
	}
	return false
}

// Priority is the routing priority of a ticket.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists priorities from lowest to highest.
var Priorities = []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p.rank() >= 0
}

func (p Priority) rank() int {
	for i, known := range Priorities {
		if p == known {
			return i
		}
	}
	return -1
}

// Shift moves p by delta levels, clamped to [low, urgent].
// Unknown priorities are treated as normal.
func (p Priority) Shift(delta int) Priority {
	idx := p.rank()
	if idx < 0 {
		idx = PriorityNormal.rank()
	}
	idx += delta
	if idx < 0 {
		idx = 0
	}
	if idx >= len(Priorities) {
		idx = len(Priorities) - 1
	}
	return Priorities[idx]
}

// Tone is the voice of a drafted response.
type Tone string

const (
	ToneFormal    Tone = "formal"
	ToneFriendly  Tone = "friendly"
	ToneTechnical Tone = "technical"
)

// Valid reports whether t is a known tone.
func (t Tone) Valid() bool {
	switch t {
	case ToneFormal, ToneFriendly, ToneTechnical:
		return true
	}
	return false
}

// Well-known extracted field names. Custom names are also legal.
const (
	FieldOrderID          = "order_id"
	FieldProductName      = "product_name"
	FieldErrorCode        = "error_code"
	FieldAccountEmail     = "account_email"
	FieldPhoneNumber      = "phone_number"
	FieldPriorityKeywords = "priority_keywords"
)

// Ticket is the immutable input to one pipeline run.
type Ticket struct {
	ID            string            `json:"id,omitempty"`
	Subject       string            `json:"subject"`
	Body          string            `json:"body"`
	CustomerID    string            `json:"customer_id,omitempty"`
	CustomerEmail string            `json:"customer_email,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Text joins subject and body into the text scanned by rule engines.
func (t Ticket) Text() string {
	return t.Subject + "\n" + t.Body
}

// CustomerKey returns the identity used to group a customer's tickets:
// the customer ID when present, else the lowercased email, else "".
func (t Ticket) CustomerKey() string {
	if id := strings.TrimSpace(t.CustomerID); id != "" {
		return "id:" + id
	}
	if email := strings.ToLower(strings.TrimSpace(t.CustomerEmail)); email != "" {
		return "email:" + email
	}
	return ""
}

// Options tune a single pipeline run.
type Options struct {
	SkipClassification       bool `json:"skip_classification"`
	SkipExtraction           bool `json:"skip_extraction"`
	SkipResponse             bool `json:"skip_response"`
	SkipRouting              bool `json:"skip_routing"`
	Tone                     Tone `json:"response_tone,omitempty"`
	EnableDuplicateDetection bool `json:"enable_duplicate_detection"`
	EnableParallel           bool `json:"enable_parallel"`
}

// DefaultOptions returns the options used when a caller supplies none.
func DefaultOptions() Options {
	return Options{
		Tone:                     ToneFriendly,
		EnableDuplicateDetection: true,
		EnableParallel:           true,
	}
}
