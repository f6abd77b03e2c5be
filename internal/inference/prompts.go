package inference

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sells-group/ticket-workflow/internal/model"
)

const classifySystem = `You are a support ticket classifier. Reply with a single JSON object and nothing else.`

const classifyPrompt = `Analyze the following ticket and classify it.

TICKET SUBJECT: %s
TICKET BODY: %s

AVAILABLE CATEGORIES: %s
SEVERITY LEVELS: %s

Respond with JSON:
{
    "category": "category_name",
    "category_confidence": 0.0-1.0,
    "severity": "severity_level",
    "severity_confidence": 0.0-1.0,
    "secondary_categories": ["sub1", "sub2"],
    "reasoning": "brief explanation",
    "keywords_matched": ["keyword1", "keyword2"],
    "urgency_indicators": ["indicator1"]
}`

const extractSystem = `You extract structured fields from support tickets. Reply with a single JSON object and nothing else.`

const extractPrompt = `Extract structured information from this support ticket.

TICKET SUBJECT: %s
TICKET BODY: %s
CATEGORY: %s

Extract the following fields if present:
- order_id: Order or transaction ID (formats: ORD-XXXXX, #XXXXX)
- product_name: Product or service mentioned
- error_code: Error codes or messages (e.g., ERR-XXXX, 0xXXXX)
- account_email: Email addresses mentioned
- phone_number: Phone numbers
- priority_keywords: Urgency words found

Respond with JSON:
{
    "fields": [
        {"name": "field_name", "value": "extracted_value", "confidence": 0.0-1.0, "source_text": "original text"}
    ]
}`

const respondSystem = `You are drafting a customer support response. Be professional, empathetic, and helpful. Reply with a single JSON object and nothing else.`

const respondPrompt = `TICKET SUBJECT: %s
TICKET BODY: %s
CATEGORY: %s
SEVERITY: %s
EXTRACTED CONTEXT: %s
CUSTOMER_NAME: %s

Guidelines:
- Acknowledge the issue specifically
- Show empathy for their situation
- Provide clear next steps
- Set appropriate expectations based on severity
- Use %s tone
- Keep response concise but complete

Respond with JSON:
{
    "greeting": "personalized greeting",
    "acknowledgment": "acknowledge specific issue",
    "explanation": "brief explanation if applicable",
    "action_items": ["step 1", "step 2"],
    "timeline": "expected resolution timeframe",
    "closing": "professional closing",
    "full_response": "complete formatted response",
    "requires_escalation": true
}`

// ResponseInput is the context handed to response generation.
type ResponseInput struct {
	Subject      string
	Body         string
	Category     model.Category
	Severity     model.Severity
	Fields       []model.ExtractedField
	CustomerName string
	Tone         model.Tone
}

// ClassifyPrompt renders the classification prompt.
func ClassifyPrompt(subject, body string, maxChars int) string {
	return fmt.Sprintf(classifyPrompt,
		subject,
		truncate(body, maxChars),
		joinEnum(model.Categories),
		joinEnum(model.Severities),
	)
}

// ExtractPrompt renders the extraction prompt.
func ExtractPrompt(subject, body string, category model.Category, maxChars int) string {
	return fmt.Sprintf(extractPrompt, subject, truncate(body, maxChars), category)
}

// RespondPrompt renders the response generation prompt.
func RespondPrompt(in ResponseInput, maxChars int) string {
	fields := make(map[string]any, len(in.Fields))
	for _, f := range in.Fields {
		if _, seen := fields[f.Name]; !seen {
			fields[f.Name] = f.Value
		}
	}
	ctxJSON, err := json.Marshal(fields)
	if err != nil {
		ctxJSON = []byte("{}")
	}
	name := in.CustomerName
	if name == "" {
		name = "Customer"
	}
	tone := in.Tone
	if !tone.Valid() {
		tone = model.ToneFriendly
	}
	return fmt.Sprintf(respondPrompt,
		in.Subject,
		truncate(in.Body, maxChars),
		in.Category,
		in.Severity,
		ctxJSON,
		name,
		tone,
	)
}

// truncate cuts s to at most n runes. n <= 0 means no limit.
func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func joinEnum[T ~string](vals []T) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
