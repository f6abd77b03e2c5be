package model

import "time"

// StepName identifies a stage of the fixed pipeline.
type StepName string

const (
	StepValidation         StepName = "validation"
	StepDuplicateDetection StepName = "duplicate_detection"
	StepClassification     StepName = "classification"
	StepExtraction         StepName = "extraction"
	StepResponseGeneration StepName = "response_generation"
	StepRouting            StepName = "routing"
)

// StepStatus represents the current state of a pipeline step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// Terminal reports whether the status is final.
func (s StepStatus) Terminal() bool {
	return s == StepStatusCompleted || s == StepStatusFailed || s == StepStatusSkipped
}

// StepResult holds the outcome of one pipeline step.
type StepResult struct {
	Name         StepName       `json:"name"`
	Status       StepStatus     `json:"status"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  time.Time      `json:"completed_at"`
	Duration     int64          `json:"duration_ms"`
	Error        string         `json:"error,omitempty"`
	FallbackUsed bool           `json:"fallback_used"`
	Tokens       int            `json:"tokens,omitempty"`
	Retries      int            `json:"retries,omitempty"`
	CircuitOpen  bool           `json:"circuit_open,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// TokenUsage tracks token consumption of inference calls.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add merges token usage from another instance.
func (t *TokenUsage) Add(other TokenUsage) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
}

// Total returns input plus output tokens.
func (t TokenUsage) Total() int {
	return t.InputTokens + t.OutputTokens
}

// RunStatus is the terminal state of a pipeline run.
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// PipelineRun is one execution over one ticket, as handed to persistence.
type PipelineRun struct {
	ID        string          `json:"id"`
	Ticket    Ticket          `json:"ticket"`
	Status    RunStatus       `json:"status"`
	Steps     []StepResult    `json:"steps"`
	Duration  int64           `json:"duration_ms"`
	Result    *WorkflowResult `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
