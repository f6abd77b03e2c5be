// Package store persists pipeline runs.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ticket-workflow/internal/model"
)

// ErrNotFound is returned when a run ID is unknown.
var ErrNotFound = eris.New("store: run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	TicketID     string          `json:"ticket_id,omitempty"`
	Category     model.Category  `json:"category,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for pipeline runs.
type Store interface {
	// SaveRun inserts or replaces a run and its step rows.
	SaveRun(ctx context.Context, run *model.PipelineRun) error
	GetRun(ctx context.Context, runID string) (*model.PipelineRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

var stepColumns = []string{
	"run_id", "seq", "name", "status", "fallback_used", "tokens", "retries", "duration_ms", "error", "started_at",
}

// runRow is the column projection shared by both backends.
type runRow struct {
	ticket   []byte
	steps    []byte
	result   []byte
	category string
	team     string
}

func encodeRun(run *model.PipelineRun) (runRow, error) {
	var row runRow
	var err error
	if row.ticket, err = json.Marshal(run.Ticket); err != nil {
		return row, eris.Wrap(err, "store: marshal ticket")
	}
	steps := run.Steps
	if steps == nil {
		steps = []model.StepResult{}
	}
	if row.steps, err = json.Marshal(steps); err != nil {
		return row, eris.Wrap(err, "store: marshal steps")
	}
	row.result = []byte("{}")
	if run.Result != nil {
		if row.result, err = json.Marshal(run.Result); err != nil {
			return row, eris.Wrap(err, "store: marshal result")
		}
		row.category = string(run.Result.Classification.Category)
		row.team = string(run.Result.Routing.Team)
	}
	return row, nil
}

func decodeRun(run *model.PipelineRun, ticket, steps, result []byte) error {
	if err := json.Unmarshal(ticket, &run.Ticket); err != nil {
		return eris.Wrap(err, "store: unmarshal ticket")
	}
	if err := json.Unmarshal(steps, &run.Steps); err != nil {
		return eris.Wrap(err, "store: unmarshal steps")
	}
	if len(result) > 0 && string(result) != "{}" {
		run.Result = &model.WorkflowResult{}
		if err := json.Unmarshal(result, run.Result); err != nil {
			return eris.Wrap(err, "store: unmarshal result")
		}
	}
	return nil
}

func stepRows(run *model.PipelineRun) [][]any {
	rows := make([][]any, 0, len(run.Steps))
	for i, s := range run.Steps {
		rows = append(rows, []any{
			run.ID, i, string(s.Name), string(s.Status), s.FallbackUsed, s.Tokens, s.Retries, s.Duration, s.Error, s.StartedAt.UTC(),
		})
	}
	return rows
}
