package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ticket-workflow/internal/model"
	"github.com/sells-group/ticket-workflow/internal/resilience"
	"github.com/sells-group/ticket-workflow/internal/store"
)

// maxCollectRuns bounds how many runs one snapshot reads.
const maxCollectRuns = 10000

// Snapshot holds a point-in-time view of workflow health.
type Snapshot struct {
	// Runs within the lookback window.
	RunsTotal     int     `json:"runs_total"`
	RunsCompleted int     `json:"runs_completed"`
	RunsPartial   int     `json:"runs_partial"`
	RunsFailed    int     `json:"runs_failed"`
	FailureRate   float64 `json:"failure_rate"`
	Duplicates    int     `json:"duplicates"`
	AvgDurationMs int64   `json:"avg_duration_ms"`

	// AI-backed steps (classification, extraction, response generation).
	AISteps      int     `json:"ai_steps"`
	FallbackUsed int     `json:"fallback_used"`
	FallbackRate float64 `json:"fallback_rate"`

	CostUSD   float64 `json:"cost_usd"`
	AvgTokens int     `json:"avg_tokens"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the slice of store.Store the collector reads from.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.PipelineRun, error)
}

// Collector builds snapshots from persisted runs.
type Collector struct {
	runs    RunLister
	nowFunc func() time.Time
}

// NewCollector creates a new snapshot collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, nowFunc: time.Now}
}

func isAIStep(name model.StepName) bool {
	switch name {
	case model.StepClassification, model.StepExtraction, model.StepResponseGeneration:
		return true
	}
	return false
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.nowFunc().UTC()
	snap := &Snapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        maxCollectRuns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	var totalTokens int
	var totalDuration int64
	for _, r := range runs {
		snap.RunsTotal++
		totalDuration += r.Duration
		switch r.Status {
		case model.RunStatusCompleted:
			snap.RunsCompleted++
		case model.RunStatusPartial:
			snap.RunsPartial++
		case model.RunStatusFailed:
			snap.RunsFailed++
		}

		for _, s := range r.Steps {
			if !isAIStep(s.Name) || s.Status == model.StepStatusSkipped {
				continue
			}
			// Steps with AI turned off by config never attempted a call.
			if reason, _ := s.Metadata["fallback_reason"].(string); reason == resilience.ReasonDisabled {
				continue
			}
			snap.AISteps++
			if s.FallbackUsed {
				snap.FallbackUsed++
			}
		}

		if r.Result != nil {
			snap.CostUSD += r.Result.TotalCost
			totalTokens += r.Result.TotalTokens
			if r.Result.Duplicate != nil {
				snap.Duplicates++
			}
		}
	}

	if snap.RunsTotal > 0 {
		snap.FailureRate = float64(snap.RunsFailed) / float64(snap.RunsTotal)
		snap.AvgTokens = totalTokens / snap.RunsTotal
		snap.AvgDurationMs = totalDuration / int64(snap.RunsTotal)
	}
	if snap.AISteps > 0 {
		snap.FallbackRate = float64(snap.FallbackUsed) / float64(snap.AISteps)
	}
	return snap, nil
}
