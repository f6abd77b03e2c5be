package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ticket-workflow/internal/config"
	"github.com/sells-group/ticket-workflow/internal/model"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{CheckIntervalSecs: 1, LookbackWindowHours: 24, FailureRateThreshold: 0.10}
	checker := NewChecker(NewCollector(&mockLister{}), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(NewCollector(&mockLister{}), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_CheckSendsAlerts(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	var runs []model.PipelineRun
	for i := 0; i < 6; i++ {
		runs = append(runs, model.PipelineRun{ID: "r", Status: model.RunStatusFailed, CreatedAt: time.Now()})
	}
	cfg := config.MonitoringConfig{WebhookURL: ts.URL, FailureRateThreshold: 0.5}
	checker := NewChecker(NewCollector(&mockLister{runs: runs}), NewAlerter(cfg), cfg)

	raised := checker.Check(context.Background())
	require.Len(t, raised, 1)
	assert.Equal(t, AlertFailureRate, raised[0].Type)
	assert.Equal(t, int32(1), received.Load())

	// Still failing: no repeat notification.
	assert.Empty(t, checker.Check(context.Background()))
	assert.Equal(t, int32(1), received.Load())
}

func TestChecker_AlertRefiresAfterClearing(t *testing.T) {
	lister := &mockLister{}
	for i := 0; i < 6; i++ {
		lister.runs = append(lister.runs, model.PipelineRun{ID: "r", Status: model.RunStatusFailed, CreatedAt: time.Now()})
	}
	cfg := config.MonitoringConfig{FailureRateThreshold: 0.5}
	checker := NewChecker(NewCollector(lister), NewAlerter(cfg), cfg)

	require.Len(t, checker.Check(context.Background()), 1)

	failing := lister.runs
	lister.runs = nil
	assert.Empty(t, checker.Check(context.Background()))

	lister.runs = failing
	assert.Len(t, checker.Check(context.Background()), 1)
}
