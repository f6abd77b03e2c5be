package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ticket-workflow/internal/model"
	"github.com/sells-group/ticket-workflow/internal/monitoring"
	"github.com/sells-group/ticket-workflow/internal/pipeline"
	"github.com/sells-group/ticket-workflow/internal/store"
)

const (
	maxRequestBytes = 1 << 20
	shutdownTimeout = 10 * time.Second
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for ticket processing",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Monitoring.WebhookURL != "" {
			if env.Store == nil {
				zap.L().Warn("monitoring webhook configured but run store is disabled, alert checker not started")
			} else {
				checker := monitoring.NewChecker(monitoring.NewCollector(env.Store), monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
				go checker.Run(ctx)
			}
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           buildRouter(env, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// api serves the workflow over HTTP.
type api struct {
	env *pipelineEnv
}

// buildRouter mounts the health, metrics, workflow and run history routes.
func buildRouter(env *pipelineEnv, allowedOrigins []string) http.Handler {
	a := &api{env: env}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", a.health)
	r.Handle("/metrics", env.Metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/workflow", func(r chi.Router) {
			r.Post("/process", a.process)
			r.Post("/classify", a.classify)
			r.Post("/extract", a.extract)
			r.Post("/respond", a.respond)
			r.Post("/route", a.route)
		})
		r.Get("/runs", a.listRuns)
		r.Get("/runs/{id}", a.getRun)
		r.Get("/stats", a.stats)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSONStatus(w, status, map[string]string{"error": msg})
}

// writeWorkflowError maps pipeline errors to HTTP statuses.
func writeWorkflowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		zap.L().Error("workflow request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	circuits := map[string]string{}
	if a.env.Breakers != nil {
		for op, state := range a.env.Breakers.States() {
			circuits[op] = state.String()
		}
	}
	writeJSONStatus(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"circuits": circuits,
	})
}

type processRequest struct {
	model.Ticket
	Options *model.Options `json:"options,omitempty"`
}

func (a *api) process(w http.ResponseWriter, r *http.Request) {
	opts := model.DefaultOptions()
	req := processRequest{Options: &opts}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Options == nil {
		req.Options = &opts
	}
	if req.Options.Tone == "" {
		req.Options.Tone = model.ToneFriendly
	}
	if !req.Options.Tone.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown response_tone %q", req.Options.Tone))
		return
	}

	result, err := a.env.Pipeline.Execute(r.Context(), req.Ticket, *req.Options)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, result)
}

func (a *api) classify(w http.ResponseWriter, r *http.Request) {
	var ticket model.Ticket
	if !decodeBody(w, r, &ticket) {
		return
	}
	res, step, err := a.env.Pipeline.Classify(r.Context(), ticket)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, map[string]any{
		"classification": res,
		"step":           step,
	})
}

type extractRequest struct {
	model.Ticket
	Category model.Category `json:"category,omitempty"`
}

func (a *api) extract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, step, err := a.env.Pipeline.Extract(r.Context(), req.Ticket, req.Category)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, map[string]any{
		"extraction": res,
		"step":       step,
	})
}

type respondRequest struct {
	model.Ticket
	Category model.Category         `json:"category"`
	Severity model.Severity         `json:"severity,omitempty"`
	Fields   []model.ExtractedField `json:"fields,omitempty"`
	Tone     model.Tone             `json:"tone,omitempty"`
}

func (a *api) respond(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !req.Category.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown category %q", req.Category))
		return
	}
	c := model.ClassificationResult{Category: req.Category, Severity: req.Severity}
	draft, step, err := a.env.Pipeline.Respond(r.Context(), req.Ticket, c, req.Fields, req.Tone)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, map[string]any{
		"response": draft,
		"step":     step,
	})
}

type routeRequest struct {
	Category model.Category         `json:"category"`
	Severity model.Severity         `json:"severity"`
	Fields   []model.ExtractedField `json:"fields,omitempty"`
}

func (a *api) route(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !req.Category.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown category %q", req.Category))
		return
	}
	if req.Severity == "" {
		req.Severity = model.SeverityMedium
	}
	if !req.Severity.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown severity %q", req.Severity))
		return
	}
	writeJSONStatus(w, http.StatusOK, a.env.Pipeline.Route(req.Category, req.Severity, req.Fields))
}

func (a *api) requireStore(w http.ResponseWriter) bool {
	if a.env.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "run store is disabled")
		return false
	}
	return true
}

func (a *api) listRuns(w http.ResponseWriter, r *http.Request) {
	if !a.requireStore(w) {
		return
	}
	q := r.URL.Query()
	filter := store.RunFilter{
		Status:   model.RunStatus(q.Get("status")),
		Category: model.Category(q.Get("category")),
		TicketID: q.Get("ticket_id"),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	if since := q.Get("since"); since != "" {
		d, err := time.ParseDuration(since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since")
			return
		}
		filter.CreatedAfter = time.Now().Add(-d)
	}

	runs, err := a.env.Store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSONStatus(w, http.StatusOK, map[string]any{"runs": runs})
}

func (a *api) getRun(w http.ResponseWriter, r *http.Request) {
	if !a.requireStore(w) {
		return
	}
	run, err := a.env.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		zap.L().Error("get run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSONStatus(w, http.StatusOK, run)
}

func (a *api) stats(w http.ResponseWriter, r *http.Request) {
	if !a.requireStore(w) {
		return
	}
	hours, err := intParam(r.URL.Query().Get("hours"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid hours")
		return
	}
	if hours <= 0 {
		hours = 24
	}
	snap, err := monitoring.NewCollector(a.env.Store).Collect(r.Context(), hours)
	if err != nil {
		zap.L().Error("collect stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSONStatus(w, http.StatusOK, snap)
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, eris.Errorf("invalid integer %q", s)
	}
	return n, nil
}
