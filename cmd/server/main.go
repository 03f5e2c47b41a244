package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liamcoop/prcycle/digest"
	"github.com/liamcoop/prcycle/internal/config"
	"github.com/liamcoop/prcycle/internal/fixtures"
	"github.com/liamcoop/prcycle/internal/logger"
	"github.com/liamcoop/prcycle/rules"
	"github.com/liamcoop/prcycle/schema"
)

const defaultDueIn = 14 * 24 * time.Hour

type Server struct {
	engine     *rules.Engine
	definition schema.Definition
	companies  []fixtures.CompanyData
	templates  []digest.EmailTemplate
	testLimit  int
	log        *slog.Logger
	now        func() time.Time
	router     *chi.Mux
}

// NewServer loads the configured data files and builds the rule engine behind the API.
func NewServer(cfg *config.Config, log *slog.Logger) (*Server, error) {
	def, err := fixtures.LoadDefinition(cfg.Data.SchemaFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	loaded, err := fixtures.LoadRules(cfg.Data.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	companies, err := fixtures.LoadCompanies(cfg.Data.RecordsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load companies: %w", err)
	}
	templates, err := fixtures.LoadTemplates(cfg.Data.TemplatesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	store := rules.NewInMemoryRuleStore()
	for _, r := range loaded {
		if err := store.Add(r); err != nil {
			return nil, fmt.Errorf("failed to load rules: %w", err)
		}
	}

	conditions, err := rules.NewConditionCache(cfg.Engine.CacheCapacity, 0)
	if err != nil {
		return nil, err
	}

	engine, err := rules.NewEngine(def, store,
		rules.WithLogger(log),
		rules.WithWorkers(cfg.Engine.Workers),
		rules.WithConditionCache(conditions),
		rules.WithRecordSource(rules.NewStaticRecordSource(fixtures.Records(companies))),
	)
	if err != nil {
		return nil, err
	}
	log.Info("rules loaded", "rules", len(loaded), "companies", len(companies), "templates", len(templates))

	s := &Server{
		engine:     engine,
		definition: def,
		companies:  companies,
		templates:  templates,
		testLimit:  cfg.Engine.TestLimit,
		log:        log,
		now:        time.Now,
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/health", s.handleHealth)
		r.Get("/schema", s.handleGetSchema)

		r.Post("/fire", s.handleFireAll)
		r.Post("/digest", s.handleDigest)

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", s.handleListRules)
			r.Post("/", s.handleCreateRule)
			r.Post("/validate", s.handleValidateRule)
			r.Post("/test", s.handleTestRule)

			r.Route("/{ruleId}", func(r chi.Router) {
				r.Get("/", s.handleGetRule)
				r.Put("/", s.handleUpdateRule)
				r.Delete("/", s.handleDeleteRule)
				r.Post("/fire", s.handleFireRule)
			})
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases engine resources.
func (s *Server) Close() {
	s.engine.Close()
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	all, err := s.engine.ListRules()
	if err != nil {
		respondError(w, r, http.StatusServiceUnavailable, "rule store unavailable", err)
		return
	}
	respondJSON(w, r, http.StatusOK, HealthResponse{
		Status:      "healthy",
		RulesLoaded: len(all),
		Companies:   len(s.companies),
	})
}

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, SchemaResponse{
		Fields:  s.engine.Schema(),
		Derived: s.definition.Derived,
	})
}

// Validate handler: the same checks as save, without storing anything
func (s *Server) handleValidateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}

	cond, err := s.engine.Validate(req.toRule())
	if err != nil {
		resp := ValidateResponse{Error: err.Error()}
		var verr *rules.ValidationError
		if errors.As(err, &verr) {
			resp.Field = verr.Field
		}
		respondJSON(w, r, http.StatusUnprocessableEntity, resp)
		return
	}

	respondJSON(w, r, http.StatusOK, ValidateResponse{Valid: true, Dependencies: cond.Dependencies()})
}

// Test handler: validate and preview over at most testLimit records
func (s *Server) handleTestRule(w http.ResponseWriter, r *http.Request) {
	var req TestRuleRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}

	records := req.Records
	if records == nil {
		var err error
		records, err = s.engine.SourceRecords(r.Context())
		if err != nil {
			respondError(w, r, http.StatusInternalServerError, "failed to load records", err)
			return
		}
	}

	limit := s.testLimit
	if req.Limit > 0 && req.Limit < limit {
		limit = req.Limit
	}

	report := s.engine.TestRule(r.Context(), req.Rule.toRule(), records, limit)
	status := http.StatusOK
	if !report.Valid {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, r, status, report)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	all, err := s.engine.ListRules()
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "failed to list rules", err)
		return
	}
	respondJSON(w, r, http.StatusOK, RulesListResponse{Rules: all})
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule := req.toRule()
	if err := s.engine.AddRule(rule); err != nil {
		respondEngineError(w, r, "failed to add rule", err)
		return
	}

	logger.FromContext(r.Context()).Info("rule created", "rule_id", rule.ID)
	respondJSON(w, r, http.StatusCreated, rule)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.engine.GetRule(chi.URLParam(r, "ruleId"))
	if err != nil {
		respondEngineError(w, r, "rule not found", err)
		return
	}
	respondJSON(w, r, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule := req.toRule()
	rule.ID = chi.URLParam(r, "ruleId")
	if err := s.engine.UpdateRule(rule); err != nil {
		respondEngineError(w, r, "failed to update rule", err)
		return
	}

	updated, err := s.engine.GetRule(rule.ID)
	if err != nil {
		respondEngineError(w, r, "rule not found", err)
		return
	}
	respondJSON(w, r, http.StatusOK, updated)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteRule(chi.URLParam(r, "ruleId")); err != nil {
		respondEngineError(w, r, "rule not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Fire handler: records from the body, or the record source when the body is empty
func (s *Server) handleFireRule(w http.ResponseWriter, r *http.Request) {
	var req FireRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}

	ruleID := chi.URLParam(r, "ruleId")
	var (
		res *rules.FireResult
		err error
	)
	if req.Records == nil {
		res, err = s.engine.FireFromSource(r.Context(), ruleID)
	} else {
		var rule *rules.Rule
		rule, err = s.engine.GetRule(ruleID)
		if err == nil {
			res, err = s.engine.Fire(r.Context(), rule, req.Records)
		}
	}
	if err != nil {
		respondEngineError(w, r, "failed to fire rule", err)
		return
	}
	respondJSON(w, r, http.StatusOK, res)
}

func (s *Server) handleFireAll(w http.ResponseWriter, r *http.Request) {
	results, err := s.engine.FireAllFromSource(r.Context())
	if err != nil {
		respondEngineError(w, r, "failed to fire rules", err)
		return
	}

	resp := FireAllResponse{Results: results}
	for _, res := range results {
		resp.Queries += len(res.Queries)
	}
	respondJSON(w, r, http.StatusOK, resp)
}

// Digest handler: fire every active rule and compose one draft per company with queries
func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	var req DigestRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}

	tpl, ok := fixtures.Template(s.templates, req.TemplateID)
	if !ok {
		respondError(w, r, http.StatusNotFound, "template not found", nil)
		return
	}

	due := s.now().Add(defaultDueIn)
	if req.DueDate != "" {
		parsed, err := time.Parse(digest.DueDateLayout, req.DueDate)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "invalid dueDate", err)
			return
		}
		due = parsed
	}

	results, err := s.engine.FireAllFromSource(r.Context())
	if err != nil {
		respondEngineError(w, r, "failed to fire rules", err)
		return
	}
	var queries []rules.GeneratedQuery
	for _, res := range results {
		queries = append(queries, res.Queries...)
	}

	drafts, err := digest.ComposeAll(tpl, fixtures.Recipients(s.companies), queries, due)
	resp := DigestResponse{Drafts: drafts}
	if resp.Drafts == nil {
		resp.Drafts = []digest.Draft{}
	}
	if err != nil {
		resp.Errors = splitJoined(err)
	}
	respondJSON(w, r, http.StatusOK, resp)
}

// splitJoined unpacks an errors.Join result into messages.
func splitJoined(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var msgs []string
		for _, e := range joined.Unwrap() {
			msgs = append(msgs, e.Error())
		}
		return msgs
	}
	return []string{err.Error()}
}

// Helper functions
func respondJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	render.Status(r, status)
	render.JSON(w, r, data)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	respondJSON(w, r, status, resp)
}

// respondEngineError maps engine errors to statuses:
// validation 422, not found 404, duplicate 409, missing source 503.
func respondEngineError(w http.ResponseWriter, r *http.Request, message string, err error) {
	var verr *rules.ValidationError
	switch {
	case errors.As(err, &verr):
		respondJSON(w, r, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   message,
			Field:   verr.Field,
			Details: err.Error(),
		})
	case errors.Is(err, rules.ErrRuleNotFound):
		respondError(w, r, http.StatusNotFound, message, err)
	case errors.Is(err, rules.ErrRuleExists):
		respondError(w, r, http.StatusConflict, message, err)
	case errors.Is(err, rules.ErrNoRecordSource):
		respondError(w, r, http.StatusServiceUnavailable, message, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondError(w, r, http.StatusServiceUnavailable, message, err)
	default:
		logger.FromContext(r.Context()).Error(message, "error", err)
		respondError(w, r, http.StatusInternalServerError, message, err)
	}
}

func main() {
	cfg, err := config.Load(os.Getenv("PRCYCLE_CONFIG"))
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}

	if err := logger.Setup(context.Background(), logger.Config{
		Level:           cfg.Log.Level,
		Format:          cfg.Log.Format,
		OTEL:            cfg.Log.OTEL,
		ServiceName:     cfg.Log.ServiceName,
		ErrorSampleRate: cfg.Log.ErrorSampleRate,
	}); err != nil {
		logger.Fatal("failed to configure logging", "error", err)
	}
	cfg.LogConfig(logger.Logger)

	server, err := NewServer(cfg, logger.Logger)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}
	defer server.Close()

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := logger.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "logger shutdown error: %v\n", err)
	}

	logger.Info("server stopped")
}
