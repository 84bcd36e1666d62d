package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/pocket-ledger/internal/application"
	"github.com/example/pocket-ledger/internal/recurrence"
)

type generationService interface {
	Run(ctx context.Context, opts application.RunOptions) (application.GenerationReport, error)
	LastRun(ctx context.Context) (application.GenerationRun, error)
	InProgress() bool
}

type GenerationHandler struct {
	service   generationService
	responder responder
	logger    *slog.Logger
}

func NewGenerationHandler(service generationService, logger *slog.Logger) *GenerationHandler {
	base := defaultLogger(logger)
	return &GenerationHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *GenerationHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "GenerationHandler", operation, attrs...)
}

// RegisterRoutes mounts the generation endpoints on r.
func (h *GenerationHandler) RegisterRoutes(r chi.Router) {
	r.Post("/run", h.Run)
	r.Get("/status", h.Status)
}

// Run triggers a generation pass and responds with its report. The pass runs
// on the request context, so a client disconnect stops catch-up early; rules
// committed before that point stay committed.
func (h *GenerationHandler) Run(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var opts application.RunOptions
	if raw := r.URL.Query().Get("force"); raw != "" {
		force, err := strconv.ParseBool(raw)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidForce)
			return
		}
		opts.Force = force
	}

	logger := h.log(r.Context(), "Run", "force", opts.Force)
	report, err := h.service.Run(r.Context(), opts)
	if err != nil {
		logger.WarnContext(r.Context(), "generation request failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "generation request completed",
		"skipped", report.Skipped,
		"created", len(report.Transactions),
		"failures", len(report.Failures),
	)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toReportDTO(report))
}

func (h *GenerationHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := statusResponse{InProgress: h.service.InProgress()}
	run, err := h.service.LastRun(r.Context())
	if err == nil {
		dto := toRunDTO(run)
		resp.LastRun = &dto
	} else if !errors.Is(err, application.ErrNotFound) {
		h.log(r.Context(), "Status").ErrorContext(r.Context(), "generation status failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

type failureDTO struct {
	RuleID string `json:"rule_id"`
	Reason string `json:"reason"`
}

type reportDTO struct {
	Today         string           `json:"today"`
	Skipped       bool             `json:"skipped"`
	StartedAt     time.Time        `json:"started_at"`
	CompletedAt   time.Time        `json:"completed_at"`
	Evaluated     int              `json:"rules_evaluated"`
	AdvancedRules []string         `json:"advanced_rules"`
	Transactions  []transactionDTO `json:"transactions"`
	Failures      []failureDTO     `json:"failures"`
	Message       string           `json:"message,omitempty"`
}

func toReportDTO(report application.GenerationReport) reportDTO {
	dto := reportDTO{
		Today:         report.Today.Format(recurrence.DateLayout),
		Skipped:       report.Skipped,
		StartedAt:     report.StartedAt,
		CompletedAt:   report.CompletedAt,
		Evaluated:     report.Evaluated,
		AdvancedRules: make([]string, 0, len(report.AdvancedRules)),
		Transactions:  make([]transactionDTO, 0, len(report.Transactions)),
		Failures:      make([]failureDTO, 0, len(report.Failures)),
		Message:       report.UserMessage,
	}
	dto.AdvancedRules = append(dto.AdvancedRules, report.AdvancedRules...)
	for _, txn := range report.Transactions {
		dto.Transactions = append(dto.Transactions, toTransactionDTO(txn))
	}
	for _, f := range report.Failures {
		dto.Failures = append(dto.Failures, failureDTO{RuleID: f.RuleID, Reason: f.Reason})
	}
	return dto
}

type runDTO struct {
	RunDate            string    `json:"run_date"`
	StartedAt          time.Time `json:"started_at"`
	CompletedAt        time.Time `json:"completed_at"`
	RulesEvaluated     int       `json:"rules_evaluated"`
	RulesAdvanced      int       `json:"rules_advanced"`
	OccurrencesCreated int       `json:"occurrences_created"`
	Failures           int       `json:"failures"`
}

type statusResponse struct {
	InProgress bool    `json:"in_progress"`
	LastRun    *runDTO `json:"last_run"`
}

func toRunDTO(run application.GenerationRun) runDTO {
	return runDTO{
		RunDate:            run.RunDate.Format(recurrence.DateLayout),
		StartedAt:          run.StartedAt,
		CompletedAt:        run.CompletedAt,
		RulesEvaluated:     run.RulesEvaluated,
		RulesAdvanced:      run.RulesAdvanced,
		OccurrencesCreated: run.OccurrencesCreated,
		Failures:           run.Failures,
	}
}
