package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/example/pocket-ledger/internal/application"
	"github.com/example/pocket-ledger/internal/recurrence"
)

const defaultUpcomingCount = 12

type ruleService interface {
	CreateRule(ctx context.Context, input application.RuleInput) (application.RecurringRule, error)
	GetRule(ctx context.Context, id string) (application.RecurringRule, error)
	ListRules(ctx context.Context, opts application.RuleListOptions) ([]application.RecurringRule, error)
	UpdateRule(ctx context.Context, id string, input application.RuleInput) (application.RecurringRule, error)
	PauseRule(ctx context.Context, id string) (application.RecurringRule, error)
	ResumeRule(ctx context.Context, id string) (application.RecurringRule, error)
	DeleteRule(ctx context.Context, id string) error
	UpcomingDates(ctx context.Context, id string, count int) ([]time.Time, error)
}

type RuleHandler struct {
	service   ruleService
	responder responder
	logger    *slog.Logger
}

func NewRuleHandler(service ruleService, logger *slog.Logger) *RuleHandler {
	base := defaultLogger(logger)
	return &RuleHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *RuleHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "RuleHandler", operation, attrs...)
}

// RegisterRoutes mounts the rule endpoints on r.
func (h *RuleHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/pause", h.Pause)
	r.Post("/{id}/resume", h.Resume)
	r.Get("/{id}/upcoming", h.Upcoming)
}

func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode rule request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create")
	rule, err := h.service.CreateRule(r.Context(), req.toInput())
	if err != nil {
		logger.WarnContext(r.Context(), "rule creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("rule_id", rule.ID).InfoContext(r.Context(), "rule created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, ruleResponse{Rule: toRuleDTO(rule)})
}

func (h *RuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ruleID, ok := h.ruleID(w, r, "Get")
	if !ok {
		return
	}

	rule, err := h.service.GetRule(r.Context(), ruleID)
	if err != nil {
		h.log(r.Context(), "Get", "rule_id", ruleID).WarnContext(r.Context(), "rule lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, ruleResponse{Rule: toRuleDTO(rule)})
}

func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var opts application.RuleListOptions
	if raw := r.URL.Query().Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidActive)
			return
		}
		opts.ActiveOnly = active
	}

	logger := h.log(r.Context(), "List", "active_only", opts.ActiveOnly)
	rules, err := h.service.ListRules(r.Context(), opts)
	if err != nil {
		logger.ErrorContext(r.Context(), "rule listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]ruleDTO, 0, len(rules))
	for _, rule := range rules {
		dtos = append(dtos, toRuleDTO(rule))
	}

	logger.DebugContext(r.Context(), "rules listed", "count", len(dtos))
	h.responder.writeJSON(r.Context(), w, http.StatusOK, ruleListResponse{Rules: dtos})
}

func (h *RuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ruleID, ok := h.ruleID(w, r, "Update")
	if !ok {
		return
	}

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Update", "rule_id", ruleID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode rule update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Update", "rule_id", ruleID)
	rule, err := h.service.UpdateRule(r.Context(), ruleID, req.toInput())
	if err != nil {
		logger.WarnContext(r.Context(), "rule update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "rule updated", "next_due_date", rule.NextDueDate.Format(recurrence.DateLayout))
	h.responder.writeJSON(r.Context(), w, http.StatusOK, ruleResponse{Rule: toRuleDTO(rule)})
}

func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ruleID, ok := h.ruleID(w, r, "Delete")
	if !ok {
		return
	}

	logger := h.log(r.Context(), "Delete", "rule_id", ruleID)
	if err := h.service.DeleteRule(r.Context(), ruleID); err != nil {
		logger.WarnContext(r.Context(), "rule delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "rule deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *RuleHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, "Pause", h.service.PauseRule)
}

func (h *RuleHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, "Resume", h.service.ResumeRule)
}

func (h *RuleHandler) toggle(w http.ResponseWriter, r *http.Request, operation string, apply func(context.Context, string) (application.RecurringRule, error)) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ruleID, ok := h.ruleID(w, r, operation)
	if !ok {
		return
	}

	logger := h.log(r.Context(), operation, "rule_id", ruleID)
	rule, err := apply(r.Context(), ruleID)
	if err != nil {
		logger.WarnContext(r.Context(), "rule state change failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "rule state changed", "active", rule.Active)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, ruleResponse{Rule: toRuleDTO(rule)})
}

func (h *RuleHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ruleID, ok := h.ruleID(w, r, "Upcoming")
	if !ok {
		return
	}

	count := defaultUpcomingCount
	if raw := r.URL.Query().Get("count"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidCount)
			return
		}
		count = parsed
	}

	dates, err := h.service.UpcomingDates(r.Context(), ruleID, count)
	if err != nil {
		h.log(r.Context(), "Upcoming", "rule_id", ruleID).WarnContext(r.Context(), "rule preview failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	formatted := make([]string, 0, len(dates))
	for _, d := range dates {
		formatted = append(formatted, d.Format(recurrence.DateLayout))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, upcomingResponse{RuleID: ruleID, Dates: formatted})
}

func (h *RuleHandler) ruleID(w http.ResponseWriter, r *http.Request, operation string) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		h.log(r.Context(), operation, "error_kind", "bad_request").WarnContext(r.Context(), "missing rule id")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return "", false
	}
	return id, true
}

type ruleRequest struct {
	Kind               string          `json:"kind"`
	Amount             decimal.Decimal `json:"amount"`
	Category           string          `json:"category"`
	Note               string          `json:"note"`
	Frequency          string          `json:"frequency"`
	CustomIntervalDays int             `json:"custom_interval_days"`
	Weekdays           []int           `json:"weekdays"`
	DayOfMonth         int             `json:"day_of_month"`
	StartDate          string          `json:"start_date"`
	EndDate            string          `json:"end_date"`
}

func (r ruleRequest) toInput() application.RuleInput {
	return application.RuleInput{
		Kind:               r.Kind,
		Amount:             r.Amount,
		Category:           r.Category,
		Note:               r.Note,
		Frequency:          r.Frequency,
		CustomIntervalDays: r.CustomIntervalDays,
		Weekdays:           r.Weekdays,
		DayOfMonth:         r.DayOfMonth,
		StartDate:          r.StartDate,
		EndDate:            r.EndDate,
	}
}

type ruleDTO struct {
	ID                 string          `json:"id"`
	Kind               string          `json:"kind"`
	Amount             decimal.Decimal `json:"amount"`
	Category           string          `json:"category"`
	Note               string          `json:"note,omitempty"`
	Frequency          string          `json:"frequency"`
	CustomIntervalDays int             `json:"custom_interval_days,omitempty"`
	Weekdays           []int           `json:"weekdays,omitempty"`
	DayOfMonth         int             `json:"day_of_month,omitempty"`
	StartDate          string          `json:"start_date"`
	EndDate            string          `json:"end_date,omitempty"`
	LastGeneratedDate  string          `json:"last_generated_date,omitempty"`
	NextDueDate        string          `json:"next_due_date"`
	Active             bool            `json:"active"`
	RRule              string          `json:"rrule,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

type ruleResponse struct {
	Rule ruleDTO `json:"rule"`
}

type ruleListResponse struct {
	Rules []ruleDTO `json:"rules"`
}

type upcomingResponse struct {
	RuleID string   `json:"rule_id"`
	Dates  []string `json:"dates"`
}

func toRuleDTO(rule application.RecurringRule) ruleDTO {
	dto := ruleDTO{
		ID:          rule.ID,
		Kind:        string(rule.Kind),
		Amount:      rule.Amount,
		Category:    rule.Category,
		Note:        rule.Note,
		Frequency:   rule.Frequency.String(),
		DayOfMonth:  rule.DayOfMonth,
		StartDate:   rule.StartDate.Format(recurrence.DateLayout),
		NextDueDate: rule.NextDueDate.Format(recurrence.DateLayout),
		Active:      rule.Active,
		CreatedAt:   rule.CreatedAt,
		UpdatedAt:   rule.UpdatedAt,
	}
	if rule.Frequency == recurrence.FrequencyCustom {
		dto.CustomIntervalDays = rule.CustomIntervalDays
	}
	if rule.Weekdays != nil {
		dto.Weekdays = make([]int, 0, len(rule.Weekdays))
		for _, day := range rule.Weekdays {
			dto.Weekdays = append(dto.Weekdays, int(day))
		}
	}
	if rule.EndDate != nil {
		dto.EndDate = rule.EndDate.Format(recurrence.DateLayout)
	}
	if rule.LastGeneratedDate != nil {
		dto.LastGeneratedDate = rule.LastGeneratedDate.Format(recurrence.DateLayout)
	}
	if rrule, err := recurrence.RRuleString(rule.Rule); err == nil {
		dto.RRule = rrule
	}
	return dto
}
