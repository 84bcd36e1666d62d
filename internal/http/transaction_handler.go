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

type transactionService interface {
	RecordTransaction(ctx context.Context, input application.TransactionInput) (application.Transaction, error)
	ListTransactions(ctx context.Context, query application.TransactionQuery) ([]application.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error
	Summarize(ctx context.Context, from, to string) (application.Summary, error)
}

type TransactionHandler struct {
	service   transactionService
	responder responder
	logger    *slog.Logger
}

func NewTransactionHandler(service transactionService, logger *slog.Logger) *TransactionHandler {
	base := defaultLogger(logger)
	return &TransactionHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *TransactionHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "TransactionHandler", operation, attrs...)
}

// RegisterRoutes mounts the transaction endpoints on r.
func (h *TransactionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/summary", h.Summary)
	r.Delete("/{id}", h.Delete)
}

func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode transaction request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create")
	txn, err := h.service.RecordTransaction(r.Context(), req.toInput())
	if err != nil {
		logger.WarnContext(r.Context(), "transaction recording failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("transaction_id", txn.ID).InfoContext(r.Context(), "transaction recorded")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, transactionResponse{Transaction: toTransactionDTO(txn)})
}

func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	q := r.URL.Query()
	query := application.TransactionQuery{
		From:   q.Get("from"),
		To:     q.Get("to"),
		RuleID: q.Get("rule_id"),
		Origin: q.Get("origin"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidLimit)
			return
		}
		query.Limit = limit
	}

	logger := h.log(r.Context(), "List")
	txns, err := h.service.ListTransactions(r.Context(), query)
	if err != nil {
		logger.WarnContext(r.Context(), "transaction listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]transactionDTO, 0, len(txns))
	for _, txn := range txns {
		dtos = append(dtos, toTransactionDTO(txn))
	}

	logger.DebugContext(r.Context(), "transactions listed", "count", len(dtos))
	h.responder.writeJSON(r.Context(), w, http.StatusOK, transactionListResponse{Transactions: dtos})
}

func (h *TransactionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	logger := h.log(r.Context(), "Delete", "transaction_id", id)
	if err := h.service.DeleteTransaction(r.Context(), id); err != nil {
		logger.WarnContext(r.Context(), "transaction delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "transaction deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *TransactionHandler) Summary(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	summary, err := h.service.Summarize(r.Context(), from, to)
	if err != nil {
		h.log(r.Context(), "Summary", "from", from, "to", to).WarnContext(r.Context(), "summary failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSummaryDTO(summary))
}

type transactionRequest struct {
	Kind       string          `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	Category   string          `json:"category"`
	Note       string          `json:"note"`
	OccurredOn string          `json:"occurred_on"`
}

func (r transactionRequest) toInput() application.TransactionInput {
	return application.TransactionInput{
		Kind:       r.Kind,
		Amount:     r.Amount,
		Category:   r.Category,
		Note:       r.Note,
		OccurredOn: r.OccurredOn,
	}
}

type transactionDTO struct {
	ID           string          `json:"id"`
	Kind         string          `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	Category     string          `json:"category"`
	Note         string          `json:"note,omitempty"`
	OccurredOn   string          `json:"occurred_on"`
	SourceRuleID *string         `json:"source_rule_id,omitempty"`
	Origin       string          `json:"origin"`
	CreatedAt    time.Time       `json:"created_at"`
}

type transactionResponse struct {
	Transaction transactionDTO `json:"transaction"`
}

type transactionListResponse struct {
	Transactions []transactionDTO `json:"transactions"`
}

func toTransactionDTO(txn application.Transaction) transactionDTO {
	return transactionDTO{
		ID:           txn.ID,
		Kind:         string(txn.Kind),
		Amount:       txn.Amount,
		Category:     txn.Category,
		Note:         txn.Note,
		OccurredOn:   txn.OccurredOn.Format(recurrence.DateLayout),
		SourceRuleID: txn.SourceRuleID,
		Origin:       string(txn.Origin),
		CreatedAt:    txn.CreatedAt,
	}
}

type categoryTotalDTO struct {
	Category string          `json:"category"`
	Kind     string          `json:"kind"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
}

type summaryDTO struct {
	From       string             `json:"from,omitempty"`
	To         string             `json:"to,omitempty"`
	Income     decimal.Decimal    `json:"income"`
	Expense    decimal.Decimal    `json:"expense"`
	Net        decimal.Decimal    `json:"net"`
	Count      int                `json:"count"`
	Categories []categoryTotalDTO `json:"categories"`
}

func toSummaryDTO(summary application.Summary) summaryDTO {
	dto := summaryDTO{
		Income:     summary.Income,
		Expense:    summary.Expense,
		Net:        summary.Net,
		Count:      summary.Count,
		Categories: make([]categoryTotalDTO, 0, len(summary.Categories)),
	}
	if summary.From != nil {
		dto.From = summary.From.Format(recurrence.DateLayout)
	}
	if summary.To != nil {
		dto.To = summary.To.Format(recurrence.DateLayout)
	}
	for _, c := range summary.Categories {
		dto.Categories = append(dto.Categories, categoryTotalDTO{
			Category: c.Category,
			Kind:     string(c.Kind),
			Total:    c.Total,
			Count:    c.Count,
		})
	}
	return dto
}
