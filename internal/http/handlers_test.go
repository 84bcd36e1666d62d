package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/pocket-ledger/internal/application"
	"github.com/example/pocket-ledger/internal/persistence/memory"
	"github.com/example/pocket-ledger/internal/recurrence"
	"github.com/example/pocket-ledger/internal/testfixtures"
)

type testAPI struct {
	handler      http.Handler
	rules        *application.RuleService
	transactions *application.TransactionService
	generation   *application.GenerationService
}

func newTestAPI(t *testing.T, today time.Time) *testAPI {
	t.Helper()

	store := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory := testfixtures.NewServiceFactory(
		testfixtures.WithClock(testfixtures.NewClock(today.Add(9*time.Hour))),
		testfixtures.WithLogger(logger),
	)

	rules := factory.NewRuleService(store)
	transactions := factory.NewTransactionService(store)
	generation := factory.NewGenerationService(store, store, 0)
	generation.OnCompleted(func(application.GenerationReport) { transactions.InvalidateSummaries() })

	handler := NewRouter(RouterConfig{
		Rules:        NewRuleHandler(rules, logger),
		Transactions: NewTransactionHandler(transactions, logger),
		Generation:   NewGenerationHandler(generation, logger),
		Middleware:   []func(http.Handler) http.Handler{RequestLogger(logger)},
	})

	return &testAPI{handler: handler, rules: rules, transactions: transactions, generation: generation}
}

func (a *testAPI) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response: %v (body=%q)", err, rec.Body.String())
	}
	return out
}

func monthlyRent() map[string]any {
	return map[string]any{
		"kind":         "expense",
		"amount":       "1200.00",
		"category":     "rent",
		"frequency":    "monthly",
		"day_of_month": 1,
		"start_date":   "2026-01-01",
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC))
	rec := api.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode[map[string]string](t, rec)
	if body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestRuleHandler_Lifecycle(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC))

	rec := api.do(t, http.MethodPost, "/rules", monthlyRent())
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[ruleResponse](t, rec).Rule
	if created.NextDueDate != "2026-01-01" {
		t.Fatalf("expected next due 2026-01-01, got %s", created.NextDueDate)
	}
	if !strings.Contains(created.RRule, "FREQ=MONTHLY") {
		t.Fatalf("expected rrule export, got %q", created.RRule)
	}
	if created.Amount.String() != "1200" {
		t.Fatalf("expected amount 1200, got %s", created.Amount)
	}

	rec = api.do(t, http.MethodGet, "/rules/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = api.do(t, http.MethodGet, "/rules/"+created.ID+"/upcoming?count=3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	upcoming := decode[upcomingResponse](t, rec)
	want := []string{"2026-01-01", "2026-02-01", "2026-03-01"}
	if strings.Join(upcoming.Dates, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, upcoming.Dates)
	}

	rec = api.do(t, http.MethodPost, "/rules/"+created.ID+"/pause", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if decode[ruleResponse](t, rec).Rule.Active {
		t.Fatal("expected paused rule")
	}

	rec = api.do(t, http.MethodGet, "/rules?active=true", nil)
	if got := len(decode[ruleListResponse](t, rec).Rules); got != 0 {
		t.Fatalf("expected no active rules, got %d", got)
	}

	rec = api.do(t, http.MethodPost, "/rules/"+created.ID+"/resume", nil)
	if !decode[ruleResponse](t, rec).Rule.Active {
		t.Fatal("expected resumed rule")
	}

	update := monthlyRent()
	update["amount"] = "1250.00"
	rec = api.do(t, http.MethodPut, "/rules/"+created.ID, update)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[ruleResponse](t, rec).Rule.Amount.String(); got != "1250" {
		t.Fatalf("expected updated amount, got %s", got)
	}

	rec = api.do(t, http.MethodDelete, "/rules/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	rec = api.do(t, http.MethodGet, "/rules/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestRuleHandler_ValidationErrors(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC))

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/rules", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		api.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("invalid fields", func(t *testing.T) {
		body := monthlyRent()
		body["frequency"] = "weekly"
		body["weekdays"] = []int{}
		body["amount"] = "-5"
		rec := api.do(t, http.MethodPost, "/rules", body)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
		}
		resp := decode[errorResponse](t, rec)
		if resp.Errors["amount"] == "" {
			t.Fatalf("expected amount error, got %v", resp.Errors)
		}
		if resp.Errors["weekdays"] == "" {
			t.Fatalf("expected weekdays error, got %v", resp.Errors)
		}
	})

	t.Run("upcoming count out of range", func(t *testing.T) {
		created := decode[ruleResponse](t, api.do(t, http.MethodPost, "/rules", monthlyRent())).Rule
		rec := api.do(t, http.MethodGet, "/rules/"+created.ID+"/upcoming?count=500", nil)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
		rec = api.do(t, http.MethodGet, "/rules/"+created.ID+"/upcoming?count=abc", nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestGenerationHandler_RunCatchesUp(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC))
	created := decode[ruleResponse](t, api.do(t, http.MethodPost, "/rules", monthlyRent())).Rule

	rec := api.do(t, http.MethodGet, "/generation/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if decode[statusResponse](t, rec).LastRun != nil {
		t.Fatal("expected no previous run")
	}

	rec = api.do(t, http.MethodPost, "/generation/run", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	report := decode[reportDTO](t, rec)
	if len(report.Transactions) != 3 {
		t.Fatalf("expected 3 catch-up transactions, got %d", len(report.Transactions))
	}
	for _, txn := range report.Transactions {
		if txn.Origin != string(recurrence.OriginRecurring) || txn.SourceRuleID == nil || *txn.SourceRuleID != created.ID {
			t.Fatalf("unexpected generated transaction: %+v", txn)
		}
	}

	rec = api.do(t, http.MethodPost, "/generation/run", nil)
	if !decode[reportDTO](t, rec).Skipped {
		t.Fatal("expected second run on the same day to be skipped")
	}

	rec = api.do(t, http.MethodPost, "/generation/run?force=true", nil)
	forced := decode[reportDTO](t, rec)
	if forced.Skipped || len(forced.Transactions) != 0 {
		t.Fatalf("expected forced run to create nothing new, got %+v", forced)
	}

	rec = api.do(t, http.MethodPost, "/generation/run?force=maybe", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = api.do(t, http.MethodGet, "/generation/status", nil)
	status := decode[statusResponse](t, rec)
	if status.LastRun == nil || status.LastRun.RunDate != "2026-03-15" {
		t.Fatalf("expected last run on 2026-03-15, got %+v", status.LastRun)
	}

	rec = api.do(t, http.MethodGet, "/rules/"+created.ID, nil)
	rule := decode[ruleResponse](t, rec).Rule
	if rule.LastGeneratedDate != "2026-03-01" || rule.NextDueDate != "2026-04-01" {
		t.Fatalf("unexpected rule dates: last=%s next=%s", rule.LastGeneratedDate, rule.NextDueDate)
	}
}

func TestTransactionHandler_RecordListSummarize(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC))
	api.do(t, http.MethodPost, "/rules", monthlyRent())

	rec := api.do(t, http.MethodGet, "/transactions/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decode[summaryDTO](t, rec).Count; got != 0 {
		t.Fatalf("expected empty summary, got count %d", got)
	}

	rec = api.do(t, http.MethodPost, "/transactions", map[string]any{
		"kind":        "income",
		"amount":      "3000.10",
		"category":    "salary",
		"occurred_on": "2026-03-10",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	manual := decode[transactionResponse](t, rec).Transaction
	if manual.Origin != string(recurrence.OriginManual) {
		t.Fatalf("expected manual origin, got %s", manual.Origin)
	}

	api.do(t, http.MethodPost, "/generation/run", nil)

	rec = api.do(t, http.MethodGet, "/transactions?origin=recurring&from=2026-02-01", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := len(decode[transactionListResponse](t, rec).Transactions); got != 2 {
		t.Fatalf("expected 2 recurring transactions since February, got %d", got)
	}

	rec = api.do(t, http.MethodGet, "/transactions/summary", nil)
	summary := decode[summaryDTO](t, rec)
	if summary.Count != 4 {
		t.Fatalf("expected summary to include generated transactions, got count %d", summary.Count)
	}
	if summary.Expense.String() != "3600" || summary.Income.String() != "3000.1" || summary.Net.String() != "-599.9" {
		t.Fatalf("unexpected totals: income=%s expense=%s net=%s", summary.Income, summary.Expense, summary.Net)
	}

	rec = api.do(t, http.MethodGet, "/transactions?limit=abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = api.do(t, http.MethodGet, "/transactions?from=2026-03-10&to=2026-03-01", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}

	rec = api.do(t, http.MethodDelete, "/transactions/"+manual.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = api.do(t, http.MethodDelete, "/transactions/"+manual.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

type busyGeneration struct{}

func (busyGeneration) Run(context.Context, application.RunOptions) (application.GenerationReport, error) {
	return application.GenerationReport{}, application.ErrGenerationInProgress
}

func (busyGeneration) LastRun(context.Context) (application.GenerationRun, error) {
	return application.GenerationRun{}, application.ErrNotFound
}

func (busyGeneration) InProgress() bool { return true }

func TestGenerationHandler_InProgressConflict(t *testing.T) {
	t.Parallel()

	router := NewRouter(RouterConfig{Generation: NewGenerationHandler(busyGeneration{}, nil)})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/generation/run", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if resp := decode[errorResponse](t, rec); resp.ErrorCode != "GENERATION_IN_PROGRESS" {
		t.Fatalf("unexpected error code %q", resp.ErrorCode)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/generation/status", nil))
	if !decode[statusResponse](t, rec).InProgress {
		t.Fatal("expected in_progress to be reported")
	}
}
