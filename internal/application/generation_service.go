package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/pocket-ledger/internal/persistence"
	"github.com/example/pocket-ledger/internal/recurrence"
)

// GenerationService materializes due occurrences of every recurring rule. Only
// one pass runs at a time; the HTTP trigger and the periodic runner share it.
type GenerationService struct {
	rules       persistence.RuleRepository
	store       persistence.GenerationRepository
	engine      *recurrence.Engine
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger

	running atomic.Bool

	mu        sync.Mutex
	listeners []func(GenerationReport)
}

// NewGenerationService constructs a generation service with the provided dependencies.
func NewGenerationService(rules persistence.RuleRepository, store persistence.GenerationRepository, engine *recurrence.Engine, idGenerator func() string, now func() time.Time) *GenerationService {
	return NewGenerationServiceWithLogger(rules, store, engine, idGenerator, now, nil)
}

// NewGenerationServiceWithLogger constructs a generation service with a specified logger.
func NewGenerationServiceWithLogger(rules persistence.RuleRepository, store persistence.GenerationRepository, engine *recurrence.Engine, idGenerator func() string, now func() time.Time, logger *slog.Logger) *GenerationService {
	if engine == nil {
		engine = recurrence.NewEngine(time.UTC, 0)
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &GenerationService{
		rules:       rules,
		store:       store,
		engine:      engine,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *GenerationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "GenerationService", operation, attrs...)
}

// OnCompleted registers fn to be called after every pass that committed at
// least one rule.
func (s *GenerationService) OnCompleted(fn func(GenerationReport)) {
	if s == nil || fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// InProgress reports whether a pass is currently running.
func (s *GenerationService) InProgress() bool {
	return s != nil && s.running.Load()
}

// Run performs one generation pass for today's date in the engine's time zone.
// A pass that already completed today without failures is skipped unless
// opts.Force is set or a rule was created or edited after it completed.
// Per-rule failures are reported, not returned: err is only set when the pass
// could not run at all.
func (s *GenerationService) Run(ctx context.Context, opts RunOptions) (report GenerationReport, err error) {
	if s == nil {
		err = fmt.Errorf("GenerationService is nil")
		return
	}
	if s.rules == nil || s.store == nil {
		err = fmt.Errorf("generation repositories not configured")
		return
	}
	if !s.running.CompareAndSwap(false, true) {
		err = ErrGenerationInProgress
		return
	}
	defer s.running.Store(false)

	started := s.now()
	report.StartedAt = started.UTC()
	report.Today = s.engine.Today(started)

	logger := s.loggerWith(ctx, "Run",
		"today", report.Today.Format(recurrence.DateLayout),
		"force", opts.Force,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "generation pass failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		if report.Skipped {
			logger.DebugContext(ctx, "generation pass skipped")
			return
		}
		logger.InfoContext(ctx, "generation pass completed",
			"evaluated", report.Evaluated,
			"advanced", len(report.AdvancedRules),
			"occurrences", len(report.Transactions),
			"failures", len(report.Failures),
		)
	}()

	var marker *persistence.GenerationRun
	if !opts.Force {
		marker, err = s.cleanRunFor(ctx, report.Today)
		if err != nil {
			return
		}
	}

	var records []persistence.RecurringRule
	records, err = s.rules.ListRules(ctx, persistence.RuleFilter{})
	if err != nil {
		err = fmt.Errorf("load rules: %w", mapRuleRepoError(err))
		return
	}

	if marker != nil && !changedSince(records, marker.CompletedAt) {
		report.Skipped = true
		report.CompletedAt = report.StartedAt
		return
	}

	rules := make([]recurrence.Rule, 0, len(records))
	var failures []recurrence.Failure
	for _, record := range records {
		rule, decodeErr := ruleFromRecord(record)
		if decodeErr != nil {
			failures = append(failures, recurrence.Failure{RuleID: record.ID, Reason: decodeErr})
			continue
		}
		rules = append(rules, rule.Rule)
	}

	committed := make(map[string][]Transaction)
	result := s.engine.GenerateDue(ctx, rules, report.Today, recurrence.CommitFunc(func(ctx context.Context, batch recurrence.Batch) error {
		txns, commitErr := s.commit(ctx, batch)
		if commitErr != nil {
			return commitErr
		}
		committed[batch.Rule.ID] = txns
		return nil
	}))
	failures = append(failures, result.Failures...)

	report.Evaluated = len(records)
	for _, rule := range result.Advanced {
		report.AdvancedRules = append(report.AdvancedRules, rule.ID)
		report.Transactions = append(report.Transactions, committed[rule.ID]...)
	}
	for _, failure := range failures {
		logger.WarnContext(ctx, "recurring rule skipped", "rule_id", failure.RuleID, "reason", failure.Reason.Error())
		report.Failures = append(report.Failures, GenerationFailure{RuleID: failure.RuleID, Reason: failure.Reason.Error()})
	}
	if len(report.Failures) > 0 {
		report.UserMessage = GenerationFailureMessage
	}
	report.CompletedAt = s.now().UTC()

	s.recordRun(ctx, logger, report)
	if len(report.AdvancedRules) > 0 {
		s.notify(report)
	}
	return
}

// LastRun returns the most recent generation marker.
func (s *GenerationService) LastRun(ctx context.Context) (GenerationRun, error) {
	if s == nil {
		return GenerationRun{}, fmt.Errorf("GenerationService is nil")
	}
	if s.store == nil {
		return GenerationRun{}, fmt.Errorf("generation repository not configured")
	}

	record, err := s.store.LatestRun(ctx)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return GenerationRun{}, ErrNotFound
		}
		s.loggerWith(ctx, "LastRun").ErrorContext(ctx, "failed to load generation marker", "error", err)
		return GenerationRun{}, err
	}
	return runFromRecord(record), nil
}

// cleanRunFor returns today's marker when that pass finished without failures.
func (s *GenerationService) cleanRunFor(ctx context.Context, today time.Time) (*persistence.GenerationRun, error) {
	marker, err := s.store.RunFor(ctx, today)
	switch {
	case err == nil:
		if marker.Failures > 0 {
			return nil, nil
		}
		return &marker, nil
	case errors.Is(err, persistence.ErrNotFound):
		return nil, nil
	}
	return nil, fmt.Errorf("read generation marker: %w", err)
}

func changedSince(records []persistence.RecurringRule, completed time.Time) bool {
	for _, record := range records {
		if record.UpdatedAt.After(completed) {
			return true
		}
	}
	return false
}

// commit stores one rule's catch-up. The rule row only moves if nobody else
// advanced it since the snapshot was taken.
func (s *GenerationService) commit(ctx context.Context, batch recurrence.Batch) ([]Transaction, error) {
	now := s.now().UTC()
	ruleID := batch.Rule.ID

	txns := make([]Transaction, 0, len(batch.Occurrences))
	records := make([]persistence.Transaction, 0, len(batch.Occurrences))
	for _, occurrence := range batch.Occurrences {
		source := ruleID
		txn := Transaction{
			ID:           s.idGenerator(),
			Kind:         occurrence.Kind,
			Amount:       occurrence.Amount,
			Category:     occurrence.Category,
			Note:         occurrence.Note,
			OccurredOn:   occurrence.Date,
			SourceRuleID: &source,
			Origin:       occurrence.Origin,
			CreatedAt:    now,
		}
		txns = append(txns, txn)
		records = append(records, transactionToRecord(txn))
	}

	err := s.store.CommitRuleAdvance(ctx, persistence.RuleAdvance{
		RuleID:              ruleID,
		ExpectedNextDueDate: batch.Previous.NextDueDate,
		LastGeneratedDate:   batch.Rule.LastGeneratedDate,
		NextDueDate:         batch.Rule.NextDueDate,
		UpdatedAt:           now,
		Transactions:        records,
	})
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (s *GenerationService) recordRun(ctx context.Context, logger *slog.Logger, report GenerationReport) {
	err := s.store.RecordRun(ctx, persistence.GenerationRun{
		RunDate:            report.Today,
		StartedAt:          report.StartedAt,
		CompletedAt:        report.CompletedAt,
		RulesEvaluated:     report.Evaluated,
		RulesAdvanced:      len(report.AdvancedRules),
		OccurrencesCreated: len(report.Transactions),
		Failures:           len(report.Failures),
	})
	if err != nil {
		logger.WarnContext(ctx, "failed to record generation marker", "error", err)
	}
}

func (s *GenerationService) notify(report GenerationReport) {
	s.mu.Lock()
	listeners := append([]func(GenerationReport){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(report)
	}
}
