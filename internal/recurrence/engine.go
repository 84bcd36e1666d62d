package recurrence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the textual form of calendar dates.
const DateLayout = "2006-01-02"

// DefaultIterationCap bounds a single rule's catch-up loop.
const DefaultIterationCap = 5000

var (
	// ErrNonAdvancing indicates a computed due date that does not move past its predecessor.
	ErrNonAdvancing = errors.New("recurrence: next due date does not advance")
	// ErrIterationCap indicates a catch-up loop that exceeded the engine's iteration cap.
	ErrIterationCap = errors.New("recurrence: catch-up iteration cap exceeded")
	// ErrCommitFailed wraps a committer failure for one rule.
	ErrCommitFailed = errors.New("recurrence: commit failed")
)

// Origin marks where a ledger entry came from.
type Origin string

const (
	OriginManual    Origin = "manual"
	OriginRecurring Origin = "recurring"
)

// Occurrence is one dated entry materialized from a rule.
type Occurrence struct {
	RuleID   string
	Kind     Kind
	Amount   decimal.Decimal
	Category string
	Note     string
	Date     time.Time
	Origin   Origin
}

// Batch pairs a rule's advanced state with the occurrences that justify it.
// Previous is the state the batch was computed from.
type Batch struct {
	Previous    Rule
	Rule        Rule
	Occurrences []Occurrence
}

// Failure reports a rule that could not be processed in a pass.
type Failure struct {
	RuleID string
	Reason error
}

func (f Failure) Error() string {
	return fmt.Sprintf("rule %s: %v", f.RuleID, f.Reason)
}

func (f Failure) Unwrap() error {
	return f.Reason
}

// Plan is the pure result of evaluating a rule set for one day.
type Plan struct {
	Today     time.Time
	Evaluated int
	Batches   []Batch
	Failures  []Failure
}

// Committer persists one batch atomically: the rule's new state together with
// its occurrences, or nothing.
type Committer interface {
	Commit(ctx context.Context, batch Batch) error
}

// CommitFunc adapts a function to Committer.
type CommitFunc func(ctx context.Context, batch Batch) error

// Commit calls f.
func (f CommitFunc) Commit(ctx context.Context, batch Batch) error {
	return f(ctx, batch)
}

// Report summarizes a committed generation pass.
type Report struct {
	Today       time.Time
	Evaluated   int
	Advanced    []Rule
	Occurrences []Occurrence
	Failures    []Failure
}

// Engine computes catch-up occurrences for recurrence rules.
type Engine struct {
	location     *time.Location
	iterationCap int
}

// NewEngine constructs an Engine whose calendar day is taken in loc. If loc is
// nil, UTC is used. A non-positive iterationCap selects DefaultIterationCap.
func NewEngine(loc *time.Location, iterationCap int) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	if iterationCap <= 0 {
		iterationCap = DefaultIterationCap
	}
	return &Engine{location: loc, iterationCap: iterationCap}
}

// Location returns the engine's calendar location.
func (e *Engine) Location() *time.Location {
	if e == nil || e.location == nil {
		return time.UTC
	}
	return e.location
}

// Today converts a wall-clock instant into the engine's calendar date.
func (e *Engine) Today(now time.Time) time.Time {
	return DateOf(now.In(e.Location()))
}

// Advance computes the occurrences due for rule up to and including today and
// returns the rule's advanced state. A rule that is paused, past its end date,
// already generated today, or simply not yet due yields a batch without
// occurrences. The input rule is never modified.
func (e *Engine) Advance(rule Rule, today time.Time) (Batch, error) {
	today = DateOf(today)
	batch := Batch{Previous: rule.Clone(), Rule: rule.Clone()}

	if !rule.Active || rule.EndedBefore(today) {
		return batch, nil
	}
	if rule.LastGeneratedDate != nil && rule.LastGeneratedDate.Equal(today) {
		return batch, nil
	}
	if err := rule.Validate(); err != nil {
		return Batch{}, err
	}

	limit := DefaultIterationCap
	if e != nil && e.iterationCap > 0 {
		limit = e.iterationCap
	}

	current := batch.Rule
	var occurrences []Occurrence
	for iterations := 0; !current.NextDueDate.After(today); iterations++ {
		if current.EndDate != nil && current.NextDueDate.After(*current.EndDate) {
			break
		}
		if iterations >= limit {
			return Batch{}, fmt.Errorf("%w: %d iterations reached at %s", ErrIterationCap, limit, current.NextDueDate.Format(DateLayout))
		}

		due := current.NextDueDate
		occurrences = append(occurrences, Occurrence{
			RuleID:   current.ID,
			Kind:     current.Kind,
			Amount:   current.Amount,
			Category: current.Category,
			Note:     current.Note,
			Date:     due,
			Origin:   OriginRecurring,
		})

		next, err := NextDueDate(current, due)
		if err != nil {
			return Batch{}, err
		}
		if !next.After(due) {
			return Batch{}, fmt.Errorf("%w: %s after %s", ErrNonAdvancing, next.Format(DateLayout), due.Format(DateLayout))
		}

		generated := due
		current.LastGeneratedDate = &generated
		current.NextDueDate = next
	}

	batch.Rule = current
	batch.Occurrences = occurrences
	return batch, nil
}

// Plan evaluates every rule for today without performing any I/O. Only rules
// that produced occurrences appear in Batches; malformed rules are reported in
// Failures and do not affect the others.
func (e *Engine) Plan(rules []Rule, today time.Time) Plan {
	plan := Plan{Today: DateOf(today), Evaluated: len(rules)}
	for _, rule := range rules {
		batch, err := e.safeAdvance(rule, plan.Today)
		if err != nil {
			plan.Failures = append(plan.Failures, Failure{RuleID: rule.ID, Reason: err})
			continue
		}
		if len(batch.Occurrences) > 0 {
			plan.Batches = append(plan.Batches, batch)
		}
	}
	return plan
}

func (e *Engine) safeAdvance(rule Rule, today time.Time) (batch Batch, err error) {
	defer func() {
		if p := recover(); p != nil {
			batch = Batch{}
			err = fmt.Errorf("%w: %v", ErrInvalidRule, p)
		}
	}()
	return e.Advance(rule, today)
}

// GenerateDue plans the pass and hands each rule's batch to committer. A batch
// whose commit fails is reported as a failure and its occurrences are dropped
// from the report; the rule keeps its stored state and is retried in full on
// the next pass. When ctx ends, the remaining batches are reported as failures.
func (e *Engine) GenerateDue(ctx context.Context, rules []Rule, today time.Time, committer Committer) Report {
	plan := e.Plan(rules, today)
	report := Report{
		Today:     plan.Today,
		Evaluated: plan.Evaluated,
		Failures:  plan.Failures,
	}

	for _, batch := range plan.Batches {
		if err := ctx.Err(); err != nil {
			report.Failures = append(report.Failures, Failure{RuleID: batch.Rule.ID, Reason: fmt.Errorf("%w: %w", ErrCommitFailed, err)})
			continue
		}
		if err := committer.Commit(ctx, batch); err != nil {
			report.Failures = append(report.Failures, Failure{RuleID: batch.Rule.ID, Reason: fmt.Errorf("%w: %w", ErrCommitFailed, err)})
			continue
		}
		report.Advanced = append(report.Advanced, batch.Rule)
		report.Occurrences = append(report.Occurrences, batch.Occurrences...)
	}
	return report
}
