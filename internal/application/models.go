package application

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/pocket-ledger/internal/recurrence"
)

// RecurringRule is a recurrence rule together with its bookkeeping timestamps.
type RecurringRule struct {
	recurrence.Rule
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RuleInput captures caller provided rule fields. Dates use the
// recurrence.DateLayout format; an empty EndDate means open ended. Weekdays
// holds ISO day numbers and nil means "use the start date's weekday".
type RuleInput struct {
	Kind               string
	Amount             decimal.Decimal
	Category           string
	Note               string
	Frequency          string
	CustomIntervalDays int
	Weekdays           []int
	DayOfMonth         int
	StartDate          string
	EndDate            string
}

// RuleListOptions narrows rule listings.
type RuleListOptions struct {
	ActiveOnly bool
}

// Transaction is one ledger entry.
type Transaction struct {
	ID           string
	Kind         recurrence.Kind
	Amount       decimal.Decimal
	Category     string
	Note         string
	OccurredOn   time.Time
	SourceRuleID *string
	Origin       recurrence.Origin
	CreatedAt    time.Time
}

// TransactionInput captures a manually entered ledger entry.
type TransactionInput struct {
	Kind       string
	Amount     decimal.Decimal
	Category   string
	Note       string
	OccurredOn string
}

// TransactionQuery filters transaction listings. Empty fields are unconstrained.
type TransactionQuery struct {
	From   string
	To     string
	RuleID string
	Origin string
	Limit  int
}

// CategoryTotal aggregates one category of one kind.
type CategoryTotal struct {
	Category string
	Kind     recurrence.Kind
	Total    decimal.Decimal
	Count    int
}

// Summary totals the ledger over an inclusive date range.
type Summary struct {
	From       *time.Time
	To         *time.Time
	Income     decimal.Decimal
	Expense    decimal.Decimal
	Net        decimal.Decimal
	Count      int
	Categories []CategoryTotal
}

// RunOptions tunes a generation pass.
type RunOptions struct {
	// Force runs the pass even when today's marker says it already completed.
	Force bool
}

// GenerationFailure is a rule that could not be processed in a pass.
type GenerationFailure struct {
	RuleID string
	Reason string
}

// GenerationReport describes the outcome of one generation pass.
type GenerationReport struct {
	Today         time.Time
	Skipped       bool
	StartedAt     time.Time
	CompletedAt   time.Time
	Evaluated     int
	AdvancedRules []string
	Transactions  []Transaction
	Failures      []GenerationFailure
	// UserMessage is set when at least one rule failed.
	UserMessage string
}

// GenerationRun is the stored marker of a completed pass.
type GenerationRun struct {
	RunDate            time.Time
	StartedAt          time.Time
	CompletedAt        time.Time
	RulesEvaluated     int
	RulesAdvanced      int
	OccurrencesCreated int
	Failures           int
}

// GenerationFailureMessage is shown to users when a pass skipped any rule.
const GenerationFailureMessage = "Error setting up recurring items"
