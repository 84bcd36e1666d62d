package persistence

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecurringRule is the stored form of a recurrence rule. Weekdays holds ISO
// day numbers (Monday=1); nil means the rule has no weekday set.
type RecurringRule struct {
	ID                 string
	Kind               string
	Amount             decimal.Decimal
	Category           string
	Note               string
	Frequency          string
	CustomIntervalDays int
	Weekdays           []int
	DayOfMonth         int
	StartDate          time.Time
	EndDate            *time.Time
	LastGeneratedDate  *time.Time
	NextDueDate        time.Time
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Transaction is one ledger entry, either entered by hand or materialized from a rule.
type Transaction struct {
	ID           string
	Kind         string
	Amount       decimal.Decimal
	Category     string
	Note         string
	OccurredOn   time.Time
	SourceRuleID *string
	Origin       string
	CreatedAt    time.Time
}

// RuleAdvance is one rule's catch-up, applied as a single unit. The rule row is
// only updated while its stored next due date still equals ExpectedNextDueDate.
type RuleAdvance struct {
	RuleID              string
	ExpectedNextDueDate time.Time
	LastGeneratedDate   *time.Time
	NextDueDate         time.Time
	UpdatedAt           time.Time
	Transactions        []Transaction
}

// GenerationRun is the per-day marker written after a generation pass.
type GenerationRun struct {
	RunDate            time.Time
	StartedAt          time.Time
	CompletedAt        time.Time
	RulesEvaluated     int
	RulesAdvanced      int
	OccurrencesCreated int
	Failures           int
}

// RuleFilter narrows rule listings.
type RuleFilter struct {
	ActiveOnly bool
}

// TransactionFilter narrows transaction listings. Zero values leave a
// dimension unconstrained; From and To are inclusive.
type TransactionFilter struct {
	From         *time.Time
	To           *time.Time
	SourceRuleID string
	Origin       string
	Limit        int
}
