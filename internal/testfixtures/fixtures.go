package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/pocket-ledger/internal/application"
	"github.com/example/pocket-ledger/internal/persistence"
	"github.com/example/pocket-ledger/internal/recurrence"
)

var (
	ruleCounter        uint64
	transactionCounter uint64
)

var referenceTime = time.Date(2026, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// Date returns midnight UTC of the given calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ----------------------------- Rule fixtures -----------------------------

// RuleFixture is a deterministic recurring rule that can be materialised for
// application, persistence or engine tests.
type RuleFixture struct {
	ID                 string
	Kind               recurrence.Kind
	Amount             decimal.Decimal
	Category           string
	Note               string
	Frequency          recurrence.Frequency
	CustomIntervalDays int
	Weekdays           []recurrence.Weekday
	DayOfMonth         int
	StartDate          time.Time
	EndDate            *time.Time
	LastGeneratedDate  *time.Time
	NextDueDate        time.Time
	Active             bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// RuleOption configures the generated rule fixture.
type RuleOption func(*RuleFixture)

// NewRuleFixture returns a monthly expense rule starting on 2026-01-01 with
// optional overrides. NextDueDate follows StartDate unless set explicitly.
func NewRuleFixture(opts ...RuleOption) RuleFixture {
	idx := atomic.AddUint64(&ruleCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := RuleFixture{
		ID:                 fmt.Sprintf("rule-%03d", idx),
		Kind:               recurrence.KindExpense,
		Amount:             decimal.RequireFromString("25.00"),
		Category:           fmt.Sprintf("category-%03d", idx),
		Frequency:          recurrence.FrequencyMonthly,
		CustomIntervalDays: 1,
		StartDate:          Date(2026, time.January, 1),
		Active:             true,
		CreatedAt:          created,
		UpdatedAt:          created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	if fixture.NextDueDate.IsZero() {
		fixture.NextDueDate = fixture.StartDate
	}
	return fixture
}

// WithRuleID overrides the generated rule ID.
func WithRuleID(id string) RuleOption {
	return func(f *RuleFixture) {
		f.ID = id
	}
}

// WithRuleIncome marks the rule as income.
func WithRuleIncome() RuleOption {
	return func(f *RuleFixture) {
		f.Kind = recurrence.KindIncome
	}
}

// WithRuleAmount overrides the amount using its decimal string form.
func WithRuleAmount(amount string) RuleOption {
	return func(f *RuleFixture) {
		f.Amount = decimal.RequireFromString(amount)
	}
}

func WithRuleCategory(category string) RuleOption {
	return func(f *RuleFixture) {
		f.Category = category
	}
}

// WithRuleDaily switches the rule to a daily schedule.
func WithRuleDaily() RuleOption {
	return func(f *RuleFixture) {
		f.Frequency = recurrence.FrequencyDaily
		f.DayOfMonth = 0
	}
}

// WithRuleWeekly switches the rule to a weekly schedule on the given ISO days.
// Passing no days keeps the weekday of the start date.
func WithRuleWeekly(days ...recurrence.Weekday) RuleOption {
	return func(f *RuleFixture) {
		f.Frequency = recurrence.FrequencyWeekly
		f.DayOfMonth = 0
		if len(days) > 0 {
			f.Weekdays = append([]recurrence.Weekday(nil), days...)
		}
	}
}

// WithRuleMonthlyDay switches the rule to a monthly schedule on day.
func WithRuleMonthlyDay(day int) RuleOption {
	return func(f *RuleFixture) {
		f.Frequency = recurrence.FrequencyMonthly
		f.DayOfMonth = day
	}
}

func WithRuleYearly() RuleOption {
	return func(f *RuleFixture) {
		f.Frequency = recurrence.FrequencyYearly
		f.DayOfMonth = 0
	}
}

// WithRuleEvery switches the rule to a custom interval of days.
func WithRuleEvery(days int) RuleOption {
	return func(f *RuleFixture) {
		f.Frequency = recurrence.FrequencyCustom
		f.CustomIntervalDays = days
		f.DayOfMonth = 0
	}
}

// WithRuleStart sets the start date and, unless already set, the next due date.
func WithRuleStart(start time.Time) RuleOption {
	return func(f *RuleFixture) {
		f.StartDate = start
	}
}

func WithRuleEnd(end time.Time) RuleOption {
	return func(f *RuleFixture) {
		f.EndDate = &end
	}
}

// WithRuleProgress records that the rule was last generated on last and is
// next due on next.
func WithRuleProgress(last, next time.Time) RuleOption {
	return func(f *RuleFixture) {
		f.LastGeneratedDate = &last
		f.NextDueDate = next
	}
}

func WithRulePaused() RuleOption {
	return func(f *RuleFixture) {
		f.Active = false
	}
}

// Recurrence converts the fixture into the engine's rule model.
func (f RuleFixture) Recurrence() recurrence.Rule {
	return recurrence.Rule{
		ID:                 f.ID,
		Kind:               f.Kind,
		Amount:             f.Amount,
		Category:           f.Category,
		Note:               f.Note,
		Frequency:          f.Frequency,
		CustomIntervalDays: f.CustomIntervalDays,
		Weekdays:           copyWeekdays(f.Weekdays),
		DayOfMonth:         f.DayOfMonth,
		StartDate:          f.StartDate,
		EndDate:            copyTimePtr(f.EndDate),
		LastGeneratedDate:  copyTimePtr(f.LastGeneratedDate),
		NextDueDate:        f.NextDueDate,
		Active:             f.Active,
	}
}

// Persistence converts the fixture into the storage model.
func (f RuleFixture) Persistence() persistence.RecurringRule {
	var weekdays []int
	if f.Weekdays != nil {
		weekdays = make([]int, 0, len(f.Weekdays))
		for _, day := range f.Weekdays {
			weekdays = append(weekdays, int(day))
		}
	}
	return persistence.RecurringRule{
		ID:                 f.ID,
		Kind:               string(f.Kind),
		Amount:             f.Amount,
		Category:           f.Category,
		Note:               f.Note,
		Frequency:          f.Frequency.String(),
		CustomIntervalDays: f.CustomIntervalDays,
		Weekdays:           weekdays,
		DayOfMonth:         f.DayOfMonth,
		StartDate:          f.StartDate,
		EndDate:            copyTimePtr(f.EndDate),
		LastGeneratedDate:  copyTimePtr(f.LastGeneratedDate),
		NextDueDate:        f.NextDueDate,
		IsActive:           f.Active,
		CreatedAt:          f.CreatedAt,
		UpdatedAt:          f.UpdatedAt,
	}
}

// Input converts the fixture into the payload accepted by RuleService.
func (f RuleFixture) Input() application.RuleInput {
	input := application.RuleInput{
		Kind:       string(f.Kind),
		Amount:     f.Amount,
		Category:   f.Category,
		Note:       f.Note,
		Frequency:  f.Frequency.String(),
		DayOfMonth: f.DayOfMonth,
		StartDate:  f.StartDate.Format(recurrence.DateLayout),
	}
	if f.Frequency == recurrence.FrequencyCustom {
		input.CustomIntervalDays = f.CustomIntervalDays
	}
	if f.Weekdays != nil {
		input.Weekdays = make([]int, 0, len(f.Weekdays))
		for _, day := range f.Weekdays {
			input.Weekdays = append(input.Weekdays, int(day))
		}
	}
	if f.EndDate != nil {
		input.EndDate = f.EndDate.Format(recurrence.DateLayout)
	}
	return input
}

// -------------------------- Transaction fixtures --------------------------

// TransactionFixture is a deterministic ledger entry.
type TransactionFixture struct {
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

// TransactionOption configures the generated transaction fixture.
type TransactionOption func(*TransactionFixture)

// NewTransactionFixture returns a manual expense dated 2026-01-15.
func NewTransactionFixture(opts ...TransactionOption) TransactionFixture {
	idx := atomic.AddUint64(&transactionCounter, 1)
	fixture := TransactionFixture{
		ID:         fmt.Sprintf("txn-%03d", idx),
		Kind:       recurrence.KindExpense,
		Amount:     decimal.RequireFromString("10.00"),
		Category:   "groceries",
		OccurredOn: Date(2026, time.January, 15),
		Origin:     recurrence.OriginManual,
		CreatedAt:  referenceTime.Add(time.Duration(idx) * time.Second),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

func WithTransactionID(id string) TransactionOption {
	return func(f *TransactionFixture) {
		f.ID = id
	}
}

func WithTransactionIncome() TransactionOption {
	return func(f *TransactionFixture) {
		f.Kind = recurrence.KindIncome
	}
}

func WithTransactionAmount(amount string) TransactionOption {
	return func(f *TransactionFixture) {
		f.Amount = decimal.RequireFromString(amount)
	}
}

func WithTransactionCategory(category string) TransactionOption {
	return func(f *TransactionFixture) {
		f.Category = category
	}
}

func WithTransactionDate(on time.Time) TransactionOption {
	return func(f *TransactionFixture) {
		f.OccurredOn = on
	}
}

// WithTransactionFromRule marks the entry as generated by ruleID.
func WithTransactionFromRule(ruleID string) TransactionOption {
	return func(f *TransactionFixture) {
		f.SourceRuleID = &ruleID
		f.Origin = recurrence.OriginRecurring
	}
}

// Persistence converts the fixture into the storage model.
func (f TransactionFixture) Persistence() persistence.Transaction {
	return persistence.Transaction{
		ID:           f.ID,
		Kind:         string(f.Kind),
		Amount:       f.Amount,
		Category:     f.Category,
		Note:         f.Note,
		OccurredOn:   f.OccurredOn,
		SourceRuleID: copyStringPtr(f.SourceRuleID),
		Origin:       string(f.Origin),
		CreatedAt:    f.CreatedAt,
	}
}

// Input converts the fixture into the payload accepted by TransactionService.
func (f TransactionFixture) Input() application.TransactionInput {
	return application.TransactionInput{
		Kind:       string(f.Kind),
		Amount:     f.Amount,
		Category:   f.Category,
		Note:       f.Note,
		OccurredOn: f.OccurredOn.Format(recurrence.DateLayout),
	}
}

func copyStringPtr(src *string) *string {
	if src == nil {
		return nil
	}
	v := *src
	return &v
}

func copyTimePtr(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	v := *src
	return &v
}

func copyWeekdays(src []recurrence.Weekday) []recurrence.Weekday {
	if src == nil {
		return nil
	}
	return append([]recurrence.Weekday{}, src...)
}
