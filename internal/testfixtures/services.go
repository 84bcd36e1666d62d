package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/pocket-ledger/internal/application"
	"github.com/example/pocket-ledger/internal/persistence"
	"github.com/example/pocket-ledger/internal/recurrence"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Location    *time.Location
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Location:    time.UTC,
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	if factory.Logger == nil {
		factory.Logger = slog.New(slog.DiscardHandler)
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithLocation sets the calendar zone used by generation engines.
func WithLocation(loc *time.Location) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Location = loc
	}
}

func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// NewRuleService builds a rule service over rules.
func (f *ServiceFactory) NewRuleService(rules persistence.RuleRepository) *application.RuleService {
	return application.NewRuleServiceWithLogger(rules, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
}

// NewTransactionService builds a transaction service over transactions.
func (f *ServiceFactory) NewTransactionService(transactions persistence.TransactionRepository) *application.TransactionService {
	return application.NewTransactionServiceWithLogger(transactions, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
}

// NewGenerationService builds a generation service whose engine uses the
// factory location and the given iteration cap. A non-positive cap selects the
// engine default.
func (f *ServiceFactory) NewGenerationService(rules persistence.RuleRepository, store persistence.GenerationRepository, iterationCap int) *application.GenerationService {
	engine := recurrence.NewEngine(f.Location, iterationCap)
	return application.NewGenerationServiceWithLogger(rules, store, engine, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
}

// NewBackupService builds a backup service with a cheap scrypt work factor.
func (f *ServiceFactory) NewBackupService(rules persistence.RuleRepository, transactions persistence.TransactionRepository) *application.BackupService {
	return application.NewBackupServiceWithLogger(rules, transactions, f.Clock.NowFunc(), 1, f.Logger)
}
