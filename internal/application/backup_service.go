package application

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"filippo.io/age"
	"github.com/shopspring/decimal"

	"github.com/example/pocket-ledger/internal/persistence"
)

const (
	// BackupFormatVersion is written into every snapshot.
	BackupFormatVersion = 1
	// DefaultBackupWorkFactor is the scrypt work factor used when none is configured.
	DefaultBackupWorkFactor = 18

	ageHeader = "age-encryption.org/v1"
)

// Snapshot is the decrypted content of a backup file.
type Snapshot struct {
	Version      int                 `json:"version"`
	CreatedAt    time.Time           `json:"created_at"`
	Rules        []BackupRule        `json:"rules"`
	Transactions []BackupTransaction `json:"transactions"`
}

// BackupRule is the archived form of a recurring rule.
type BackupRule struct {
	ID                 string          `json:"id"`
	Kind               string          `json:"kind"`
	Amount             decimal.Decimal `json:"amount"`
	Category           string          `json:"category"`
	Note               string          `json:"note,omitempty"`
	Frequency          string          `json:"frequency"`
	CustomIntervalDays int             `json:"custom_interval_days"`
	Weekdays           []int           `json:"weekdays,omitempty"`
	DayOfMonth         int             `json:"day_of_month,omitempty"`
	StartDate          string          `json:"start_date"`
	EndDate            string          `json:"end_date,omitempty"`
	LastGeneratedDate  string          `json:"last_generated_date,omitempty"`
	NextDueDate        string          `json:"next_due_date"`
	Active             bool            `json:"active"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// BackupTransaction is the archived form of a ledger entry.
type BackupTransaction struct {
	ID           string          `json:"id"`
	Kind         string          `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	Category     string          `json:"category"`
	Note         string          `json:"note,omitempty"`
	OccurredOn   string          `json:"occurred_on"`
	SourceRuleID string          `json:"source_rule_id,omitempty"`
	Origin       string          `json:"origin"`
	CreatedAt    time.Time       `json:"created_at"`
}

// RestoreResult counts the records a restore inserted or found already present.
type RestoreResult struct {
	RulesRestored        int
	RulesSkipped         int
	TransactionsRestored int
	TransactionsSkipped  int
}

// BackupService writes and reads passphrase encrypted ledger snapshots.
type BackupService struct {
	rules        persistence.RuleRepository
	transactions persistence.TransactionRepository
	now          func() time.Time
	workFactor   int
	logger       *slog.Logger
}

// NewBackupService constructs a backup service with the provided dependencies.
func NewBackupService(rules persistence.RuleRepository, transactions persistence.TransactionRepository, now func() time.Time, workFactor int) *BackupService {
	return NewBackupServiceWithLogger(rules, transactions, now, workFactor, nil)
}

// NewBackupServiceWithLogger constructs a backup service with a specified logger.
func NewBackupServiceWithLogger(rules persistence.RuleRepository, transactions persistence.TransactionRepository, now func() time.Time, workFactor int, logger *slog.Logger) *BackupService {
	if now == nil {
		now = time.Now
	}
	if workFactor <= 0 {
		workFactor = DefaultBackupWorkFactor
	}
	return &BackupService{
		rules:        rules,
		transactions: transactions,
		now:          now,
		workFactor:   workFactor,
		logger:       defaultLogger(logger),
	}
}

func (s *BackupService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BackupService", operation, attrs...)
}

// Export writes every rule and transaction to w, encrypted to passphrase.
func (s *BackupService) Export(ctx context.Context, w io.Writer, passphrase string) (snapshot Snapshot, err error) {
	if s == nil {
		err = fmt.Errorf("BackupService is nil")
		return
	}
	if s.rules == nil || s.transactions == nil {
		err = fmt.Errorf("backup repositories not configured")
		return
	}

	logger := s.loggerWith(ctx, "Export", "work_factor", s.workFactor)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to export backup", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "backup exported", "rules", len(snapshot.Rules), "transactions", len(snapshot.Transactions))
	}()

	if passphrase == "" {
		vErr := &ValidationError{}
		vErr.add("passphrase", "passphrase is required")
		err = vErr
		return
	}

	snapshot, err = s.collect(ctx)
	if err != nil {
		return
	}

	var recipient *age.ScryptRecipient
	recipient, err = age.NewScryptRecipient(passphrase)
	if err != nil {
		err = fmt.Errorf("failed to create recipient: %w", err)
		return
	}
	recipient.SetWorkFactor(s.workFactor)

	var encrypted io.WriteCloser
	encrypted, err = age.Encrypt(w, recipient)
	if err != nil {
		err = fmt.Errorf("failed to start encryption: %w", err)
		return
	}
	if err = json.NewEncoder(encrypted).Encode(snapshot); err != nil {
		encrypted.Close()
		err = fmt.Errorf("failed to encode snapshot: %w", err)
		return
	}
	if err = encrypted.Close(); err != nil {
		err = fmt.Errorf("failed to finish encryption: %w", err)
		return
	}
	return
}

func (s *BackupService) collect(ctx context.Context) (Snapshot, error) {
	rules, err := s.rules.ListRules(ctx, persistence.RuleFilter{})
	if err != nil {
		return Snapshot{}, fmt.Errorf("load rules: %w", err)
	}
	txns, err := s.transactions.ListTransactions(ctx, persistence.TransactionFilter{})
	if err != nil {
		return Snapshot{}, fmt.Errorf("load transactions: %w", err)
	}

	snapshot := Snapshot{
		Version:      BackupFormatVersion,
		CreatedAt:    s.now().UTC(),
		Rules:        make([]BackupRule, 0, len(rules)),
		Transactions: make([]BackupTransaction, 0, len(txns)),
	}
	for _, rule := range rules {
		snapshot.Rules = append(snapshot.Rules, backupRuleFromRecord(rule))
	}
	for _, txn := range txns {
		snapshot.Transactions = append(snapshot.Transactions, backupTransactionFromRecord(txn))
	}
	return snapshot, nil
}

// Open decrypts and decodes a backup. A wrong passphrase returns ErrUnauthorized.
func (s *BackupService) Open(ctx context.Context, r io.Reader, passphrase string) (snapshot Snapshot, err error) {
	if s == nil {
		err = fmt.Errorf("BackupService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Open")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to open backup", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	buffered := bufio.NewReader(r)
	header, _ := buffered.Peek(len(ageHeader))
	if !bytes.Equal(header, []byte(ageHeader)) {
		vErr := &ValidationError{}
		vErr.add("backup", "file is not an encrypted backup")
		err = vErr
		return
	}

	var identity *age.ScryptIdentity
	identity, err = age.NewScryptIdentity(passphrase)
	if err != nil {
		err = fmt.Errorf("failed to create identity: %w", err)
		return
	}
	// Accept backups written with a larger work factor than this host's default.
	identity.SetMaxWorkFactor(max(s.workFactor, DefaultBackupWorkFactor) + 4)

	var plain io.Reader
	plain, err = age.Decrypt(buffered, identity)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			err = fmt.Errorf("%w: incorrect passphrase", ErrUnauthorized)
			return
		}
		err = fmt.Errorf("failed to decrypt backup: %w", err)
		return
	}

	decoder := json.NewDecoder(plain)
	decoder.DisallowUnknownFields()
	if err = decoder.Decode(&snapshot); err != nil {
		err = fmt.Errorf("failed to decode snapshot: %w", err)
		return
	}
	if snapshot.Version != BackupFormatVersion {
		vErr := &ValidationError{}
		vErr.add("version", fmt.Sprintf("unsupported backup version %d", snapshot.Version))
		err = vErr
		snapshot = Snapshot{}
		return
	}
	return
}

// Restore inserts the snapshot's rules and transactions. Records whose ID
// already exists are left untouched.
func (s *BackupService) Restore(ctx context.Context, snapshot Snapshot) (result RestoreResult, err error) {
	if s == nil {
		err = fmt.Errorf("BackupService is nil")
		return
	}
	if s.rules == nil || s.transactions == nil {
		err = fmt.Errorf("backup repositories not configured")
		return
	}

	logger := s.loggerWith(ctx, "Restore")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to restore backup", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "backup restored",
			"rules_restored", result.RulesRestored,
			"rules_skipped", result.RulesSkipped,
			"transactions_restored", result.TransactionsRestored,
			"transactions_skipped", result.TransactionsSkipped,
		)
	}()

	for _, archived := range snapshot.Rules {
		var record persistence.RecurringRule
		record, err = archived.record()
		if err != nil {
			return
		}
		if createErr := s.rules.CreateRule(ctx, record); createErr != nil {
			if errors.Is(createErr, persistence.ErrDuplicate) {
				result.RulesSkipped++
				continue
			}
			err = fmt.Errorf("restore rule %s: %w", archived.ID, createErr)
			return
		}
		result.RulesRestored++
	}

	for _, archived := range snapshot.Transactions {
		var record persistence.Transaction
		record, err = archived.record()
		if err != nil {
			return
		}
		if createErr := s.transactions.CreateTransaction(ctx, record); createErr != nil {
			if errors.Is(createErr, persistence.ErrDuplicate) {
				result.TransactionsSkipped++
				continue
			}
			err = fmt.Errorf("restore transaction %s: %w", archived.ID, createErr)
			return
		}
		result.TransactionsRestored++
	}
	return
}

func backupRuleFromRecord(record persistence.RecurringRule) BackupRule {
	return BackupRule{
		ID:                 record.ID,
		Kind:               record.Kind,
		Amount:             record.Amount,
		Category:           record.Category,
		Note:               record.Note,
		Frequency:          record.Frequency,
		CustomIntervalDays: record.CustomIntervalDays,
		Weekdays:           record.Weekdays,
		DayOfMonth:         record.DayOfMonth,
		StartDate:          formatDate(&record.StartDate),
		EndDate:            formatDate(record.EndDate),
		LastGeneratedDate:  formatDate(record.LastGeneratedDate),
		NextDueDate:        formatDate(&record.NextDueDate),
		Active:             record.IsActive,
		CreatedAt:          record.CreatedAt,
		UpdatedAt:          record.UpdatedAt,
	}
}

func (b BackupRule) record() (persistence.RecurringRule, error) {
	vErr := &ValidationError{}
	start := parseDateField(vErr, "start_date", b.StartDate, true)
	next := parseDateField(vErr, "next_due_date", b.NextDueDate, true)
	record := persistence.RecurringRule{
		ID:                 b.ID,
		Kind:               b.Kind,
		Amount:             b.Amount,
		Category:           b.Category,
		Note:               b.Note,
		Frequency:          b.Frequency,
		CustomIntervalDays: b.CustomIntervalDays,
		Weekdays:           b.Weekdays,
		DayOfMonth:         b.DayOfMonth,
		EndDate:            parseDateField(vErr, "end_date", b.EndDate, false),
		LastGeneratedDate:  parseDateField(vErr, "last_generated_date", b.LastGeneratedDate, false),
		IsActive:           b.Active,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
	if vErr.HasErrors() {
		return persistence.RecurringRule{}, vErr
	}
	record.StartDate = *start
	record.NextDueDate = *next
	return record, nil
}

func backupTransactionFromRecord(record persistence.Transaction) BackupTransaction {
	archived := BackupTransaction{
		ID:         record.ID,
		Kind:       record.Kind,
		Amount:     record.Amount,
		Category:   record.Category,
		Note:       record.Note,
		OccurredOn: formatDate(&record.OccurredOn),
		Origin:     record.Origin,
		CreatedAt:  record.CreatedAt,
	}
	if record.SourceRuleID != nil {
		archived.SourceRuleID = *record.SourceRuleID
	}
	return archived
}

func (b BackupTransaction) record() (persistence.Transaction, error) {
	vErr := &ValidationError{}
	on := parseDateField(vErr, "occurred_on", b.OccurredOn, true)
	if vErr.HasErrors() {
		return persistence.Transaction{}, vErr
	}
	record := persistence.Transaction{
		ID:         b.ID,
		Kind:       b.Kind,
		Amount:     b.Amount,
		Category:   b.Category,
		Note:       b.Note,
		OccurredOn: *on,
		Origin:     b.Origin,
		CreatedAt:  b.CreatedAt,
	}
	if b.SourceRuleID != "" {
		source := b.SourceRuleID
		record.SourceRuleID = &source
	}
	return record, nil
}

func formatDate(value *time.Time) string {
	if value == nil || value.IsZero() {
		return ""
	}
	return value.Format(time.DateOnly)
}
