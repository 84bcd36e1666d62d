package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/pocket-ledger/internal/application"
	"github.com/example/pocket-ledger/internal/config"
	httptransport "github.com/example/pocket-ledger/internal/http"
	"github.com/example/pocket-ledger/internal/logging"
	"github.com/example/pocket-ledger/internal/persistence/sqlite"
	"github.com/example/pocket-ledger/internal/persistence/sqlite/migration"
	"github.com/example/pocket-ledger/internal/recurrence"
	"github.com/example/pocket-ledger/internal/scheduler"
)

const usage = `usage: ledger <command> [flags]

commands:
  serve                 run the HTTP API and the periodic generator (default)
  generate [-force]     run one generation pass and print the report
  backup -out FILE      write an encrypted snapshot
  backup -verify FILE   decrypt a snapshot and print its contents summary
  backup -restore FILE  insert the snapshot's records that are missing
  hash-pin              read a PIN from stdin and print its hash
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	command := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "failed to configure logging: %v\n", err)
		return 1
	}

	switch command {
	case "hash-pin":
		err = hashPIN(stdin, stdout)
	case "serve", "generate", "backup":
		err = withApp(ctx, cfg, logger, stderr, func(a *app) error {
			switch command {
			case "generate":
				return a.generate(ctx, args, stdout)
			case "backup":
				return a.backup(ctx, args, stdout)
			default:
				return a.serve(ctx)
			}
		})
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", command, usage)
		return 2
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		logger.Error("command failed", "command", command, "error", err, "error_kind", application.ErrorKind(err))
		return 1
	}
	return 0
}

type app struct {
	cfg          config.Config
	logger       *slog.Logger
	stderr       io.Writer
	store        *sqlite.Store
	rules        *application.RuleService
	transactions *application.TransactionService
	generation   *application.GenerationService
	backups      *application.BackupService
}

func withApp(ctx context.Context, cfg config.Config, logger *slog.Logger, stderr io.Writer, fn func(*app) error) error {
	store, err := sqlite.Open(ctx, migration.DefaultSQLiteConfig(cfg.SQLitePath), logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	now := time.Now
	engine := recurrence.NewEngine(cfg.Location, cfg.MaxCatchUp)

	a := &app{
		cfg:          cfg,
		logger:       logger,
		stderr:       stderr,
		store:        store,
		rules:        application.NewRuleServiceWithLogger(store.Rules, uuid.NewString, now, logger),
		transactions: application.NewTransactionServiceWithLogger(store.Transactions, uuid.NewString, now, logger),
		generation:   application.NewGenerationServiceWithLogger(store.Rules, store.Generation, engine, uuid.NewString, now, logger),
		backups:      application.NewBackupServiceWithLogger(store.Rules, store.Transactions, now, cfg.BackupWorkFactor, logger),
	}
	a.generation.OnCompleted(func(application.GenerationReport) {
		a.transactions.InvalidateSummaries()
	})

	return fn(a)
}

func (a *app) serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	guard, err := application.NewPINGuard(a.cfg.PINHash)
	if err != nil {
		return fmt.Errorf("invalid LEDGER_PIN_HASH: %w", err)
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Rules:        httptransport.NewRuleHandler(a.rules, a.logger),
		Transactions: httptransport.NewTransactionHandler(a.transactions, a.logger),
		Generation:   httptransport.NewGenerationHandler(a.generation, a.logger),
		Middleware:   []func(http.Handler) http.Handler{httptransport.RequestLogger(a.logger)},
		Protected:    []func(http.Handler) http.Handler{httptransport.RequirePIN(guard, a.logger)},
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	runner := scheduler.NewRunner(a.generation, a.cfg.GenerationInterval, a.logger)
	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		if err := runner.Start(ctx); err != nil {
			a.logger.Error("generation runner stopped", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("failed to shutdown server", "error", err)
		}
	}()

	a.logger.Info("ledger API listening",
		"addr", server.Addr,
		"timezone", a.cfg.Location.String(),
		"generation_interval", a.cfg.GenerationInterval,
		"pin_required", guard.Enabled(),
	)
	err = server.ListenAndServe()
	cancel()
	<-runnerDone
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server encountered error: %w", err)
	}
	return nil
}

func (a *app) generate(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	force := fs.Bool("force", false, "run even if today's pass already completed")
	if err := fs.Parse(args); err != nil {
		return err
	}

	report, err := a.generation.Run(ctx, application.RunOptions{Force: *force})
	if err != nil {
		return err
	}
	return writeJSON(stdout, toCLIReport(report))
}

func (a *app) backup(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("backup", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	out := fs.String("out", "", "write an encrypted snapshot to `file`")
	verify := fs.String("verify", "", "decrypt `file` and summarize it")
	restore := fs.String("restore", "", "restore missing records from `file`")
	if err := fs.Parse(args); err != nil {
		return err
	}

	selected := 0
	for _, v := range []string{*out, *verify, *restore} {
		if v != "" {
			selected++
		}
	}
	if selected != 1 {
		return errors.New("backup needs exactly one of -out, -verify or -restore")
	}
	if a.cfg.BackupPassphrase == "" {
		return errors.New("LEDGER_BACKUP_PASSPHRASE is not set")
	}

	switch {
	case *out != "":
		return a.writeBackup(ctx, *out, stdout)
	case *verify != "":
		snapshot, err := a.openBackup(ctx, *verify)
		if err != nil {
			return err
		}
		return writeJSON(stdout, summarizeSnapshot(snapshot))
	default:
		snapshot, err := a.openBackup(ctx, *restore)
		if err != nil {
			return err
		}
		result, err := a.backups.Restore(ctx, snapshot)
		if err != nil {
			return err
		}
		a.transactions.InvalidateSummaries()
		return writeJSON(stdout, restoreOutput{
			RulesRestored:        result.RulesRestored,
			RulesSkipped:         result.RulesSkipped,
			TransactionsRestored: result.TransactionsRestored,
			TransactionsSkipped:  result.TransactionsSkipped,
		})
	}
}

func (a *app) writeBackup(ctx context.Context, path string, stdout io.Writer) (err error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	snapshot, err := a.backups.Export(ctx, file, a.cfg.BackupPassphrase)
	if err != nil {
		return err
	}
	return writeJSON(stdout, summarizeSnapshot(snapshot))
}

func (a *app) openBackup(ctx context.Context, path string) (application.Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return application.Snapshot{}, fmt.Errorf("failed to open backup file: %w", err)
	}
	defer file.Close()
	return a.backups.Open(ctx, file, a.cfg.BackupPassphrase)
}

func hashPIN(stdin io.Reader, stdout io.Writer) error {
	scanner := bufio.NewScanner(stdin)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return err
		}
		return errors.New("no PIN on standard input")
	}

	hash, err := application.HashPIN(strings.TrimSpace(scanner.Text()), application.DefaultArgon2idParams)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, hash)
	return err
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

type cliOccurrence struct {
	RuleID     string `json:"rule_id"`
	OccurredOn string `json:"occurred_on"`
	Kind       string `json:"kind"`
	Amount     string `json:"amount"`
	Category   string `json:"category"`
}

type cliFailure struct {
	RuleID string `json:"rule_id"`
	Reason string `json:"reason"`
}

type cliReport struct {
	Today       string          `json:"today"`
	Skipped     bool            `json:"skipped"`
	Evaluated   int             `json:"rules_evaluated"`
	Advanced    []string        `json:"advanced_rules"`
	Created     []cliOccurrence `json:"created"`
	Failures    []cliFailure    `json:"failures"`
	Message     string          `json:"message,omitempty"`
	CompletedAt time.Time       `json:"completed_at"`
}

func toCLIReport(report application.GenerationReport) cliReport {
	out := cliReport{
		Today:       report.Today.Format(recurrence.DateLayout),
		Skipped:     report.Skipped,
		Evaluated:   report.Evaluated,
		Advanced:    append([]string{}, report.AdvancedRules...),
		Created:     make([]cliOccurrence, 0, len(report.Transactions)),
		Failures:    make([]cliFailure, 0, len(report.Failures)),
		Message:     report.UserMessage,
		CompletedAt: report.CompletedAt,
	}
	for _, txn := range report.Transactions {
		occ := cliOccurrence{
			OccurredOn: txn.OccurredOn.Format(recurrence.DateLayout),
			Kind:       string(txn.Kind),
			Amount:     txn.Amount.StringFixed(2),
			Category:   txn.Category,
		}
		if txn.SourceRuleID != nil {
			occ.RuleID = *txn.SourceRuleID
		}
		out.Created = append(out.Created, occ)
	}
	for _, f := range report.Failures {
		out.Failures = append(out.Failures, cliFailure{RuleID: f.RuleID, Reason: f.Reason})
	}
	return out
}

type snapshotSummary struct {
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	Rules        int       `json:"rules"`
	ActiveRules  int       `json:"active_rules"`
	Transactions int       `json:"transactions"`
	FirstEntry   string    `json:"first_entry,omitempty"`
	LastEntry    string    `json:"last_entry,omitempty"`
}

func summarizeSnapshot(snapshot application.Snapshot) snapshotSummary {
	summary := snapshotSummary{
		Version:      snapshot.Version,
		CreatedAt:    snapshot.CreatedAt,
		Rules:        len(snapshot.Rules),
		Transactions: len(snapshot.Transactions),
	}
	for _, rule := range snapshot.Rules {
		if rule.Active {
			summary.ActiveRules++
		}
	}
	for _, txn := range snapshot.Transactions {
		if summary.FirstEntry == "" || txn.OccurredOn < summary.FirstEntry {
			summary.FirstEntry = txn.OccurredOn
		}
		if txn.OccurredOn > summary.LastEntry {
			summary.LastEntry = txn.OccurredOn
		}
	}
	return summary
}

type restoreOutput struct {
	RulesRestored        int `json:"rules_restored"`
	RulesSkipped         int `json:"rules_skipped"`
	TransactionsRestored int `json:"transactions_restored"`
	TransactionsSkipped  int `json:"transactions_skipped"`
}
