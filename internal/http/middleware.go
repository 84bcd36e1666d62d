package http

import (
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/example/pocket-ledger/internal/application"
)

// PINHeader carries the ledger PIN on protected requests.
const PINHeader = "X-Ledger-PIN"

// PINChecker verifies request PINs. *application.PINGuard satisfies it.
type PINChecker interface {
	Enabled() bool
	Check(pin string) error
}

// RequirePIN rejects requests whose PIN header does not match the configured
// hash. A nil or disabled checker lets every request through.
func RequirePIN(checker PINChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		if checker == nil || !checker.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pin := r.Header.Get(PINHeader)
			if pin == "" {
				responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingPIN)
				return
			}

			if err := checker.Check(pin); err != nil {
				if errors.Is(err, application.ErrUnauthorized) {
					responder.writeError(r.Context(), w, http.StatusUnauthorized, errPINRejected)
					return
				}
				responder.loggerFor(r.Context()).ErrorContext(r.Context(), "pin check failed", "error", err)
				responder.writeError(r.Context(), w, http.StatusInternalServerError, errPINVerification)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	var counter atomic.Uint64

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := counter.Add(1)
			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			ctx := ContextWithLogger(r.Context(), logger)
			start := time.Now()
			logger.DebugContext(ctx, "request started")
			next.ServeHTTP(recorder, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "status", recorder.status, "duration", time.Since(start))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
