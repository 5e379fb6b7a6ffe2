package execution

import (
	"context"
	"fmt"
	"log/slog"

	clierr "github.com/ggonzalez94/pokt-rotate/internal/errors"
	"github.com/ggonzalez94/pokt-rotate/internal/logx"
	"github.com/ggonzalez94/pokt-rotate/internal/metrics"
)

const DefaultMaxAttempts = 10

// SubmitFunc broadcasts one prepared action and returns its transaction hash.
type SubmitFunc func(ctx context.Context) (string, error)

// Executor retries a single submission a bounded number of times.
//
// Attempts run back to back with no delay. Every failed attempt may still
// have reached the network, so callers must tolerate duplicate submissions.
type Executor struct {
	maxAttempts int
	logger      *slog.Logger
	metrics     *metrics.Recorder
}

func NewExecutor(maxAttempts int, logger *slog.Logger, rec *metrics.Recorder) *Executor {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = logx.Discard()
	}
	return &Executor{maxAttempts: maxAttempts, logger: logger, metrics: rec}
}

func (e *Executor) MaxAttempts() int { return e.maxAttempts }

// Execute calls submit until it succeeds or maxAttempts calls have failed.
// On exhaustion only the last error is kept. A cancelled context stops
// further attempts.
func (e *Executor) Execute(ctx context.Context, action ActionKind, address string, submit SubmitFunc) (string, error) {
	if submit == nil {
		return "", clierr.New(clierr.CodeInternal, "missing submit function")
	}
	var (
		lastErr  error
		attempts int
	)
	for attempts < e.maxAttempts {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}
		attempts++
		txHash, err := submit(ctx)
		e.metrics.Attempt(string(action), err)
		if err == nil {
			e.logger.Debug("submission accepted", "action", action, "address", address, "attempt", attempts, "tx_hash", txHash)
			return txHash, nil
		}
		lastErr = err
		e.logger.Debug("submission attempt failed", "action", action, "address", address, "attempt", attempts, "error", err)
	}
	return "", clierr.Wrap(clierr.CodeSubmission, fmt.Sprintf("%s failed after %d attempt(s)", action, attempts), lastErr)
}
