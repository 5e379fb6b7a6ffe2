// Package verify checks that rotated apps are staked on chain.
package verify

import (
	"context"
	"log/slog"

	"github.com/ggonzalez94/pokt-rotate/internal/logx"
	"github.com/ggonzalez94/pokt-rotate/internal/metrics"
	"github.com/ggonzalez94/pokt-rotate/internal/model"
	"github.com/ggonzalez94/pokt-rotate/internal/pokt/provider"
	"github.com/ggonzalez94/pokt-rotate/internal/pokt/signer"
	"golang.org/x/sync/errgroup"
)

const DefaultConcurrency = 10

// AppQuerier is the read side of the chain provider.
type AppQuerier interface {
	GetApp(ctx context.Context, address string) (provider.App, error)
}

type Verifier struct {
	apps        AppQuerier
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Recorder
}

func New(apps AppQuerier, concurrency int, logger *slog.Logger, rec *metrics.Recorder) *Verifier {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = logx.Discard()
	}
	return &Verifier{apps: apps, concurrency: concurrency, logger: logger, metrics: rec}
}

// Run queries the app for every key. A key is verified only when its app
// reports the staked status; a failed query counts as not verified and
// does not stop the pass.
func (v *Verifier) Run(ctx context.Context, keys []signer.PrivateKey) model.VerificationSummary {
	apps := make([]model.Verification, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			apps[i] = v.check(gctx, key)
			return nil
		})
	}
	_ = g.Wait()

	summary := model.VerificationSummary{Total: len(keys), Apps: apps}
	for _, app := range apps {
		if app.Staked {
			summary.Staked++
		}
	}
	summary.FullyVerified = summary.Staked == summary.Total
	return summary
}

func (v *Verifier) check(ctx context.Context, key signer.PrivateKey) model.Verification {
	address, err := signer.ResolveAddress(key)
	if err != nil {
		v.metrics.Verified(false)
		return model.Verification{Address: "invalid-key", Error: logx.ScrubString(err.Error())}
	}
	app, err := v.apps.GetApp(ctx, address)
	if err != nil {
		v.logger.Warn("app cannot be found", "address", address, "error", err)
		v.metrics.Verified(false)
		return model.Verification{Address: address, Error: err.Error()}
	}
	staked := app.Status == provider.StatusStaked
	if !staked {
		v.logger.Warn("app is not staked", "address", address, "status", app.Status)
	}
	v.metrics.Verified(staked)
	return model.Verification{Address: address, Staked: staked, Status: app.Status}
}
