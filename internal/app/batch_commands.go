package app

import (
	"context"
	"fmt"
	"strings"

	clierr "github.com/ggonzalez94/pokt-rotate/internal/errors"
	"github.com/ggonzalez94/pokt-rotate/internal/execution"
	"github.com/ggonzalez94/pokt-rotate/internal/httpx"
	"github.com/ggonzalez94/pokt-rotate/internal/keys"
	"github.com/ggonzalez94/pokt-rotate/internal/model"
	"github.com/ggonzalez94/pokt-rotate/internal/out"
	"github.com/ggonzalez94/pokt-rotate/internal/pokt/provider"
	"github.com/ggonzalez94/pokt-rotate/internal/pokt/signer"
	"github.com/ggonzalez94/pokt-rotate/internal/pokt/txbuilder"
	"github.com/ggonzalez94/pokt-rotate/internal/prompt"
	"github.com/spf13/cobra"
)

const (
	rpcURLQuestion  = "Enter your POKT RPC Provider URL: "
	confirmQuestion = "Does this seem correct? Confirm by typing yes: "
)

// batchVerbs holds the operator-facing wording for each action.
var batchVerbs = map[execution.ActionKind]struct{ progressive, past, failed string }{
	execution.ActionTransfer: {"rotated", "App stakes successfully rotated", "Failed to stake all apps, try running the script again!"},
	execution.ActionStake:    {"staked", "App stakes successfully staked", "Failed to stake all apps, try running the script again!"},
	execution.ActionUnstake:  {"unstaked", "App stakes successfully unstaked", "Failed to unstake all apps, try running the script again!"},
}

func (s *runtimeState) newTransferCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "transfer",
		Short: "Transfer old app stakes onto new app keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rpcURL, err := s.askRPCURL(ctx)
			if err != nil {
				return err
			}
			oldKeys, err := s.loadKeys(s.settings.OldKeysFile)
			if err != nil {
				return err
			}
			newKeys, err := s.loadKeys(s.settings.NewKeysFile)
			if err != nil {
				return err
			}
			job, err := execution.NewTransferJob(oldKeys, newKeys)
			if err != nil {
				return err
			}
			return s.confirmAndRun(ctx, trimRootPath(cmd.CommandPath()), rpcURL, job)
		},
	}
}

func (s *runtimeState) newStakeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stake",
		Short: "Stake every app key of the stake input file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(s.settings.StakeAmount) == "" || len(s.settings.StakeChains) == 0 {
				return clierr.New(clierr.CodeUsage, "stake amount and chains must be configured (stake.amount, stake.chains)")
			}
			return s.runSingleKeyBatch(cmd, execution.ActionStake, s.settings.StakeKeysFile)
		},
	}
}

func (s *runtimeState) newUnstakeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unstake",
		Short: "Begin unstaking every app key of the unstake input file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runSingleKeyBatch(cmd, execution.ActionUnstake, s.settings.UnstakeKeysFile)
		},
	}
}

func (s *runtimeState) runSingleKeyBatch(cmd *cobra.Command, kind execution.ActionKind, file string) error {
	ctx := cmd.Context()
	rpcURL, err := s.askRPCURL(ctx)
	if err != nil {
		return err
	}
	appKeys, err := s.loadKeys(file)
	if err != nil {
		return err
	}
	return s.confirmAndRun(ctx, trimRootPath(cmd.CommandPath()), rpcURL, execution.NewJob(kind, appKeys))
}

// confirmAndRun prints what is about to happen and only contacts the
// provider after the operator confirms.
func (s *runtimeState) confirmAndRun(ctx context.Context, commandPath, rpcURL string, job execution.Job) error {
	verbs := batchVerbs[job.Kind]
	s.say("")
	s.say("App stakes count being %s: %d", verbs.progressive, len(job.Items))
	s.say("RPC Provider: %s", rpcURL)
	s.say("Chain ID: %s", s.settings.ChainID)
	s.say("")

	ok, err := prompt.Confirm(ctx, s.asker, confirmQuestion)
	if err != nil {
		return err
	}
	if !ok {
		return clierr.New(clierr.CodeAborted, "user confirmation failed")
	}

	chain, err := s.newChainProvider(rpcURL)
	if err != nil {
		return err
	}
	if height, err := chain.GetHeight(ctx); err != nil {
		s.logger.Warn("rpc provider height query failed", "rpc_url", rpcURL, "error", err)
	} else {
		s.logger.Info("rpc provider reachable", "rpc_url", rpcURL, "height", height)
	}

	builder, err := txbuilder.New(chain, txbuilder.Options{
		ChainID: s.settings.ChainID,
		Fee:     s.settings.FeeUPOKT,
		Memo:    s.settings.Memo,
	})
	if err != nil {
		return err
	}
	actions := execution.NewChainActions(builder, execution.StakeParams{
		AmountUPOKT: s.settings.StakeAmount,
		Chains:      s.settings.StakeChains,
	}, s.logger)
	executor := execution.NewExecutor(s.settings.MaxAttempts, s.logger, s.metrics)
	orchestrator := execution.NewOrchestrator(actions, executor, s.settings.BatchSize, s.logger, s.metrics)

	report := orchestrator.Run(ctx, job)
	report.ChainID = builder.ChainID()

	path, err := out.WriteReport(s.settings.OutputDir, report, s.runner.now())
	if err != nil {
		return err
	}
	s.say("Results saved to %s", path)
	s.recordRun(report, path)

	if !report.Success() {
		return clierr.New(clierr.CodeSubmission, fmt.Sprintf("%s (%d of %d failed)", verbs.failed, report.Failed(), len(report.Outcomes)))
	}
	s.say("%s", verbs.past)
	return s.emitSuccess(commandPath, runSummary(execution.NewRunRecord(report, path)))
}

// recordRun keeps the run in the history store. A store failure does not
// change the outcome of a run whose report is already on disk.
func (s *runtimeState) recordRun(report execution.Report, path string) {
	store, err := s.openStore()
	if err != nil {
		s.logger.Warn("run history unavailable", "run_id", report.RunID, "error", err)
		return
	}
	if err := store.Save(execution.NewRunRecord(report, path)); err != nil {
		s.logger.Warn("save run history", "run_id", report.RunID, "error", err)
	}
}

func (s *runtimeState) askRPCURL(ctx context.Context) (string, error) {
	answer, err := s.asker.Ask(ctx, rpcURLQuestion)
	if err != nil {
		return "", err
	}
	rpcURL := strings.TrimSpace(answer)
	if rpcURL == "" {
		return "", clierr.New(clierr.CodeUsage, "rpc provider url is required")
	}
	return rpcURL, nil
}

// loadKeys reads one key file from the input directory. An empty file is
// rejected so a run always has work to do.
func (s *runtimeState) loadKeys(name string) ([]signer.PrivateKey, error) {
	path := s.settings.KeyPath(name)
	appKeys, err := keys.Load(path, s.settings.MaxKeysPerFile)
	if err != nil {
		return nil, err
	}
	if len(appKeys) == 0 {
		return nil, clierr.New(clierr.CodeValidation, fmt.Sprintf("no app keys found in %s", path))
	}
	return appKeys, nil
}

func (s *runtimeState) newChainProvider(rpcURL string) (*provider.JSONRPCProvider, error) {
	client := httpx.New(s.settings.Timeout, s.settings.Retries).WithRateLimit(s.settings.RPCRateLimit, s.settings.BatchSize)
	return provider.New(client, rpcURL)
}

func runSummary(record execution.RunRecord) model.RunSummary {
	return model.RunSummary{
		RunID:      record.RunID,
		Action:     string(record.Action),
		Total:      record.Total,
		Failed:     record.FailedCount,
		Chunks:     record.Chunks,
		ReportPath: record.ReportPath,
	}
}
