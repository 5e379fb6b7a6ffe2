package app

import (
	"fmt"
	"strconv"
	"strings"

	clierr "github.com/ggonzalez94/pokt-rotate/internal/errors"
	"github.com/ggonzalez94/pokt-rotate/internal/keys"
	"github.com/ggonzalez94/pokt-rotate/internal/model"
	"github.com/ggonzalez94/pokt-rotate/internal/verify"
	"github.com/spf13/cobra"
)

const generateQuestion = "How many app stakes to generate?: "

func (s *runtimeState) newGenerateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Generate a new app private key file in the input directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			answer, err := s.asker.Ask(cmd.Context(), generateQuestion)
			if err != nil {
				return err
			}
			n, err := strconv.Atoi(strings.TrimSpace(answer))
			if err != nil {
				return clierr.New(clierr.CodeValidation, fmt.Sprintf("invalid key count %q", strings.TrimSpace(answer)))
			}
			if n <= 0 || n > s.settings.MaxKeysPerFile {
				return clierr.New(clierr.CodeValidation, fmt.Sprintf("key count must be between 1 and %d, got %d", s.settings.MaxKeysPerFile, n))
			}
			generated, err := keys.Generate(n, s.runner.rand)
			if err != nil {
				return err
			}
			path, err := keys.WriteGenerated(s.settings.InputDir, generated, s.runner.now())
			if err != nil {
				return err
			}
			s.logger.Info("generated app keys", "count", n, "path", path)
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.GeneratedKeys{Count: n, Path: path})
		},
	}
}

func (s *runtimeState) newVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that every new app key is staked on chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rpcURL, err := s.askRPCURL(ctx)
			if err != nil {
				return err
			}
			newKeys, err := s.loadKeys(s.settings.NewKeysFile)
			if err != nil {
				return err
			}
			chain, err := s.newChainProvider(rpcURL)
			if err != nil {
				return err
			}

			summary := verify.New(chain, s.settings.VerifyConcurrent, s.logger, s.metrics).Run(ctx, newKeys)
			for _, app := range summary.Apps {
				switch {
				case app.Error != "":
					s.say("App: %s cannot be found.", app.Address)
				case !app.Staked:
					s.say("App: %s cannot be found, status %d.", app.Address, app.Status)
				}
			}
			if err := s.emit(trimRootPath(cmd.CommandPath()), summary, summary.FullyVerified, !summary.FullyVerified); err != nil {
				return err
			}
			if !summary.FullyVerified {
				return clierr.New(clierr.CodeQuery, fmt.Sprintf("%d of %d new app stakes are not verified", summary.Total-summary.Staked, summary.Total))
			}
			s.say("All %d new app stakes are verified staked into the network.", summary.Total)
			return nil
		},
	}
}
