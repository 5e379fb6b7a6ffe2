package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/ggonzalez94/pokt-rotate/internal/config"
	clierr "github.com/ggonzalez94/pokt-rotate/internal/errors"
	"github.com/ggonzalez94/pokt-rotate/internal/execution"
	"github.com/ggonzalez94/pokt-rotate/internal/logx"
	"github.com/ggonzalez94/pokt-rotate/internal/metrics"
	"github.com/ggonzalez94/pokt-rotate/internal/model"
	"github.com/ggonzalez94/pokt-rotate/internal/out"
	"github.com/ggonzalez94/pokt-rotate/internal/prompt"
	"github.com/ggonzalez94/pokt-rotate/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type Runner struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
	rand   io.Reader
	asker  prompt.Asker
}

func NewRunner() *Runner {
	return NewRunnerWithIO(os.Stdin, os.Stdout, os.Stderr)
}

func NewRunnerWithIO(stdin io.Reader, stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
		rand:   rand.Reader,
	}
}

// WithAsker replaces the line prompt on stdin.
func (r *Runner) WithAsker(asker prompt.Asker) *Runner {
	r.asker = asker
	return r
}

type runtimeState struct {
	runner      *Runner
	flags       config.GlobalFlags
	settings    config.Settings
	loaded      bool
	logger      *slog.Logger
	metrics     *metrics.Recorder
	asker       prompt.Asker
	lineAsker   *prompt.LineAsker
	store       *execution.Store
	root        *cobra.Command
	lastCommand string
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r, logger: logx.Discard(), asker: r.asker}
	if state.asker == nil {
		state.lineAsker = prompt.NewLineAsker(r.stdin, r.stdout)
		state.asker = state.lineAsker
	}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := root.ExecuteContext(ctx)
	err = normalizeRunError(err)
	if err != nil {
		state.renderError("", err)
	}
	state.close()
	return clierr.ExitCode(err)
}

// close releases every handle the command opened. It runs on success and
// failure alike.
func (s *runtimeState) close() {
	if s.loaded {
		if err := s.metrics.WriteTextfile(s.settings.MetricsTextfile); err != nil {
			s.logger.Warn("write metrics textfile", "error", err)
		}
	}
	if s.store != nil {
		_ = s.store.Close()
	}
	if s.lineAsker != nil {
		_ = s.lineAsker.Close()
	}
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Rotate, stake and unstake POKT app stakes in batches",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			logger, err := logx.New(s.runner.stderr, settings.LogLevel, settings.LogFormat)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "configure logging", err)
			}
			s.settings = settings
			s.logger = logger
			s.metrics = metrics.New()
			s.loaded = true
			s.lastCommand = trimRootPath(cmd.CommandPath())
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	bindGlobalFlags(cmd.PersistentFlags(), &s.flags)

	cmd.AddCommand(s.newTransferCommand())
	cmd.AddCommand(s.newStakeCommand())
	cmd.AddCommand(s.newUnstakeCommand())
	cmd.AddCommand(s.newGenerateCommand())
	cmd.AddCommand(s.newVerifyCommand())
	cmd.AddCommand(s.newRunsCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func bindGlobalFlags(fs *pflag.FlagSet, flags *config.GlobalFlags) {
	fs.StringVar(&flags.ConfigPath, "config", "", "Path to config file")
	fs.StringVar(&flags.LogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	fs.StringVar(&flags.LogFormat, "log-format", "", "Log format (text|json)")
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) emit(commandPath string, data any, success, partial bool) error {
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: success,
		Data:    data,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			ChainID:   s.settings.ChainID,
			Partial:   partial,
		},
	}
	return out.Render(s.runner.stdout, env, s.outputMode())
}

func (s *runtimeState) emitSuccess(commandPath string, data any) error {
	return s.emit(commandPath, data, true, false)
}

func (s *runtimeState) renderError(commandPath string, err error) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.ExitCode(err)
	typ := clierr.TypeName(clierr.CodeInternal)
	message := logx.ScrubString(err.Error())
	if cErr, ok := clierr.As(err); ok {
		typ = clierr.TypeName(cErr.Code)
	}

	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Error: &model.ErrorBody{
			Code:    code,
			Type:    typ,
			Message: message,
		},
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			ChainID:   s.settings.ChainID,
		},
	}
	_ = out.Render(s.runner.stderr, env, s.outputMode())
}

func (s *runtimeState) outputMode() string {
	if s.settings.OutputMode == "" {
		return out.ModePlain
	}
	return s.settings.OutputMode
}

// say prints a line of operator-facing text next to the prompts.
func (s *runtimeState) say(format string, args ...any) {
	_, _ = fmt.Fprintf(s.runner.stdout, format+"\n", args...)
}

func (s *runtimeState) openStore() (*execution.Store, error) {
	if s.store != nil {
		return s.store, nil
	}
	store, err := execution.OpenStore(s.settings.RunStorePath, s.settings.RunLockPath)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "open run history", err)
	}
	s.store = store
	return store, nil
}

func newRequestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
