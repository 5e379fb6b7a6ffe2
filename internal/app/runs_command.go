package app

import (
	"strings"

	clierr "github.com/ggonzalez94/pokt-rotate/internal/errors"
	"github.com/ggonzalez94/pokt-rotate/internal/execution"
	"github.com/ggonzalez94/pokt-rotate/internal/model"
	"github.com/spf13/cobra"
)

func (s *runtimeState) newRunsCommand() *cobra.Command {
	root := &cobra.Command{Use: "runs", Short: "Inspect recorded batch runs"}

	var action string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(action) != "" {
				kind, err := execution.ParseActionKind(action)
				if err != nil {
					return err
				}
				action = string(kind)
			}
			store, err := s.openStore()
			if err != nil {
				return err
			}
			records, err := store.List(action, limit)
			if err != nil {
				return err
			}
			items := make([]model.RunSummary, 0, len(records))
			for _, record := range records {
				items = append(items, runSummary(record))
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items)
		},
	}
	list.Flags().StringVar(&action, "action", "", "Filter by action (stake|unstake|transfer)")
	list.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show every outcome of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.openStore()
			if err != nil {
				return err
			}
			record, err := store.Get(strings.TrimSpace(args[0]))
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "show run", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), record)
		},
	}

	root.AddCommand(list)
	root.AddCommand(show)
	return root
}
