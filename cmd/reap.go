package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crm-import/internal/reaper"
)

var reapOlderThan time.Duration

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Abort import jobs that stopped reporting progress",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("reap"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		staleAfter := reapOlderThan
		if staleAfter <= 0 {
			staleAfter = cfg.Reaper.StaleAfter()
		}
		n, err := reaper.New(st, staleAfter).Sweep(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("reap complete", zap.Int64("aborted", n), zap.Duration("older_than", staleAfter))
		return nil
	},
}

func init() {
	reapCmd.Flags().DurationVar(&reapOlderThan, "older-than", 0, "abort jobs idle longer than this (default from config)")
	rootCmd.AddCommand(reapCmd)
}
