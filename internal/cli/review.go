package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/freeeve/blunderscan/internal/eval"
	"github.com/freeeve/blunderscan/internal/game"
	"github.com/freeeve/blunderscan/internal/report"
)

// ReviewCmd returns the review command
func ReviewCmd(a *app) *cobra.Command {
	var (
		minCount int
		depth    int
		hashMB   int
		threads  int
	)

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Re-evaluate recurring blunder positions at high depth",
		Long: `Run one engine at review depth over every recurring blunder position and
print how the position stood before the move that kept going wrong.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if minCount < game.MinRecurrence {
				return fmt.Errorf("--min-count must be at least %d, got %d", game.MinRecurrence, minCount)
			}
			cfg := a.cfg
			if cmd.Flags().Changed("depth") {
				cfg.Review.Depth = depth
			}
			if cmd.Flags().Changed("hash") {
				cfg.Review.HashMB = hashMB
			}
			if cmd.Flags().Changed("threads") {
				cfg.Review.Threads = threads
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			groups := game.Recurring(s.Games(), minCount)
			if len(groups) == 0 {
				report.Recurring(cmd.OutOrStdout(), nil)
				return nil
			}

			reviewer, err := eval.NewReviewer(eval.ReviewConfig{
				EnginePath: cfg.Engine.Path,
				Depth:      cfg.Review.Depth,
				HashMB:     cfg.Review.HashMB,
				Threads:    cfg.Review.Threads,
				Logger:     a.log.With().Str("component", "review").Logger(),
			})
			if err != nil {
				return fmt.Errorf("start review engine: %w", err)
			}
			defer reviewer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reviews, err := reviewer.Review(ctx, groups)
			report.Reviews(cmd.OutOrStdout(), reviews)
			return err
		},
	}

	cmd.Flags().IntVar(&minCount, "min-count", game.MinRecurrence, "Review positions blundered at least this many times")
	cmd.Flags().IntVar(&depth, "depth", 0, "Search depth (default 24)")
	cmd.Flags().IntVar(&hashMB, "hash", 0, "Engine hash size in MB (default 256)")
	cmd.Flags().IntVar(&threads, "threads", 0, "Engine threads (default 2)")

	return cmd
}
