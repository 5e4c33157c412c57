package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/freeeve/blunderscan/internal/game"
	"github.com/freeeve/blunderscan/internal/report"
)

// ShowCmd returns the show command
func ShowCmd(a *app) *cobra.Command {
	var minCount int

	cmd := &cobra.Command{
		Use:   "show",
		Short: "List blunders whose position recurs across stored games",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if minCount < game.MinRecurrence {
				return fmt.Errorf("--min-count must be at least %d, got %d", game.MinRecurrence, minCount)
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			report.Recurring(cmd.OutOrStdout(), game.Recurring(s.Games(), minCount))
			return nil
		},
	}

	cmd.Flags().IntVar(&minCount, "min-count", game.MinRecurrence, "Show positions blundered at least this many times")

	return cmd
}
