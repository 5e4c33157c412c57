package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/freeeve/blunderscan/internal/store"
)

// ExportCmd returns the export command
func ExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <out.csv[.zst]>",
		Short: "Write every stored blunder as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			rows, err := store.ExportFile(s, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d blunders from %d games to %s\n", rows, len(s.Games()), args[0])
			return nil
		},
	}
}

// ImportCmd returns the import command
func ImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <other-store>",
		Short: "Merge the games of another store, skipping known ids",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dst, err := a.openStore()
			if err != nil {
				return err
			}
			defer dst.Close()

			src, err := store.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer src.Close()

			added := store.Merge(dst, src)
			if added > 0 {
				if err := dst.Save(); err != nil {
					return err
				}
			}
			a.log.Info().Str("from", args[0]).Int("added", added).Msg("import complete")
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d games\n", added, len(src.Games()))
			return nil
		},
	}
}
