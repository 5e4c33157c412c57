// Package cli implements the blunders command line.
package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/freeeve/blunderscan/internal/config"
	"github.com/freeeve/blunderscan/internal/logx"
	"github.com/freeeve/blunderscan/internal/store"
)

// app is the state shared by every command: resolved configuration and logger.
type app struct {
	configPath string
	dbPath     string
	logLevel   string

	cfg *config.Config
	log zerolog.Logger
}

// RootCmd returns the blunders command with all subcommands attached.
func RootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "blunders",
		Short: "Find the moves you keep getting wrong",
		Long: `blunders replays your games through a UCI engine, records every move
that lost more than a threshold, and lists the positions where you blundered
more than once.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "Store file (.yaml, .yaml.zst, .db or .sqlite)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(ScanCmd(a))
	root.AddCommand(ShowCmd(a))
	root.AddCommand(ReviewCmd(a))
	root.AddCommand(ServeCmd(a))
	root.AddCommand(ExportCmd(a))
	root.AddCommand(ImportCmd(a))

	return root
}

// load resolves configuration (defaults < file < env < flags) and builds the logger.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("db") {
		cfg.Store.Path = a.dbPath
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}

	level, err := logx.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logx.NewLogger(os.Stderr, level)
	return nil
}

func (a *app) openStore() (store.Store, error) {
	s, err := store.Open(a.cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.log.Debug().Str("path", a.cfg.Store.Path).Int("games", len(s.Games())).Msg("store opened")
	return s, nil
}
