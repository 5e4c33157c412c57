package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/freeeve/blunderscan/internal/eco"
	"github.com/freeeve/blunderscan/internal/engine"
	"github.com/freeeve/blunderscan/internal/eval"
	"github.com/freeeve/blunderscan/internal/game"
	"github.com/freeeve/blunderscan/internal/ingest"
	"github.com/freeeve/blunderscan/internal/report"
)

// ScanCmd returns the scan command
func ScanCmd(a *app) *cobra.Command {
	var (
		workers    int
		enginePath string
		threshold  int
		shallow    int
		deep       int
		skipPlies  int
		ecoDir     string
		maxGames   int
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "scan <pgn> <num-moves> <player>",
		Short: "Analyse a PGN batch and record the player's blunders",
		Long: `Analyse every game of a PGN file (optionally .zst compressed) that is not
already in the store. Only the first <num-moves> plies of each game are
examined (0 = whole game), and only moves made by <player>, who must be
named in the White or Black tag. Each analysed game is saved as soon as it
finishes.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			moveLimit, err := strconv.Atoi(args[1])
			if err != nil || moveLimit < 0 {
				return fmt.Errorf("num-moves must be a non-negative integer, got %q", args[1])
			}

			cfg := a.cfg
			flags := cmd.Flags()
			if flags.Changed("workers") {
				cfg.Scheduler.Workers = workers
			}
			if flags.Changed("engine") {
				cfg.Engine.Path = enginePath
			}
			if flags.Changed("threshold") {
				cfg.Detector.Threshold = threshold
			}
			if flags.Changed("shallow-depth") {
				cfg.Detector.ShallowDepth = shallow
			}
			if flags.Changed("deep-depth") {
				cfg.Detector.DeepDepth = deep
			}
			if flags.Changed("skip-plies") {
				cfg.Detector.SkipPlies = skipPlies
			}
			if flags.Changed("eco-dir") {
				cfg.ECODir = ecoDir
			}
			if flags.Changed("engine-timeout") {
				cfg.Engine.Timeout = timeout
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.scan(ctx, cmd, args[0], moveLimit, args[2], maxGames)
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent games (default NumCPU/2)")
	cmd.Flags().StringVar(&enginePath, "engine", "", "UCI engine executable (default stockfish)")
	cmd.Flags().IntVar(&threshold, "threshold", 0, "Blunder threshold in centipawns (default 100)")
	cmd.Flags().IntVar(&shallow, "shallow-depth", 0, "Screening search depth (default 10)")
	cmd.Flags().IntVar(&deep, "deep-depth", 0, "Confirmation search depth (default 20)")
	cmd.Flags().IntVar(&skipPlies, "skip-plies", 0, "Opening plies never evaluated (default 10)")
	cmd.Flags().StringVar(&ecoDir, "eco-dir", "", "Directory of ECO .tsv tables for opening names")
	cmd.Flags().IntVar(&maxGames, "max-games", 0, "Read at most this many games from the batch")
	cmd.Flags().DurationVar(&timeout, "engine-timeout", 0, "Kill the engine when one call takes longer (0 = never)")

	return cmd
}

func (a *app) scan(ctx context.Context, cmd *cobra.Command, pgnPath string, moveLimit int, player string, maxGames int) error {
	start := time.Now()
	cfg := a.cfg
	log := a.log.With().Str("run", uuid.NewString()).Logger()

	s, err := a.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	records, stats, err := ingest.Load(pgnPath, ingest.Options{
		MaxGames: maxGames,
		Logger:   log.With().Str("component", "ingest").Logger(),
	})
	if err != nil {
		return fmt.Errorf("load games: %w", err)
	}
	pending := ingest.Filter(records, s.Has)

	var classifier eval.Classifier
	if cfg.ECODir != "" {
		db := eco.NewDatabase()
		if err := db.LoadDir(cfg.ECODir); err != nil {
			return fmt.Errorf("load ECO tables: %w", err)
		}
		log.Info().Int("openings", db.Count()).Msg("ECO database loaded")
		classifier = db
	}

	summary := report.ScanSummary{
		Read:    stats.Read,
		Skipped: stats.Skipped,
		Known:   len(records) - len(pending),
	}

	sched, err := eval.NewScheduler(eval.SchedulerConfig{
		Capacity:     cfg.Scheduler.Workers,
		PollInterval: cfg.Scheduler.PollInterval,
		Logger:       log.With().Str("component", "scheduler").Logger(),
		Scan: eval.ScanOptions{
			Player:    player,
			MoveLimit: moveLimit,
			Detector: eval.DetectorConfig{
				ShallowDepth: cfg.Detector.ShallowDepth,
				DeepDepth:    cfg.Detector.DeepDepth,
				Threshold:    cfg.Detector.Threshold,
				SkipPlies:    cfg.Detector.SkipPlies,
			},
			NewSession: eval.EngineFactory(cfg.Engine.Path, engine.Options{
				Timeout: cfg.Engine.Timeout,
				Logger:  log.With().Str("component", "engine").Logger(),
			}),
			Classifier: classifier,
			Logger:     log,
		},
		OnResult: func(g game.Game) error {
			s.Add(g)
			if err := s.Save(); err != nil {
				return err
			}
			summary.Analysed++
			summary.Blunders += len(g.Blunders)
			return nil
		},
	})
	if err != nil {
		return err
	}

	runErr := sched.Run(ctx, pending)
	summary.Elapsed = time.Since(start)
	report.Scan(cmd.OutOrStdout(), summary)
	return runErr
}
