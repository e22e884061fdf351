package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/trialwatch/internal/config"
	"github.com/ppiankov/trialwatch/internal/guardian"
	"github.com/ppiankov/trialwatch/internal/runner"
	"github.com/ppiankov/trialwatch/internal/store"
)

var (
	watchFeaturesPath string
	watchConfigPath   string
	watchDBPath       string
)

func init() {
	watchCmd.Flags().StringVar(&watchFeaturesPath, "features", "", "YAML feature file to watch (required)")
	watchCmd.Flags().StringVar(&watchConfigPath, "config", "", "config file (default ~/.trialwatch/config.yaml)")
	watchCmd.Flags().StringVar(&watchDBPath, "db", "", "sqlite database (default ~/.trialwatch/trialwatch.db)")
	_ = watchCmd.MarkFlagRequired("features")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run analysis whenever the feature file changes",
	Long: "Watches the feature file and re-runs the full pipeline on every " +
		"change. Config changes hot-reload without a restart. Runs until " +
		"interrupted.",
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(watchConfigPath)
	if err != nil {
		return err
	}
	cfgStore := config.NewStore(cfg)

	db, err := store.OpenSQLite(watchDBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	g := guardian.New(cfgStore, db, db, logger)
	r := runner.New(cfgStore, g, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Config hot reload is best-effort: a missing config file just means
	// defaults stay active.
	if cw, err := config.NewWatcher(cfgStore, watchConfigPath); err == nil {
		go func() { _ = cw.Run(ctx) }()
	}

	analyzeAll := func() {
		entities, err := loadFeatureFile(watchFeaturesPath)
		if err != nil {
			logger.Error("feature file reload failed", zap.Error(err))
			return
		}
		ids := make([]string, 0, len(entities))
		for id := range entities {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			if _, err := r.Run(ctx, id, entities[id]); err != nil {
				logger.Error("analysis failed", zap.String("entity_id", id), zap.Error(err))
			}
		}
	}

	// Initial pass, then watch.
	analyzeAll()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(watchFeaturesPath); err != nil {
		return fmt.Errorf("failed to watch %q: %w", watchFeaturesPath, err)
	}

	// Debounce: wait 500ms after last write before re-analyzing
	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, analyzeAll)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("file watcher error", zap.Error(err))
		}
	}
}
