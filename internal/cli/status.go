package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/trialwatch/internal/config"
	"github.com/ppiankov/trialwatch/internal/guardian"
	"github.com/ppiankov/trialwatch/internal/runner"
	"github.com/ppiankov/trialwatch/internal/status"
	"github.com/ppiankov/trialwatch/internal/store"
)

var (
	statusFeaturesPath string
	statusConfigPath   string
	statusEntity       string
)

func init() {
	statusCmd.Flags().StringVar(&statusFeaturesPath, "features", "", "YAML feature file (required)")
	statusCmd.Flags().StringVar(&statusConfigPath, "config", "", "config file (default ~/.trialwatch/config.yaml)")
	statusCmd.Flags().StringVar(&statusEntity, "entity", "", "entity id to summarize (required)")
	_ = statusCmd.MarkFlagRequired("features")
	_ = statusCmd.MarkFlagRequired("entity")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Run an in-memory analysis and print the health summary",
	Long: "Runs the scoring pipeline against in-memory stores (nothing is " +
		"persisted) and prints the aggregate health summary for one entity.",
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	entities, err := loadFeatureFile(statusFeaturesPath)
	if err != nil {
		return err
	}
	features, ok := entities[statusEntity]
	if !ok {
		return fmt.Errorf("entity %q not found in %s", statusEntity, statusFeaturesPath)
	}

	cfg, err := config.Load(statusConfigPath)
	if err != nil {
		return err
	}
	cfgStore := config.NewStore(cfg)

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	g := guardian.New(cfgStore, store.NewMemoryEventLog(), store.NewMemoryStalenessStore(), logger)
	r := runner.New(cfgStore, g, logger)

	result, err := r.Run(context.Background(), statusEntity, features)
	if err != nil {
		return err
	}

	summary := status.Build(statusEntity, result.Signals, result.Consensus, result.DQI, result.Events)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
