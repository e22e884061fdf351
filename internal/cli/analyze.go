package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/trialwatch/internal/config"
	"github.com/ppiankov/trialwatch/internal/guardian"
	"github.com/ppiankov/trialwatch/internal/model"
	"github.com/ppiankov/trialwatch/internal/runner"
	"github.com/ppiankov/trialwatch/internal/store"
)

var (
	analyzeFeaturesPath string
	analyzeConfigPath   string
	analyzeDBPath       string
	analyzeEntity       string
)

func init() {
	analyzeCmd.Flags().StringVar(&analyzeFeaturesPath, "features", "", "YAML file mapping entity id to feature values (required)")
	analyzeCmd.Flags().StringVar(&analyzeConfigPath, "config", "", "config file (default ~/.trialwatch/config.yaml)")
	analyzeCmd.Flags().StringVar(&analyzeDBPath, "db", "", "sqlite database (default ~/.trialwatch/trialwatch.db)")
	analyzeCmd.Flags().StringVar(&analyzeEntity, "entity", "", "analyze only this entity")
	_ = analyzeCmd.MarkFlagRequired("features")
	rootCmd.AddCommand(analyzeCmd)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the full scoring pipeline for the entities in a feature file",
	RunE:  runAnalyze,
}

// loadFeatureFile reads a YAML mapping of entity id → feature name → value.
// Null feature values are preserved as missing.
func loadFeatureFile(path string) (map[string]model.FeatureSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feature file: %w", err)
	}
	var raw map[string]map[string]*float64
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse feature file: %w", err)
	}
	out := make(map[string]model.FeatureSet, len(raw))
	for entity, features := range raw {
		out[entity] = model.FeatureSet(features)
	}
	return out, nil
}

func newLogger() *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	entities, err := loadFeatureFile(analyzeFeaturesPath)
	if err != nil {
		return err
	}
	if analyzeEntity != "" {
		features, ok := entities[analyzeEntity]
		if !ok {
			return fmt.Errorf("entity %q not found in %s", analyzeEntity, analyzeFeaturesPath)
		}
		entities = map[string]model.FeatureSet{analyzeEntity: features}
	}

	cfg, err := config.Load(analyzeConfigPath)
	if err != nil {
		return err
	}
	cfgStore := config.NewStore(cfg)

	db, err := store.OpenSQLite(analyzeDBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	g := guardian.New(cfgStore, db, db, logger)
	r := runner.New(cfgStore, g, logger)

	// Stable output order regardless of map iteration.
	ids := make([]string, 0, len(entities))
	for id := range entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, id := range ids {
		result, err := r.Run(context.Background(), id, entities[id])
		if err != nil {
			return err
		}
		if err := enc.Encode(result); err != nil {
			return err
		}
	}
	return nil
}
