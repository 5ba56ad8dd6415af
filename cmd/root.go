package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"car-dashboard/config"
	"car-dashboard/explain"
	"car-dashboard/predictor"
	"car-dashboard/services"
	"car-dashboard/utils"
)

var (
	// Global flags, applied over the environment configuration when set.
	flagDataPath  string
	flagModelPath string
	flagLogLevel  string

	cfg    *config.Config
	logger *utils.Logger
)

var rootCmd = &cobra.Command{
	Use:   "car-dashboard",
	Short: "Used-car listings dashboard: cleaning, exploration, price prediction",
	Long: `car-dashboard cleans a used-car listings file, serves an exploratory
dashboard over it, predicts prices with a gradient-boosted tree model and
explains the predictions with SHAP values.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute is the entry point called by main.main().
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDataPath, "data", "", "listings CSV file (overrides DATA_PATH)")
	rootCmd.PersistentFlags().StringVar(&flagModelPath, "model", "", "model artifact JSON (overrides MODEL_PATH)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	c, err := config.Load()
	if err != nil {
		return err
	}

	f := cmd.Flags()
	if f.Changed("data") {
		c.DataPath = flagDataPath
	}
	if f.Changed("model") {
		c.ModelPath = flagModelPath
	}
	if f.Changed("log-level") {
		c.LogLevel = flagLogLevel
	}

	cfg = c
	logger = utils.NewLoggerWithLevel(cmd.ErrOrStderr(), cfg.LogLevel)
	return nil
}

// loadModel reads the model artifact. A missing file is not an error: the
// returned predictor and explainer are nil and model views report it.
func loadModel(path string) (*predictor.Predictor, services.Explainer, error) {
	a, err := predictor.LoadArtifact(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("No model artifact at %s, prediction and explainability disabled", path)
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Loaded model: %d trees, %d features", len(a.Model.Trees), a.Model.NumFeatures)
	return predictor.New(a, logger), explain.NewTreeSHAP(a.Model), nil
}
