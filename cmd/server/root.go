package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Brownie44l1/wound-api/internal/catalog"
	"github.com/Brownie44l1/wound-api/internal/config"
	"github.com/Brownie44l1/wound-api/internal/logging"
	"github.com/Brownie44l1/wound-api/internal/model"
	"github.com/Brownie44l1/wound-api/internal/predict"
)

type rootOptions struct {
	configPath string
	modelPath  string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "wound-api",
		Short: "Wound image classification service",
		Long: `wound-api classifies photos of wounds and skin conditions with a
pre-trained ONNX model and returns the predicted class, a confidence
score and care suggestions for that class.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a TOML config file")
	cmd.PersistentFlags().StringVar(&opts.modelPath, "model", "", "Path to the ONNX model (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (overrides config)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newClassifyCmd(opts))
	cmd.AddCommand(newLabelsCmd(opts))

	return cmd
}

// loadConfig resolves config with command-line flags taking precedence.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.modelPath != "" {
		cfg.Model.Path = o.modelPath
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	cfg.Model.Path = resolveModelPath(cfg.Model.Path)
	return cfg, cfg.Validate()
}

// resolveModelPath finds relative model paths when started from cmd/server.
func resolveModelPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}

	wd, err := os.Getwd()
	if err != nil || filepath.Base(wd) != "server" {
		return path
	}
	candidate := filepath.Join(wd, "..", "..", path)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return path
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.Catalog != "" {
		return catalog.Load(cfg.Catalog)
	}
	return catalog.Default()
}

type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	state   model.State
	service *predict.Service
}

// bootstrap builds everything a command needs. A model that fails to load
// is not an error: the service starts with the model marked unavailable.
func bootstrap(cfg *config.Config) (*app, error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	cat, err := loadCatalog(cfg)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	state := model.Load(cfg.Model, cat.Len(), logger)

	return &app{
		cfg:     cfg,
		logger:  logger,
		state:   state,
		service: predict.NewService(state, cat, logger),
	}, nil
}

func (a *app) Close() {
	model.Close(a.state)
	_ = a.logger.Sync()
}
