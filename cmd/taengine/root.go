package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"ta-engine/config"
	"ta-engine/internal/logger"
)

const serviceName = "taengine"

// app carries state shared by subcommands after the root pre-run.
type app struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   serviceName,
		Short: "technical indicators and candlestick patterns over OHLCV bars",

		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if a.logLevel != "" {
				cfg.LogLevel = a.logLevel
			}
			level, err := logger.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			// logs go to stderr so command output stays machine-readable
			logger.InitWriter(cmd.ErrOrStderr(), serviceName, level)
			a.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file (default $TA_CONFIG_FILE)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")

	root.AddCommand(
		newServeCmd(a),
		newIndicatorsCmd(a),
		newPatternsCmd(a),
		newAnalyzeCmd(a),
		newImportCmd(a),
		newSymbolsCmd(a),
	)
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
