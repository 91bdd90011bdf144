// Package main is the SmartDoc CLI entry point.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/smartdoc/internal/app"
	"github.com/hyperjump/smartdoc/internal/config"
	"github.com/hyperjump/smartdoc/pkg/utils"
)

var version = "dev"

var (
	configPath string
	debugFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "smartdoc",
	Short: "Chat with your documents",
	Long: `SmartDoc indexes PDF, Word, text and other documents and answers questions
about them with a language model, citing the passages it used.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "config file path")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads --config, falling back to defaults when the default file is absent.
func loadConfig() (*config.Config, error) {
	if configPath == config.DefaultPath {
		return config.LoadOrDefault(configPath)
	}
	return config.Load(configPath)
}

// logSink selects where openApp sends logs.
type logSink int

const (
	logStderr logSink = iota
	logFile
)

// openApp loads config and wires the application. Terminal UIs log to a file
// next to the index directory instead of stderr.
func openApp(sink logSink) (*app.App, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	debug := cfg.Debug || debugFlag
	var logger *zap.Logger
	if sink == logFile {
		dir := filepath.Dir(cfg.Storage.IndexDir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		logger, err = utils.NewFileLogger(filepath.Join(dir, "smartdoc.log"), debug)
	} else {
		logger, err = utils.NewLogger(debug)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", configPath), zap.Bool("debug", debug))

	a, err := app.New(cfg, app.WithLogger(logger))
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return a, logger, nil
}

// splitAskArgs separates leading file arguments from the question. Arguments
// are files while they name existing paths; the rest is the question.
func splitAskArgs(args []string) (files []string, question string) {
	i := 0
	for ; i < len(args)-1; i++ {
		if info, err := os.Stat(args[i]); err != nil || info.IsDir() {
			break
		}
	}
	return args[:i], strings.TrimSpace(strings.Join(args[i:], " "))
}
