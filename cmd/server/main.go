// Persona prediction server.
package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "persona-predict",
	Short: "Persona to assistant prediction web app",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		setupLogger()
		if err := godotenv.Load(); err != nil {
			slog.Info("No .env file found, using environment variables")
		}
	},
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd, reportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// logLevel starts at info and is raised or lowered once config is loaded.
var logLevel slog.LevelVar

func setupLogger() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: &logLevel,
	}))
	slog.SetDefault(logger)
}

// setLogLevel applies a LOG_LEVEL value such as "debug" or "WARN".
// Unknown values fall back to info.
func setLogLevel(raw string) {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		slog.Warn("Unknown log level, using info", "level", raw)
		level = slog.LevelInfo
	}
	logLevel.Set(level)
}
