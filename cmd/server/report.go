package main

import (
	"fmt"
	"os"

	"github.com/ashureev/persona-predict/internal/store"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var reportDB string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the analytics reports as YAML",
	Long:  `Runs every analytics query against the audit database and writes the results to stdout.`,
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportDB, "db", "", "audit database path (default $LOG_DB or logs.db)")
}

func runReport(cmd *cobra.Command, _ []string) error {
	path := reportDB
	if path == "" {
		path = os.Getenv("LOG_DB")
	}
	if path == "" {
		path = "logs.db"
	}

	audit, err := store.NewSQLite(path)
	if err != nil {
		return fmt.Errorf("open audit database: %w", err)
	}
	defer func() { _ = audit.Close() }()

	reports, err := audit.FetchLogs(cmd.Context())
	if err != nil {
		return fmt.Errorf("fetch logs: %w", err)
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(reports); err != nil {
		return fmt.Errorf("encode reports: %w", err)
	}
	return enc.Close()
}
