// Package cli implements the kbadmin command tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/pdf-chat/backend/internal/config"
	"github.com/zhouzirui/pdf-chat/backend/internal/logging"
)

var (
	configPath string
	region     string
	endpoint   string
	logLevel   string
)

// Populated by PersistentPreRunE before any command runs.
var (
	appConfig *config.Config
	defaults  config.AdminDefaults
	logger    = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "kbadmin",
	Short: "Manage the knowledge base behind the PDF chat",
	Long: `kbadmin uploads documents, provisions the vector index, knowledge base
and data source, runs ingestion jobs and queries the knowledge base.

Defaults are read from a TOML file (--config) and overridden by flags.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "kbadmin.toml", "path to the TOML defaults file")
	rootCmd.PersistentFlags().StringVar(&region, "region", "", "AWS region (defaults to AWS_REGION)")
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "OpenSearch Serverless collection endpoint (defaults to COLLECTION_ENDPOINT)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (defaults to LOG_LEVEL)")
}

// Execute runs the command tree.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	appConfig = cfg

	defaults, err = config.LoadAdminDefaults(configPath)
	if err != nil {
		return err
	}

	l, err := logging.New(firstNonEmpty(logLevel, cfg.LogLevel))
	if err != nil {
		return err
	}
	logger = l

	if services != nil {
		return nil
	}
	services, err = buildServices(cmd.Context(), firstNonEmpty(region, cfg.AWS.Region), firstNonEmpty(endpoint, cfg.Index.CollectionEndpoint))
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int32) int32 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
