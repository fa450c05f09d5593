package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/pdf-chat/backend/internal/model/kb"
	"github.com/zhouzirui/pdf-chat/backend/internal/service/vectorindex"
)

var (
	indexName        string
	indexAttempts    int
	indexRetryDelay  time.Duration
	indexSettleDelay time.Duration
)

var createIndexCmd = &cobra.Command{
	Use:   "create-index",
	Short: "Create the k-NN vector index in the collection",
	Long: `Creates the vector index the knowledge base writes into. Failed attempts
are retried; an index that already exists counts as success.`,
	Args: cobra.NoArgs,
	RunE: runCreateIndex,
}

func init() {
	createIndexCmd.Flags().StringVar(&indexName, "index", "", "index name (default from config)")
	createIndexCmd.Flags().IntVar(&indexAttempts, "attempts", 0, "maximum attempts (defaults to INDEX_MAX_ATTEMPTS)")
	createIndexCmd.Flags().DurationVar(&indexRetryDelay, "retry-delay", 0, "delay between attempts (defaults to INDEX_RETRY_DELAY)")
	createIndexCmd.Flags().DurationVar(&indexSettleDelay, "settle-delay", 0, "wait before the first attempt (defaults to INDEX_SETTLE_DELAY)")
	rootCmd.AddCommand(createIndexCmd)
}

func runCreateIndex(cmd *cobra.Command, _ []string) error {
	if services == nil || services.NewIndex == nil {
		return errors.New("index service not configured")
	}

	cfg := appConfig.Index
	cfg.IndexName = firstNonEmpty(indexName, defaults.IndexName)
	if indexAttempts > 0 {
		cfg.MaxAttempts = indexAttempts
	}
	if cmd.Flags().Changed("retry-delay") {
		cfg.RetryDelay = indexRetryDelay
	}
	if cmd.Flags().Changed("settle-delay") {
		cfg.SettleDelay = indexSettleDelay
	}

	factory := func() (vectorindex.Creator, error) {
		return services.NewIndex()
	}
	provisioner := vectorindex.NewProvisioner(factory, kb.DefaultIndexSchema(), cfg, logger.Named("indexer"))

	result, err := provisioner.Ensure(cmd.Context())
	if err != nil {
		return fmt.Errorf("create index failed: %w", err)
	}

	if result.Created {
		cmd.Printf("Created index %s (attempt %d).\n", result.IndexName, result.Attempts)
	} else {
		cmd.Printf("Index %s already exists.\n", result.IndexName)
	}
	return nil
}
