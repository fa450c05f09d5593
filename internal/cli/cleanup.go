package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/pdf-chat/backend/internal/model/kb"
)

var (
	cleanupKBID  string
	cleanupDSID  string
	cleanupIndex string
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete the data source, knowledge base and vector index",
	Long: `Deletes the data source, then the knowledge base, then the vector index.
Every deletion is attempted even if an earlier one fails; resources whose id is
not given are skipped. The index name falls back to the config default.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().StringVar(&cleanupKBID, "kb-id", "", "knowledge base id")
	cleanupCmd.Flags().StringVar(&cleanupDSID, "ds-id", "", "data source id")
	cleanupCmd.Flags().StringVar(&cleanupIndex, "index", "", "vector index name (default from config)")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	if services == nil || services.Admin == nil {
		return errors.New("admin service not configured")
	}

	report := services.Admin.Cleanup(cmd.Context(), kb.CleanupTarget{
		KnowledgeBaseID: cleanupKBID,
		DataSourceID:    cleanupDSID,
		IndexName:       firstNonEmpty(cleanupIndex, defaults.IndexName),
	})

	for _, step := range report.Steps {
		switch {
		case step.Skipped:
			cmd.Printf("  skip    %s\n", step.Resource)
		case step.Err != nil:
			cmd.Printf("  failed  %s %s: %v\n", step.Resource, step.ID, step.Err)
		default:
			cmd.Printf("  deleted %s %s\n", step.Resource, step.ID)
		}
	}
	return report.Err()
}
