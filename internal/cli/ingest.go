package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	ingestKBID string
	ingestDSID string
	ingestJSON bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run an ingestion job and wait for it to finish",
	Long: `Starts an ingestion job for the data source and polls its status until it
completes, fails, or the poll limit (INGESTION_MAX_POLLS) is reached.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestKBID, "kb-id", "", "knowledge base id")
	ingestCmd.Flags().StringVar(&ingestDSID, "ds-id", "", "data source id")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output the final job as JSON")
	_ = ingestCmd.MarkFlagRequired("kb-id")
	_ = ingestCmd.MarkFlagRequired("ds-id")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	if services == nil || services.Admin == nil {
		return errors.New("admin service not configured")
	}

	job, err := services.Admin.ExecuteIngestionJob(cmd.Context(), ingestKBID, ingestDSID)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	if ingestJSON {
		return printJSON(cmd, job)
	}
	cmd.Printf("Ingestion job %s %s.\n", job.ID, job.Status)
	cmd.Printf("  scanned=%d indexed=%d modified=%d deleted=%d failed=%d\n",
		job.Statistics.Scanned, job.Statistics.Indexed, job.Statistics.Modified,
		job.Statistics.Deleted, job.Statistics.Failed)
	return nil
}
