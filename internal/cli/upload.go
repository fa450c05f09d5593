package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	uploadBucket string
	uploadDir    string
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload local documents to the data source bucket",
	Long: `Uploads every file under the data directory to the S3 bucket the
knowledge base's data source reads from. Keys are relative paths.`,
	Args: cobra.NoArgs,
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVar(&uploadBucket, "bucket", "", "destination bucket (default from config)")
	uploadCmd.Flags().StringVar(&uploadDir, "dir", "", "local directory to upload (default from config)")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, _ []string) error {
	if services == nil || services.Admin == nil {
		return errors.New("admin service not configured")
	}

	bucket := firstNonEmpty(uploadBucket, defaults.BucketName)
	dir := firstNonEmpty(uploadDir, defaults.DataDir)

	keys, err := services.Admin.UploadDocuments(cmd.Context(), bucket, dir)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	for _, key := range keys {
		cmd.Printf("  s3://%s/%s\n", bucket, key)
	}
	cmd.Printf("Uploaded %d file(s).\n", len(keys))
	return nil
}
