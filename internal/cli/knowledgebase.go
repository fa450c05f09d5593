package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/pdf-chat/backend/internal/model/kb"
)

var (
	kbName           string
	kbDescription    string
	kbRole           string
	kbRoleARN        string
	kbCollectionID   string
	kbCollectionARN  string
	kbIndex          string
	kbEmbeddingModel string
)

var createKBCmd = &cobra.Command{
	Use:   "create-kb",
	Short: "Create a vector knowledge base",
	Long: `Creates a vector knowledge base stored in an OpenSearch Serverless
collection. Role and collection can be given as bare names/ids, which are
expanded to ARNs with the caller's account.`,
	Args: cobra.NoArgs,
	RunE: runCreateKB,
}

var (
	dsName      string
	dsKBID      string
	dsBucket    string
	dsPrefix    string
	dsMaxTokens int32
	dsOverlap   int32
)

var createDataSourceCmd = &cobra.Command{
	Use:   "create-datasource",
	Short: "Attach an S3 data source to a knowledge base",
	Args:  cobra.NoArgs,
	RunE:  runCreateDataSource,
}

var (
	listJSON bool
	listKBID string
)

var listKBsCmd = &cobra.Command{
	Use:   "list-kbs",
	Short: "List knowledge bases in the region",
	Args:  cobra.NoArgs,
	RunE:  runListKBs,
}

var listDataSourcesCmd = &cobra.Command{
	Use:   "list-datasources",
	Short: "List the data sources of a knowledge base",
	Args:  cobra.NoArgs,
	RunE:  runListDataSources,
}

func init() {
	createKBCmd.Flags().StringVar(&kbName, "name", "", "knowledge base name (default from config)")
	createKBCmd.Flags().StringVar(&kbDescription, "description", "", "knowledge base description")
	createKBCmd.Flags().StringVar(&kbRole, "role", "", "execution role name (default from config)")
	createKBCmd.Flags().StringVar(&kbRoleARN, "role-arn", "", "execution role ARN; overrides --role")
	createKBCmd.Flags().StringVar(&kbCollectionID, "collection-id", "", "OpenSearch Serverless collection id")
	createKBCmd.Flags().StringVar(&kbCollectionARN, "collection-arn", "", "collection ARN; overrides --collection-id")
	createKBCmd.Flags().StringVar(&kbIndex, "index", "", "vector index name (default from config)")
	createKBCmd.Flags().StringVar(&kbEmbeddingModel, "embedding-model", "", "embedding model id (default from config)")
	rootCmd.AddCommand(createKBCmd)

	createDataSourceCmd.Flags().StringVar(&dsKBID, "kb-id", "", "knowledge base id")
	createDataSourceCmd.Flags().StringVar(&dsName, "name", "", "data source name (defaults to <bucket>-datasource)")
	createDataSourceCmd.Flags().StringVar(&dsBucket, "bucket", "", "source bucket (default from config)")
	createDataSourceCmd.Flags().StringVar(&dsPrefix, "prefix", "", "only ingest keys under this prefix")
	createDataSourceCmd.Flags().Int32Var(&dsMaxTokens, "max-tokens", 0, "chunk size in tokens (default from config)")
	createDataSourceCmd.Flags().Int32Var(&dsOverlap, "overlap", 0, "chunk overlap percentage (default from config)")
	_ = createDataSourceCmd.MarkFlagRequired("kb-id")
	rootCmd.AddCommand(createDataSourceCmd)

	listKBsCmd.Flags().BoolVar(&listJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(listKBsCmd)

	listDataSourcesCmd.Flags().StringVar(&listKBID, "kb-id", "", "knowledge base id")
	listDataSourcesCmd.Flags().BoolVar(&listJSON, "json", false, "output as JSON")
	_ = listDataSourcesCmd.MarkFlagRequired("kb-id")
	rootCmd.AddCommand(listDataSourcesCmd)
}

func runCreateKB(cmd *cobra.Command, _ []string) error {
	if services == nil || services.Admin == nil {
		return errors.New("admin service not configured")
	}
	if kbCollectionID == "" && kbCollectionARN == "" {
		return errors.New("one of --collection-id or --collection-arn is required")
	}

	spec := kb.KnowledgeBaseSpec{
		Name:            firstNonEmpty(kbName, defaults.KnowledgeBaseName),
		Description:     kbDescription,
		RoleName:        firstNonEmpty(kbRole, defaults.ExecutionRole),
		RoleARN:         kbRoleARN,
		EmbeddingModel:  firstNonEmpty(kbEmbeddingModel, defaults.EmbeddingModel),
		CollectionID:    kbCollectionID,
		CollectionARN:   kbCollectionARN,
		VectorIndexName: firstNonEmpty(kbIndex, defaults.IndexName),
	}

	id, err := services.Admin.CreateKnowledgeBase(cmd.Context(), spec)
	if err != nil {
		return fmt.Errorf("create knowledge base failed: %w", err)
	}
	cmd.Printf("Created knowledge base %s (%s).\n", spec.Name, id)
	return nil
}

func runCreateDataSource(cmd *cobra.Command, _ []string) error {
	if services == nil || services.Admin == nil {
		return errors.New("admin service not configured")
	}

	bucket := firstNonEmpty(dsBucket, defaults.BucketName)
	spec := kb.DataSourceSpec{
		Name:            firstNonEmpty(dsName, bucket+"-datasource"),
		KnowledgeBaseID: dsKBID,
		BucketName:      bucket,
		Chunking: kb.ChunkingSpec{
			MaxTokens:         firstPositive(dsMaxTokens, defaults.ChunkMaxTokens),
			OverlapPercentage: firstPositive(dsOverlap, defaults.ChunkOverlap),
		},
	}
	if dsPrefix != "" {
		spec.InclusionPrefixes = []string{dsPrefix}
	}

	id, err := services.Admin.CreateDataSource(cmd.Context(), spec)
	if err != nil {
		return fmt.Errorf("create data source failed: %w", err)
	}
	cmd.Printf("Created data source %s (%s).\n", spec.Name, id)
	return nil
}

func runListKBs(cmd *cobra.Command, _ []string) error {
	if services == nil || services.Admin == nil {
		return errors.New("admin service not configured")
	}

	summaries, err := services.Admin.ListKnowledgeBases(cmd.Context())
	if err != nil {
		return fmt.Errorf("list knowledge bases failed: %w", err)
	}
	return outputSummaries(cmd, summaries, "No knowledge bases found.")
}

func runListDataSources(cmd *cobra.Command, _ []string) error {
	if services == nil || services.Admin == nil {
		return errors.New("admin service not configured")
	}

	summaries, err := services.Admin.ListDataSources(cmd.Context(), listKBID)
	if err != nil {
		return fmt.Errorf("list data sources failed: %w", err)
	}
	return outputSummaries(cmd, summaries, "No data sources found.")
}

func outputSummaries(cmd *cobra.Command, summaries []kb.Summary, empty string) error {
	if listJSON {
		return printJSON(cmd, summaries)
	}
	if len(summaries) == 0 {
		cmd.Println(empty)
		return nil
	}
	for _, s := range summaries {
		cmd.Printf("  %-12s %-32s %s\n", s.ID, s.Name, s.Status)
	}
	return nil
}
