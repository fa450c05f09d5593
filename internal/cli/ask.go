package cli

import (
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/compose"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/pdf-chat/backend/internal/service/gateway"
)

var (
	askKBID    string
	askModel   string
	askSession string
	askJSON    bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask the knowledge base a question",
	Long: `Answers a question with RetrieveAndGenerate: relevant chunks are retrieved
from the knowledge base and the foundation model writes the answer.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

var (
	retrieveKBID     string
	retrieveTopK     int
	retrieveMinScore float64
	retrieveJSON     bool
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve [query]",
	Short: "Search the knowledge base without generating an answer",
	Args:  cobra.ExactArgs(1),
	RunE:  runRetrieve,
}

func init() {
	askCmd.Flags().StringVar(&askKBID, "kb-id", "", "knowledge base id (defaults to KNOWLEDGE_BASE_ID or the stack export)")
	askCmd.Flags().StringVar(&askModel, "model", "", "foundation model id (default from config)")
	askCmd.Flags().StringVar(&askSession, "session", "", "continue an existing session")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(askCmd)

	retrieveCmd.Flags().StringVar(&retrieveKBID, "kb-id", "", "knowledge base id")
	retrieveCmd.Flags().IntVarP(&retrieveTopK, "top-k", "k", gateway.DefaultTopK, "number of chunks to return")
	retrieveCmd.Flags().Float64Var(&retrieveMinScore, "min-score", 0, "drop chunks scoring below this")
	retrieveCmd.Flags().BoolVar(&retrieveJSON, "json", false, "output as JSON")
	_ = retrieveCmd.MarkFlagRequired("kb-id")
	rootCmd.AddCommand(retrieveCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if services == nil || services.NewAsker == nil {
		return errors.New("gateway not configured")
	}

	cfg := appConfig.Gateway
	cfg.KnowledgeBaseID = firstNonEmpty(askKBID, cfg.KnowledgeBaseID)
	cfg.ModelID = firstNonEmpty(askModel, defaults.ModelID, cfg.ModelID)
	if askSession != "" {
		cfg.ForwardSessionID = true
	}

	answer, err := services.NewAsker(cfg).Answer(cmd.Context(), args[0], askSession)
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	if askJSON {
		return printJSON(cmd, answer)
	}

	cmd.Println(answer.Text)
	if answer.SessionID != "" {
		cmd.Printf("\nSession: %s\n", answer.SessionID)
	}
	n := 0
	for _, citation := range answer.Citations {
		for _, ref := range citation.References {
			n++
			cmd.Printf("  [%d] %s\n", n, ref.Location)
		}
	}
	return nil
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	if services == nil || services.NewRetriever == nil {
		return errors.New("retriever not configured")
	}

	ctx := cmd.Context()
	chain, err := gateway.NewSearchChain(ctx, services.NewRetriever(retrieveKBID, retrieveTopK))
	if err != nil {
		return err
	}

	var opts []compose.Option
	if retrieveMinScore > 0 {
		opts = append(opts, compose.WithRetrieverOption(retriever.WithScoreThreshold(retrieveMinScore)))
	}

	docs, err := chain.Invoke(ctx, args[0], opts...)
	if err != nil {
		return fmt.Errorf("retrieve failed: %w", err)
	}

	if retrieveJSON {
		return printJSON(cmd, docs)
	}
	if len(docs) == 0 {
		cmd.Println("No results found.")
		return nil
	}
	for i, doc := range docs {
		cmd.Printf("  [%d] %.3f %v\n", i+1, doc.Score(), doc.MetaData[gateway.MetaLocation])
		cmd.Printf("      %s\n", doc.Content)
	}
	return nil
}
