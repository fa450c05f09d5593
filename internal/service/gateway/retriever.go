package gateway

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// DefaultTopK is the number of chunks returned when no option overrides it.
const DefaultTopK = 3

// MetaLocation is the document metadata key holding the source URI.
const MetaLocation = "location"

// RetrieveAPI is the slice of the agent runtime client used for vector search.
type RetrieveAPI interface {
	Retrieve(ctx context.Context, params *bedrockagentruntime.RetrieveInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveOutput, error)
}

// Retriever runs a plain vector search against a knowledge base, without generation.
type Retriever struct {
	client          RetrieveAPI
	knowledgeBaseID string
	topK            int
}

var _ retriever.Retriever = (*Retriever)(nil)

// NewRetriever returns a retriever over knowledgeBaseID. topK <= 0 uses DefaultTopK.
func NewRetriever(client RetrieveAPI, knowledgeBaseID string, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{client: client, knowledgeBaseID: knowledgeBaseID, topK: topK}
}

// Retrieve implements retriever.Retriever. retriever.WithTopK overrides the default.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	topK := r.topK
	options := retriever.GetCommonOptions(&retriever.Options{TopK: &topK}, opts...)
	if options.TopK != nil && *options.TopK > 0 {
		topK = *options.TopK
	}

	out, err := r.client.Retrieve(ctx, &bedrockagentruntime.RetrieveInput{
		KnowledgeBaseId: aws.String(r.knowledgeBaseID),
		RetrievalQuery:  &types.KnowledgeBaseQuery{Text: aws.String(query)},
		RetrievalConfiguration: &types.KnowledgeBaseRetrievalConfiguration{
			VectorSearchConfiguration: &types.KnowledgeBaseVectorSearchConfiguration{
				NumberOfResults: aws.Int32(int32(topK)),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	docs := make([]*schema.Document, 0, len(out.RetrievalResults))
	for i, result := range out.RetrievalResults {
		doc := &schema.Document{
			ID:       fmt.Sprintf("%s-%d", r.knowledgeBaseID, i),
			MetaData: map[string]any{},
		}
		if result.Content != nil {
			doc.Content = aws.ToString(result.Content.Text)
		}
		if location := locationURI(result.Location); location != "" {
			doc.MetaData[MetaLocation] = location
		}
		if result.Score != nil {
			doc = doc.WithScore(*result.Score)
		}
		if options.ScoreThreshold != nil && doc.Score() < *options.ScoreThreshold {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// NewSearchChain compiles an eino chain that feeds a query through r.
func NewSearchChain(ctx context.Context, r retriever.Retriever) (compose.Runnable[string, []*schema.Document], error) {
	chain := compose.NewChain[string, []*schema.Document]()
	chain.AppendRetriever(r)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile search chain: %w", err)
	}
	return runnable, nil
}
