// Package kbadmin drives the Bedrock knowledge-base control plane: creating
// the knowledge base and its S3 data source, running ingestion jobs, and
// tearing everything down again.
package kbadmin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.uber.org/zap"

	"github.com/zhouzirui/pdf-chat/backend/internal/config"
	"github.com/zhouzirui/pdf-chat/backend/internal/model/kb"
)

var (
	ErrIngestionFailed = errors.New("ingestion job failed")
	ErrPollLimit       = errors.New("ingestion job did not complete within the poll limit")
	ErrMissingInput    = errors.New("missing required input")
)

// AgentAPI is the slice of the bedrock-agent client used here.
type AgentAPI interface {
	CreateKnowledgeBase(ctx context.Context, params *bedrockagent.CreateKnowledgeBaseInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.CreateKnowledgeBaseOutput, error)
	CreateDataSource(ctx context.Context, params *bedrockagent.CreateDataSourceInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.CreateDataSourceOutput, error)
	StartIngestionJob(ctx context.Context, params *bedrockagent.StartIngestionJobInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.StartIngestionJobOutput, error)
	GetIngestionJob(ctx context.Context, params *bedrockagent.GetIngestionJobInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.GetIngestionJobOutput, error)
	DeleteDataSource(ctx context.Context, params *bedrockagent.DeleteDataSourceInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.DeleteDataSourceOutput, error)
	DeleteKnowledgeBase(ctx context.Context, params *bedrockagent.DeleteKnowledgeBaseInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.DeleteKnowledgeBaseOutput, error)
	ListKnowledgeBases(ctx context.Context, params *bedrockagent.ListKnowledgeBasesInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.ListKnowledgeBasesOutput, error)
	ListDataSources(ctx context.Context, params *bedrockagent.ListDataSourcesInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.ListDataSourcesOutput, error)
}

// IdentityAPI resolves the caller's account.
type IdentityAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// ObjectAPI uploads documents to the data source bucket.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// IndexDeleter removes a vector index from the collection.
type IndexDeleter interface {
	Delete(ctx context.Context, name string) error
}

// Deps groups the clients the admin client talks to. Only Agent is required;
// the others are needed by the operations that use them.
type Deps struct {
	Agent    AgentAPI
	Identity IdentityAPI
	Objects  ObjectAPI
	Index    IndexDeleter
}

// Client performs the administrative operations.
type Client struct {
	deps   Deps
	region string
	poll   config.IngestionConfig
	logger *zap.Logger

	mu      sync.Mutex
	account string
}

// New builds an admin client.
func New(deps Deps, region string, poll config.IngestionConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if poll.MaxPolls <= 0 {
		poll.MaxPolls = 90
	}
	if poll.PollInterval < 0 {
		poll.PollInterval = 0
	}
	return &Client{deps: deps, region: region, poll: poll, logger: logger}
}

// CreateKnowledgeBase creates a vector knowledge base backed by an
// OpenSearch Serverless index and returns its id.
func (c *Client) CreateKnowledgeBase(ctx context.Context, spec kb.KnowledgeBaseSpec) (string, error) {
	if spec.Name == "" || spec.VectorIndexName == "" {
		return "", fmt.Errorf("%w: knowledge base name and vector index name", ErrMissingInput)
	}

	roleARN, err := c.roleARN(ctx, spec)
	if err != nil {
		return "", err
	}
	collectionARN, err := c.collectionARN(ctx, spec)
	if err != nil {
		return "", err
	}

	input := &bedrockagent.CreateKnowledgeBaseInput{
		Name:    aws.String(spec.Name),
		RoleArn: aws.String(roleARN),
		KnowledgeBaseConfiguration: &types.KnowledgeBaseConfiguration{
			Type: types.KnowledgeBaseTypeVector,
			VectorKnowledgeBaseConfiguration: &types.VectorKnowledgeBaseConfiguration{
				EmbeddingModelArn: aws.String(c.modelARN(spec.EmbeddingModel)),
			},
		},
		StorageConfiguration: &types.StorageConfiguration{
			Type: types.KnowledgeBaseStorageTypeOpensearchServerless,
			OpensearchServerlessConfiguration: &types.OpenSearchServerlessConfiguration{
				CollectionArn:   aws.String(collectionARN),
				VectorIndexName: aws.String(spec.VectorIndexName),
				FieldMapping: &types.OpenSearchServerlessFieldMapping{
					VectorField:   aws.String(kb.VectorField),
					TextField:     aws.String(kb.TextField),
					MetadataField: aws.String(kb.MetadataField),
				},
			},
		},
	}
	if spec.Description != "" {
		input.Description = aws.String(spec.Description)
	}

	out, err := c.deps.Agent.CreateKnowledgeBase(ctx, input)
	if err != nil {
		return "", fmt.Errorf("create knowledge base %s: %w", spec.Name, err)
	}
	if out.KnowledgeBase == nil {
		return "", fmt.Errorf("create knowledge base %s: empty response", spec.Name)
	}

	id := aws.ToString(out.KnowledgeBase.KnowledgeBaseId)
	c.logger.Info("created knowledge base",
		zap.String("knowledge_base_id", id),
		zap.String("status", string(out.KnowledgeBase.Status)),
	)
	return id, nil
}

// CreateDataSource attaches an S3 data source with fixed-size chunking.
func (c *Client) CreateDataSource(ctx context.Context, spec kb.DataSourceSpec) (string, error) {
	if spec.Name == "" || spec.KnowledgeBaseID == "" || spec.BucketName == "" {
		return "", fmt.Errorf("%w: data source name, knowledge base id and bucket", ErrMissingInput)
	}

	chunking := spec.Chunking
	if chunking.MaxTokens <= 0 {
		chunking = kb.DefaultChunking()
	}

	input := &bedrockagent.CreateDataSourceInput{
		KnowledgeBaseId: aws.String(spec.KnowledgeBaseID),
		Name:            aws.String(spec.Name),
		DataSourceConfiguration: &types.DataSourceConfiguration{
			Type: types.DataSourceTypeS3,
			S3Configuration: &types.S3DataSourceConfiguration{
				BucketArn:         aws.String("arn:aws:s3:::" + spec.BucketName),
				InclusionPrefixes: spec.InclusionPrefixes,
			},
		},
		VectorIngestionConfiguration: &types.VectorIngestionConfiguration{
			ChunkingConfiguration: &types.ChunkingConfiguration{
				ChunkingStrategy: types.ChunkingStrategyFixedSize,
				FixedSizeChunkingConfiguration: &types.FixedSizeChunkingConfiguration{
					MaxTokens:         aws.Int32(chunking.MaxTokens),
					OverlapPercentage: aws.Int32(chunking.OverlapPercentage),
				},
			},
		},
	}
	if spec.Description != "" {
		input.Description = aws.String(spec.Description)
	}

	out, err := c.deps.Agent.CreateDataSource(ctx, input)
	if err != nil {
		return "", fmt.Errorf("create data source %s: %w", spec.Name, err)
	}
	if out.DataSource == nil {
		return "", fmt.Errorf("create data source %s: empty response", spec.Name)
	}

	id := aws.ToString(out.DataSource.DataSourceId)
	c.logger.Info("created data source",
		zap.String("knowledge_base_id", spec.KnowledgeBaseID),
		zap.String("data_source_id", id),
	)
	return id, nil
}

// ListKnowledgeBases returns every knowledge base in the region.
func (c *Client) ListKnowledgeBases(ctx context.Context) ([]kb.Summary, error) {
	var (
		summaries []kb.Summary
		token     *string
	)
	for {
		out, err := c.deps.Agent.ListKnowledgeBases(ctx, &bedrockagent.ListKnowledgeBasesInput{NextToken: token})
		if err != nil {
			return nil, fmt.Errorf("list knowledge bases: %w", err)
		}
		for _, s := range out.KnowledgeBaseSummaries {
			summaries = append(summaries, kb.Summary{
				ID:     aws.ToString(s.KnowledgeBaseId),
				Name:   aws.ToString(s.Name),
				Status: string(s.Status),
			})
		}
		if aws.ToString(out.NextToken) == "" {
			return summaries, nil
		}
		token = out.NextToken
	}
}

// ListDataSources returns the data sources of a knowledge base.
func (c *Client) ListDataSources(ctx context.Context, knowledgeBaseID string) ([]kb.Summary, error) {
	var (
		summaries []kb.Summary
		token     *string
	)
	for {
		out, err := c.deps.Agent.ListDataSources(ctx, &bedrockagent.ListDataSourcesInput{
			KnowledgeBaseId: aws.String(knowledgeBaseID),
			NextToken:       token,
		})
		if err != nil {
			return nil, fmt.Errorf("list data sources of %s: %w", knowledgeBaseID, err)
		}
		for _, s := range out.DataSourceSummaries {
			summaries = append(summaries, kb.Summary{
				ID:     aws.ToString(s.DataSourceId),
				Name:   aws.ToString(s.Name),
				Status: string(s.Status),
			})
		}
		if aws.ToString(out.NextToken) == "" {
			return summaries, nil
		}
		token = out.NextToken
	}
}

func (c *Client) modelARN(model string) string {
	if strings.HasPrefix(model, "arn:") {
		return model
	}
	return fmt.Sprintf("arn:aws:bedrock:%s::foundation-model/%s", c.region, model)
}

func (c *Client) roleARN(ctx context.Context, spec kb.KnowledgeBaseSpec) (string, error) {
	if spec.RoleARN != "" {
		return spec.RoleARN, nil
	}
	if spec.RoleName == "" {
		return "", fmt.Errorf("%w: execution role", ErrMissingInput)
	}
	account, err := c.accountID(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", account, spec.RoleName), nil
}

func (c *Client) collectionARN(ctx context.Context, spec kb.KnowledgeBaseSpec) (string, error) {
	if spec.CollectionARN != "" {
		return spec.CollectionARN, nil
	}
	if spec.CollectionID == "" {
		return "", fmt.Errorf("%w: collection", ErrMissingInput)
	}
	account, err := c.accountID(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("arn:aws:aoss:%s:%s:collection/%s", c.region, account, spec.CollectionID), nil
}

func (c *Client) accountID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.account != "" {
		return c.account, nil
	}
	if c.deps.Identity == nil {
		return "", fmt.Errorf("%w: caller identity client", ErrMissingInput)
	}

	out, err := c.deps.Identity.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("get caller identity: %w", err)
	}
	c.account = aws.ToString(out.Account)
	return c.account, nil
}

func since(start time.Time) zap.Field {
	return zap.Duration("elapsed", time.Since(start).Round(time.Millisecond))
}
