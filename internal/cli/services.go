package cli

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/components/retriever"

	"github.com/zhouzirui/pdf-chat/backend/internal/awsclient"
	"github.com/zhouzirui/pdf-chat/backend/internal/config"
	"github.com/zhouzirui/pdf-chat/backend/internal/model/kb"
	"github.com/zhouzirui/pdf-chat/backend/internal/service/exports"
	"github.com/zhouzirui/pdf-chat/backend/internal/service/gateway"
	"github.com/zhouzirui/pdf-chat/backend/internal/service/kbadmin"
	"github.com/zhouzirui/pdf-chat/backend/internal/service/vectorindex"
)

var errNoEndpoint = errors.New("collection endpoint is required (--endpoint or COLLECTION_ENDPOINT)")

// AdminService is implemented by *kbadmin.Client.
type AdminService interface {
	UploadDocuments(ctx context.Context, bucket, dir string) ([]string, error)
	CreateKnowledgeBase(ctx context.Context, spec kb.KnowledgeBaseSpec) (string, error)
	CreateDataSource(ctx context.Context, spec kb.DataSourceSpec) (string, error)
	ExecuteIngestionJob(ctx context.Context, knowledgeBaseID, dataSourceID string) (kb.IngestionJob, error)
	ListKnowledgeBases(ctx context.Context) ([]kb.Summary, error)
	ListDataSources(ctx context.Context, knowledgeBaseID string) ([]kb.Summary, error)
	Cleanup(ctx context.Context, target kb.CleanupTarget) kbadmin.CleanupReport
}

// IndexService is implemented by *vectorindex.Client.
type IndexService interface {
	Create(ctx context.Context, name string, schema kb.IndexSchema) error
	Exists(ctx context.Context, name string) (bool, error)
	Delete(ctx context.Context, name string) error
}

// OutputService is implemented by *exports.Resolver.
type OutputService interface {
	StackOutputs(ctx context.Context, stack string) (map[string]string, error)
}

// Asker is implemented by *gateway.Gateway.
type Asker interface {
	Answer(ctx context.Context, query, sessionID string) (gateway.Answer, error)
}

// Services holds everything the commands talk to. Tests replace it wholesale.
type Services struct {
	Admin        AdminService
	Outputs      OutputService
	NewIndex     func() (IndexService, error)
	NewAsker     func(cfg config.GatewayConfig) Asker
	NewRetriever func(knowledgeBaseID string, topK int) retriever.Retriever
}

var services *Services

func buildServices(ctx context.Context, region, collectionEndpoint string) (*Services, error) {
	awsCfg, err := awsclient.Load(ctx, region)
	if err != nil {
		return nil, err
	}
	clients := awsclient.NewClients(awsCfg, 0)

	newIndex := func() (IndexService, error) {
		if collectionEndpoint == "" {
			return nil, errNoEndpoint
		}
		return vectorindex.NewServerlessClient(awsCfg, collectionEndpoint, logger.Named("opensearch"))
	}

	deps := kbadmin.Deps{
		Agent:    clients.Agent,
		Identity: clients.STS,
		Objects:  clients.S3,
	}
	if collectionEndpoint != "" {
		index, err := newIndex()
		if err != nil {
			return nil, err
		}
		deps.Index = index
	}

	resolver := exports.NewResolver(clients.CloudFormation, logger.Named("exports"))

	return &Services{
		Admin:    kbadmin.New(deps, awsCfg.Region, appConfig.Ingestion, logger.Named("kbadmin")),
		Outputs:  resolver,
		NewIndex: newIndex,
		NewAsker: func(cfg config.GatewayConfig) Asker {
			return gateway.New(clients.AgentRuntime, resolver, cfg, awsCfg.Region, logger.Named("gateway"))
		},
		NewRetriever: func(knowledgeBaseID string, topK int) retriever.Retriever {
			return gateway.NewRetriever(clients.AgentRuntime, knowledgeBaseID, topK)
		},
	}, nil
}
