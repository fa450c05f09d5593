package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/pdf-chat/backend/internal/awsclient"
	"github.com/zhouzirui/pdf-chat/backend/internal/config"
	"github.com/zhouzirui/pdf-chat/backend/internal/logging"
	"github.com/zhouzirui/pdf-chat/backend/internal/model/kb"
	"github.com/zhouzirui/pdf-chat/backend/internal/service/vectorindex"
)

// 向量索引创建器的 Lambda 入口，由部署流程在集合创建后调用一次。
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Must(cfg.LogLevel)
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := cfg.Index.Validate(); err != nil {
		logger.Fatal("invalid indexer configuration", zap.Error(err))
	}

	region := cfg.AWS.Region
	factory := func() (vectorindex.Creator, error) {
		awsCfg, err := awsclient.Load(context.Background(), region)
		if err != nil {
			return nil, err
		}
		return vectorindex.NewServerlessClient(awsCfg, cfg.Index.CollectionEndpoint, logger.Named("opensearch"))
	}

	provisioner := vectorindex.NewProvisioner(factory, kb.DefaultIndexSchema(), cfg.Index, logger.Named("indexer"))

	lambda.Start(func(ctx context.Context) (vectorindex.Result, error) {
		return provisioner.Ensure(ctx)
	})
}
