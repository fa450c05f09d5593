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
	"github.com/zhouzirui/pdf-chat/backend/internal/service/exports"
	"github.com/zhouzirui/pdf-chat/backend/internal/service/gateway"
)

// 检索网关的 Lambda 入口。客户端在冷启动时构建一次，之后的调用复用。
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

	ctx := context.Background()
	awsCfg, err := awsclient.Load(ctx, cfg.AWS.Region)
	if err != nil {
		logger.Fatal("failed to load aws configuration", zap.Error(err))
	}
	clients := awsclient.NewClients(awsCfg, 0)

	resolver := exports.NewResolver(clients.CloudFormation, logger.Named("exports"))
	g := gateway.New(clients.AgentRuntime, resolver, cfg.Gateway, awsCfg.Region, logger.Named("gateway"))

	logger.Info("gateway ready",
		zap.String("region", awsCfg.Region),
		zap.String("model", g.ModelARN()),
		zap.Bool("forward_session_id", cfg.Gateway.ForwardSessionID),
	)
	lambda.Start(g.Handle)
}
