package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/pdf-chat/backend/internal/awsclient"
	"github.com/zhouzirui/pdf-chat/backend/internal/config"
	"github.com/zhouzirui/pdf-chat/backend/internal/handler"
	"github.com/zhouzirui/pdf-chat/backend/internal/logging"
	"github.com/zhouzirui/pdf-chat/backend/internal/service/chat"
	"github.com/zhouzirui/pdf-chat/backend/internal/service/exports"
	"github.com/zhouzirui/pdf-chat/backend/internal/service/gateway"
	"github.com/zhouzirui/pdf-chat/backend/internal/service/relay"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Must(cfg.LogLevel)
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Info("no .env file loaded, continuing with system environment variables only", zap.Error(envErr))
	}

	if err := cfg.Relay.Validate(); err != nil {
		logger.Fatal("invalid relay configuration", zap.Error(err))
	}

	awsCfg, err := awsclient.Load(ctx, cfg.AWS.Region)
	if err != nil {
		logger.Fatal("failed to load aws configuration", zap.Error(err))
	}
	clients := awsclient.NewClients(awsCfg, cfg.Relay.InvokeTimeout)

	store, err := newStore(cfg.Relay)
	if err != nil {
		logger.Fatal("failed to open transcript store", zap.Error(err))
	}
	defer store.Close()

	invoker := newInvoker(cfg, clients, logger)
	r := relay.New(invoker, store, cfg.Relay.SessionPolicy, logger.Named("relay"))

	router := handler.NewRouter(r, handler.Options{Region: awsCfg.Region}, logger)

	startServer(ctx, cfg.Server, router, logger)
}

// newStore 根据 CHAT_DB_PATH 选择 SQLite 或内存存储。
func newStore(cfg config.RelayConfig) (chat.Store, error) {
	if cfg.ChatDBPath == "" {
		return chat.NewMemoryStore(), nil
	}
	return chat.NewSQLiteStore(cfg.ChatDBPath)
}

// newInvoker 选择下游：lambda 模式调用已部署的函数，local 模式在进程内运行网关。
func newInvoker(cfg *config.Config, clients *awsclient.Clients, logger *zap.Logger) relay.Invoker {
	if cfg.Relay.Mode == config.RelayModeLocal {
		resolver := exports.NewResolver(clients.CloudFormation, logger.Named("exports"))
		g := gateway.New(clients.AgentRuntime, resolver, cfg.Gateway, clients.Config.Region, logger.Named("gateway"))
		logger.Info("relaying to in-process gateway", zap.String("model", g.ModelARN()))
		return relay.NewLocalInvoker(g.Handle)
	}

	logger.Info("relaying to lambda", zap.String("function", cfg.Relay.LambdaFunctionName))
	return relay.NewLambdaInvoker(clients.Lambda, cfg.Relay.LambdaFunctionName)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("chat relay listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
