package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/pdf-chat/backend/internal/handler/chat"
	"github.com/zhouzirui/pdf-chat/backend/internal/handler/health"
	"github.com/zhouzirui/pdf-chat/backend/internal/handler/stream"
	"github.com/zhouzirui/pdf-chat/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/pdf-chat/backend/internal/middleware"
	"github.com/zhouzirui/pdf-chat/backend/internal/service/relay"
	"github.com/zhouzirui/pdf-chat/backend/pkg/utils"
)

// Options 控制路由的可选行为。
type Options struct {
	Region string
	// Heartbeat 是 SSE 心跳间隔，<= 0 时使用默认值。
	Heartbeat time.Duration
}

// NewRouter wires HTTP routes to the chat relay.
func NewRouter(r *relay.Relay, opts Options, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewarePkg.RequestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middlewarePkg.CORS)

	// Create handlers
	chatHandler := chat.New(r)
	streamHandler := stream.New(r, opts.Heartbeat, logger.Named("stream"))
	wsHandler := ws.New(r, logger.Named("ws"))

	health.New(opts.Region).RegisterRoutes(router)

	router.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)

		// SSE 版本：先推送 "Gathering info ..."，回答到达后推送完整消息
		api.Get("/stream/{sessionID}", func(w http.ResponseWriter, req *http.Request) {
			sessionID := chi.URLParam(req, "sessionID")
			userMessage := strings.TrimSpace(req.URL.Query().Get("message"))

			if userMessage == "" {
				utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
				return
			}

			err := streamHandler.HandleStreamRequest(req.Context(), w, sessionID, userMessage)
			switch {
			case err == nil:
			case errors.Is(err, stream.ErrStreamingUnsupported):
				utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
			case errors.Is(err, context.Canceled):
				// client went away
			default:
				logger.Warn("stream request failed", zap.String("session_id", sessionID), zap.Error(err))
			}
		})
	})

	return router
}
