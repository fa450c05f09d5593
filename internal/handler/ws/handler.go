package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/pdf-chat/backend/internal/model/chat"
	"github.com/zhouzirui/pdf-chat/backend/internal/service/relay"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 25 * time.Second
	writeTimeout = 10 * time.Second
)

// Handler WebSocket 聊天处理器：每个文本帧 {prompt} 对应一个回复帧。
type Handler struct {
	relay    *relay.Relay
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// New 创建WebSocket处理器
func New(r *relay.Relay, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		relay:  r,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type   string `json:"type"`
	Prompt string `json:"prompt"`
}

type outgoingMessage struct {
	Type      string           `json:"type"`
	SessionID string           `json:"sessionId,omitempty"`
	Data      *chat.RelayReply `json:"data,omitempty"`
	Error     string           `json:"error,omitempty"`
	Timestamp int64            `json:"timestamp"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	// gorilla connections allow one concurrent writer; pings go through the
	// same channel as replies.
	out := make(chan outgoingMessage, 4)
	go h.writeLoop(ctx, cancel, conn, out)

	h.logger.Info("websocket connected", zap.String("session_id", sessionID))
	send(ctx, out, outgoingMessage{Type: "connected", SessionID: sessionID})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		if msg.Type != "" && msg.Type != "prompt" {
			send(ctx, out, outgoingMessage{Type: "error", SessionID: sessionID, Error: "unsupported message type: " + msg.Type})
			continue
		}

		reply := h.relay.Send(ctx, msg.Prompt, sessionID)
		sessionID = reply.SessionID

		if !send(ctx, out, outgoingMessage{Type: "reply", SessionID: sessionID, Data: &reply}) {
			return
		}
	}
}

func send(ctx context.Context, out chan<- outgoingMessage, msg outgoingMessage) bool {
	msg.Timestamp = time.Now().Unix()
	select {
	case out <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

func (h *Handler) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out <-chan outgoingMessage) {
	defer cancel()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-out:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Warn("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
