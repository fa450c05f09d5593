package stream

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/pdf-chat/backend/internal/model/chat"
	"github.com/zhouzirui/pdf-chat/backend/internal/service/relay"
	"github.com/zhouzirui/pdf-chat/backend/pkg/utils"
)

// GatheringInfo is shown while the gateway is working.
const GatheringInfo = "Gathering info ..."

// ErrStreamingUnsupported is returned when the writer cannot flush.
var ErrStreamingUnsupported = errors.New("streaming unsupported")

// Handler relays a prompt and reports progress via Server-Sent Events
type Handler struct {
	relay     *relay.Relay
	logger    *zap.Logger
	heartbeat time.Duration
}

// New creates a new stream handler. heartbeat <= 0 uses 8s.
func New(r *relay.Relay, heartbeat time.Duration, logger *zap.Logger) *Handler {
	if heartbeat <= 0 {
		heartbeat = 8 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{relay: r, logger: logger, heartbeat: heartbeat}
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Time      string `json:"time,omitempty"`
}

// HandleStreamRequest sends start, then heartbeats until the relay answers,
// then the assistant message and end.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID string, userMessage string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return ErrStreamingUnsupported
	}
	utils.SetupSSEHeaders(w)

	utils.SendSSEChunk(w, flusher, StreamResponse{
		Event:     "start",
		SessionID: sessionID,
		Content:   GatheringInfo,
	})

	// 客户端断开后仍让本轮完成，保证记录的是真实回答
	done := make(chan chat.RelayReply, 1)
	go func() {
		done <- h.relay.Send(context.WithoutCancel(ctx), userMessage, sessionID)
	}()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("stream closed by client", zap.String("session_id", sessionID))
			return ctx.Err()
		case t := <-ticker.C:
			utils.SendSSEChunk(w, flusher, StreamResponse{
				Event:     "heartbeat",
				SessionID: sessionID,
				Content:   GatheringInfo,
				Time:      t.UTC().Format(time.RFC3339),
			})
		case reply := <-done:
			if err := ctx.Err(); err != nil {
				return err
			}
			utils.SendSSEChunk(w, flusher, StreamResponse{
				Event:     "message",
				SessionID: reply.SessionID,
				Content:   reply.Content,
			})
			utils.SendSSEChunk(w, flusher, StreamResponse{
				Event:     "end",
				SessionID: reply.SessionID,
				Finished:  true,
			})
			h.logger.Debug("stream completed", zap.String("session_id", reply.SessionID))
			return nil
		}
	}
}
