package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/pdf-chat/backend/internal/model/chat"
	chatService "github.com/zhouzirui/pdf-chat/backend/internal/service/chat"
	"github.com/zhouzirui/pdf-chat/backend/internal/service/relay"
	"github.com/zhouzirui/pdf-chat/backend/pkg/utils"
)

// Handler 聊天中继的HTTP处理器
type Handler struct {
	relay *relay.Relay
	store chatService.Store
}

// New 创建聊天处理器
func New(r *relay.Relay) *Handler {
	return &Handler{
		relay: r,
		store: r.Store(),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Post("/chat/messages", h.handleChatHistory)
	r.Get("/sessions/{sessionID}/messages", h.handleTranscript)
	r.Delete("/sessions/{sessionID}", h.handleReset)
}

// handleChat 转发单条提示词。中继的失败以固定文案返回，状态码始终为 200。
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chat.RelayRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply := h.relay.Send(r.Context(), payload.Prompt, payload.SessionID)
	utils.RespondJSON(w, http.StatusOK, reply)
}

// handleChatHistory 接收完整消息列表，以最后一条用户消息作为提示词。
func (h *Handler) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	var payload chat.HistoryRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply := h.relay.SendHistory(r.Context(), payload.Messages, payload.SessionID)
	utils.RespondJSON(w, http.StatusOK, reply)
}

// handleTranscript 返回会话的完整记录。
func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	messages, err := h.store.LoadTranscript(r.Context(), sessionID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"messages":  messages,
	})
}

// handleReset 对应前端的 "New Conversation"。
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.store.Reset(r.Context(), sessionID); err != nil {
		respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chatService.ErrSessionRequired):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		utils.RespondError(w, http.StatusInternalServerError, "transcript store unavailable")
	}
}
