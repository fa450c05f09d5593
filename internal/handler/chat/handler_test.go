package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/pdf-chat/backend/internal/config"
	"github.com/zhouzirui/pdf-chat/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/pdf-chat/backend/internal/service/chat"
	"github.com/zhouzirui/pdf-chat/backend/internal/service/relay"
)

type echoInvoker struct {
	calls int
}

func (e *echoInvoker) Invoke(_ context.Context, payload chat.InvokePayload) (chat.GatewayResult, error) {
	e.calls++
	var req chat.GatewayRequest
	if err := json.Unmarshal([]byte(payload.Body), &req); err != nil {
		return chat.GatewayResult{}, err
	}
	answer := "echo: " + req.UserPrompt
	body, _ := json.Marshal(chat.GatewayBody{Response: &answer, SessionID: req.SessionID})
	return chat.GatewayResult{StatusCode: http.StatusOK, Body: string(body)}, nil
}

func setupRouter() (*chi.Mux, *echoInvoker, chatservice.Store) {
	invoker := &echoInvoker{}
	store := chatservice.NewMemoryStore()
	handler := New(relay.New(invoker, store, config.SessionPolicyDownstream, nil))

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, invoker, store
}

func post(r http.Handler, path string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decodeReply(t *testing.T, resp *httptest.ResponseRecorder) chat.RelayReply {
	t.Helper()
	var reply chat.RelayReply
	if err := json.Unmarshal(resp.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	return reply
}

func TestChatRelaysPrompt(t *testing.T) {
	r, invoker, _ := setupRouter()

	resp := post(r, "/chat", map[string]string{"prompt": "What is Amazon Q?", "sessionId": "S1"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	reply := decodeReply(t, resp)
	if reply.Role != chat.RoleAssistant {
		t.Fatalf("expected assistant role, got %s", reply.Role)
	}
	if reply.Content != "echo: What is Amazon Q?" {
		t.Fatalf("unexpected content %q", reply.Content)
	}
	if reply.SessionID != "S1" {
		t.Fatalf("expected session S1, got %s", reply.SessionID)
	}
	if invoker.calls != 1 {
		t.Fatalf("expected 1 downstream call, got %d", invoker.calls)
	}
}

func TestChatEmptyPrompt(t *testing.T) {
	r, invoker, _ := setupRouter()

	resp := post(r, "/chat", map[string]string{"prompt": "  ", "sessionId": "S1"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if reply := decodeReply(t, resp); reply.Content != chat.NoPromptReply {
		t.Fatalf("expected no-prompt reply, got %q", reply.Content)
	}
	if invoker.calls != 0 {
		t.Fatalf("expected no downstream call, got %d", invoker.calls)
	}
}

func TestChatInvalidBody(t *testing.T) {
	r, _, _ := setupRouter()

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader([]byte(`{`)))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestChatMessagesUsesLastUserMessage(t *testing.T) {
	r, _, _ := setupRouter()

	resp := post(r, "/chat/messages", map[string]any{
		"sessionId": "S2",
		"messages": []map[string]string{
			{"role": "user", "content": "first"},
			{"role": "assistant", "content": "reply"},
			{"role": "user", "content": "second"},
		},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if reply := decodeReply(t, resp); reply.Content != "echo: second" {
		t.Fatalf("unexpected content %q", reply.Content)
	}
}

func TestTranscriptAndReset(t *testing.T) {
	r, _, _ := setupRouter()
	post(r, "/chat", map[string]string{"prompt": "hello", "sessionId": "S3"})

	req := httptest.NewRequest(http.MethodGet, "/sessions/S3/messages", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var transcript struct {
		SessionID string         `json:"sessionId"`
		Messages  []chat.Message `json:"messages"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &transcript); err != nil {
		t.Fatalf("decode transcript: %v", err)
	}
	if len(transcript.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(transcript.Messages))
	}
	if transcript.Messages[0].Role != chat.RoleSystem {
		t.Fatalf("expected system seed first, got %s", transcript.Messages[0].Role)
	}

	req = httptest.NewRequest(http.MethodDelete, "/sessions/S3", nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/sessions/S3/messages", nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after reset, got %d", resp.Code)
	}
}
