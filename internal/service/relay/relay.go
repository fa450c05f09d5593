// Package relay forwards chat prompts to the retrieval gateway and turns
// whatever comes back into an assistant reply for the front-end.
package relay

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/pdf-chat/backend/internal/config"
	"github.com/zhouzirui/pdf-chat/backend/internal/model/chat"
	chatService "github.com/zhouzirui/pdf-chat/backend/internal/service/chat"
)

// Invoker delivers one payload to the retrieval gateway and blocks for its result.
type Invoker interface {
	Invoke(ctx context.Context, payload chat.InvokePayload) (chat.GatewayResult, error)
}

// Relay is the request path between the chat front-end and the gateway.
type Relay struct {
	invoker Invoker
	store   chatService.Store
	policy  string
	logger  *zap.Logger

	locks sessionLocks
}

// New wires a relay. A nil store keeps transcripts in memory; an empty
// policy adopts downstream session ids.
func New(invoker Invoker, store chatService.Store, policy string, logger *zap.Logger) *Relay {
	if store == nil {
		store = chatService.NewMemoryStore()
	}
	if policy == "" {
		policy = config.SessionPolicyDownstream
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		invoker: invoker,
		store:   store,
		policy:  policy,
		logger:  logger,
	}
}

// Store exposes the transcript store backing the relay.
func (r *Relay) Store() chatService.Store {
	return r.store
}

// Send relays a single prompt. It never fails: validation and downstream
// problems come back as canned assistant text.
//
// Turns on the same session id run one at a time. A session id minted here
// is only used for the transcript and is not forwarded downstream.
func (r *Relay) Send(ctx context.Context, prompt, sessionID string) chat.RelayReply {
	sessionID = strings.TrimSpace(sessionID)
	if strings.TrimSpace(prompt) == "" {
		return reply(chat.NoPromptReply, sessionID)
	}
	forwardID := sessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	unlock := r.locks.lock(sessionID)
	defer unlock()

	log := r.logger.With(zap.String("session_id", sessionID))
	r.record(ctx, log, sessionID, chat.RoleUser, prompt)

	content, downstreamID := r.forward(ctx, log, prompt, forwardID)

	if downstreamID != "" && downstreamID != sessionID && r.policy == config.SessionPolicyDownstream {
		if err := r.store.Rebind(ctx, sessionID, downstreamID); err != nil {
			log.Warn("rebind transcript failed", zap.String("downstream_session_id", downstreamID), zap.Error(err))
		}
		log.Debug("adopted downstream session", zap.String("downstream_session_id", downstreamID))
		sessionID = downstreamID
	}

	r.record(ctx, log, sessionID, chat.RoleAssistant, content)
	return reply(content, sessionID)
}

// SendHistory is the message-list variant: the last user message is the prompt.
func (r *Relay) SendHistory(ctx context.Context, messages []chat.Message, sessionID string) chat.RelayReply {
	return r.Send(ctx, LastUserPrompt(messages), sessionID)
}

// LastUserPrompt returns the content of the most recent user message.
func LastUserPrompt(messages []chat.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == chat.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// forward returns the reply text and the session id reported downstream.
func (r *Relay) forward(ctx context.Context, log *zap.Logger, prompt, sessionID string) (string, string) {
	payload, err := chat.NewInvokePayload(chat.GatewayRequest{UserPrompt: prompt, SessionID: sessionID})
	if err != nil {
		log.Error("encode gateway payload", zap.Error(err))
		return chat.GenericErrorReply, ""
	}

	result, err := r.invoker.Invoke(ctx, payload)
	if err != nil {
		log.Error("gateway invocation failed", zap.Error(err))
		return chat.GenericErrorReply, ""
	}

	var body chat.GatewayBody
	if err := json.Unmarshal([]byte(result.Body), &body); err != nil {
		log.Error("decode gateway body", zap.Int("status_code", result.StatusCode), zap.Error(err))
		return chat.GenericErrorReply, ""
	}
	if body.Response == nil {
		log.Warn("gateway returned no response",
			zap.Int("status_code", result.StatusCode),
			zap.String("error", body.Error),
		)
		return chat.GenericErrorReply, ""
	}
	return *body.Response, body.SessionID
}

func (r *Relay) record(ctx context.Context, log *zap.Logger, sessionID string, role chat.Role, content string) {
	if _, err := chatService.EnsureSession(ctx, r.store, sessionID); err != nil {
		log.Warn("ensure session failed", zap.Error(err))
		return
	}
	if _, err := r.store.Append(ctx, chat.Message{SessionID: sessionID, Role: role, Content: content}); err != nil {
		log.Warn("append transcript failed", zap.String("role", string(role)), zap.Error(err))
	}
}

// sessionLocks hands out one mutex per session id and forgets it once
// nobody holds or waits on it.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	sync.Mutex
	refs int
}

func (l *sessionLocks) lock(id string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sessionLock)
	}
	sl, ok := l.locks[id]
	if !ok {
		sl = &sessionLock{}
		l.locks[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.Lock()
	return func() {
		sl.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func reply(content, sessionID string) chat.RelayReply {
	return chat.RelayReply{Role: chat.RoleAssistant, Content: content, SessionID: sessionID}
}
