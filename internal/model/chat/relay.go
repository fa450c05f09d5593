package chat

import "encoding/json"

// Canned replies returned to the front-end instead of faults.
const (
	NoPromptReply     = "No prompt provided."
	GenericErrorReply = "An error occurred while processing your request."
)

// RelayRequest is the body of POST /api/chat.
type RelayRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"sessionId"`
}

// HistoryRequest is the message-list variant accepted by POST /api/chat/messages.
type HistoryRequest struct {
	Messages  []Message `json:"messages"`
	SessionID string    `json:"sessionId"`
}

// RelayReply is what the front-end renders for one assistant turn.
type RelayReply struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	SessionID string `json:"sessionId"`
}

// GatewayRequest is JSON-encoded into InvokePayload.Body.
type GatewayRequest struct {
	UserPrompt string `json:"userPrompt"`
	SessionID  string `json:"sessionId"`
}

// InvokePayload mirrors the API Gateway proxy event the gateway function expects.
type InvokePayload struct {
	Body string `json:"body"`
}

// NewInvokePayload wraps req the way the serverless gateway decodes it.
func NewInvokePayload(req GatewayRequest) (InvokePayload, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return InvokePayload{}, err
	}
	return InvokePayload{Body: string(raw)}, nil
}

// GatewayResult is the proxy response returned by the gateway function.
type GatewayResult struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// GatewayBody is the decoded GatewayResult.Body. Response is a pointer so an
// absent field can be told apart from an empty answer.
type GatewayBody struct {
	Response  *string    `json:"response,omitempty"`
	SessionID string     `json:"sessionId,omitempty"`
	Citations []Citation `json:"citations,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Citation links a span of generated text to the chunks it was grounded on.
type Citation struct {
	Text       string      `json:"text"`
	References []Reference `json:"references,omitempty"`
}

// Reference is one retrieved chunk.
type Reference struct {
	Content  string `json:"content"`
	Location string `json:"location,omitempty"`
}
