// Package gateway answers questions against a Bedrock knowledge base. It is
// deployed as the Lambda function the chat relay invokes.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
	"go.uber.org/zap"

	"github.com/zhouzirui/pdf-chat/backend/internal/config"
	"github.com/zhouzirui/pdf-chat/backend/internal/model/chat"
)

var (
	ErrEmptyQuery      = errors.New("query is required")
	ErrNoKnowledgeBase = errors.New("knowledge base id is not configured")
)

// RetrieveAndGenerateAPI is the slice of the agent runtime client used to answer.
type RetrieveAndGenerateAPI interface {
	RetrieveAndGenerate(ctx context.Context, params *bedrockagentruntime.RetrieveAndGenerateInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveAndGenerateOutput, error)
}

// ExportLookup resolves a CloudFormation export by name.
type ExportLookup interface {
	Export(ctx context.Context, name string) (string, error)
}

// Answer is one generated reply with the chunks it cites.
type Answer struct {
	Text      string
	SessionID string
	Citations []chat.Citation
}

// Gateway wraps RetrieveAndGenerate for a single knowledge base.
type Gateway struct {
	client  RetrieveAndGenerateAPI
	exports ExportLookup
	cfg     config.GatewayConfig
	region  string
	logger  *zap.Logger

	kbMu sync.Mutex
	kbID string
}

// New builds a gateway. exports may be nil when cfg.KnowledgeBaseID is set.
func New(client RetrieveAndGenerateAPI, exports ExportLookup, cfg config.GatewayConfig, region string, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ModelID == "" {
		cfg.ModelID = config.DefaultModelID
	}
	return &Gateway{
		client:  client,
		exports: exports,
		cfg:     cfg,
		region:  region,
		logger:  logger,
		kbID:    cfg.KnowledgeBaseID,
	}
}

// ModelARN returns the foundation model reference used for generation.
func (g *Gateway) ModelARN() string {
	return ModelARN(g.region, g.cfg.ModelID)
}

// ModelARN formats the ARN of a foundation model in region.
func ModelARN(region, modelID string) string {
	return fmt.Sprintf("arn:aws:bedrock:%s::foundation-model/%s", region, modelID)
}

// KnowledgeBaseID returns the configured id, falling back to the stack export.
func (g *Gateway) KnowledgeBaseID(ctx context.Context) (string, error) {
	g.kbMu.Lock()
	defer g.kbMu.Unlock()

	if g.kbID != "" {
		return g.kbID, nil
	}
	if g.exports == nil {
		return "", ErrNoKnowledgeBase
	}

	id, err := g.exports.Export(ctx, g.cfg.KBExportName)
	if err != nil {
		return "", fmt.Errorf("resolve knowledge base id: %w", err)
	}
	g.kbID = id
	return id, nil
}

// Answer runs retrieve-and-generate for query.
func (g *Gateway) Answer(ctx context.Context, query, sessionID string) (Answer, error) {
	if strings.TrimSpace(query) == "" {
		return Answer{}, ErrEmptyQuery
	}

	kbID, err := g.KnowledgeBaseID(ctx)
	if err != nil {
		return Answer{}, err
	}

	input := &bedrockagentruntime.RetrieveAndGenerateInput{
		Input: &types.RetrieveAndGenerateInput{Text: aws.String(query)},
		RetrieveAndGenerateConfiguration: &types.RetrieveAndGenerateConfiguration{
			Type: types.RetrieveAndGenerateTypeKnowledgeBase,
			KnowledgeBaseConfiguration: &types.KnowledgeBaseRetrieveAndGenerateConfiguration{
				KnowledgeBaseId: aws.String(kbID),
				ModelArn:        aws.String(g.ModelARN()),
			},
		},
	}
	if g.cfg.ForwardSessionID && sessionID != "" {
		input.SessionId = aws.String(sessionID)
	}

	out, err := g.client.RetrieveAndGenerate(ctx, input)
	if err != nil && input.SessionId != nil && sessionRejected(err) {
		// Bedrock only accepts session ids it issued and still remembers.
		g.logger.Warn("session rejected, starting a new one",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		fresh := *input
		fresh.SessionId = nil
		out, err = g.client.RetrieveAndGenerate(ctx, &fresh)
	}
	if err != nil {
		return Answer{}, fmt.Errorf("retrieve and generate: %w", err)
	}

	answer := Answer{
		SessionID: aws.ToString(out.SessionId),
		Citations: convertCitations(out.Citations),
	}
	if out.Output != nil {
		answer.Text = aws.ToString(out.Output.Text)
	}

	g.logger.Info("generated answer",
		zap.String("knowledge_base_id", kbID),
		zap.String("session_id", answer.SessionID),
		zap.Int("citations", len(answer.Citations)),
	)
	return answer, nil
}

func sessionRejected(err error) bool {
	var validation *types.ValidationException
	var notFound *types.ResourceNotFoundException
	return errors.As(err, &validation) || errors.As(err, &notFound)
}

// Handle is the Lambda proxy entry point. Failures are encoded in the
// response; the returned error is always nil.
func (g *Gateway) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var payload chat.GatewayRequest
	if err := json.Unmarshal([]byte(req.Body), &payload); err != nil {
		g.logger.Warn("malformed gateway request", zap.Error(err))
		return proxyResponse(http.StatusBadRequest, chat.GatewayBody{Error: "invalid request body"}), nil
	}

	answer, err := g.Answer(ctx, payload.UserPrompt, payload.SessionID)
	if errors.Is(err, ErrEmptyQuery) {
		return proxyResponse(http.StatusBadRequest, chat.GatewayBody{Error: err.Error()}), nil
	}
	if err != nil {
		g.logger.Error("answer failed", zap.String("session_id", payload.SessionID), zap.Error(err))
		return proxyResponse(http.StatusInternalServerError, chat.GatewayBody{Error: err.Error()}), nil
	}

	sessionID := answer.SessionID
	if sessionID == "" {
		sessionID = payload.SessionID
	}
	text := answer.Text
	return proxyResponse(http.StatusOK, chat.GatewayBody{
		Response:  &text,
		SessionID: sessionID,
		Citations: answer.Citations,
	}), nil
}

func proxyResponse(status int, body chat.GatewayBody) events.APIGatewayProxyResponse {
	raw, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		raw = []byte(`{"error":"failed to encode response"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(raw),
	}
}

func convertCitations(in []types.Citation) []chat.Citation {
	if len(in) == 0 {
		return nil
	}
	out := make([]chat.Citation, 0, len(in))
	for _, c := range in {
		citation := chat.Citation{}
		if c.GeneratedResponsePart != nil && c.GeneratedResponsePart.TextResponsePart != nil {
			citation.Text = aws.ToString(c.GeneratedResponsePart.TextResponsePart.Text)
		}
		for _, ref := range c.RetrievedReferences {
			reference := chat.Reference{Location: locationURI(ref.Location)}
			if ref.Content != nil {
				reference.Content = aws.ToString(ref.Content.Text)
			}
			citation.References = append(citation.References, reference)
		}
		out = append(out, citation)
	}
	return out
}

func locationURI(loc *types.RetrievalResultLocation) string {
	if loc == nil {
		return ""
	}
	switch {
	case loc.S3Location != nil:
		return aws.ToString(loc.S3Location.Uri)
	case loc.WebLocation != nil:
		return aws.ToString(loc.WebLocation.Url)
	}
	return ""
}
