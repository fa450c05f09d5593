package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/zhouzirui/pdf-chat/backend/internal/model/chat"
)

// ErrFunctionError marks an invocation whose function raised instead of returning.
var ErrFunctionError = errors.New("gateway function error")

// LambdaAPI is the slice of the Lambda client the relay calls.
type LambdaAPI interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// LambdaInvoker reaches the gateway through a synchronous Lambda invocation.
type LambdaInvoker struct {
	client       LambdaAPI
	functionName string
}

// NewLambdaInvoker returns an invoker for the named function.
func NewLambdaInvoker(client LambdaAPI, functionName string) *LambdaInvoker {
	return &LambdaInvoker{client: client, functionName: functionName}
}

// Invoke sends payload with the RequestResponse invocation type.
func (i *LambdaInvoker) Invoke(ctx context.Context, payload chat.InvokePayload) (chat.GatewayResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return chat.GatewayResult{}, fmt.Errorf("marshal payload: %w", err)
	}

	out, err := i.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(i.functionName),
		InvocationType: types.InvocationTypeRequestResponse,
		Payload:        raw,
	})
	if err != nil {
		return chat.GatewayResult{}, fmt.Errorf("invoke %s: %w", i.functionName, err)
	}
	if out.FunctionError != nil {
		return chat.GatewayResult{}, fmt.Errorf("%w: %s: %s", ErrFunctionError, aws.ToString(out.FunctionError), out.Payload)
	}

	var result chat.GatewayResult
	if err := json.Unmarshal(out.Payload, &result); err != nil {
		return chat.GatewayResult{}, fmt.Errorf("decode invocation result: %w", err)
	}
	return result, nil
}

// ProxyHandler is the signature of a Lambda proxy handler such as the gateway's.
type ProxyHandler func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// LocalInvoker calls the gateway handler in-process.
type LocalInvoker struct {
	handler ProxyHandler
}

// NewLocalInvoker wraps handler as an Invoker.
func NewLocalInvoker(handler ProxyHandler) *LocalInvoker {
	return &LocalInvoker{handler: handler}
}

// Invoke hands the payload body to the handler as a proxy request.
func (i *LocalInvoker) Invoke(ctx context.Context, payload chat.InvokePayload) (chat.GatewayResult, error) {
	resp, err := i.handler(ctx, events.APIGatewayProxyRequest{Body: payload.Body})
	if err != nil {
		return chat.GatewayResult{}, err
	}
	return chat.GatewayResult{StatusCode: resp.StatusCode, Body: resp.Body}, nil
}
