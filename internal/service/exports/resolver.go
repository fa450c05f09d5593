// Package exports looks up values published by CloudFormation stacks.
package exports

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

var (
	ErrExportNotFound = errors.New("export not found")
	ErrStackNotFound  = errors.New("stack not found")
)

// CloudFormationAPI is the slice of the CloudFormation client the resolver calls.
type CloudFormationAPI interface {
	ListExports(ctx context.Context, params *cloudformation.ListExportsInput, optFns ...func(*cloudformation.Options)) (*cloudformation.ListExportsOutput, error)
	DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
}

// Resolver caches the account's exports by name after the first lookup.
type Resolver struct {
	client CloudFormationAPI
	logger *zap.Logger

	mu      sync.Mutex
	exports map[string]string
}

// NewResolver creates a resolver over client.
func NewResolver(client CloudFormationAPI, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{client: client, logger: logger}
}

// Export returns the value of the export called name.
func (r *Resolver) Export(ctx context.Context, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.exports == nil {
		exports, err := r.listExports(ctx)
		if err != nil {
			return "", err
		}
		r.exports = exports
	}

	value, ok := r.exports[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrExportNotFound, name)
	}
	return value, nil
}

func (r *Resolver) listExports(ctx context.Context) (map[string]string, error) {
	exports := make(map[string]string)
	var token *string
	for {
		out, err := r.client.ListExports(ctx, &cloudformation.ListExportsInput{NextToken: token})
		if err != nil {
			return nil, fmt.Errorf("list exports: %w", err)
		}
		for _, e := range out.Exports {
			exports[aws.ToString(e.Name)] = aws.ToString(e.Value)
		}
		if aws.ToString(out.NextToken) == "" {
			break
		}
		token = out.NextToken
	}
	r.logger.Debug("loaded stack exports", zap.Int("count", len(exports)))
	return exports, nil
}

// StackOutputs returns the outputs of stack keyed by output key.
func (r *Resolver) StackOutputs(ctx context.Context, stack string) (map[string]string, error) {
	out, err := r.client.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(stack)})
	if err != nil {
		if isMissingStack(err) {
			return nil, fmt.Errorf("%w: %s", ErrStackNotFound, stack)
		}
		return nil, fmt.Errorf("describe stack %s: %w", stack, err)
	}
	if len(out.Stacks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrStackNotFound, stack)
	}

	outputs := make(map[string]string, len(out.Stacks[0].Outputs))
	for _, o := range out.Stacks[0].Outputs {
		outputs[aws.ToString(o.OutputKey)] = aws.ToString(o.OutputValue)
	}
	return outputs, nil
}

// CloudFormation reports unknown stacks as a ValidationError.
func isMissingStack(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.ErrorCode() == "ValidationError" && strings.Contains(apiErr.ErrorMessage(), "does not exist")
}
