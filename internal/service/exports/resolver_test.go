package exports

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCloudFormation struct {
	pages     []cloudformation.ListExportsOutput
	listCalls int
	listErr   error
	stacks    map[string][]types.Output
}

func (f *fakeCloudFormation) ListExports(_ context.Context, params *cloudformation.ListExportsInput, _ ...func(*cloudformation.Options)) (*cloudformation.ListExportsOutput, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	page := 0
	if params.NextToken != nil {
		page = 1
	}
	f.listCalls++
	out := f.pages[page]
	return &out, nil
}

func (f *fakeCloudFormation) DescribeStacks(_ context.Context, params *cloudformation.DescribeStacksInput, _ ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error) {
	name := aws.ToString(params.StackName)
	outputs, ok := f.stacks[name]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "ValidationError", Message: "Stack with id " + name + " does not exist"}
	}
	return &cloudformation.DescribeStacksOutput{Stacks: []types.Stack{{StackName: aws.String(name), Outputs: outputs}}}, nil
}

func twoPages() []cloudformation.ListExportsOutput {
	return []cloudformation.ListExportsOutput{
		{
			Exports:   []types.Export{{Name: aws.String("BucketName"), Value: aws.String("kb-bucket")}},
			NextToken: aws.String("page-2"),
		},
		{
			Exports: []types.Export{{Name: aws.String("BedrockKbId"), Value: aws.String("KB123")}},
		},
	}
}

func TestExportPaginatesAndCaches(t *testing.T) {
	fake := &fakeCloudFormation{pages: twoPages()}
	r := NewResolver(fake, nil)

	value, err := r.Export(context.Background(), "BedrockKbId")
	require.NoError(t, err)
	assert.Equal(t, "KB123", value)

	value, err = r.Export(context.Background(), "BucketName")
	require.NoError(t, err)
	assert.Equal(t, "kb-bucket", value)
	assert.Equal(t, 2, fake.listCalls)
}

func TestExportNotFound(t *testing.T) {
	r := NewResolver(&fakeCloudFormation{pages: twoPages()}, nil)

	_, err := r.Export(context.Background(), "Missing")
	assert.ErrorIs(t, err, ErrExportNotFound)
}

func TestExportListFailureIsNotCached(t *testing.T) {
	fake := &fakeCloudFormation{pages: twoPages(), listErr: errors.New("throttled")}
	r := NewResolver(fake, nil)

	_, err := r.Export(context.Background(), "BedrockKbId")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrExportNotFound)

	fake.listErr = nil
	value, err := r.Export(context.Background(), "BedrockKbId")
	require.NoError(t, err)
	assert.Equal(t, "KB123", value)
}

func TestStackOutputs(t *testing.T) {
	fake := &fakeCloudFormation{stacks: map[string][]types.Output{
		"KnowledgebaseStack": {
			{OutputKey: aws.String("CollectionEndpoint"), OutputValue: aws.String("https://abc.aoss.amazonaws.com")},
			{OutputKey: aws.String("BucketName"), OutputValue: aws.String("kb-bucket")},
		},
	}}
	r := NewResolver(fake, nil)

	outputs, err := r.StackOutputs(context.Background(), "KnowledgebaseStack")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"CollectionEndpoint": "https://abc.aoss.amazonaws.com",
		"BucketName":         "kb-bucket",
	}, outputs)

	_, err = r.StackOutputs(context.Background(), "Nope")
	assert.ErrorIs(t, err, ErrStackNotFound)
}
