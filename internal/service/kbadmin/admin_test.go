package kbadmin

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/pdf-chat/backend/internal/config"
	"github.com/zhouzirui/pdf-chat/backend/internal/model/kb"
)

// fakeAgent scripts the bedrock-agent control plane.
type fakeAgent struct {
	AgentAPI

	startStatus types.IngestionJobStatus
	statuses    []types.IngestionJobStatus
	getCalls    int

	kbInput *bedrockagent.CreateKnowledgeBaseInput
	dsInput *bedrockagent.CreateDataSourceInput

	deleteDSErr error
	deleteKBErr error
	deleted     []string

	kbPages [][]types.KnowledgeBaseSummary
}

func (f *fakeAgent) CreateKnowledgeBase(_ context.Context, params *bedrockagent.CreateKnowledgeBaseInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.CreateKnowledgeBaseOutput, error) {
	f.kbInput = params
	return &bedrockagent.CreateKnowledgeBaseOutput{KnowledgeBase: &types.KnowledgeBase{
		KnowledgeBaseId: aws.String("KB123"),
		Status:          types.KnowledgeBaseStatusCreating,
	}}, nil
}

func (f *fakeAgent) CreateDataSource(_ context.Context, params *bedrockagent.CreateDataSourceInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.CreateDataSourceOutput, error) {
	f.dsInput = params
	return &bedrockagent.CreateDataSourceOutput{DataSource: &types.DataSource{DataSourceId: aws.String("DS456")}}, nil
}

func (f *fakeAgent) StartIngestionJob(_ context.Context, params *bedrockagent.StartIngestionJobInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.StartIngestionJobOutput, error) {
	return &bedrockagent.StartIngestionJobOutput{IngestionJob: &types.IngestionJob{
		IngestionJobId:  aws.String("JOB1"),
		KnowledgeBaseId: params.KnowledgeBaseId,
		DataSourceId:    params.DataSourceId,
		Status:          f.startStatus,
	}}, nil
}

func (f *fakeAgent) GetIngestionJob(_ context.Context, params *bedrockagent.GetIngestionJobInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.GetIngestionJobOutput, error) {
	if f.getCalls >= len(f.statuses) {
		return nil, errors.New("unexpected status call")
	}
	status := f.statuses[f.getCalls]
	f.getCalls++

	job := &types.IngestionJob{IngestionJobId: params.IngestionJobId, Status: status}
	if status == types.IngestionJobStatusFailed {
		job.FailureReasons = []string{"AccessDenied on s3://kb-bucket"}
	}
	return &bedrockagent.GetIngestionJobOutput{IngestionJob: job}, nil
}

func (f *fakeAgent) DeleteDataSource(_ context.Context, _ *bedrockagent.DeleteDataSourceInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.DeleteDataSourceOutput, error) {
	f.deleted = append(f.deleted, "data source")
	return &bedrockagent.DeleteDataSourceOutput{}, f.deleteDSErr
}

func (f *fakeAgent) DeleteKnowledgeBase(_ context.Context, _ *bedrockagent.DeleteKnowledgeBaseInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.DeleteKnowledgeBaseOutput, error) {
	f.deleted = append(f.deleted, "knowledge base")
	return &bedrockagent.DeleteKnowledgeBaseOutput{}, f.deleteKBErr
}

func (f *fakeAgent) ListKnowledgeBases(_ context.Context, params *bedrockagent.ListKnowledgeBasesInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.ListKnowledgeBasesOutput, error) {
	page := 0
	if params.NextToken != nil {
		page = 1
	}
	out := &bedrockagent.ListKnowledgeBasesOutput{KnowledgeBaseSummaries: f.kbPages[page]}
	if page+1 < len(f.kbPages) {
		out.NextToken = aws.String("next")
	}
	return out, nil
}

type fakeIndex struct {
	err     error
	deleted []string
}

func (f *fakeIndex) Delete(_ context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	return f.err
}

type fakeIdentity struct{ calls int }

func (f *fakeIdentity) GetCallerIdentity(_ context.Context, _ *sts.GetCallerIdentityInput, _ ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	f.calls++
	return &sts.GetCallerIdentityOutput{Account: aws.String("123456789012")}, nil
}

type fakeObjects struct {
	objects map[string]string
}

func (f *fakeObjects) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(params.Key)] = string(data)
	return &s3.PutObjectOutput{}, nil
}

func newClient(deps Deps, maxPolls int) *Client {
	return New(deps, "us-east-1", config.IngestionConfig{PollInterval: 0, MaxPolls: maxPolls}, nil)
}

func TestCounter(t *testing.T) {
	assert.Equal(t, int64(4), counter(int64(4)))
	assert.Equal(t, int64(7), counter(aws.Int64(7)))
	assert.Equal(t, int64(0), counter[*int64](nil))
}

func TestExecuteIngestionJobStopsAfterComplete(t *testing.T) {
	agent := &fakeAgent{
		startStatus: types.IngestionJobStatusStarting,
		statuses:    []types.IngestionJobStatus{types.IngestionJobStatusInProgress, types.IngestionJobStatusComplete},
	}
	c := newClient(Deps{Agent: agent}, 10)

	job, err := c.ExecuteIngestionJob(context.Background(), "KB123", "DS456")
	require.NoError(t, err)
	assert.Equal(t, kb.JobComplete, job.Status)
	assert.Equal(t, 2, agent.getCalls)
}

func TestPollIngestionJobStatusSequence(t *testing.T) {
	agent := &fakeAgent{statuses: []types.IngestionJobStatus{
		types.IngestionJobStatusStarting,
		types.IngestionJobStatusInProgress,
		types.IngestionJobStatusComplete,
	}}
	c := newClient(Deps{Agent: agent}, 10)

	job, err := c.PollIngestionJob(context.Background(), kb.IngestionJob{ID: "JOB1", Status: kb.JobStarting})
	require.NoError(t, err)
	assert.Equal(t, kb.JobComplete, job.Status)
	assert.Equal(t, 3, agent.getCalls)
}

func TestPollIngestionJobAlreadyComplete(t *testing.T) {
	agent := &fakeAgent{startStatus: types.IngestionJobStatusComplete}
	c := newClient(Deps{Agent: agent}, 10)

	_, err := c.ExecuteIngestionJob(context.Background(), "KB123", "DS456")
	require.NoError(t, err)
	assert.Zero(t, agent.getCalls)
}

func TestPollIngestionJobFailed(t *testing.T) {
	agent := &fakeAgent{statuses: []types.IngestionJobStatus{
		types.IngestionJobStatusInProgress,
		types.IngestionJobStatusFailed,
	}}
	c := newClient(Deps{Agent: agent}, 10)

	job, err := c.PollIngestionJob(context.Background(), kb.IngestionJob{ID: "JOB1", Status: kb.JobStarting})
	require.ErrorIs(t, err, ErrIngestionFailed)
	assert.Contains(t, err.Error(), "AccessDenied")
	assert.Equal(t, kb.JobFailed, job.Status)
	assert.Equal(t, 2, agent.getCalls)
}

func TestPollIngestionJobLimit(t *testing.T) {
	agent := &fakeAgent{statuses: []types.IngestionJobStatus{
		types.IngestionJobStatusInProgress,
		types.IngestionJobStatusInProgress,
		types.IngestionJobStatusInProgress,
	}}
	c := newClient(Deps{Agent: agent}, 2)

	_, err := c.PollIngestionJob(context.Background(), kb.IngestionJob{ID: "JOB1", Status: kb.JobStarting})
	require.ErrorIs(t, err, ErrPollLimit)
	assert.Equal(t, 2, agent.getCalls)
}

func TestPollIngestionJobCancelled(t *testing.T) {
	agent := &fakeAgent{statuses: []types.IngestionJobStatus{types.IngestionJobStatusComplete}}
	c := newClient(Deps{Agent: agent}, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.PollIngestionJob(ctx, kb.IngestionJob{ID: "JOB1", Status: kb.JobInProgress})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, agent.getCalls)
}

func TestCleanupAttemptsEveryStep(t *testing.T) {
	target := kb.CleanupTarget{KnowledgeBaseID: "KB123", DataSourceID: "DS456", IndexName: "kb-docs"}
	boom := errors.New("boom")

	cases := map[string]struct {
		agent *fakeAgent
		index *fakeIndex
	}{
		"data source fails":    {agent: &fakeAgent{deleteDSErr: boom}, index: &fakeIndex{}},
		"knowledge base fails": {agent: &fakeAgent{deleteKBErr: boom}, index: &fakeIndex{}},
		"index fails":          {agent: &fakeAgent{}, index: &fakeIndex{err: boom}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c := newClient(Deps{Agent: tc.agent, Index: tc.index}, 1)

			report := c.Cleanup(context.Background(), target)

			assert.Equal(t, []string{"data source", "knowledge base"}, tc.agent.deleted)
			assert.Equal(t, []string{"kb-docs"}, tc.index.deleted)
			require.ErrorIs(t, report.Err(), boom)

			failed := 0
			for _, step := range report.Steps {
				if step.Err != nil {
					failed++
				}
			}
			assert.Equal(t, 1, failed)
		})
	}
}

func TestCleanupSkipsMissingIDs(t *testing.T) {
	agent := &fakeAgent{}
	c := newClient(Deps{Agent: agent}, 1)

	report := c.Cleanup(context.Background(), kb.CleanupTarget{KnowledgeBaseID: "KB123"})
	require.NoError(t, report.Err())
	assert.Equal(t, []string{"knowledge base"}, agent.deleted)
	assert.True(t, report.Steps[0].Skipped)
	assert.True(t, report.Steps[2].Skipped)
}

func TestCleanupFailsStepsItCannotAttempt(t *testing.T) {
	agent := &fakeAgent{}
	c := newClient(Deps{Agent: agent}, 1)

	report := c.Cleanup(context.Background(), kb.CleanupTarget{DataSourceID: "DS456", IndexName: "kb-docs"})

	require.ErrorIs(t, report.Err(), ErrMissingInput)
	assert.Empty(t, agent.deleted)
	require.Len(t, report.Steps, 3)
	assert.False(t, report.Steps[0].Skipped)
	assert.ErrorIs(t, report.Steps[0].Err, ErrMissingInput)
	assert.True(t, report.Steps[1].Skipped)
	assert.False(t, report.Steps[2].Skipped)
	assert.ErrorIs(t, report.Steps[2].Err, ErrMissingInput)
}

func TestCleanupWithoutIndexClientStillDeletesTheRest(t *testing.T) {
	agent := &fakeAgent{}
	c := newClient(Deps{Agent: agent}, 1)

	report := c.Cleanup(context.Background(), kb.CleanupTarget{KnowledgeBaseID: "KB123", DataSourceID: "DS456", IndexName: "kb-docs"})

	assert.Equal(t, []string{"data source", "knowledge base"}, agent.deleted)
	require.ErrorIs(t, report.Err(), ErrMissingInput)
	assert.Equal(t, "kb-docs", report.Steps[2].ID)
	assert.False(t, report.Steps[2].Skipped)
}

func TestCreateKnowledgeBaseBuildsARNs(t *testing.T) {
	agent := &fakeAgent{}
	identity := &fakeIdentity{}
	c := newClient(Deps{Agent: agent, Identity: identity}, 1)

	id, err := c.CreateKnowledgeBase(context.Background(), kb.KnowledgeBaseSpec{
		Name:            "bedrock-kb-docs",
		RoleName:        "kb-role-bedrock-execution",
		EmbeddingModel:  "amazon.titan-embed-text-v1",
		CollectionID:    "abc123",
		VectorIndexName: "kb-docs",
	})
	require.NoError(t, err)
	assert.Equal(t, "KB123", id)

	in := agent.kbInput
	assert.Equal(t, "arn:aws:iam::123456789012:role/kb-role-bedrock-execution", aws.ToString(in.RoleArn))
	assert.Equal(t, "arn:aws:bedrock:us-east-1::foundation-model/amazon.titan-embed-text-v1",
		aws.ToString(in.KnowledgeBaseConfiguration.VectorKnowledgeBaseConfiguration.EmbeddingModelArn))
	oss := in.StorageConfiguration.OpensearchServerlessConfiguration
	assert.Equal(t, "arn:aws:aoss:us-east-1:123456789012:collection/abc123", aws.ToString(oss.CollectionArn))
	assert.Equal(t, kb.VectorField, aws.ToString(oss.FieldMapping.VectorField))
	assert.Equal(t, kb.MetadataField, aws.ToString(oss.FieldMapping.MetadataField))
	assert.Equal(t, 1, identity.calls)
}

func TestCreateKnowledgeBaseRequiresInputs(t *testing.T) {
	c := newClient(Deps{Agent: &fakeAgent{}}, 1)

	_, err := c.CreateKnowledgeBase(context.Background(), kb.KnowledgeBaseSpec{Name: "kb"})
	assert.ErrorIs(t, err, ErrMissingInput)
}

func TestCreateDataSourceDefaultsChunking(t *testing.T) {
	agent := &fakeAgent{}
	c := newClient(Deps{Agent: agent}, 1)

	id, err := c.CreateDataSource(context.Background(), kb.DataSourceSpec{
		Name:            "kb-docs-source",
		KnowledgeBaseID: "KB123",
		BucketName:      "kb-bucket",
	})
	require.NoError(t, err)
	assert.Equal(t, "DS456", id)

	in := agent.dsInput
	assert.Equal(t, "arn:aws:s3:::kb-bucket", aws.ToString(in.DataSourceConfiguration.S3Configuration.BucketArn))
	fixed := in.VectorIngestionConfiguration.ChunkingConfiguration.FixedSizeChunkingConfiguration
	assert.Equal(t, int32(300), aws.ToInt32(fixed.MaxTokens))
	assert.Equal(t, int32(20), aws.ToInt32(fixed.OverlapPercentage))
}

func TestListKnowledgeBasesPaginates(t *testing.T) {
	agent := &fakeAgent{kbPages: [][]types.KnowledgeBaseSummary{
		{{KnowledgeBaseId: aws.String("KB1"), Name: aws.String("one"), Status: types.KnowledgeBaseStatusActive}},
		{{KnowledgeBaseId: aws.String("KB2"), Name: aws.String("two"), Status: types.KnowledgeBaseStatusActive}},
	}}
	c := newClient(Deps{Agent: agent}, 1)

	summaries, err := c.ListKnowledgeBases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []kb.Summary{
		{ID: "KB1", Name: "one", Status: "ACTIVE"},
		{ID: "KB2", Name: "two", Status: "ACTIVE"},
	}, summaries)
}

func TestUploadDocuments(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "amazon-q.pdf"), []byte("%PDF-1.4"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "faq"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "faq", "pricing.txt"), []byte("free tier"), 0o644))

	objects := &fakeObjects{objects: map[string]string{}}
	c := newClient(Deps{Agent: &fakeAgent{}, Objects: objects}, 1)

	keys, err := c.UploadDocuments(context.Background(), "kb-bucket", dir)
	require.NoError(t, err)

	sort.Strings(keys)
	assert.Equal(t, []string{"amazon-q.pdf", "faq/pricing.txt"}, keys)
	assert.Equal(t, "free tier", objects.objects["faq/pricing.txt"])
}
