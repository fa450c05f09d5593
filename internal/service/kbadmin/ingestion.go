package kbadmin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/pdf-chat/backend/internal/model/kb"
)

// ExecuteIngestionJob starts an ingestion job and waits for it to finish.
func (c *Client) ExecuteIngestionJob(ctx context.Context, knowledgeBaseID, dataSourceID string) (kb.IngestionJob, error) {
	out, err := c.deps.Agent.StartIngestionJob(ctx, &bedrockagent.StartIngestionJobInput{
		KnowledgeBaseId: aws.String(knowledgeBaseID),
		DataSourceId:    aws.String(dataSourceID),
	})
	if err != nil {
		return kb.IngestionJob{}, fmt.Errorf("start ingestion job: %w", err)
	}
	if out.IngestionJob == nil {
		return kb.IngestionJob{}, fmt.Errorf("start ingestion job: empty response")
	}

	job := convertJob(out.IngestionJob)
	if job.KnowledgeBaseID == "" {
		job.KnowledgeBaseID = knowledgeBaseID
	}
	if job.DataSourceID == "" {
		job.DataSourceID = dataSourceID
	}
	c.logger.Info("started ingestion job",
		zap.String("ingestion_job_id", job.ID),
		zap.String("status", string(job.Status)),
	)
	return c.PollIngestionJob(ctx, job)
}

// PollIngestionJob re-reads job every PollInterval until it is COMPLETE.
// FAILED and STOPPED end with ErrIngestionFailed; running out of polls ends
// with ErrPollLimit. No status call is made once COMPLETE has been observed.
func (c *Client) PollIngestionJob(ctx context.Context, job kb.IngestionJob) (kb.IngestionJob, error) {
	limiter := rate.NewLimiter(rate.Every(c.poll.PollInterval), 1)
	limiter.Allow()

	start := time.Now()
	for polls := 0; ; polls++ {
		switch job.Status {
		case kb.JobComplete:
			c.logger.Info("ingestion job complete",
				zap.String("ingestion_job_id", job.ID),
				zap.Int64("indexed", job.Statistics.Indexed),
				zap.Int64("failed", job.Statistics.Failed),
				since(start),
			)
			return job, nil
		case kb.JobFailed, kb.JobStopped:
			return job, fmt.Errorf("%w: job %s is %s: %s", ErrIngestionFailed, job.ID, job.Status, strings.Join(job.FailureReasons, "; "))
		}

		if polls >= c.poll.MaxPolls {
			return job, fmt.Errorf("%w: job %s still %s after %d polls", ErrPollLimit, job.ID, job.Status, polls)
		}
		if err := limiter.Wait(ctx); err != nil {
			return job, fmt.Errorf("wait for ingestion job %s: %w", job.ID, err)
		}

		out, err := c.deps.Agent.GetIngestionJob(ctx, &bedrockagent.GetIngestionJobInput{
			KnowledgeBaseId: aws.String(job.KnowledgeBaseID),
			DataSourceId:    aws.String(job.DataSourceID),
			IngestionJobId:  aws.String(job.ID),
		})
		if err != nil {
			return job, fmt.Errorf("get ingestion job %s: %w", job.ID, err)
		}
		if out.IngestionJob != nil {
			next := convertJob(out.IngestionJob)
			next.KnowledgeBaseID, next.DataSourceID = job.KnowledgeBaseID, job.DataSourceID
			job = next
		}
		c.logger.Debug("polled ingestion job",
			zap.String("ingestion_job_id", job.ID),
			zap.String("status", string(job.Status)),
			zap.Int("poll", polls+1),
		)
	}
}

func convertJob(in *types.IngestionJob) kb.IngestionJob {
	job := kb.IngestionJob{
		ID:              aws.ToString(in.IngestionJobId),
		KnowledgeBaseID: aws.ToString(in.KnowledgeBaseId),
		DataSourceID:    aws.ToString(in.DataSourceId),
		Status:          kb.JobStatus(in.Status),
		FailureReasons:  in.FailureReasons,
	}
	if s := in.Statistics; s != nil {
		job.Statistics = kb.JobStatistics{
			Scanned:  counter(s.NumberOfDocumentsScanned),
			Indexed:  counter(s.NumberOfNewDocumentsIndexed),
			Modified: counter(s.NumberOfModifiedDocumentsIndexed),
			Deleted:  counter(s.NumberOfDocumentsDeleted),
			Failed:   counter(s.NumberOfDocumentsFailed),
		}
	}
	return job
}

// counter accepts both the pointer and the value form of a statistics field.
func counter[T int64 | *int64](v T) int64 {
	switch n := any(v).(type) {
	case int64:
		return n
	case *int64:
		return aws.ToInt64(n)
	}
	return 0
}
