package kbadmin

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	"go.uber.org/zap"

	"github.com/zhouzirui/pdf-chat/backend/internal/model/kb"
)

// CleanupStep records the outcome of one deletion.
type CleanupStep struct {
	Resource string
	ID       string
	Skipped  bool
	Err      error
}

// CleanupReport lists every deletion Cleanup considered, in order.
type CleanupReport struct {
	Steps []CleanupStep
}

// Err joins the failures of all steps; nil when every attempted deletion succeeded.
func (r CleanupReport) Err() error {
	var errs []error
	for _, step := range r.Steps {
		if step.Err != nil {
			errs = append(errs, fmt.Errorf("delete %s %s: %w", step.Resource, step.ID, step.Err))
		}
	}
	return errors.Join(errs...)
}

// Cleanup deletes the data source, the knowledge base and the vector index.
// Each deletion is attempted regardless of earlier failures. A step is skipped
// only when its id is empty; a step that has an id but cannot be attempted
// fails with ErrMissingInput.
func (c *Client) Cleanup(ctx context.Context, target kb.CleanupTarget) CleanupReport {
	var report CleanupReport

	var dsMissing error
	if target.KnowledgeBaseID == "" {
		dsMissing = fmt.Errorf("%w: knowledge base id is required to delete a data source", ErrMissingInput)
	}
	report.Steps = append(report.Steps, c.cleanupStep("data source", target.DataSourceID, dsMissing, func() error {
		_, err := c.deps.Agent.DeleteDataSource(ctx, &bedrockagent.DeleteDataSourceInput{
			KnowledgeBaseId: aws.String(target.KnowledgeBaseID),
			DataSourceId:    aws.String(target.DataSourceID),
		})
		return err
	}))

	report.Steps = append(report.Steps, c.cleanupStep("knowledge base", target.KnowledgeBaseID, nil, func() error {
		_, err := c.deps.Agent.DeleteKnowledgeBase(ctx, &bedrockagent.DeleteKnowledgeBaseInput{
			KnowledgeBaseId: aws.String(target.KnowledgeBaseID),
		})
		return err
	}))

	var indexMissing error
	if c.deps.Index == nil {
		indexMissing = fmt.Errorf("%w: no vector index client (collection endpoint not configured)", ErrMissingInput)
	}
	report.Steps = append(report.Steps, c.cleanupStep("vector index", target.IndexName, indexMissing, func() error {
		return c.deps.Index.Delete(ctx, target.IndexName)
	}))

	return report
}

func (c *Client) cleanupStep(resource, id string, missing error, del func() error) CleanupStep {
	step := CleanupStep{Resource: resource, ID: id}
	if id == "" {
		step.Skipped = true
		c.logger.Info("skipping cleanup step", zap.String("resource", resource))
		return step
	}

	err := missing
	if err == nil {
		err = del()
	}
	if err != nil {
		step.Err = err
		c.logger.Error("cleanup step failed", zap.String("resource", resource), zap.String("id", id), zap.Error(err))
		return step
	}
	c.logger.Info("deleted resource", zap.String("resource", resource), zap.String("id", id))
	return step
}
