package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/pdf-chat/backend/internal/config"
	"github.com/zhouzirui/pdf-chat/backend/internal/model/kb"
)

// ErrAttemptsExhausted is returned when every provisioning attempt failed.
var ErrAttemptsExhausted = errors.New("index provisioning attempts exhausted")

// Creator creates an index; *Client implements it.
type Creator interface {
	Create(ctx context.Context, name string, schema kb.IndexSchema) error
}

// CreatorFactory builds a fresh Creator for each attempt, so credential or
// endpoint problems at construction time are retried too.
type CreatorFactory func() (Creator, error)

// Result describes how Ensure finished.
type Result struct {
	IndexName string `json:"indexName"`
	Created   bool   `json:"created"`
	Attempts  int    `json:"attempts"`
}

// Provisioner makes sure the vector index exists.
type Provisioner struct {
	factory CreatorFactory
	schema  kb.IndexSchema
	cfg     config.IndexConfig
	logger  *zap.Logger
}

// NewProvisioner returns a provisioner for cfg.IndexName.
func NewProvisioner(factory CreatorFactory, schema kb.IndexSchema, cfg config.IndexConfig, logger *zap.Logger) *Provisioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Provisioner{factory: factory, schema: schema, cfg: cfg, logger: logger}
}

// Ensure creates the index, retrying failures RetryDelay apart for at most
// MaxAttempts attempts. An index that already exists counts as success.
func (p *Provisioner) Ensure(ctx context.Context) (Result, error) {
	result := Result{IndexName: p.cfg.IndexName}
	log := p.logger.With(zap.String("index", p.cfg.IndexName))

	if p.cfg.SettleDelay > 0 {
		log.Info("waiting for access policies to settle", zap.Duration("delay", p.cfg.SettleDelay))
		timer := time.NewTimer(p.cfg.SettleDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, ctx.Err()
		case <-timer.C:
		}
	}

	limiter := rate.NewLimiter(rate.Every(p.cfg.RetryDelay), 1)

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return result, fmt.Errorf("provision index %s: %w", p.cfg.IndexName, err)
		}
		result.Attempts = attempt

		created, err := p.attempt(ctx)
		if err == nil {
			result.Created = created
			log.Info("vector index ready", zap.Bool("created", created), zap.Int("attempt", attempt))
			return result, nil
		}

		lastErr = err
		log.Warn("index provisioning attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.cfg.MaxAttempts),
			zap.Error(err),
		)
	}

	return result, fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, result.Attempts, lastErr)
}

func (p *Provisioner) attempt(ctx context.Context) (bool, error) {
	creator, err := p.factory()
	if err != nil {
		return false, fmt.Errorf("build client: %w", err)
	}

	err = creator.Create(ctx, p.cfg.IndexName, p.schema)
	if errors.Is(err, ErrIndexExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
