package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-admin-api/internal/models"
	"github.com/noah-isme/campus-admin-api/pkg/jobs"
)

const auditJobType = "audit_log"

type auditRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuditEvent is what callers hand to the dispatcher.
type AuditEvent struct {
	UserID     string
	Action     string
	ResourceID string
	Details    map[string]interface{}
	Device     models.DeviceFingerprint
}

// AuditDispatcher persists audit entries off the request path.
type AuditDispatcher struct {
	repo    auditRepository
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
}

// AuditConfig sizes the dispatcher's worker pool.
type AuditConfig struct {
	Workers    int
	BufferSize int
}

// NewAuditDispatcher builds a dispatcher with its own worker queue. Call Start before use.
func NewAuditDispatcher(repo auditRepository, metrics *MetricsService, logger *zap.Logger, cfg AuditConfig) *AuditDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &AuditDispatcher{repo: repo, metrics: metrics, logger: logger}
	d.queue = jobs.NewQueue("audit", d.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: 2,
		RetryDelay: 500 * time.Millisecond,
		Logger:     logger,
	})
	return d
}

// Start launches the workers.
func (d *AuditDispatcher) Start(ctx context.Context) {
	if d == nil {
		return
	}
	d.queue.Start(ctx)
}

// Stop halts the workers and flushes whatever is still buffered.
func (d *AuditDispatcher) Stop(ctx context.Context) {
	if d == nil {
		return
	}
	d.queue.Stop()
	if n := d.queue.Drain(ctx); n > 0 {
		d.logger.Info("flushed audit entries on shutdown", zap.Int("count", n))
	}
}

// Record enqueues the event. A full or stopped queue writes synchronously instead.
func (d *AuditDispatcher) Record(ctx context.Context, event AuditEvent) {
	if d == nil || d.repo == nil {
		return
	}
	entry, err := buildAuditLog(event)
	if err != nil {
		d.logger.Warn("failed to encode audit entry", zap.String("action", event.Action), zap.Error(err))
		return
	}

	if err := d.queue.TryEnqueue(jobs.Job{ID: entry.ID, Type: auditJobType, Payload: entry}); err == nil {
		return
	}

	d.metrics.RecordAuditFallback()
	if err := d.repo.CreateAuditLog(context.WithoutCancel(ctx), entry); err != nil {
		d.logger.Warn("failed to record audit log", zap.String("action", event.Action), zap.Error(err))
	}
}

func (d *AuditDispatcher) handle(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(*models.AuditLog)
	if !ok {
		return fmt.Errorf("unexpected audit payload %T", job.Payload)
	}
	return d.repo.CreateAuditLog(ctx, entry)
}

func buildAuditLog(event AuditEvent) (*models.AuditLog, error) {
	entry := &models.AuditLog{
		ID:        uuid.NewString(),
		Action:    event.Action,
		Resource:  "auth",
		IPAddress: event.Device.IP,
		UserAgent: event.Device.UserAgent,
		CreatedAt: time.Now().UTC(),
	}
	if event.UserID != "" {
		userID := event.UserID
		entry.UserID = &userID
	}
	if event.ResourceID != "" {
		resourceID := event.ResourceID
		entry.ResourceID = &resourceID
	}
	if len(event.Details) > 0 {
		payload, err := json.Marshal(event.Details)
		if err != nil {
			return nil, err
		}
		entry.NewValues = payload
	}
	return entry, nil
}
