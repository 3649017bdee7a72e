package cleanup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// messagePurger is the slice of the message repo the job needs.
type messagePurger interface {
	ListDeletedRefsBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type attachmentRemover interface {
	Delete(ctx context.Context, key string) error
}

// Job hard-deletes messages that stayed soft-deleted past the retention
// window, dropping their stored attachments first.
type Job struct {
	messages  messagePurger
	storage   attachmentRemover
	retention time.Duration
	batchSize int
	now       func() time.Time
	logger    *zap.Logger
}

func New(messages messagePurger, retention time.Duration, logger *zap.Logger) *Job {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		messages:  messages,
		retention: retention,
		batchSize: 500,
		now:       time.Now,
		logger:    logger,
	}
}

// AttachStorage enables attachment removal. Without it the job only purges
// rows.
func (j *Job) AttachStorage(storage attachmentRemover) {
	j.storage = storage
}

func (j *Job) Run(ctx context.Context) error {
	if j.messages == nil {
		return fmt.Errorf("message store is not configured")
	}

	cutoff := j.now().UTC().Add(-j.retention)

	if j.storage != nil {
		refs, err := j.messages.ListDeletedRefsBefore(ctx, cutoff, j.batchSize)
		if err != nil {
			return fmt.Errorf("list purgeable attachments: %w", err)
		}
		for _, ref := range refs {
			if err := j.storage.Delete(ctx, ref); err != nil {
				// A failed object delete must not block the row purge;
				// the ref is gone after purge so log it loudly.
				j.logger.Warn("delete purged attachment", zap.String("ref", ref), zap.Error(err))
			}
		}
	}

	purged, err := j.messages.PurgeDeletedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge deleted messages: %w", err)
	}
	if purged > 0 {
		j.logger.Info("purged soft-deleted messages", zap.Int64("rows", purged))
	}

	return nil
}

// RunEvery loops the purge on the given interval until the context ends.
func (j *Job) RunEvery(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("cleanup run failed", zap.Error(err))
			}
		}
	}
}
