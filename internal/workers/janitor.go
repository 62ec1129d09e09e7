package workers

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Purger removes expired entries from a store that does not expire them itself
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Janitor periodically purges expired entries
type Janitor struct {
	purger   Purger
	interval time.Duration
	logger   *zap.Logger
}

// NewJanitor creates a janitor purging every interval
func NewJanitor(purger Purger, interval time.Duration, logger *zap.Logger) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{purger: purger, interval: interval, logger: logger}
}

// Start runs the purge loop until ctx is cancelled
func (j *Janitor) Start(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.collect(ctx)
		}
	}
}

func (j *Janitor) collect(ctx context.Context) {
	if j.purger == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	n, err := j.purger.PurgeExpired(ctx)
	if err != nil {
		j.logger.Error("purge_failed", zap.Error(err))
		return
	}
	if n > 0 {
		j.logger.Info("purged_expired_entries", zap.Int64("count", n))
	}
}
