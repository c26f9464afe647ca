package ratelimit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/support-router/internal/repo"
)

// SQLCounter keeps window counters in the rate_counters table so that all
// replicas sharing the database share one budget.
type SQLCounter struct {
	DB  *gorm.DB
	now func() time.Time
}

// NewSQLCounter returns a counter backed by db.
func NewSQLCounter(db *gorm.DB) *SQLCounter {
	return &SQLCounter{DB: db, now: time.Now}
}

// Incr implements Counter.
func (s *SQLCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	now := s.now()
	return repo.IncrementCounter(ctx, s.DB, bucketKey(key, now, window), WindowEnd(now, window))
}

// Janitor deletes expired windows every interval until ctx is done.
func (s *SQLCounter) Janitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := repo.PurgeExpiredCounters(ctx, s.DB, s.now())
			if err != nil {
				log.Warn().Err(err).Msg("rate counter purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("rows", n).Msg("rate counters purged")
			}
		}
	}
}
