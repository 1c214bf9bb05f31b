package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"ai-reply-assistant/internal/domain/model"
	"ai-reply-assistant/internal/domain/ports/repository"
	"ai-reply-assistant/internal/infra/metrics"
)

// PoolStats reports connection pool occupancy: total, idle and in use.
type PoolStats func() (total, idle, inUse int32)

// QueueStatsSampler periodically publishes queue depth by status and the
// database pool gauges.
type QueueStatsSampler struct {
	interval time.Duration
	queue    repository.JobQueue
	pool     PoolStats
	log      *zerolog.Logger
}

func NewQueueStatsSampler(interval time.Duration, queue repository.JobQueue, pool PoolStats, logger *zerolog.Logger) *QueueStatsSampler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	l := logger.With().Str("component", "QueueStatsSampler").Logger()
	return &QueueStatsSampler{interval: interval, queue: queue, pool: pool, log: &l}
}

// Run samples once immediately and then every interval until ctx is done.
func (s *QueueStatsSampler) Run(ctx context.Context) error {
	s.log.Info().Dur("interval", s.interval).Msg("Starting queue stats sampler")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sample(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Stopping queue stats sampler")
			return ctx.Err()
		case <-ticker.C:
			s.Sample(ctx)
		}
	}
}

// Sample publishes one reading. Statuses with no jobs are reported as zero.
func (s *QueueStatsSampler) Sample(ctx context.Context) repository.QueueStats {
	runCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	if s.pool != nil {
		metrics.SetDBPoolStats(s.pool())
	}
	st, err := s.queue.Stats(runCtx)
	if err != nil {
		s.log.Warn().Err(err).Msg("queue stats unavailable")
		return nil
	}
	for _, status := range model.JobStatuses() {
		metrics.SetQueueDepth(string(status), st[status])
	}
	if dead := st[model.JobStatusDead]; dead > 0 {
		s.log.Debug().Int("dead", dead).Int("pending", st[model.JobStatusPending]).Msg("queue has dead letters")
	}
	return st
}
