package repository

import (
	"context"
	"time"

	"ai-reply-assistant/internal/domain/model"
)

type QueueStats map[model.JobStatus]int

// JobQueue is the durable queue of generation jobs.
type JobQueue interface {
	// Enqueue stores job durably. created is false when a job with the same ID
	// already exists; the stored job is returned in that case.
	Enqueue(ctx context.Context, job *model.GenerationJob) (stored *model.GenerationJob, created bool, err error)

	// Claim atomically takes the next eligible job (pending and visible, or
	// processing with an expired lease), bumps its attempt count and leases it
	// for visibility. Returns domain.ErrNotFound when nothing is eligible.
	Claim(ctx context.Context, visibility time.Duration) (*model.GenerationJob, error)

	// Ack, Nack and DeadLetter only succeed for the current lease holder;
	// otherwise they return domain.ErrLeaseLost.
	Ack(ctx context.Context, jobID, lease string) error
	Nack(ctx context.Context, jobID, lease string, retryAfter time.Duration, reason string) error
	DeadLetter(ctx context.Context, jobID, lease, reason string) error

	// Extend pushes the lease deadline out for a long-running attempt.
	Extend(ctx context.Context, jobID, lease string, visibility time.Duration) error

	Void(ctx context.Context, jobID string) error
	IsVoided(ctx context.Context, jobID string) (bool, error)

	// MarkNoticeSent flips notice_sent once; returns false if it was already set.
	MarkNoticeSent(ctx context.Context, jobID string) (bool, error)

	FindByID(ctx context.Context, jobID string) (*model.GenerationJob, error)
	ListDead(ctx context.Context, limit int) ([]*model.GenerationJob, error)
	Stats(ctx context.Context) (QueueStats, error)
}
