package jobs

import (
	"context"
	"time"

	"github.com/satriyop/enteraksi/pkg/logger"
	"github.com/satriyop/enteraksi/pkg/timeutil"
)

// DeadLetters is the queue of deliveries that exhausted their retries.
type DeadLetters interface {
	Size() int
	Redeliver(ctx context.Context, now func() time.Time) (delivered, failed int)
}

// RedeliverDeadLettersJob hands parked events back to their listeners.
// Listeners are idempotent, so an event that partially succeeded before is
// safe to deliver again.
type RedeliverDeadLettersJob struct {
	queue  DeadLetters
	clock  timeutil.Clock
	logger *logger.Logger
}

// NewRedeliverDeadLettersJob creates the job.
func NewRedeliverDeadLettersJob(queue DeadLetters, clock timeutil.Clock, log *logger.Logger) *RedeliverDeadLettersJob {
	return &RedeliverDeadLettersJob{
		queue:  queue,
		clock:  clock,
		logger: log.With(logger.KeyComponent, "redeliver_dead_letters"),
	}
}

func (j *RedeliverDeadLettersJob) Name() string { return "redeliver_dead_letters" }

func (j *RedeliverDeadLettersJob) Description() string {
	return "Redeliver events whose listeners failed after all retries"
}

func (j *RedeliverDeadLettersJob) Run(ctx context.Context) error {
	if j.queue.Size() == 0 {
		return nil
	}

	delivered, failed := j.queue.Redeliver(ctx, j.clock.Now)
	if failed > 0 {
		j.logger.Warn("dead letters still failing", "delivered", delivered, "failed", failed)
		return nil
	}
	j.logger.Info("dead letters redelivered", "delivered", delivered)
	return nil
}
