package eventhandler

import (
	"context"
	"errors"

	"github.com/satriyop/enteraksi/internal/domain/shared"
	"github.com/satriyop/enteraksi/pkg/logger"
)

// Invalidator drops cached read models of a path enrollment.
type Invalidator interface {
	Invalidate(ctx context.Context, pathEnrollmentID string) error
}

// PathCacheInvalidator evicts the cached path progress view whenever a
// path enrollment event is published.
type PathCacheInvalidator struct {
	cache  Invalidator
	logger *logger.Logger
}

func NewPathCacheInvalidator(cache Invalidator, log *logger.Logger) *PathCacheInvalidator {
	return &PathCacheInvalidator{cache: cache, logger: log.With(logger.KeyComponent, "path_cache_invalidator")}
}

// Register subscribes to all events and filters by aggregate.
func (h *PathCacheInvalidator) Register(sub shared.EventSubscriber) error {
	return sub.SubscribeAll(h.Handle)
}

// Handle evicts on path enrollment events and ignores the rest. A failed
// eviction is returned so the bus retries it.
func (h *PathCacheInvalidator) Handle(ctx context.Context, event shared.Event) error {
	if event.AggregateType != shared.AggregatePathEnrollment || event.AggregateID == "" {
		return nil
	}
	if err := h.cache.Invalidate(ctx, event.AggregateID); err != nil {
		h.logger.Warn("cache invalidation failed",
			logger.KeyPathEnrollmentID, event.AggregateID,
			logger.KeyEvent, event.Name,
			logger.KeyError, err,
		)
		return errors.Join(shared.ErrServiceUnavailable, err)
	}
	return nil
}
