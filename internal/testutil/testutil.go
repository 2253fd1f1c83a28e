// Package testutil builds small catalogs on the in-memory store for tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/satriyop/enteraksi/internal/domain/course"
	"github.com/satriyop/enteraksi/internal/domain/learningpath"
	"github.com/satriyop/enteraksi/internal/domain/shared"
	"github.com/satriyop/enteraksi/internal/domain/state"
	"github.com/satriyop/enteraksi/internal/infrastructure/persistence/memory"
)

// Epoch is the fixed start time of test clocks.
var Epoch = time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)

// ID derives a stable UUID from a readable name.
func ID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("enteraksi:"+name)).String()
}

// SeqIDs generates predictable UUIDs in sequence.
type SeqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *SeqIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", g.n)
}

// LessonID names the i-th (1-based) lesson seeded for a course.
func LessonID(courseID string, i int) string { return ID(fmt.Sprintf("%s/lesson-%d", courseID, i)) }

// SeedCourse adds a published free course with n text lessons.
func SeedCourse(s *memory.Store, id string, lessons int) {
	s.PutCourse(course.Course{
		ID:        id,
		Title:     "Course " + id,
		Status:    state.CoursePublished,
		CreatedAt: Epoch,
		UpdatedAt: Epoch,
	})
	for i := 1; i <= lessons; i++ {
		s.PutLesson(course.Lesson{
			ID:                       LessonID(id, i),
			CourseID:                 id,
			Title:                    fmt.Sprintf("Lesson %d", i),
			Position:                 i,
			ContentType:              course.ContentText,
			EstimatedDurationMinutes: 10,
		})
	}
}

// SeedPath adds a published path whose courses are required and take
// positions 1..n in argument order.
func SeedPath(s *memory.Store, id, mode string, courseIDs ...string) {
	p := learningpath.LearningPath{
		ID:               id,
		Title:            "Path " + id,
		IsPublished:      true,
		PrerequisiteMode: mode,
		CreatedAt:        Epoch,
		UpdatedAt:        Epoch,
	}
	for i, cid := range courseIDs {
		p.Courses = append(p.Courses, learningpath.PathCourse{
			CourseID:   cid,
			Position:   i + 1,
			IsRequired: true,
		})
	}
	s.PutPath(p)
}

// Capture is an EventPublisher that keeps everything it is given.
type Capture struct {
	mu     sync.Mutex
	events []shared.Event
}

func (c *Capture) Publish(_ context.Context, events ...shared.Event) error {
	c.mu.Lock()
	c.events = append(c.events, events...)
	c.mu.Unlock()
	return nil
}

// Events returns published events in order.
func (c *Capture) Events() []shared.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]shared.Event, len(c.events))
	copy(out, c.events)
	return out
}

// Named returns published events with the given name.
func (c *Capture) Named(name shared.EventName) []shared.Event {
	var out []shared.Event
	for _, e := range c.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops everything captured so far.
func (c *Capture) Reset() {
	c.mu.Lock()
	c.events = nil
	c.mu.Unlock()
}

// SyncBus dispatches published events to subscribers inline, in order.
// Listeners that publish in turn are dispatched depth first.
type SyncBus struct {
	Capture

	mu       sync.Mutex
	handlers map[shared.EventName][]shared.EventHandler
	all      []shared.EventHandler
}

func (b *SyncBus) Subscribe(name shared.EventName, h shared.EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = map[shared.EventName][]shared.EventHandler{}
	}
	b.handlers[name] = append(b.handlers[name], h)
	return nil
}

func (b *SyncBus) SubscribeAll(h shared.EventHandler) error {
	b.mu.Lock()
	b.all = append(b.all, h)
	b.mu.Unlock()
	return nil
}

func (b *SyncBus) Publish(ctx context.Context, events ...shared.Event) error {
	var errs []error
	for _, e := range events {
		_ = b.Capture.Publish(ctx, e)

		b.mu.Lock()
		hs := append(append([]shared.EventHandler(nil), b.handlers[e.Name]...), b.all...)
		b.mu.Unlock()

		for _, h := range hs {
			if err := h(ctx, e); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", e.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}
