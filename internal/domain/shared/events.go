package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventName identifies the kind of a domain event.
type EventName string

// Domain event names. These drive the progress cascade.
const (
	// Course enrollment events
	EventUserEnrolled        EventName = "enrollment.user_enrolled"
	EventEnrollmentCompleted EventName = "enrollment.completed"
	EventUserDropped         EventName = "enrollment.user_dropped"
	EventLessonCompleted     EventName = "enrollment.lesson_completed"

	// Learning path events
	EventPathEnrolled         EventName = "learning_path.user_enrolled"
	EventPathDropped          EventName = "learning_path.user_dropped"
	EventPathCompleted        EventName = "learning_path.completed"
	EventCourseUnlockedInPath EventName = "learning_path.course_unlocked"
	EventPathProgressUpdated  EventName = "learning_path.progress_updated"
	EventPathCourseChanged    EventName = "learning_path.course_state_changed"
)

// Aggregate types carried on events.
const (
	AggregateEnrollment     = "enrollment"
	AggregatePathEnrollment = "learning_path_enrollment"
)

// Metadata keys.
const (
	MetaUserID             = "user_id"
	MetaCourseID           = "course_id"
	MetaLessonID           = "lesson_id"
	MetaPathID             = "learning_path_id"
	MetaEnrollmentID       = "enrollment_id"
	MetaReason             = "reason"
	MetaReactivated        = "reactivated"
	MetaPosition           = "position"
	MetaPreviousPercentage = "previous_percentage"
	MetaPercentage         = "percentage"
	MetaPreviousState      = "previous_state"
	MetaState              = "state"
)

// Event is an immutable record of something that happened to an aggregate.
// It is plain data so it survives a round trip through any transport.
type Event struct {
	ID            string         `json:"event_id"`
	Name          EventName      `json:"event_name"`
	AggregateType string         `json:"aggregate_type"`
	AggregateID   string         `json:"aggregate_id"`
	ActorID       string         `json:"actor_id,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Origin is who caused an event and when.
type Origin struct {
	ActorID string
	At      time.Time
}

// NewEvent creates an event with a fresh id. The metadata map is copied.
func NewEvent(name EventName, aggregateType, aggregateID string, origin Origin, metadata map[string]any) Event {
	meta := make(map[string]any, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	return Event{
		ID:            uuid.NewString(),
		Name:          name,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		ActorID:       origin.ActorID,
		OccurredAt:    origin.At,
		Metadata:      meta,
	}
}

// String returns a metadata value as a string.
func (e Event) String(key string) string {
	switch v := e.Metadata[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Float returns a numeric metadata value. Values decoded from JSON arrive as float64.
func (e Event) Float(key string) float64 {
	switch v := e.Metadata[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// Bool returns a boolean metadata value.
func (e Event) Bool(key string) bool {
	v, _ := e.Metadata[key].(bool)
	return v
}

// ═══════════════════════════════════════════════════════════════════════════
// Enrollment events
// ═══════════════════════════════════════════════════════════════════════════

// NewUserEnrolledEvent is emitted when a user enrolls in a course, including reactivation.
func NewUserEnrolledEvent(o Origin, enrollmentID, userID, courseID string, reactivated bool) Event {
	return NewEvent(EventUserEnrolled, AggregateEnrollment, enrollmentID, o, map[string]any{
		MetaUserID:      userID,
		MetaCourseID:    courseID,
		MetaReactivated: reactivated,
	})
}

// NewEnrollmentCompletedEvent is emitted on the active to completed transition.
func NewEnrollmentCompletedEvent(o Origin, enrollmentID, userID, courseID string) Event {
	return NewEvent(EventEnrollmentCompleted, AggregateEnrollment, enrollmentID, o, map[string]any{
		MetaUserID:   userID,
		MetaCourseID: courseID,
	})
}

// NewUserDroppedEvent is emitted on the active to dropped transition.
func NewUserDroppedEvent(o Origin, enrollmentID, userID, courseID, reason string) Event {
	return NewEvent(EventUserDropped, AggregateEnrollment, enrollmentID, o, map[string]any{
		MetaUserID:   userID,
		MetaCourseID: courseID,
		MetaReason:   reason,
	})
}

// NewLessonCompletedEvent is emitted the first time a lesson crosses its completion threshold.
func NewLessonCompletedEvent(o Origin, enrollmentID, userID, courseID, lessonID string) Event {
	return NewEvent(EventLessonCompleted, AggregateEnrollment, enrollmentID, o, map[string]any{
		MetaUserID:   userID,
		MetaCourseID: courseID,
		MetaLessonID: lessonID,
	})
}

// ═══════════════════════════════════════════════════════════════════════════
// Learning path events
// ═══════════════════════════════════════════════════════════════════════════

func NewPathEnrolledEvent(o Origin, pathEnrollmentID, userID, pathID string, reactivated bool) Event {
	return NewEvent(EventPathEnrolled, AggregatePathEnrollment, pathEnrollmentID, o, map[string]any{
		MetaUserID:      userID,
		MetaPathID:      pathID,
		MetaReactivated: reactivated,
	})
}

func NewPathDroppedEvent(o Origin, pathEnrollmentID, userID, pathID, reason string) Event {
	return NewEvent(EventPathDropped, AggregatePathEnrollment, pathEnrollmentID, o, map[string]any{
		MetaUserID: userID,
		MetaPathID: pathID,
		MetaReason: reason,
	})
}

func NewPathCompletedEvent(o Origin, pathEnrollmentID, userID, pathID string) Event {
	return NewEvent(EventPathCompleted, AggregatePathEnrollment, pathEnrollmentID, o, map[string]any{
		MetaUserID: userID,
		MetaPathID: pathID,
	})
}

func NewCourseUnlockedInPathEvent(o Origin, pathEnrollmentID, userID, pathID, courseID string, position int) Event {
	return NewEvent(EventCourseUnlockedInPath, AggregatePathEnrollment, pathEnrollmentID, o, map[string]any{
		MetaUserID:   userID,
		MetaPathID:   pathID,
		MetaCourseID: courseID,
		MetaPosition: position,
	})
}

func NewPathProgressUpdatedEvent(o Origin, pathEnrollmentID, userID, pathID string, previous, current int) Event {
	return NewEvent(EventPathProgressUpdated, AggregatePathEnrollment, pathEnrollmentID, o, map[string]any{
		MetaUserID:             userID,
		MetaPathID:             pathID,
		MetaPreviousPercentage: previous,
		MetaPercentage:         current,
	})
}

// NewPathCourseChangedEvent is emitted when a course row of a path enrollment
// changes state or link outside of unlock and completion.
func NewPathCourseChangedEvent(o Origin, pathEnrollmentID, userID, pathID, courseID, previousState, currentState string) Event {
	return NewEvent(EventPathCourseChanged, AggregatePathEnrollment, pathEnrollmentID, o, map[string]any{
		MetaUserID:        userID,
		MetaPathID:        pathID,
		MetaCourseID:      courseID,
		MetaPreviousState: previousState,
		MetaState:         currentState,
	})
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler handles a single event.
type EventHandler func(ctx context.Context, event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends events to subscribers in order.
	Publish(ctx context.Context, events ...Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event name.
	Subscribe(name EventName, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
