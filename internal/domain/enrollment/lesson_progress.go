package enrollment

import (
	"fmt"
	"time"

	"github.com/satriyop/enteraksi/internal/domain/shared"
)

// Thresholds are the auto-completion cut-offs, in percent.
type Thresholds struct {
	MediaPercent float64
	PagePercent  float64
}

// DefaultThresholds returns 90% for media and 100% for paged content.
func DefaultThresholds() Thresholds {
	return Thresholds{MediaPercent: 90, PagePercent: 100}
}

// LessonProgress is one (enrollment, lesson) row, created on first interaction.
type LessonProgress struct {
	ID                 string
	EnrollmentID       string
	LessonID           string
	IsCompleted        bool
	ProgressPercentage float64
	TimeSpentSeconds   int

	CurrentPage        int
	TotalPages         int
	HighestPageReached int

	MediaPositionSeconds int
	MediaDurationSeconds int

	CompletedAt    *time.Time
	LastAccessedAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewLessonProgress creates an untouched row.
func NewLessonProgress(id, enrollmentID, lessonID string, at time.Time) *LessonProgress {
	return &LessonProgress{
		ID:             id,
		EnrollmentID:   enrollmentID,
		LessonID:       lessonID,
		LastAccessedAt: at,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

// Update is a single progress report from the learner's client. Either the
// paging pair or the media pair may be set; time spent is incremental.
type Update struct {
	EnrollmentID string
	LessonID     string

	CurrentPage *int
	TotalPages  *int

	PositionSeconds *int
	DurationSeconds *int

	TimeSpentSeconds int
}

// IsPaged reports whether the update carries paging fields.
func (u Update) IsPaged() bool { return u.CurrentPage != nil && u.TotalPages != nil }

// IsMedia reports whether the update carries media fields.
func (u Update) IsMedia() bool { return u.PositionSeconds != nil && u.DurationSeconds != nil }

// Validate checks the update is well formed.
func (u Update) Validate() error {
	const domain, op = "enrollment", "ValidateUpdate"
	if err := shared.ValidateID(u.EnrollmentID); err != nil {
		return shared.WrapError(domain, op, shared.ErrInvalidID, "invalid enrollment id", err)
	}
	if err := shared.ValidateID(u.LessonID); err != nil {
		return shared.WrapError(domain, op, shared.ErrInvalidID, "invalid lesson id", err)
	}
	if u.TimeSpentSeconds < 0 {
		return shared.NewDomainError(domain, op, shared.ErrValueOutOfRange, "time spent cannot be negative")
	}
	if (u.CurrentPage == nil) != (u.TotalPages == nil) {
		return shared.NewDomainError(domain, op, shared.ErrInvalidInput, "current_page and total_pages must be sent together")
	}
	if (u.PositionSeconds == nil) != (u.DurationSeconds == nil) {
		return shared.NewDomainError(domain, op, shared.ErrInvalidInput, "position and duration must be sent together")
	}
	if u.IsPaged() {
		if *u.TotalPages <= 0 || *u.CurrentPage < 0 {
			return shared.NewDomainError(domain, op, shared.ErrValueOutOfRange,
				fmt.Sprintf("invalid page %d of %d", *u.CurrentPage, *u.TotalPages))
		}
	}
	if u.IsMedia() {
		if *u.DurationSeconds <= 0 || *u.PositionSeconds < 0 {
			return shared.NewDomainError(domain, op, shared.ErrValueOutOfRange,
				fmt.Sprintf("invalid position %ds of %ds", *u.PositionSeconds, *u.DurationSeconds))
		}
	}
	return nil
}

// Apply merges an update into the row and reports whether this call crossed
// the completion threshold for the first time.
func (p *LessonProgress) Apply(u Update, th Thresholds, at time.Time) bool {
	p.LastAccessedAt = at
	p.UpdatedAt = at
	if u.TimeSpentSeconds > 0 {
		p.TimeSpentSeconds += u.TimeSpentSeconds
	}

	reached := false
	if u.IsPaged() {
		total := *u.TotalPages
		current := min(*u.CurrentPage, total)
		p.TotalPages = total
		p.CurrentPage = current
		p.HighestPageReached = min(max(p.HighestPageReached, current), total)
		p.raiseProgress(shared.Ratio(float64(p.HighestPageReached), float64(total)))
		reached = shared.Ratio(float64(current), float64(total)) >= th.PagePercent
	}
	if u.IsMedia() {
		duration := *u.DurationSeconds
		position := min(*u.PositionSeconds, duration)
		p.MediaDurationSeconds = duration
		p.MediaPositionSeconds = position
		watched := shared.Ratio(float64(position), float64(duration))
		p.raiseProgress(watched)
		reached = reached || watched >= th.MediaPercent
	}

	if reached {
		return p.MarkCompleted(at)
	}
	return false
}

// MarkCompleted completes the lesson. Reports false if it already was.
func (p *LessonProgress) MarkCompleted(at time.Time) bool {
	if p.IsCompleted {
		return false
	}
	p.IsCompleted = true
	p.CompletedAt = &at
	p.ProgressPercentage = 100
	p.UpdatedAt = at
	return true
}

func (p *LessonProgress) raiseProgress(pct float64) {
	if p.IsCompleted {
		return
	}
	if pct > p.ProgressPercentage {
		p.ProgressPercentage = pct
	}
}
