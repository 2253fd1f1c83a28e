package memory

import (
	"context"

	"github.com/satriyop/enteraksi/internal/domain/course"
	"github.com/satriyop/enteraksi/internal/domain/learningpath"
)

// The catalog is owned by an external collaborator; these setters stand in
// for it in tests and local runs.

func (s *Store) PutCourse(c course.Course) {
	s.mu.Lock()
	s.d.courses[c.ID] = c
	s.mu.Unlock()
}

func (s *Store) PutLesson(l course.Lesson) {
	s.mu.Lock()
	s.d.lessons[l.ID] = l
	s.mu.Unlock()
}

func (s *Store) PutAssessment(a course.Assessment) {
	s.mu.Lock()
	s.d.assessments[a.ID] = a
	s.mu.Unlock()
}

func (s *Store) PutOutcome(userID string, o course.Outcome) {
	s.mu.Lock()
	s.d.outcomes[key(userID, o.AssessmentID)] = o
	s.mu.Unlock()
}

func (s *Store) PutPath(p learningpath.LearningPath) {
	s.mu.Lock()
	s.d.paths[p.ID] = copyPath(p)
	s.mu.Unlock()
}

// RecordPayment marks a course as paid for by a user.
func (s *Store) RecordPayment(userID, courseID string) {
	s.mu.Lock()
	s.d.payments[key(userID, courseID)] = true
	s.mu.Unlock()
}

// HasPaid implements prerequisite.PaymentVerifier.
func (s *Store) HasPaid(_ context.Context, userID, courseID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.d.payments[key(userID, courseID)], nil
}
