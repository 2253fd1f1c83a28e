// Package memory is an in-process implementation of the unit of work and
// all repositories. Units of work are serialized, and a rollback restores
// the snapshot taken at Begin. It backs tests and single-process local runs.
package memory

import (
	"context"
	"sync"

	"github.com/satriyop/enteraksi/internal/domain/course"
	"github.com/satriyop/enteraksi/internal/domain/enrollment"
	"github.com/satriyop/enteraksi/internal/domain/learningpath"
	"github.com/satriyop/enteraksi/internal/domain/uow"
)

type data struct {
	courses         map[string]course.Course
	lessons         map[string]course.Lesson
	assessments     map[string]course.Assessment
	outcomes        map[string]course.Outcome // user|assessment
	paths           map[string]learningpath.LearningPath
	payments        map[string]bool // user|course
	enrollments     map[string]enrollment.Enrollment
	lessonProgress  map[string]enrollment.LessonProgress
	pathEnrollments map[string]learningpath.Enrollment
	courseProgress  map[string]learningpath.CourseProgress
}

func newData() *data {
	return &data{
		courses:         map[string]course.Course{},
		lessons:         map[string]course.Lesson{},
		assessments:     map[string]course.Assessment{},
		outcomes:        map[string]course.Outcome{},
		paths:           map[string]learningpath.LearningPath{},
		payments:        map[string]bool{},
		enrollments:     map[string]enrollment.Enrollment{},
		lessonProgress:  map[string]enrollment.LessonProgress{},
		pathEnrollments: map[string]learningpath.Enrollment{},
		courseProgress:  map[string]learningpath.CourseProgress{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (d *data) clone() *data {
	paths := make(map[string]learningpath.LearningPath, len(d.paths))
	for k, p := range d.paths {
		paths[k] = copyPath(p)
	}
	return &data{
		courses:         cloneMap(d.courses),
		lessons:         cloneMap(d.lessons),
		assessments:     cloneMap(d.assessments),
		outcomes:        cloneMap(d.outcomes),
		paths:           paths,
		payments:        cloneMap(d.payments),
		enrollments:     cloneMap(d.enrollments),
		lessonProgress:  cloneMap(d.lessonProgress),
		pathEnrollments: cloneMap(d.pathEnrollments),
		courseProgress:  cloneMap(d.courseProgress),
	}
}

func copyPath(p learningpath.LearningPath) learningpath.LearningPath {
	courses := make([]learningpath.PathCourse, len(p.Courses))
	copy(courses, p.Courses)
	p.Courses = courses
	return p
}

// Store holds all state.
type Store struct {
	// sem admits one unit of work at a time.
	sem chan struct{}
	// mu guards d for readers outside a unit of work.
	mu sync.RWMutex
	d  *data
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{sem: make(chan struct{}, 1), d: newData()}
}

// Begin implements uow.Factory. It blocks while another unit of work is open.
func (s *Store) Begin(ctx context.Context) (uow.UnitOfWork, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.RLock()
	snap := s.d.clone()
	s.mu.RUnlock()
	return &unitOfWork{repos: repos{s}, snapshot: snap}, nil
}

type unitOfWork struct {
	uow.Recorder
	repos
	snapshot *data
	once     sync.Once
}

func (u *unitOfWork) finish(restore bool) {
	u.once.Do(func() {
		if restore {
			u.s.mu.Lock()
			u.s.d = u.snapshot
			u.s.mu.Unlock()
		}
		<-u.s.sem
	})
}

func (u *unitOfWork) Commit(context.Context) error {
	u.finish(false)
	return nil
}

func (u *unitOfWork) Rollback(context.Context) error {
	u.finish(true)
	return nil
}

// Repositories returns repositories outside any unit of work, for read models.
func (s *Store) Repositories() uow.Repositories {
	return repos{s}
}

type repos struct{ s *Store }

func (r repos) Courses() course.Repository                            { return catalogRepo{r.s} }
func (r repos) Enrollments() enrollment.Repository                    { return enrollmentRepo{r.s} }
func (r repos) LessonProgress() enrollment.LessonProgressRepository   { return lessonProgressRepo{r.s} }
func (r repos) Paths() learningpath.Repository                        { return pathRepo{r.s} }
func (r repos) PathEnrollments() learningpath.EnrollmentRepository    { return pathEnrollmentRepo{r.s} }
func (r repos) CourseProgress() learningpath.CourseProgressRepository { return courseProgressRepo{r.s} }
