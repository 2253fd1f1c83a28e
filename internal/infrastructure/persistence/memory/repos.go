package memory

import (
	"context"
	"sort"

	"github.com/satriyop/enteraksi/internal/domain/course"
	"github.com/satriyop/enteraksi/internal/domain/enrollment"
	"github.com/satriyop/enteraksi/internal/domain/learningpath"
	"github.com/satriyop/enteraksi/internal/domain/shared"
	"github.com/satriyop/enteraksi/internal/domain/state"
)

func key(a, b string) string { return a + "|" + b }

// ═══════════════════════════════════════════════════════════════════════════
// Catalog
// ═══════════════════════════════════════════════════════════════════════════

type catalogRepo struct{ s *Store }

func (r catalogRepo) FindByID(_ context.Context, id string) (*course.Course, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.d.courses[id]
	if !ok {
		return nil, shared.NotFound("course", "course", id)
	}
	return &c, nil
}

func (r catalogRepo) FindByIDs(_ context.Context, ids []string) (map[string]*course.Course, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[string]*course.Course, len(ids))
	for _, id := range ids {
		if c, ok := r.s.d.courses[id]; ok {
			out[id] = &c
		}
	}
	return out, nil
}

func (r catalogRepo) FindLesson(_ context.Context, lessonID string) (*course.Lesson, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	l, ok := r.s.d.lessons[lessonID]
	if !ok || l.IsDeleted() {
		return nil, shared.NotFound("course", "lesson", lessonID)
	}
	return &l, nil
}

func (r catalogRepo) ListLessons(_ context.Context, courseID string) ([]course.Lesson, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []course.Lesson
	for _, l := range r.s.d.lessons {
		if l.CourseID == courseID && !l.IsDeleted() {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r catalogRepo) ListAssessments(_ context.Context, courseID string) ([]course.Assessment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []course.Assessment
	for _, a := range r.s.d.assessments {
		if a.CourseID == courseID && a.IsPublished {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r catalogRepo) ListOutcomes(_ context.Context, userID, courseID string) ([]course.Outcome, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []course.Outcome
	for _, a := range r.s.d.assessments {
		if a.CourseID != courseID {
			continue
		}
		if o, ok := r.s.d.outcomes[key(userID, a.ID)]; ok {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssessmentID < out[j].AssessmentID })
	return out, nil
}

type pathRepo struct{ s *Store }

func (r pathRepo) FindByID(_ context.Context, id string) (*learningpath.LearningPath, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.d.paths[id]
	if !ok {
		return nil, shared.NotFound("learningpath", "learning path", id)
	}
	p = copyPath(p)
	for i, pc := range p.Courses {
		if c, ok := r.s.d.courses[pc.CourseID]; ok {
			p.Courses[i].CourseTitle = c.Title
			p.Courses[i].CoursePrice = c.Price
		}
	}
	return &p, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Enrollments
// ═══════════════════════════════════════════════════════════════════════════

type enrollmentRepo struct{ s *Store }

func (r enrollmentRepo) FindByID(_ context.Context, id string) (*enrollment.Enrollment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	e, ok := r.s.d.enrollments[id]
	if !ok {
		return nil, shared.NotFound("enrollment", "enrollment", id)
	}
	return &e, nil
}

func (r enrollmentRepo) FindByUserAndCourse(_ context.Context, userID, courseID string) (*enrollment.Enrollment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, e := range r.s.d.enrollments {
		if e.UserID == userID && e.CourseID == courseID {
			return &e, nil
		}
	}
	return nil, shared.NotFound("enrollment", "enrollment", key(userID, courseID))
}

// LockByUserAndCourse needs no lock: units of work are serialized.
func (r enrollmentRepo) LockByUserAndCourse(ctx context.Context, userID, courseID string) (*enrollment.Enrollment, error) {
	return r.FindByUserAndCourse(ctx, userID, courseID)
}

func (r enrollmentRepo) Create(_ context.Context, e *enrollment.Enrollment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.d.enrollments {
		if existing.ID == e.ID || (existing.UserID == e.UserID && existing.CourseID == e.CourseID) {
			return shared.NewDomainError("enrollment", "Create", shared.ErrAlreadyExists, "enrollment already exists")
		}
	}
	r.s.d.enrollments[e.ID] = *e
	return nil
}

func (r enrollmentRepo) Update(_ context.Context, e *enrollment.Enrollment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.d.enrollments[e.ID]; !ok {
		return shared.NotFound("enrollment", "enrollment", e.ID)
	}
	r.s.d.enrollments[e.ID] = *e
	return nil
}

func (r enrollmentRepo) ListActive(_ context.Context, afterID string, limit int) ([]*enrollment.Enrollment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*enrollment.Enrollment
	for _, e := range r.s.d.enrollments {
		if e.Status == state.EnrollmentActive && e.ID > afterID {
			e := e
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type lessonProgressRepo struct{ s *Store }

func (r lessonProgressRepo) GetOrCreateForUpdate(_ context.Context, fresh *enrollment.LessonProgress) (*enrollment.LessonProgress, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.d.lessonProgress {
		if p.EnrollmentID == fresh.EnrollmentID && p.LessonID == fresh.LessonID {
			return &p, nil
		}
	}
	r.s.d.lessonProgress[fresh.ID] = *fresh
	p := *fresh
	return &p, nil
}

func (r lessonProgressRepo) Update(_ context.Context, p *enrollment.LessonProgress) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.d.lessonProgress[p.ID]
	if !ok {
		return shared.NotFound("enrollment", "lesson progress", p.ID)
	}
	row := *p
	row.HighestPageReached = max(existing.HighestPageReached, p.HighestPageReached)
	r.s.d.lessonProgress[p.ID] = row
	return nil
}

func (r lessonProgressRepo) ListByEnrollment(_ context.Context, enrollmentID string) ([]enrollment.LessonProgress, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []enrollment.LessonProgress
	for _, p := range r.s.d.lessonProgress {
		if p.EnrollmentID == enrollmentID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LessonID < out[j].LessonID })
	return out, nil
}

func (r lessonProgressRepo) CompletedLessonIDs(ctx context.Context, enrollmentID string) ([]string, error) {
	rows, _ := r.ListByEnrollment(ctx, enrollmentID)
	var ids []string
	for _, p := range rows {
		if p.IsCompleted {
			ids = append(ids, p.LessonID)
		}
	}
	return ids, nil
}

func (r lessonProgressRepo) DeleteByEnrollment(_ context.Context, enrollmentID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, p := range r.s.d.lessonProgress {
		if p.EnrollmentID == enrollmentID {
			delete(r.s.d.lessonProgress, id)
		}
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Path enrollments
// ═══════════════════════════════════════════════════════════════════════════

type pathEnrollmentRepo struct{ s *Store }

func (r pathEnrollmentRepo) FindByID(_ context.Context, id string) (*learningpath.Enrollment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	e, ok := r.s.d.pathEnrollments[id]
	if !ok {
		return nil, shared.NotFound("learningpath", "path enrollment", id)
	}
	return &e, nil
}

func (r pathEnrollmentRepo) LockByUserAndPath(_ context.Context, userID, pathID string) (*learningpath.Enrollment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, e := range r.s.d.pathEnrollments {
		if e.UserID == userID && e.LearningPathID == pathID {
			return &e, nil
		}
	}
	return nil, shared.NotFound("learningpath", "path enrollment", key(userID, pathID))
}

func (r pathEnrollmentRepo) ListByUserAndCourse(_ context.Context, userID, courseID string) ([]*learningpath.Enrollment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*learningpath.Enrollment
	for _, e := range r.s.d.pathEnrollments {
		if e.UserID != userID || e.State == state.PathDropped {
			continue
		}
		p, ok := r.s.d.paths[e.LearningPathID]
		if !ok {
			continue
		}
		if _, in := p.Course(courseID); in {
			e := e
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r pathEnrollmentRepo) ListActive(_ context.Context, afterID string, limit int) ([]*learningpath.Enrollment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*learningpath.Enrollment
	for _, e := range r.s.d.pathEnrollments {
		if e.State == state.PathActive && e.ID > afterID {
			e := e
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r pathEnrollmentRepo) Create(_ context.Context, e *learningpath.Enrollment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.d.pathEnrollments {
		if existing.ID == e.ID || (existing.UserID == e.UserID && existing.LearningPathID == e.LearningPathID) {
			return shared.NewDomainError("learningpath", "CreateEnrollment", shared.ErrAlreadyExists, "path enrollment already exists")
		}
	}
	r.s.d.pathEnrollments[e.ID] = *e
	return nil
}

func (r pathEnrollmentRepo) Update(_ context.Context, e *learningpath.Enrollment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.d.pathEnrollments[e.ID]; !ok {
		return shared.NotFound("learningpath", "path enrollment", e.ID)
	}
	r.s.d.pathEnrollments[e.ID] = *e
	return nil
}

type courseProgressRepo struct{ s *Store }

func (r courseProgressRepo) list(match func(learningpath.CourseProgress) bool) []*learningpath.CourseProgress {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*learningpath.CourseProgress
	for _, p := range r.s.d.courseProgress {
		if match(p) {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r courseProgressRepo) ListByPathEnrollment(_ context.Context, pathEnrollmentID string) ([]*learningpath.CourseProgress, error) {
	return r.list(func(p learningpath.CourseProgress) bool { return p.PathEnrollmentID == pathEnrollmentID }), nil
}

func (r courseProgressRepo) ListByCourseEnrollment(_ context.Context, courseEnrollmentID string) ([]*learningpath.CourseProgress, error) {
	if courseEnrollmentID == "" {
		return nil, nil
	}
	return r.list(func(p learningpath.CourseProgress) bool { return p.CourseEnrollmentID == courseEnrollmentID }), nil
}

func (r courseProgressRepo) CreateBatch(_ context.Context, rows []*learningpath.CourseProgress) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := map[string]bool{}
	for _, existing := range r.s.d.courseProgress {
		seen[key(existing.PathEnrollmentID, existing.CourseID)] = true
	}
	for _, row := range rows {
		k := key(row.PathEnrollmentID, row.CourseID)
		if seen[k] {
			return shared.NewDomainError("learningpath", "CreateCourseProgress", shared.ErrAlreadyExists, "course progress already exists")
		}
		seen[k] = true
	}
	for _, row := range rows {
		r.s.d.courseProgress[row.ID] = *row
	}
	return nil
}

func (r courseProgressRepo) Update(_ context.Context, p *learningpath.CourseProgress) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.d.courseProgress[p.ID]; !ok {
		return shared.NotFound("learningpath", "course progress", p.ID)
	}
	r.s.d.courseProgress[p.ID] = *p
	return nil
}
