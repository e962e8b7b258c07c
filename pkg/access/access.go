// Package access resolves what an authenticated principal may see and do.
// Behavior that differs between students and teachers lives in the two
// resolvers below instead of being branched on inline by each service.
package access

import (
	"context"
	"lms-progress/pkg/apperr"
	"lms-progress/pkg/models"
	"lms-progress/pkg/store"
)

type Principal struct {
	ID   uint
	Role models.Role
}

func (p Principal) IsStudent() bool { return p.Role == models.RoleStudent }
func (p Principal) IsTeacher() bool { return p.Role == models.RoleTeacher }

type Resolver interface {
	// VisibleProgress lists the progress rows the principal may read.
	VisibleProgress(ctx context.Context, s store.Store) ([]models.StudentProgress, error)
	// CanAccessProgress reports whether the principal may read or act on a progress row.
	CanAccessProgress(p *models.StudentProgress, course *models.Course) bool
}

func For(p Principal) (Resolver, error) {
	switch p.Role {
	case models.RoleStudent:
		return studentResolver{id: p.ID}, nil
	case models.RoleTeacher:
		return teacherResolver{id: p.ID}, nil
	}
	return nil, apperr.InvalidRole("unknown role %q", p.Role)
}

type studentResolver struct{ id uint }

func (r studentResolver) VisibleProgress(ctx context.Context, s store.Store) ([]models.StudentProgress, error) {
	return s.ProgressForStudent(ctx, r.id)
}

func (r studentResolver) CanAccessProgress(p *models.StudentProgress, _ *models.Course) bool {
	return p.StudentID == r.id
}

type teacherResolver struct{ id uint }

func (r teacherResolver) VisibleProgress(ctx context.Context, s store.Store) ([]models.StudentProgress, error) {
	courses, err := s.CoursesByTeacher(ctx, r.id)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(courses))
	for _, c := range courses {
		ids = append(ids, c.ID)
	}
	return s.ProgressForCourses(ctx, ids)
}

func (r teacherResolver) CanAccessProgress(_ *models.StudentProgress, course *models.Course) bool {
	return course != nil && course.TeacherID == r.id
}

// RequireStudent fails with InvalidRole unless p is a student.
func RequireStudent(p Principal, action string) error {
	if !p.IsStudent() {
		return apperr.InvalidRole("only students can %s", action)
	}
	return nil
}

// RequireTeacher fails with InvalidRole unless p is a teacher.
func RequireTeacher(p Principal, action string) error {
	if !p.IsTeacher() {
		return apperr.InvalidRole("only teachers can %s", action)
	}
	return nil
}

// OwnedCourse loads a course and fails with NotFound unless teacher owns it.
func OwnedCourse(ctx context.Context, s store.Store, teacher Principal, courseID uint) (*models.Course, error) {
	if err := RequireTeacher(teacher, "manage courses"); err != nil {
		return nil, err
	}
	course, err := s.Course(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course.TeacherID != teacher.ID {
		return nil, apperr.NotFound("course %d not found", courseID)
	}
	return course, nil
}
