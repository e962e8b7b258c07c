// Package store persists the catalog, progress, attempt and enrollment records.
// Missing rows are reported as apperr NotFound errors.
package store

import (
	"context"
	"lms-progress/pkg/models"
	"time"
)

type Store interface {
	// Tx runs fn inside a single transaction. fn must only use the Store it is given.
	Tx(ctx context.Context, fn func(Store) error) error

	User(ctx context.Context, id uint) (*models.User, error)
	Users(ctx context.Context, ids []uint) (map[uint]models.User, error)
	CreateUser(ctx context.Context, u *models.User) error

	CreateCourse(ctx context.Context, c *models.Course) error
	Course(ctx context.Context, id uint) (*models.Course, error)
	CoursesByTeacher(ctx context.Context, teacherID uint) ([]models.Course, error)
	// UpdateCourse overwrites the course columns. Chapters and quizzes are untouched.
	UpdateCourse(ctx context.Context, c *models.Course) error
	// DeleteCourse hides the course from every lookup. Its chapters, quizzes and
	// progress rows stay behind for history.
	DeleteCourse(ctx context.Context, id uint) error

	CreateChapter(ctx context.Context, ch *models.Chapter) error
	Chapter(ctx context.Context, id uint) (*models.Chapter, error)
	Chapters(ctx context.Context, courseID uint) ([]models.Chapter, error)
	CountChapters(ctx context.Context, courseID uint) (int, error)

	CreateQuiz(ctx context.Context, q *models.Quiz) error
	Quiz(ctx context.Context, id uint) (*models.Quiz, error)
	QuizzesByCourse(ctx context.Context, courseIDs []uint) ([]models.Quiz, error)
	CreateQuestion(ctx context.Context, q *models.Question) error
	Questions(ctx context.Context, quizID uint) ([]models.Question, error)

	SaveRating(ctx context.Context, r *models.CourseRating) error
	Ratings(ctx context.Context, courseIDs []uint) ([]models.CourseRating, error)

	IsEnrolled(ctx context.Context, courseID, studentID uint) (bool, error)
	AddStudent(ctx context.Context, courseID, studentID uint, at time.Time) error
	RemoveStudent(ctx context.Context, courseID, studentID uint) error
	CountEnrolled(ctx context.Context, courseID uint) (int, error)

	CreateEnrollmentRequest(ctx context.Context, r *models.EnrollmentRequest) error
	EnrollmentRequest(ctx context.Context, id uint) (*models.EnrollmentRequest, error)
	LatestEnrollmentRequest(ctx context.Context, studentID, courseID uint) (*models.EnrollmentRequest, error)
	PendingEnrollmentRequests(ctx context.Context, courseID uint) ([]models.EnrollmentRequest, error)
	// ReviewEnrollmentRequest moves a pending request to status. It reports false,
	// without changing anything, when the request is no longer pending.
	ReviewEnrollmentRequest(ctx context.Context, id uint, status models.EnrollmentStatus, reviewerID uint, at time.Time) (bool, error)

	// GetOrCreateProgress reports whether the row was created by this call.
	GetOrCreateProgress(ctx context.Context, studentID, courseID uint, at time.Time) (*models.StudentProgress, bool, error)
	Progress(ctx context.Context, studentID, courseID uint) (*models.StudentProgress, error)
	ProgressByID(ctx context.Context, id uint) (*models.StudentProgress, error)
	ProgressForStudent(ctx context.Context, studentID uint) ([]models.StudentProgress, error)
	ProgressForCourses(ctx context.Context, courseIDs []uint) ([]models.StudentProgress, error)
	AddCompletedChapter(ctx context.Context, progressID, chapterID uint, at time.Time) error
	SaveProgress(ctx context.Context, p *models.StudentProgress) error
	DeleteProgress(ctx context.Context, studentID, courseID uint) error

	CreateAttempt(ctx context.Context, a *models.QuizAttempt) error
	CountAttempts(ctx context.Context, studentID, quizID uint) (int, error)
	RecentAttempts(ctx context.Context, quizIDs []uint, limit int) ([]models.QuizAttempt, error)
}
