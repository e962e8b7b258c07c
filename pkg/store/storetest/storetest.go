// Package storetest seeds an in-memory store for service tests.
package storetest

import (
	"context"
	"fmt"
	"gorm.io/datatypes"
	"lms-progress/pkg/models"
	"lms-progress/pkg/store"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type Seeder struct {
	t     testing.TB
	Store *store.Memory
	n     int
}

func New(t testing.TB) *Seeder {
	return &Seeder{t: t, Store: store.NewMemory()}
}

func (s *Seeder) user(role models.Role, first string) *models.User {
	s.n++
	u := &models.User{
		Email:     fmt.Sprintf("%s%d@example.com", role, s.n),
		FirstName: first,
		LastName:  "Tester",
		Role:      role,
	}
	require.NoError(s.t, s.Store.CreateUser(context.Background(), u))
	return u
}

func (s *Seeder) Student(first string) *models.User { return s.user(models.RoleStudent, first) }
func (s *Seeder) Teacher(first string) *models.User { return s.user(models.RoleTeacher, first) }

func (s *Seeder) Course(teacherID uint, title string) *models.Course {
	c := &models.Course{Title: title, TeacherID: teacherID, Difficulty: "beginner", EstimatedHours: 4}
	require.NoError(s.t, s.Store.CreateCourse(context.Background(), c))
	return c
}

// Chapters adds n chapters at positions 1..n.
func (s *Seeder) Chapters(courseID uint, n int) []models.Chapter {
	out := make([]models.Chapter, 0, n)
	for i := 1; i <= n; i++ {
		ch := models.Chapter{CourseID: courseID, Position: i, Title: fmt.Sprintf("Chapter %d", i), EstimatedMinutes: 30}
		require.NoError(s.t, s.Store.CreateChapter(context.Background(), &ch))
		out = append(out, ch)
	}
	return out
}

// Quiz adds a quiz whose questions each have two options; correct lists the
// right option index per question.
func (s *Seeder) Quiz(courseID uint, chapterID *uint, passing, maxAttempts int, correct ...int) *models.Quiz {
	kind := models.QuizChapter
	if chapterID == nil {
		kind = models.QuizFinal
	}
	q := &models.Quiz{
		CourseID:     courseID,
		ChapterID:    chapterID,
		Kind:         kind,
		Title:        "Quiz",
		PassingScore: passing,
		MaxAttempts:  maxAttempts,
	}
	require.NoError(s.t, s.Store.CreateQuiz(context.Background(), q))
	for i, c := range correct {
		question := models.Question{
			QuizID:        q.ID,
			Position:      i + 1,
			Text:          fmt.Sprintf("Question %d", i+1),
			Type:          "multiple-choice",
			Options:       datatypes.JSONSlice[string]{"a", "b"},
			CorrectAnswer: c,
			Points:        1,
		}
		require.NoError(s.t, s.Store.CreateQuestion(context.Background(), &question))
		q.Questions = append(q.Questions, question)
	}
	return q
}

// Enroll adds the membership row and a progress row enrolled at the given time.
func (s *Seeder) Enroll(courseID, studentID uint, at time.Time) *models.StudentProgress {
	ctx := context.Background()
	require.NoError(s.t, s.Store.AddStudent(ctx, courseID, studentID, at))
	p, _, err := s.Store.GetOrCreateProgress(ctx, studentID, courseID, at)
	require.NoError(s.t, err)
	return p
}

// Rate stores a rating for the course.
func (s *Seeder) Rate(courseID, studentID uint, rating int) {
	require.NoError(s.t, s.Store.SaveRating(context.Background(), &models.CourseRating{
		CourseID:  courseID,
		StudentID: studentID,
		Rating:    rating,
	}))
}
