package kfka

import (
	"time"
)

const (
	TopicEnrollment  = "enrollment_notifications"
	TopicQuizResults = "quiz_submissions"
	TopicCompletions = "course_completions"
)

type Event interface {
	Topic() string
	Key() string
}

type EnrollmentReviewed struct {
	RequestID   uint      `json:"request_id"`
	StudentID   uint      `json:"student_id"`
	CourseID    uint      `json:"course_id"`
	ReviewerID  uint      `json:"reviewer_id"`
	Status      string    `json:"status"`
	Email       string    `json:"email"`
	StudentName string    `json:"student_name"`
	CourseTitle string    `json:"course_title"`
	ReviewedAt  time.Time `json:"reviewed_at"`
}

func (e EnrollmentReviewed) Topic() string { return TopicEnrollment }
func (e EnrollmentReviewed) Key() string   { return keyOf(e.CourseID, e.StudentID) }

type QuizSubmitted struct {
	AttemptID uint      `json:"attempt_id"`
	QuizID    uint      `json:"quiz_id"`
	CourseID  uint      `json:"course_id"`
	StudentID uint      `json:"student_id"`
	Score     float64   `json:"score"`
	Passed    bool      `json:"passed"`
	Attempt   int       `json:"attempt"`
	At        time.Time `json:"at"`
}

func (e QuizSubmitted) Topic() string { return TopicQuizResults }
func (e QuizSubmitted) Key() string   { return keyOf(e.CourseID, e.StudentID) }

type CourseCompleted struct {
	ProgressID  uint      `json:"progress_id"`
	StudentID   uint      `json:"student_id"`
	CourseID    uint      `json:"course_id"`
	CompletedAt time.Time `json:"completed_at"`
}

func (e CourseCompleted) Topic() string { return TopicCompletions }
func (e CourseCompleted) Key() string   { return keyOf(e.CourseID, e.StudentID) }
