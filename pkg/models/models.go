package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"strings"
	"time"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

type QuizKind string

const (
	QuizChapter QuizKind = "chapter"
	QuizFinal   QuizKind = "final"
)

type EnrollmentStatus string

const (
	EnrollmentPending  EnrollmentStatus = "pending"
	EnrollmentApproved EnrollmentStatus = "approved"
	EnrollmentRejected EnrollmentStatus = "rejected"
)

type User struct {
	gorm.Model
	Email     string `gorm:"unique;not null" json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      Role   `gorm:"type:varchar(10);default:'student'" json:"role"`
}

// Name falls back to the email when no name parts are set.
func (u User) Name() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

type Course struct {
	gorm.Model
	Title          string                      `gorm:"not null" json:"title"`
	Description    string                      `json:"description"`
	TeacherID      uint                        `gorm:"index;not null" json:"teacher_id"`
	Difficulty     string                      `gorm:"type:varchar(20);default:'beginner'" json:"difficulty"`
	EstimatedHours int                         `json:"estimated_hours"`
	Tags           datatypes.JSONSlice[string] `json:"tags"`
	Chapters       []Chapter                   `gorm:"foreignKey:CourseID" json:"chapters,omitempty"`
	Quizzes        []Quiz                      `gorm:"foreignKey:CourseID" json:"quizzes,omitempty"`
}

// CourseStudent is the course membership row (course.enrolled_students).
type CourseStudent struct {
	CourseID  uint `gorm:"primaryKey"`
	StudentID uint `gorm:"primaryKey"`
	CreatedAt time.Time
}

type Chapter struct {
	gorm.Model
	CourseID         uint   `gorm:"uniqueIndex:idx_chapter_course_position;not null" json:"course_id"`
	Position         int    `gorm:"uniqueIndex:idx_chapter_course_position;not null" json:"position"`
	Title            string `gorm:"not null" json:"title"`
	Content          string `json:"content"`
	EstimatedMinutes int    `gorm:"default:30" json:"estimated_minutes"`
}

type Quiz struct {
	gorm.Model
	CourseID     uint       `gorm:"index;not null" json:"course_id"`
	ChapterID    *uint      `gorm:"uniqueIndex" json:"chapter_id"`
	Kind         QuizKind   `gorm:"type:varchar(10);default:'chapter'" json:"kind"`
	Title        string     `gorm:"not null" json:"title"`
	Description  string     `json:"description"`
	PassingScore int        `gorm:"default:70" json:"passing_score"`
	MaxAttempts  int        `gorm:"default:3" json:"max_attempts"`
	TimeLimit    *int       `json:"time_limit"`
	Questions    []Question `gorm:"foreignKey:QuizID" json:"questions,omitempty"`
}

type Question struct {
	gorm.Model
	QuizID        uint                        `gorm:"uniqueIndex:idx_question_quiz_position;not null" json:"quiz_id"`
	Position      int                         `gorm:"uniqueIndex:idx_question_quiz_position;not null" json:"position"`
	Text          string                      `gorm:"not null" json:"question"`
	Type          string                      `gorm:"type:varchar(20);default:'multiple-choice'" json:"type"`
	Options       datatypes.JSONSlice[string] `json:"options"`
	CorrectAnswer int                         `json:"correct_answer"`
	Explanation   string                      `json:"explanation"`
	Points        int                         `gorm:"default:1" json:"points"`
}

type CourseRating struct {
	gorm.Model
	CourseID  uint   `gorm:"uniqueIndex:idx_rating_course_student;not null" json:"course_id"`
	StudentID uint   `gorm:"uniqueIndex:idx_rating_course_student;not null" json:"student_id"`
	Rating    int    `gorm:"not null" json:"rating"`
	Review    string `json:"review"`
}

type StudentProgress struct {
	gorm.Model
	StudentID         uint                                   `gorm:"uniqueIndex:idx_progress_student_course;not null" json:"student_id"`
	CourseID          uint                                   `gorm:"uniqueIndex:idx_progress_student_course;not null" json:"course_id"`
	EnrolledAt        time.Time                              `json:"enrolled_at"`
	CompletedChapters []CompletedChapter                     `gorm:"foreignKey:ProgressID" json:"completed_chapters"`
	ChapterScores     datatypes.JSONType[map[string]float64] `json:"chapter_scores"`
	QuizScores        datatypes.JSONType[map[string]float64] `json:"quiz_scores"`
	FinalExamScore    *float64                               `json:"final_exam_score"`
	FinalExamAttempts int                                    `gorm:"default:0" json:"final_exam_attempts"`
	TotalTimeSpent    int                                    `gorm:"default:0" json:"total_time_spent"`
	LastAccessedAt    time.Time                              `json:"last_accessed_at"`
	Completed         bool                                   `gorm:"default:false" json:"completed"`
	CompletedAt       *time.Time                             `json:"completed_at"`
	CertificateURL    string                                 `json:"certificate_url"`
}

type CompletedChapter struct {
	ProgressID  uint      `gorm:"primaryKey" json:"-"`
	ChapterID   uint      `gorm:"primaryKey" json:"chapter_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// HasCompleted reports whether the chapter is in the completed set.
func (p *StudentProgress) HasCompleted(chapterID uint) bool {
	for _, c := range p.CompletedChapters {
		if c.ChapterID == chapterID {
			return true
		}
	}
	return false
}

type QuizAttempt struct {
	gorm.Model
	StudentID   uint              `gorm:"index;not null" json:"student_id"`
	QuizID      uint              `gorm:"index;not null" json:"quiz_id"`
	Answers     datatypes.JSONMap `json:"answers"`
	Score       float64           `json:"score"`
	TimeTaken   int               `json:"time_taken"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at"`
}

type EnrollmentRequest struct {
	gorm.Model
	StudentID   uint             `gorm:"index;not null" json:"student_id"`
	CourseID    uint             `gorm:"index;not null" json:"course_id"`
	Status      EnrollmentStatus `gorm:"type:varchar(10);default:'pending';index" json:"status"`
	RequestedAt time.Time        `json:"requested_at"`
	ReviewedAt  *time.Time       `json:"reviewed_at"`
	ReviewedBy  *uint            `json:"reviewed_by"`
}
