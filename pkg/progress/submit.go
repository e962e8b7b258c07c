package progress

import (
	"context"
	"gorm.io/datatypes"
	"lms-progress/pkg/access"
	"lms-progress/pkg/apperr"
	"lms-progress/pkg/kfka"
	"lms-progress/pkg/models"
	"lms-progress/pkg/scoring"
	"lms-progress/pkg/store"
)

type Submission struct {
	AttemptID         uint    `json:"attempt_id"`
	Score             float64 `json:"score"`
	Passed            bool    `json:"passed"`
	CorrectAnswers    int     `json:"correct_answers"`
	TotalQuestions    int     `json:"total_questions"`
	EarnedPoints      int     `json:"earned_points"`
	TotalPoints       int     `json:"total_points"`
	AttemptsUsed      int     `json:"attempts_used"`
	AttemptsRemaining *int    `json:"attempts_remaining"`
	OverTime          bool    `json:"over_time"`
	ChapterCompleted  bool    `json:"chapter_completed"`
	CourseCompleted   bool    `json:"course_completed"`
}

// SubmitQuiz grades answers, appends the attempt and updates the student's
// progress row in one transaction. A passed chapter quiz completes its chapter
// with the quiz percentage as the chapter score.
func (t *Tracker) SubmitQuiz(ctx context.Context, student access.Principal, quizID uint, answers map[string]interface{}, timeTaken int) (*Submission, error) {
	if err := access.RequireStudent(student, "submit quizzes"); err != nil {
		return nil, err
	}
	if timeTaken < 0 {
		return nil, apperr.Validation("invalid time taken", apperr.FieldError{Field: "time_taken", Error: "must not be negative"})
	}
	if answers == nil {
		answers = map[string]interface{}{}
	}

	var (
		sub     Submission
		quiz    *models.Quiz
		course  *models.Course
		p       *models.StudentProgress
		attempt models.QuizAttempt
	)
	err := t.store.Tx(ctx, func(s store.Store) error {
		var err error
		if quiz, err = s.Quiz(ctx, quizID); err != nil {
			return err
		}
		if p, err = s.Progress(ctx, student.ID, quiz.CourseID); err != nil {
			return apperr.NotFound("quiz %d not found in an enrolled course", quizID)
		}
		if course, err = s.Course(ctx, quiz.CourseID); err != nil {
			return err
		}
		used, err := s.CountAttempts(ctx, student.ID, quiz.ID)
		if err != nil {
			return err
		}
		if quiz.MaxAttempts > 0 && used >= quiz.MaxAttempts {
			return apperr.New(apperr.KindAttemptsExceeded, "maximum of %d attempts reached", quiz.MaxAttempts)
		}
		questions, err := s.Questions(ctx, quiz.ID)
		if err != nil {
			return err
		}

		now := t.clock.Now()
		res := scoring.Score(questions, answers)
		attempt = models.QuizAttempt{
			StudentID:   student.ID,
			QuizID:      quiz.ID,
			Answers:     datatypes.JSONMap(answers),
			Score:       res.Percentage,
			TimeTaken:   timeTaken,
			StartedAt:   now,
			CompletedAt: &now,
		}
		if err := s.CreateAttempt(ctx, &attempt); err != nil {
			return err
		}

		sub = Submission{
			AttemptID:      attempt.ID,
			Score:          res.Percentage,
			Passed:         res.Passed(quiz.PassingScore),
			CorrectAnswers: res.CorrectCount,
			TotalQuestions: res.TotalCount,
			EarnedPoints:   res.EarnedPoints,
			TotalPoints:    res.TotalPoints,
			AttemptsUsed:   used + 1,
			OverTime:       quiz.TimeLimit != nil && *quiz.TimeLimit > 0 && timeTaken > *quiz.TimeLimit,
		}
		if quiz.MaxAttempts > 0 {
			left := quiz.MaxAttempts - sub.AttemptsUsed
			sub.AttemptsRemaining = &left
		}

		setScore(&p.QuizScores, quiz.ID, res.Percentage)
		p.LastAccessedAt = now
		if quiz.Kind == models.QuizFinal {
			score := res.Percentage
			p.FinalExamScore = &score
			p.FinalExamAttempts++
		}
		if quiz.Kind == models.QuizChapter && quiz.ChapterID != nil && sub.Passed {
			chapter, err := s.Chapter(ctx, *quiz.ChapterID)
			if err != nil {
				return err
			}
			became, _, err := completeChapter(ctx, s, p, chapter, res.Percentage, now)
			if err != nil {
				return err
			}
			sub.ChapterCompleted = true
			sub.CourseCompleted = became
			return nil
		}
		return s.SaveProgress(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	t.changed(ctx, course)

	events := []kfka.Event{kfka.QuizSubmitted{
		AttemptID: attempt.ID,
		QuizID:    quiz.ID,
		CourseID:  quiz.CourseID,
		StudentID: student.ID,
		Score:     sub.Score,
		Passed:    sub.Passed,
		Attempt:   sub.AttemptsUsed,
		At:        attempt.StartedAt,
	}}
	if sub.CourseCompleted {
		events = append(events, completedEvent(p))
	}
	t.publish(ctx, events...)
	return &sub, nil
}
