// Package catalog authors the course, chapter, quiz and question hierarchy and
// records course ratings.
package catalog

import (
	"context"
	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"
	"lms-progress/pkg/access"
	"lms-progress/pkg/apperr"
	"lms-progress/pkg/models"
	"lms-progress/pkg/search"
	"lms-progress/pkg/store"
	"log/slog"
)

const (
	defaultPassingScore     = 70
	defaultMaxAttempts      = 3
	defaultChapterMinutes   = 30
	defaultDifficulty       = "beginner"
	defaultQuestionType     = "multiple-choice"
	questionTypeTrueOrFalse = "true-false"
)

// Index receives catalog changes. Failures are logged, never returned.
type Index interface {
	IndexCourse(ctx context.Context, c *models.Course) error
	DeleteCourse(ctx context.Context, id uint) error
	SearchCourses(ctx context.Context, query string) ([]search.Document, error)
}

// Invalidator is told, after commit, about courses whose derived views changed.
type Invalidator interface {
	InvalidateCourse(ctx context.Context, course *models.Course)
}

type Catalog struct {
	store      store.Store
	index      Index
	invalidate Invalidator
	validate   *validator.Validate
	logger     *slog.Logger
}

// New builds a catalog. index may be nil when search is not configured.
func New(s store.Store, index Index, logger *slog.Logger) *Catalog {
	return &Catalog{store: s, index: index, validate: validator.New(), logger: logger}
}

func (c *Catalog) WithInvalidator(i Invalidator) *Catalog {
	c.invalidate = i
	return c
}

func (c *Catalog) changed(ctx context.Context, course *models.Course) {
	if c.invalidate != nil {
		c.invalidate.InvalidateCourse(ctx, course)
	}
}

func (c *Catalog) reindex(ctx context.Context, course *models.Course) {
	if c.index == nil {
		return
	}
	if err := c.index.IndexCourse(ctx, course); err != nil {
		c.logger.Warn("index course", "course_id", course.ID, "error", err)
	}
}

type CourseInput struct {
	Title          string   `json:"title" validate:"required,max=200"`
	Description    string   `json:"description"`
	Difficulty     string   `json:"difficulty" validate:"omitempty,oneof=beginner intermediate advanced"`
	EstimatedHours int      `json:"estimated_hours" validate:"gt=0"`
	Tags           []string `json:"tags" validate:"max=20,dive,required,max=50"`
}

type ChapterInput struct {
	Title            string `json:"title" validate:"required,max=200"`
	Content          string `json:"content"`
	Position         int    `json:"position" validate:"gte=1"`
	EstimatedMinutes int    `json:"estimated_minutes" validate:"gte=0"`
}

type QuizInput struct {
	ChapterID    *uint           `json:"chapter_id"`
	Kind         models.QuizKind `json:"kind" validate:"required,oneof=chapter final"`
	Title        string          `json:"title" validate:"required,max=200"`
	Description  string          `json:"description"`
	PassingScore *int            `json:"passing_score" validate:"omitempty,min=0,max=100"`
	MaxAttempts  *int            `json:"max_attempts" validate:"omitempty,min=0"`
	TimeLimit    *int            `json:"time_limit" validate:"omitempty,gt=0"`
}

type QuestionInput struct {
	Text          string   `json:"question" validate:"required"`
	Type          string   `json:"type" validate:"omitempty,oneof=multiple-choice true-false"`
	Options       []string `json:"options" validate:"min=2,dive,required"`
	CorrectAnswer int      `json:"correct_answer" validate:"gte=0"`
	Explanation   string   `json:"explanation"`
	Points        int      `json:"points" validate:"gte=0"`
	Position      int      `json:"position" validate:"gte=1"`
}

type RatingInput struct {
	Rating int    `json:"rating" validate:"min=1,max=5"`
	Review string `json:"review" validate:"max=2000"`
}

// CourseDetail is a course with its chapters and quizzes.
type CourseDetail struct {
	*models.Course
	EnrollmentCount int     `json:"enrollment_count"`
	AverageRating   float64 `json:"average_rating"`
}

// check runs struct validation and converts failures to apperr field errors.
func (c *Catalog) check(v interface{}) error {
	err := c.validate.Struct(v)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperr.Validation(err.Error())
	}
	fields := make([]apperr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperr.FieldError{Field: fe.Field(), Error: fe.Tag()})
	}
	return apperr.Validation("invalid input", fields...)
}

func invalid(field, msg string) error {
	return apperr.Validation("invalid input", apperr.FieldError{Field: field, Error: msg})
}

func (c *Catalog) CreateCourse(ctx context.Context, teacher access.Principal, in CourseInput) (*models.Course, error) {
	if err := access.RequireTeacher(teacher, "create courses"); err != nil {
		return nil, err
	}
	if err := c.check(in); err != nil {
		return nil, err
	}
	course := &models.Course{
		Title:          in.Title,
		Description:    in.Description,
		TeacherID:      teacher.ID,
		Difficulty:     in.Difficulty,
		EstimatedHours: in.EstimatedHours,
		Tags:           datatypes.JSONSlice[string](in.Tags),
	}
	if course.Difficulty == "" {
		course.Difficulty = defaultDifficulty
	}
	if err := c.store.CreateCourse(ctx, course); err != nil {
		return nil, err
	}
	c.reindex(ctx, course)
	return course, nil
}

// UpdateCourse replaces the course's descriptive fields and refreshes its
// search document.
func (c *Catalog) UpdateCourse(ctx context.Context, teacher access.Principal, courseID uint, in CourseInput) (*models.Course, error) {
	if err := c.check(in); err != nil {
		return nil, err
	}
	var course *models.Course
	err := c.store.Tx(ctx, func(s store.Store) error {
		var err error
		if course, err = access.OwnedCourse(ctx, s, teacher, courseID); err != nil {
			return err
		}
		course.Title = in.Title
		course.Description = in.Description
		course.Difficulty = in.Difficulty
		course.EstimatedHours = in.EstimatedHours
		course.Tags = datatypes.JSONSlice[string](in.Tags)
		if course.Difficulty == "" {
			course.Difficulty = defaultDifficulty
		}
		return s.UpdateCourse(ctx, course)
	})
	if err != nil {
		return nil, err
	}
	c.reindex(ctx, course)
	c.changed(ctx, course)
	return course, nil
}

// DeleteCourse removes the course from the catalog and the search index.
func (c *Catalog) DeleteCourse(ctx context.Context, teacher access.Principal, courseID uint) error {
	var course *models.Course
	err := c.store.Tx(ctx, func(s store.Store) error {
		var err error
		if course, err = access.OwnedCourse(ctx, s, teacher, courseID); err != nil {
			return err
		}
		return s.DeleteCourse(ctx, courseID)
	})
	if err != nil {
		return err
	}
	if c.index != nil {
		if err := c.index.DeleteCourse(ctx, courseID); err != nil {
			c.logger.Warn("unindex course", "course_id", courseID, "error", err)
		}
	}
	c.changed(ctx, course)
	return nil
}

func (c *Catalog) AddChapter(ctx context.Context, teacher access.Principal, courseID uint, in ChapterInput) (*models.Chapter, error) {
	if err := c.check(in); err != nil {
		return nil, err
	}
	var (
		ch     *models.Chapter
		course *models.Course
	)
	err := c.store.Tx(ctx, func(s store.Store) error {
		var err error
		if course, err = access.OwnedCourse(ctx, s, teacher, courseID); err != nil {
			return err
		}
		chapters, err := s.Chapters(ctx, courseID)
		if err != nil {
			return err
		}
		for _, other := range chapters {
			if other.Position == in.Position {
				return invalid("position", "already used in this course")
			}
		}
		ch = &models.Chapter{
			CourseID:         courseID,
			Position:         in.Position,
			Title:            in.Title,
			Content:          in.Content,
			EstimatedMinutes: in.EstimatedMinutes,
		}
		if ch.EstimatedMinutes == 0 {
			ch.EstimatedMinutes = defaultChapterMinutes
		}
		return s.CreateChapter(ctx, ch)
	})
	if err != nil {
		return nil, err
	}
	c.changed(ctx, course)
	return ch, nil
}

func (c *Catalog) AddQuiz(ctx context.Context, teacher access.Principal, courseID uint, in QuizInput) (*models.Quiz, error) {
	if err := c.check(in); err != nil {
		return nil, err
	}
	switch {
	case in.Kind == models.QuizChapter && in.ChapterID == nil:
		return nil, invalid("chapter_id", "required for a chapter quiz")
	case in.Kind == models.QuizFinal && in.ChapterID != nil:
		return nil, invalid("chapter_id", "must be empty for a final quiz")
	}

	var quiz *models.Quiz
	err := c.store.Tx(ctx, func(s store.Store) error {
		if _, err := access.OwnedCourse(ctx, s, teacher, courseID); err != nil {
			return err
		}
		if in.ChapterID != nil {
			ch, err := s.Chapter(ctx, *in.ChapterID)
			if err != nil {
				return err
			}
			if ch.CourseID != courseID {
				return apperr.NotFound("chapter %d not found in course %d", ch.ID, courseID)
			}
		}
		existing, err := s.QuizzesByCourse(ctx, []uint{courseID})
		if err != nil {
			return err
		}
		for _, q := range existing {
			if in.Kind == models.QuizFinal && q.Kind == models.QuizFinal {
				return invalid("kind", "course already has a final quiz")
			}
			if in.ChapterID != nil && q.ChapterID != nil && *q.ChapterID == *in.ChapterID {
				return invalid("chapter_id", "chapter already has a quiz")
			}
		}

		quiz = &models.Quiz{
			CourseID:     courseID,
			ChapterID:    in.ChapterID,
			Kind:         in.Kind,
			Title:        in.Title,
			Description:  in.Description,
			PassingScore: defaultPassingScore,
			MaxAttempts:  defaultMaxAttempts,
			TimeLimit:    in.TimeLimit,
		}
		if in.PassingScore != nil {
			quiz.PassingScore = *in.PassingScore
		}
		if in.MaxAttempts != nil {
			quiz.MaxAttempts = *in.MaxAttempts
		}
		return s.CreateQuiz(ctx, quiz)
	})
	if err != nil {
		return nil, err
	}
	return quiz, nil
}

func (c *Catalog) AddQuestion(ctx context.Context, teacher access.Principal, quizID uint, in QuestionInput) (*models.Question, error) {
	if err := c.check(in); err != nil {
		return nil, err
	}
	if in.Type == "" {
		in.Type = defaultQuestionType
	}
	if in.Type == questionTypeTrueOrFalse && len(in.Options) != 2 {
		return nil, invalid("options", "a true-false question has exactly two options")
	}
	if in.CorrectAnswer >= len(in.Options) {
		return nil, invalid("correct_answer", "must index one of the options")
	}
	if in.Points == 0 {
		in.Points = 1
	}

	var q *models.Question
	err := c.store.Tx(ctx, func(s store.Store) error {
		quiz, err := s.Quiz(ctx, quizID)
		if err != nil {
			return err
		}
		if _, err := access.OwnedCourse(ctx, s, teacher, quiz.CourseID); err != nil {
			return err
		}
		existing, err := s.Questions(ctx, quizID)
		if err != nil {
			return err
		}
		for _, other := range existing {
			if other.Position == in.Position {
				return invalid("position", "already used in this quiz")
			}
		}
		q = &models.Question{
			QuizID:        quizID,
			Position:      in.Position,
			Text:          in.Text,
			Type:          in.Type,
			Options:       datatypes.JSONSlice[string](in.Options),
			CorrectAnswer: in.CorrectAnswer,
			Explanation:   in.Explanation,
			Points:        in.Points,
		}
		return s.CreateQuestion(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Course loads a course with its ordered chapters, quizzes and rating summary.
func (c *Catalog) Course(ctx context.Context, id uint) (*CourseDetail, error) {
	course, err := c.store.Course(ctx, id)
	if err != nil {
		return nil, err
	}
	if course.Chapters, err = c.store.Chapters(ctx, id); err != nil {
		return nil, err
	}
	if course.Quizzes, err = c.store.QuizzesByCourse(ctx, []uint{id}); err != nil {
		return nil, err
	}
	enrolled, err := c.store.CountEnrolled(ctx, id)
	if err != nil {
		return nil, err
	}
	ratings, err := c.store.Ratings(ctx, []uint{id})
	if err != nil {
		return nil, err
	}
	detail := &CourseDetail{Course: course, EnrollmentCount: enrolled}
	if len(ratings) > 0 {
		sum := 0
		for _, r := range ratings {
			sum += r.Rating
		}
		detail.AverageRating = float64(sum) / float64(len(ratings))
	}
	return detail, nil
}

// Quiz loads a quiz with its questions. Correct answers are hidden from students.
func (c *Catalog) Quiz(ctx context.Context, viewer access.Principal, id uint) (*models.Quiz, error) {
	quiz, err := c.store.Quiz(ctx, id)
	if err != nil {
		return nil, err
	}
	if quiz.Questions, err = c.store.Questions(ctx, id); err != nil {
		return nil, err
	}
	if !viewer.IsTeacher() {
		for i := range quiz.Questions {
			quiz.Questions[i].CorrectAnswer = -1
			quiz.Questions[i].Explanation = ""
		}
	}
	return quiz, nil
}

// RateCourse stores the student's rating, replacing an earlier one.
func (c *Catalog) RateCourse(ctx context.Context, student access.Principal, courseID uint, in RatingInput) (*models.CourseRating, error) {
	if err := access.RequireStudent(student, "rate courses"); err != nil {
		return nil, err
	}
	if err := c.check(in); err != nil {
		return nil, err
	}
	r := &models.CourseRating{CourseID: courseID, StudentID: student.ID, Rating: in.Rating, Review: in.Review}
	var course *models.Course
	err := c.store.Tx(ctx, func(s store.Store) error {
		var err error
		if course, err = s.Course(ctx, courseID); err != nil {
			return err
		}
		enrolled, err := s.IsEnrolled(ctx, courseID, student.ID)
		if err != nil {
			return err
		}
		if !enrolled {
			return apperr.NotFound("course %d not found among enrolled courses", courseID)
		}
		return s.SaveRating(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	c.changed(ctx, course)
	return r, nil
}

// Search queries the course index. It returns an empty result when search is
// not configured.
func (c *Catalog) Search(ctx context.Context, query string) ([]search.Document, error) {
	if c.index == nil {
		return []search.Document{}, nil
	}
	return c.index.SearchCourses(ctx, query)
}
