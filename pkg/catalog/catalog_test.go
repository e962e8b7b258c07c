package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-progress/pkg/access"
	"lms-progress/pkg/apperr"
	"lms-progress/pkg/models"
	"lms-progress/pkg/search"
	"lms-progress/pkg/store/storetest"
)

type fakeIndex struct {
	indexed []uint
	deleted []uint
	err     error
	query   string
}

func (f *fakeIndex) IndexCourse(_ context.Context, c *models.Course) error {
	f.indexed = append(f.indexed, c.ID)
	return f.err
}

func (f *fakeIndex) DeleteCourse(_ context.Context, id uint) error {
	f.deleted = append(f.deleted, id)
	return f.err
}

func (f *fakeIndex) SearchCourses(_ context.Context, query string) ([]search.Document, error) {
	f.query = query
	return []search.Document{{ID: 1, Title: "Go"}}, nil
}

type fixture struct {
	seed    *storetest.Seeder
	index   *fakeIndex
	cat     *Catalog
	teacher access.Principal
	student access.Principal
}

func setup(t *testing.T) *fixture {
	seed := storetest.New(t)
	teacher := seed.Teacher("Tara")
	student := seed.Student("Stan")
	index := &fakeIndex{}
	return &fixture{
		seed:    seed,
		index:   index,
		cat:     New(seed.Store, index, slog.New(slog.NewTextHandler(io.Discard, nil))),
		teacher: access.Principal{ID: teacher.ID, Role: teacher.Role},
		student: access.Principal{ID: student.ID, Role: student.Role},
	}
}

func (f *fixture) course(t *testing.T) *models.Course {
	c, err := f.cat.CreateCourse(context.Background(), f.teacher, CourseInput{Title: "Go", EstimatedHours: 5, Tags: []string{"go"}})
	require.NoError(t, err)
	return c
}

func intp(v int) *int { return &v }

func fieldNames(err error) []string {
	var out []string
	for _, f := range apperr.FieldsOf(err) {
		out = append(out, f.Field)
	}
	return out
}

func TestCreateCourse(t *testing.T) {
	f := setup(t)

	c := f.course(t)

	assert.Equal(t, f.teacher.ID, c.TeacherID)
	assert.Equal(t, "beginner", c.Difficulty)
	assert.Equal(t, []uint{c.ID}, f.index.indexed)
}

func TestCreateCourseValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.cat.CreateCourse(ctx, f.teacher, CourseInput{Difficulty: "expert"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.ElementsMatch(t, []string{"Title", "Difficulty", "EstimatedHours"}, fieldNames(err))

	_, err = f.cat.CreateCourse(ctx, f.student, CourseInput{Title: "x", EstimatedHours: 1})
	assert.Equal(t, apperr.KindInvalidRole, apperr.KindOf(err))
}

func TestIndexFailureDoesNotFailCreate(t *testing.T) {
	f := setup(t)
	f.index.err = errors.New("es down")

	c, err := f.cat.CreateCourse(context.Background(), f.teacher, CourseInput{Title: "Go", EstimatedHours: 2})

	require.NoError(t, err)
	assert.NotZero(t, c.ID)
}

func TestAddChapterPositionsAreUnique(t *testing.T) {
	f := setup(t)
	c := f.course(t)
	ctx := context.Background()

	ch, err := f.cat.AddChapter(ctx, f.teacher, c.ID, ChapterInput{Title: "One", Position: 1})
	require.NoError(t, err)
	assert.Equal(t, 30, ch.EstimatedMinutes)

	_, err = f.cat.AddChapter(ctx, f.teacher, c.ID, ChapterInput{Title: "Again", Position: 1})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, []string{"position"}, fieldNames(err))

	_, err = f.cat.AddChapter(ctx, f.teacher, c.ID, ChapterInput{Title: "Zero", Position: 0})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestAddChapterRequiresOwner(t *testing.T) {
	f := setup(t)
	c := f.course(t)
	other := f.seed.Teacher("Oz")

	_, err := f.cat.AddChapter(context.Background(), access.Principal{ID: other.ID, Role: other.Role}, c.ID, ChapterInput{Title: "x", Position: 1})

	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestAddQuizRules(t *testing.T) {
	f := setup(t)
	c := f.course(t)
	ctx := context.Background()
	ch, err := f.cat.AddChapter(ctx, f.teacher, c.ID, ChapterInput{Title: "One", Position: 1})
	require.NoError(t, err)

	quiz, err := f.cat.AddQuiz(ctx, f.teacher, c.ID, QuizInput{Kind: models.QuizChapter, ChapterID: &ch.ID, Title: "Check"})
	require.NoError(t, err)
	assert.Equal(t, 70, quiz.PassingScore)
	assert.Equal(t, 3, quiz.MaxAttempts)

	_, err = f.cat.AddQuiz(ctx, f.teacher, c.ID, QuizInput{Kind: models.QuizChapter, ChapterID: &ch.ID, Title: "Twice"})
	assert.Equal(t, []string{"chapter_id"}, fieldNames(err))

	final, err := f.cat.AddQuiz(ctx, f.teacher, c.ID, QuizInput{Kind: models.QuizFinal, Title: "Final", PassingScore: intp(50), MaxAttempts: intp(0)})
	require.NoError(t, err)
	assert.Equal(t, 50, final.PassingScore)
	assert.Equal(t, 0, final.MaxAttempts)

	_, err = f.cat.AddQuiz(ctx, f.teacher, c.ID, QuizInput{Kind: models.QuizFinal, Title: "Another"})
	assert.Equal(t, []string{"kind"}, fieldNames(err))

	_, err = f.cat.AddQuiz(ctx, f.teacher, c.ID, QuizInput{Kind: models.QuizChapter, Title: "No chapter"})
	assert.Equal(t, []string{"chapter_id"}, fieldNames(err))

	_, err = f.cat.AddQuiz(ctx, f.teacher, c.ID, QuizInput{Kind: models.QuizFinal, Title: "Bad", PassingScore: intp(101)})
	assert.Equal(t, []string{"PassingScore"}, fieldNames(err))
}

func TestAddQuizChapterFromAnotherCourse(t *testing.T) {
	f := setup(t)
	c := f.course(t)
	other := f.course(t)
	ctx := context.Background()
	ch, err := f.cat.AddChapter(ctx, f.teacher, other.ID, ChapterInput{Title: "Elsewhere", Position: 1})
	require.NoError(t, err)

	_, err = f.cat.AddQuiz(ctx, f.teacher, c.ID, QuizInput{Kind: models.QuizChapter, ChapterID: &ch.ID, Title: "Q"})

	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestAddQuestion(t *testing.T) {
	f := setup(t)
	c := f.course(t)
	ctx := context.Background()
	quiz, err := f.cat.AddQuiz(ctx, f.teacher, c.ID, QuizInput{Kind: models.QuizFinal, Title: "Final"})
	require.NoError(t, err)

	q, err := f.cat.AddQuestion(ctx, f.teacher, quiz.ID, QuestionInput{Text: "2+2?", Options: []string{"3", "4"}, CorrectAnswer: 1, Position: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, q.Points)
	assert.Equal(t, "multiple-choice", q.Type)

	tests := []struct {
		name  string
		in    QuestionInput
		field string
	}{
		{"one option", QuestionInput{Text: "?", Options: []string{"a"}, Position: 2}, "Options"},
		{"correct out of range", QuestionInput{Text: "?", Options: []string{"a", "b"}, CorrectAnswer: 2, Position: 2}, "correct_answer"},
		{"true-false with three", QuestionInput{Text: "?", Type: "true-false", Options: []string{"a", "b", "c"}, Position: 2}, "options"},
		{"unknown type", QuestionInput{Text: "?", Type: "essay", Options: []string{"a", "b"}, Position: 2}, "Type"},
		{"duplicate position", QuestionInput{Text: "?", Options: []string{"a", "b"}, Position: 1}, "position"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.cat.AddQuestion(ctx, f.teacher, quiz.ID, tt.in)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Equal(t, []string{tt.field}, fieldNames(err))
		})
	}
}

func TestQuizHidesAnswersFromStudents(t *testing.T) {
	f := setup(t)
	c := f.course(t)
	ctx := context.Background()
	quiz, err := f.cat.AddQuiz(ctx, f.teacher, c.ID, QuizInput{Kind: models.QuizFinal, Title: "Final"})
	require.NoError(t, err)
	_, err = f.cat.AddQuestion(ctx, f.teacher, quiz.ID, QuestionInput{Text: "?", Options: []string{"a", "b"}, CorrectAnswer: 1, Explanation: "b", Position: 1})
	require.NoError(t, err)

	asStudent, err := f.cat.Quiz(ctx, f.student, quiz.ID)
	require.NoError(t, err)
	asTeacher, err := f.cat.Quiz(ctx, f.teacher, quiz.ID)
	require.NoError(t, err)

	assert.Equal(t, -1, asStudent.Questions[0].CorrectAnswer)
	assert.Empty(t, asStudent.Questions[0].Explanation)
	assert.Equal(t, 1, asTeacher.Questions[0].CorrectAnswer)
}

func TestRateCourse(t *testing.T) {
	f := setup(t)
	c := f.course(t)
	ctx := context.Background()

	_, err := f.cat.RateCourse(ctx, f.student, c.ID, RatingInput{Rating: 4})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	f.seed.Enroll(c.ID, f.student.ID, time.Now())
	first, err := f.cat.RateCourse(ctx, f.student, c.ID, RatingInput{Rating: 4})
	require.NoError(t, err)
	second, err := f.cat.RateCourse(ctx, f.student, c.ID, RatingInput{Rating: 2, Review: "meh"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	detail, err := f.cat.Course(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, detail.AverageRating)
	assert.Equal(t, 1, detail.EnrollmentCount)

	for _, bad := range []int{0, 6} {
		_, err = f.cat.RateCourse(ctx, f.student, c.ID, RatingInput{Rating: bad})
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	}
	_, err = f.cat.RateCourse(ctx, f.teacher, c.ID, RatingInput{Rating: 3})
	assert.Equal(t, apperr.KindInvalidRole, apperr.KindOf(err))
}

func TestCourseDetailOrdersChapters(t *testing.T) {
	f := setup(t)
	c := f.course(t)
	ctx := context.Background()
	for _, pos := range []int{3, 1, 2} {
		_, err := f.cat.AddChapter(ctx, f.teacher, c.ID, ChapterInput{Title: "c", Position: pos})
		require.NoError(t, err)
	}

	detail, err := f.cat.Course(ctx, c.ID)

	require.NoError(t, err)
	require.Len(t, detail.Chapters, 3)
	for i, ch := range detail.Chapters {
		assert.Equal(t, i+1, ch.Position)
	}
}

func TestSearch(t *testing.T) {
	f := setup(t)

	docs, err := f.cat.Search(context.Background(), "go")

	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Equal(t, "go", f.index.query)

	bare := New(f.seed.Store, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	docs, err = bare.Search(context.Background(), "go")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

type invalidations struct {
	courses []uint
}

func (i *invalidations) InvalidateCourse(_ context.Context, course *models.Course) {
	i.courses = append(i.courses, course.ID)
}

func TestUpdateCourseReindexes(t *testing.T) {
	f := setup(t)
	inv := &invalidations{}
	f.cat.WithInvalidator(inv)
	c := f.course(t)
	ctx := context.Background()

	got, err := f.cat.UpdateCourse(ctx, f.teacher, c.ID, CourseInput{Title: "Advanced Go", Difficulty: "advanced", EstimatedHours: 8, Tags: []string{"go", "concurrency"}})

	require.NoError(t, err)
	assert.Equal(t, "Advanced Go", got.Title)
	assert.Equal(t, f.teacher.ID, got.TeacherID)
	assert.Equal(t, []uint{c.ID, c.ID}, f.index.indexed)
	assert.Equal(t, []uint{c.ID}, inv.courses)
	stored, err := f.seed.Store.Course(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "advanced", stored.Difficulty)
	assert.Equal(t, []string{"go", "concurrency"}, []string(stored.Tags))
}

func TestUpdateCourseFailures(t *testing.T) {
	f := setup(t)
	c := f.course(t)
	ctx := context.Background()

	_, err := f.cat.UpdateCourse(ctx, f.teacher, c.ID, CourseInput{EstimatedHours: 1})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.cat.UpdateCourse(ctx, f.student, c.ID, CourseInput{Title: "Mine", EstimatedHours: 1})
	assert.Equal(t, apperr.KindInvalidRole, apperr.KindOf(err))

	other := f.seed.Teacher("Otto")
	_, err = f.cat.UpdateCourse(ctx, access.Principal{ID: other.ID, Role: other.Role}, c.ID, CourseInput{Title: "Mine", EstimatedHours: 1})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Equal(t, []uint{c.ID}, f.index.indexed)
}

func TestDeleteCourseRemovesSearchDocument(t *testing.T) {
	f := setup(t)
	inv := &invalidations{}
	f.cat.WithInvalidator(inv)
	c := f.course(t)
	ctx := context.Background()

	require.NoError(t, f.cat.DeleteCourse(ctx, f.teacher, c.ID))

	assert.Equal(t, []uint{c.ID}, f.index.deleted)
	assert.Equal(t, []uint{c.ID}, inv.courses)
	_, err := f.cat.Course(ctx, c.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	err = f.cat.DeleteCourse(ctx, f.teacher, c.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Len(t, f.index.deleted, 1)
}

func TestUnindexFailureDoesNotFailDelete(t *testing.T) {
	f := setup(t)
	c := f.course(t)
	f.index.err = errors.New("es down")

	require.NoError(t, f.cat.DeleteCourse(context.Background(), f.teacher, c.ID))
	assert.Equal(t, []uint{c.ID}, f.index.deleted)
}
