package progress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-progress/pkg/apperr"
	"lms-progress/pkg/kfka"
	"lms-progress/pkg/models"
)

func answersFor(ids []uint, picks ...int) map[string]interface{} {
	out := map[string]interface{}{}
	for i, id := range ids {
		out[key(id)] = picks[i]
	}
	return out
}

func TestSubmitQuizHalfCorrect(t *testing.T) {
	e, chapters := newEnv(t, 2)
	e.seed.Enroll(e.course.ID, e.student.ID, start)
	quiz := e.seed.Quiz(e.course.ID, &chapters[0].ID, 70, 3, 1, 0)
	ids := []uint{quiz.Questions[0].ID, quiz.Questions[1].ID}

	sub, err := e.tracker.SubmitQuiz(context.Background(), e.as(e.student), quiz.ID, answersFor(ids, 1, 1), 5)

	require.NoError(t, err)
	assert.Equal(t, 50.0, sub.Score)
	assert.Equal(t, 1, sub.EarnedPoints)
	assert.Equal(t, 2, sub.TotalPoints)
	assert.False(t, sub.Passed)
	assert.False(t, sub.ChapterCompleted)
	assert.Equal(t, 1, sub.AttemptsUsed)
	require.NotNil(t, sub.AttemptsRemaining)
	assert.Equal(t, 2, *sub.AttemptsRemaining)

	p, err := e.seed.Store.Progress(context.Background(), e.student.ID, e.course.ID)
	require.NoError(t, err)
	assert.Equal(t, 50.0, p.QuizScores.Data()[key(quiz.ID)])
	assert.Empty(t, p.CompletedChapters)

	events := e.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, kfka.TopicQuizResults, events[0].Topic())
}

func TestSubmitPassedChapterQuizCompletesChapter(t *testing.T) {
	e, chapters := newEnv(t, 1)
	e.seed.Enroll(e.course.ID, e.student.ID, start)
	quiz := e.seed.Quiz(e.course.ID, &chapters[0].ID, 70, 3, 1, 0)
	ids := []uint{quiz.Questions[0].ID, quiz.Questions[1].ID}

	sub, err := e.tracker.SubmitQuiz(context.Background(), e.as(e.student), quiz.ID, answersFor(ids, 1, 0), 5)

	require.NoError(t, err)
	assert.True(t, sub.Passed)
	assert.True(t, sub.ChapterCompleted)
	assert.True(t, sub.CourseCompleted)

	p, err := e.seed.Store.Progress(context.Background(), e.student.ID, e.course.ID)
	require.NoError(t, err)
	assert.True(t, p.Completed)
	assert.Equal(t, 100.0, p.ChapterScores.Data()[key(chapters[0].ID)])
	assert.Len(t, e.events.Events(), 2)
}

func TestSubmitFinalExamTracksAttempts(t *testing.T) {
	e, _ := newEnv(t, 1)
	e.seed.Enroll(e.course.ID, e.student.ID, start)
	quiz := e.seed.Quiz(e.course.ID, nil, 60, 0, 0)
	ids := []uint{quiz.Questions[0].ID}
	ctx := context.Background()

	_, err := e.tracker.SubmitQuiz(ctx, e.as(e.student), quiz.ID, answersFor(ids, 1), 10)
	require.NoError(t, err)
	e.clock.Advance(time.Hour)
	sub, err := e.tracker.SubmitQuiz(ctx, e.as(e.student), quiz.ID, answersFor(ids, 0), 10)
	require.NoError(t, err)
	assert.Nil(t, sub.AttemptsRemaining)

	p, err := e.seed.Store.Progress(ctx, e.student.ID, e.course.ID)
	require.NoError(t, err)
	require.NotNil(t, p.FinalExamScore)
	assert.Equal(t, 100.0, *p.FinalExamScore)
	assert.Equal(t, 2, p.FinalExamAttempts)
	assert.False(t, p.Completed)
}

func TestSubmitQuizEnforcesMaxAttempts(t *testing.T) {
	e, chapters := newEnv(t, 1)
	e.seed.Enroll(e.course.ID, e.student.ID, start)
	quiz := e.seed.Quiz(e.course.ID, &chapters[0].ID, 70, 2, 1)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := e.tracker.SubmitQuiz(ctx, e.as(e.student), quiz.ID, nil, 1)
		require.NoError(t, err)
	}
	_, err := e.tracker.SubmitQuiz(ctx, e.as(e.student), quiz.ID, nil, 1)

	assert.Equal(t, apperr.KindAttemptsExceeded, apperr.KindOf(err))
	n, err := e.seed.Store.CountAttempts(ctx, e.student.ID, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSubmitQuizRequiresEnrolledStudent(t *testing.T) {
	e, chapters := newEnv(t, 1)
	quiz := e.seed.Quiz(e.course.ID, &chapters[0].ID, 70, 3, 1)
	ctx := context.Background()

	_, err := e.tracker.SubmitQuiz(ctx, e.as(e.student), quiz.ID, nil, 1)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = e.tracker.SubmitQuiz(ctx, e.as(e.teacher), quiz.ID, nil, 1)
	assert.Equal(t, apperr.KindInvalidRole, apperr.KindOf(err))

	_, err = e.tracker.SubmitQuiz(ctx, e.as(e.student), 999, nil, 1)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestSubmitQuizMalformedAnswersStillScore(t *testing.T) {
	e, chapters := newEnv(t, 1)
	e.seed.Enroll(e.course.ID, e.student.ID, start)
	quiz := e.seed.Quiz(e.course.ID, &chapters[0].ID, 70, 3, 1, 0)

	sub, err := e.tracker.SubmitQuiz(context.Background(), e.as(e.student), quiz.ID, map[string]interface{}{
		key(quiz.Questions[0].ID): "banana",
		key(quiz.Questions[1].ID): 17,
	}, 3)

	require.NoError(t, err)
	assert.Equal(t, 0.0, sub.Score)
	assert.Equal(t, 2, sub.TotalQuestions)
}

func TestSubmitQuizFlagsOverTime(t *testing.T) {
	e, _ := newEnv(t, 1)
	e.seed.Enroll(e.course.ID, e.student.ID, start)
	limit := 5
	quiz := &models.Quiz{CourseID: e.course.ID, Kind: models.QuizFinal, Title: "Final", PassingScore: 70, TimeLimit: &limit}
	require.NoError(t, e.seed.Store.CreateQuiz(context.Background(), quiz))

	late, err := e.tracker.SubmitQuiz(context.Background(), e.as(e.student), quiz.ID, nil, 9)
	require.NoError(t, err)
	onTime, err := e.tracker.SubmitQuiz(context.Background(), e.as(e.student), quiz.ID, nil, 5)
	require.NoError(t, err)

	assert.True(t, late.OverTime)
	assert.False(t, onTime.OverTime)
	assert.Equal(t, 0.0, late.Score)
}
