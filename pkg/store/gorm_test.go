package store_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lms-progress/pkg/access"
	"lms-progress/pkg/apperr"
	"lms-progress/pkg/clock"
	"lms-progress/pkg/initial"
	"lms-progress/pkg/kfka"
	"lms-progress/pkg/models"
	"lms-progress/pkg/progress"
	"lms-progress/pkg/store"
)

type pg struct {
	db    *gorm.DB
	store *store.Gorm
	n     int
}

func startPostgres(t *testing.T) *pg {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres tests in short mode")
	}
	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("lms"),
		tcpostgres.WithUsername("lms"),
		tcpostgres.WithPassword("lms"),
		tcpostgres.BasicWaitStrategies(),
	)
	t.Cleanup(func() {
		if ctr != nil {
			if err := ctr.Terminate(context.Background()); err != nil {
				t.Errorf("terminate postgres container: %v", err)
			}
		}
	})
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, initial.Migrate(db))
	return &pg{db: db, store: store.NewGorm(db)}
}

func (p *pg) user(t *testing.T, role models.Role) *models.User {
	p.n++
	u := &models.User{Email: fmt.Sprintf("%s%d@example.com", role, p.n), FirstName: "Pat", Role: role}
	require.NoError(t, p.store.CreateUser(context.Background(), u))
	return u
}

func (p *pg) course(t *testing.T, teacherID uint, chapters int) (*models.Course, []models.Chapter) {
	ctx := context.Background()
	c := &models.Course{Title: "Databases", TeacherID: teacherID, Difficulty: "beginner", EstimatedHours: 2}
	require.NoError(t, p.store.CreateCourse(ctx, c))
	out := make([]models.Chapter, 0, chapters)
	for i := 1; i <= chapters; i++ {
		ch := models.Chapter{CourseID: c.ID, Position: i, Title: fmt.Sprintf("Chapter %d", i), EstimatedMinutes: 30}
		require.NoError(t, p.store.CreateChapter(ctx, &ch))
		out = append(out, ch)
	}
	return c, out
}

func TestGormStore(t *testing.T) {
	p := startPostgres(t)
	ctx := context.Background()
	at := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

	t.Run("review only moves pending requests", func(t *testing.T) {
		teacher := p.user(t, models.RoleTeacher)
		student := p.user(t, models.RoleStudent)
		c, _ := p.course(t, teacher.ID, 0)
		r := &models.EnrollmentRequest{StudentID: student.ID, CourseID: c.ID, Status: models.EnrollmentPending, RequestedAt: at}
		require.NoError(t, p.store.CreateEnrollmentRequest(ctx, r))

		ok, err := p.store.ReviewEnrollmentRequest(ctx, r.ID, models.EnrollmentApproved, teacher.ID, at)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = p.store.ReviewEnrollmentRequest(ctx, r.ID, models.EnrollmentRejected, teacher.ID, at)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := p.store.EnrollmentRequest(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, models.EnrollmentApproved, got.Status)
		require.NotNil(t, got.ReviewedBy)
		assert.Equal(t, teacher.ID, *got.ReviewedBy)

		ok, err = p.store.ReviewEnrollmentRequest(ctx, r.ID+1000, models.EnrollmentApproved, teacher.ID, at)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("get or create progress reports creation once", func(t *testing.T) {
		teacher := p.user(t, models.RoleTeacher)
		student := p.user(t, models.RoleStudent)
		c, _ := p.course(t, teacher.ID, 1)

		first, created, err := p.store.GetOrCreateProgress(ctx, student.ID, c.ID, at)
		require.NoError(t, err)
		assert.True(t, created)

		again, created, err := p.store.GetOrCreateProgress(ctx, student.ID, c.ID, at.Add(time.Hour))
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, again.ID)
		assert.True(t, at.Equal(again.EnrolledAt))
	})

	t.Run("delete progress removes completed chapters", func(t *testing.T) {
		teacher := p.user(t, models.RoleTeacher)
		student := p.user(t, models.RoleStudent)
		c, chapters := p.course(t, teacher.ID, 2)
		sp, _, err := p.store.GetOrCreateProgress(ctx, student.ID, c.ID, at)
		require.NoError(t, err)
		for _, ch := range chapters {
			require.NoError(t, p.store.AddCompletedChapter(ctx, sp.ID, ch.ID, at))
		}
		loaded, err := p.store.ProgressByID(ctx, sp.ID)
		require.NoError(t, err)
		require.Len(t, loaded.CompletedChapters, 2)

		require.NoError(t, p.store.DeleteProgress(ctx, student.ID, c.ID))

		_, err = p.store.Progress(ctx, student.ID, c.ID)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
		var left int64
		require.NoError(t, p.db.Model(&models.CompletedChapter{}).Where("progress_id = ?", sp.ID).Count(&left).Error)
		assert.Zero(t, left)
		assert.NoError(t, p.store.DeleteProgress(ctx, student.ID, c.ID))
	})

	t.Run("tx rolls back on error", func(t *testing.T) {
		teacher := p.user(t, models.RoleTeacher)
		boom := errors.New("boom")

		err := p.store.Tx(ctx, func(s store.Store) error {
			require.NoError(t, s.CreateCourse(ctx, &models.Course{Title: "Dropped", TeacherID: teacher.ID}))
			return boom
		})

		assert.ErrorIs(t, err, boom)
		courses, err := p.store.CoursesByTeacher(ctx, teacher.ID)
		require.NoError(t, err)
		assert.Empty(t, courses)
	})

	t.Run("update and delete course", func(t *testing.T) {
		teacher := p.user(t, models.RoleTeacher)
		c, _ := p.course(t, teacher.ID, 0)
		c.Title = "Relational Databases"
		c.EstimatedHours = 9

		require.NoError(t, p.store.UpdateCourse(ctx, c))
		got, err := p.store.Course(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "Relational Databases", got.Title)
		assert.Equal(t, 9, got.EstimatedHours)

		require.NoError(t, p.store.DeleteCourse(ctx, c.ID))
		_, err = p.store.Course(ctx, c.ID)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(p.store.DeleteCourse(ctx, c.ID)))
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(p.store.UpdateCourse(ctx, c)))
	})

	t.Run("concurrent chapter completions finish the course", func(t *testing.T) {
		teacher := p.user(t, models.RoleTeacher)
		student := p.user(t, models.RoleStudent)
		c, chapters := p.course(t, teacher.ID, 2)
		require.NoError(t, p.store.AddStudent(ctx, c.ID, student.ID, at))
		sp, _, err := p.store.GetOrCreateProgress(ctx, student.ID, c.ID, at)
		require.NoError(t, err)

		events := &kfka.Recorder{}
		tracker := progress.NewTracker(p.store, clock.System{}, events, slog.New(slog.NewTextHandler(io.Discard, nil)))
		actor := access.Principal{ID: student.ID, Role: student.Role}

		var wg sync.WaitGroup
		errs := make([]error, len(chapters))
		for i, ch := range chapters {
			wg.Add(1)
			go func(i int, chapterID uint) {
				defer wg.Done()
				_, errs[i] = tracker.CompleteChapter(ctx, actor, sp.ID, chapterID, 90)
			}(i, ch.ID)
		}
		wg.Wait()
		for _, err := range errs {
			require.NoError(t, err)
		}

		got, err := p.store.ProgressByID(ctx, sp.ID)
		require.NoError(t, err)
		assert.True(t, got.Completed)
		assert.Len(t, got.CompletedChapters, 2)
		assert.Len(t, got.ChapterScores.Data(), 2)
		completed := 0
		for _, e := range events.Events() {
			if _, ok := e.(kfka.CourseCompleted); ok {
				completed++
			}
		}
		assert.Equal(t, 1, completed)
	})
}
