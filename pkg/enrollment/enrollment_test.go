package enrollment

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-progress/pkg/access"
	"lms-progress/pkg/apperr"
	"lms-progress/pkg/clock"
	"lms-progress/pkg/kfka"
	"lms-progress/pkg/models"
	"lms-progress/pkg/store/storetest"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	seed    *storetest.Seeder
	events  *kfka.Recorder
	flow    *Workflow
	teacher access.Principal
	student access.Principal
	course  *models.Course
}

func setup(t *testing.T) *fixture {
	seed := storetest.New(t)
	f := &fixture{seed: seed, events: &kfka.Recorder{}}
	f.flow = NewWorkflow(seed.Store, clock.NewFixed(now), f.events, slog.New(slog.NewTextHandler(io.Discard, nil)))
	teacher := seed.Teacher("Tom")
	student := seed.Student("Sara")
	f.teacher = access.Principal{ID: teacher.ID, Role: teacher.Role}
	f.student = access.Principal{ID: student.ID, Role: student.Role}
	f.course = seed.Course(teacher.ID, "Distributed Systems")
	return f
}

func (f *fixture) request(t *testing.T) *models.EnrollmentRequest {
	req, err := f.flow.RequestEnrollment(context.Background(), f.student, f.course.ID)
	require.NoError(t, err)
	return req
}

func TestRequestEnrollmentCreatesPending(t *testing.T) {
	f := setup(t)

	req := f.request(t)

	assert.Equal(t, models.EnrollmentPending, req.Status)
	assert.Equal(t, now, req.RequestedAt)
	assert.Nil(t, req.ReviewedAt)
	assert.Nil(t, req.ReviewedBy)
}

func TestRequestEnrollmentFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("teacher", func(t *testing.T) {
		f := setup(t)
		_, err := f.flow.RequestEnrollment(ctx, f.teacher, f.course.ID)
		assert.Equal(t, apperr.KindInvalidRole, apperr.KindOf(err))
	})

	t.Run("unknown course", func(t *testing.T) {
		f := setup(t)
		_, err := f.flow.RequestEnrollment(ctx, f.student, 404)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	t.Run("pending", func(t *testing.T) {
		f := setup(t)
		f.request(t)
		_, err := f.flow.RequestEnrollment(ctx, f.student, f.course.ID)
		assert.Equal(t, apperr.KindDuplicateRequest, apperr.KindOf(err))
	})

	t.Run("approved", func(t *testing.T) {
		f := setup(t)
		req := f.request(t)
		_, err := f.flow.Approve(ctx, f.teacher, req.ID)
		require.NoError(t, err)
		_, err = f.flow.RequestEnrollment(ctx, f.student, f.course.ID)
		assert.Equal(t, apperr.KindAlreadyEnrolled, apperr.KindOf(err))
	})

	t.Run("rejected", func(t *testing.T) {
		f := setup(t)
		req := f.request(t)
		_, err := f.flow.Reject(ctx, f.teacher, req.ID)
		require.NoError(t, err)
		_, err = f.flow.RequestEnrollment(ctx, f.student, f.course.ID)
		assert.Equal(t, apperr.KindPreviouslyRejected, apperr.KindOf(err))
	})

	t.Run("member without history", func(t *testing.T) {
		f := setup(t)
		f.seed.Enroll(f.course.ID, f.student.ID, now)
		_, err := f.flow.RequestEnrollment(ctx, f.student, f.course.ID)
		assert.Equal(t, apperr.KindAlreadyEnrolled, apperr.KindOf(err))
	})
}

func TestApproveGrantsMembershipAndProgress(t *testing.T) {
	f := setup(t)
	req := f.request(t)
	ctx := context.Background()

	d, err := f.flow.Approve(ctx, f.teacher, req.ID)

	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentApproved, d.Request.Status)
	require.NotNil(t, d.Request.ReviewedBy)
	assert.Equal(t, f.teacher.ID, *d.Request.ReviewedBy)
	require.NotNil(t, d.Progress)
	assert.Equal(t, now, d.Progress.EnrolledAt)

	enrolled, err := f.seed.Store.IsEnrolled(ctx, f.course.ID, f.student.ID)
	require.NoError(t, err)
	assert.True(t, enrolled)
	rows, err := f.seed.Store.ProgressForStudent(ctx, f.student.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	events := f.events.Events()
	require.Len(t, events, 1)
	ev := events[0].(kfka.EnrollmentReviewed)
	assert.Equal(t, "approved", ev.Status)
	assert.Equal(t, "Distributed Systems", ev.CourseTitle)
	assert.Equal(t, "Sara Tester", ev.StudentName)
}

func TestApproveReusesExistingProgress(t *testing.T) {
	f := setup(t)
	req := f.request(t)
	ctx := context.Background()
	existing, _, err := f.seed.Store.GetOrCreateProgress(ctx, f.student.ID, f.course.ID, now.Add(-time.Hour))
	require.NoError(t, err)

	d, err := f.flow.Approve(ctx, f.teacher, req.ID)

	require.NoError(t, err)
	assert.Equal(t, existing.ID, d.Progress.ID)
	rows, err := f.seed.Store.ProgressForStudent(ctx, f.student.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestReviewedRequestIsTerminal(t *testing.T) {
	f := setup(t)
	req := f.request(t)
	ctx := context.Background()

	_, err := f.flow.Approve(ctx, f.teacher, req.ID)
	require.NoError(t, err)

	_, err = f.flow.Approve(ctx, f.teacher, req.ID)
	assert.Equal(t, apperr.KindNotPending, apperr.KindOf(err))
	_, err = f.flow.Reject(ctx, f.teacher, req.ID)
	assert.Equal(t, apperr.KindNotPending, apperr.KindOf(err))
}

func TestRejectHasNoSideEffects(t *testing.T) {
	f := setup(t)
	req := f.request(t)
	ctx := context.Background()

	d, err := f.flow.Reject(ctx, f.teacher, req.ID)

	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentRejected, d.Request.Status)
	assert.Nil(t, d.Progress)
	enrolled, err := f.seed.Store.IsEnrolled(ctx, f.course.ID, f.student.ID)
	require.NoError(t, err)
	assert.False(t, enrolled)
}

func TestConcurrentReviewsHaveOneWinner(t *testing.T) {
	f := setup(t)
	req := f.request(t)
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		lost int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = f.flow.Approve(ctx, f.teacher, req.ID)
			} else {
				_, err = f.flow.Reject(ctx, f.teacher, req.ID)
			}
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if apperr.KindOf(err) == apperr.KindNotPending {
				lost++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 7, lost)
}

func TestReviewRequiresOwningTeacher(t *testing.T) {
	f := setup(t)
	req := f.request(t)
	other := f.seed.Teacher("Ola")
	ctx := context.Background()

	_, err := f.flow.Approve(ctx, access.Principal{ID: other.ID, Role: other.Role}, req.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = f.flow.Approve(ctx, f.student, req.ID)
	assert.Equal(t, apperr.KindInvalidRole, apperr.KindOf(err))

	_, err = f.flow.Approve(ctx, f.teacher, 9999)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestDismissRemovesMembershipAndProgress(t *testing.T) {
	f := setup(t)
	req := f.request(t)
	ctx := context.Background()
	_, err := f.flow.Approve(ctx, f.teacher, req.ID)
	require.NoError(t, err)

	require.NoError(t, f.flow.Dismiss(ctx, f.teacher, f.course.ID, f.student.ID))

	enrolled, err := f.seed.Store.IsEnrolled(ctx, f.course.ID, f.student.ID)
	require.NoError(t, err)
	assert.False(t, enrolled)
	_, err = f.seed.Store.Progress(ctx, f.student.ID, f.course.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	kept, err := f.seed.Store.EnrollmentRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentApproved, kept.Status)

	err = f.flow.Dismiss(ctx, f.teacher, f.course.ID, f.student.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestPendingRequests(t *testing.T) {
	f := setup(t)
	f.request(t)
	second := f.seed.Student("Max")
	_, err := f.flow.RequestEnrollment(context.Background(), access.Principal{ID: second.ID, Role: second.Role}, f.course.ID)
	require.NoError(t, err)

	pending, err := f.flow.PendingRequests(context.Background(), f.teacher, f.course.ID)

	require.NoError(t, err)
	assert.Len(t, pending, 2)

	_, err = f.flow.PendingRequests(context.Background(), f.student, f.course.ID)
	assert.Equal(t, apperr.KindInvalidRole, apperr.KindOf(err))
}

func TestDismissedStudentCannotRequestAgain(t *testing.T) {
	f := setup(t)
	req := f.request(t)
	ctx := context.Background()
	_, err := f.flow.Approve(ctx, f.teacher, req.ID)
	require.NoError(t, err)
	require.NoError(t, f.flow.Dismiss(ctx, f.teacher, f.course.ID, f.student.ID))

	_, err = f.flow.RequestEnrollment(ctx, f.student, f.course.ID)

	assert.Equal(t, apperr.KindAlreadyEnrolled, apperr.KindOf(err))
}

type invalidations struct {
	courses []uint
}

func (i *invalidations) InvalidateCourse(_ context.Context, course *models.Course) {
	i.courses = append(i.courses, course.ID)
}

func TestMembershipChangesInvalidateCourseViews(t *testing.T) {
	f := setup(t)
	inv := &invalidations{}
	f.flow.WithInvalidator(inv)
	ctx := context.Background()

	rejected := f.seed.Student("Rita")
	r, err := f.flow.RequestEnrollment(ctx, access.Principal{ID: rejected.ID, Role: rejected.Role}, f.course.ID)
	require.NoError(t, err)
	_, err = f.flow.Reject(ctx, f.teacher, r.ID)
	require.NoError(t, err)
	assert.Empty(t, inv.courses)

	req := f.request(t)
	_, err = f.flow.Approve(ctx, f.teacher, req.ID)
	require.NoError(t, err)
	require.NoError(t, f.flow.Dismiss(ctx, f.teacher, f.course.ID, f.student.ID))

	assert.Equal(t, []uint{f.course.ID, f.course.ID}, inv.courses)
}
