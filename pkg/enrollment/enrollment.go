// Package enrollment runs the request, approve and reject workflow that gates
// course membership.
package enrollment

import (
	"context"
	"lms-progress/pkg/access"
	"lms-progress/pkg/apperr"
	"lms-progress/pkg/clock"
	"lms-progress/pkg/kfka"
	"lms-progress/pkg/models"
	"lms-progress/pkg/store"
	"log/slog"
)

// Invalidator is told, after commit, about courses whose membership changed.
type Invalidator interface {
	InvalidateCourse(ctx context.Context, course *models.Course)
}

type Workflow struct {
	store      store.Store
	clock      clock.Clock
	events     kfka.Publisher
	invalidate Invalidator
	logger     *slog.Logger
}

func NewWorkflow(s store.Store, c clock.Clock, events kfka.Publisher, logger *slog.Logger) *Workflow {
	return &Workflow{store: s, clock: c, events: events, logger: logger}
}

func (w *Workflow) WithInvalidator(i Invalidator) *Workflow {
	w.invalidate = i
	return w
}

func (w *Workflow) changed(ctx context.Context, course *models.Course) {
	if w.invalidate != nil {
		w.invalidate.InvalidateCourse(ctx, course)
	}
}

// Decision is the outcome of reviewing a request. Progress is only set on approval.
type Decision struct {
	Request  *models.EnrollmentRequest `json:"request"`
	Progress *models.StudentProgress   `json:"progress,omitempty"`
}

// RequestEnrollment files a pending request for student to join the course.
func (w *Workflow) RequestEnrollment(ctx context.Context, student access.Principal, courseID uint) (*models.EnrollmentRequest, error) {
	if err := access.RequireStudent(student, "request enrollment"); err != nil {
		return nil, err
	}
	var req *models.EnrollmentRequest
	err := w.store.Tx(ctx, func(s store.Store) error {
		if _, err := s.Course(ctx, courseID); err != nil {
			return err
		}
		enrolled, err := s.IsEnrolled(ctx, courseID, student.ID)
		if err != nil {
			return err
		}
		if enrolled {
			return apperr.New(apperr.KindAlreadyEnrolled, "already enrolled in course %d", courseID)
		}

		prior, err := s.LatestEnrollmentRequest(ctx, student.ID, courseID)
		switch {
		case err == nil:
			switch prior.Status {
			case models.EnrollmentPending:
				return apperr.New(apperr.KindDuplicateRequest, "enrollment request %d is already pending", prior.ID)
			case models.EnrollmentApproved:
				return apperr.New(apperr.KindAlreadyEnrolled, "already enrolled in course %d", courseID)
			case models.EnrollmentRejected:
				return apperr.New(apperr.KindPreviouslyRejected, "enrollment in course %d was rejected", courseID)
			}
		case apperr.KindOf(err) != apperr.KindNotFound:
			return err
		}

		req = &models.EnrollmentRequest{
			StudentID:   student.ID,
			CourseID:    courseID,
			Status:      models.EnrollmentPending,
			RequestedAt: w.clock.Now(),
		}
		return s.CreateEnrollmentRequest(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// Approve grants membership and creates the student's progress row.
func (w *Workflow) Approve(ctx context.Context, reviewer access.Principal, requestID uint) (*Decision, error) {
	return w.review(ctx, reviewer, requestID, models.EnrollmentApproved)
}

func (w *Workflow) Reject(ctx context.Context, reviewer access.Principal, requestID uint) (*Decision, error) {
	return w.review(ctx, reviewer, requestID, models.EnrollmentRejected)
}

func (w *Workflow) review(ctx context.Context, reviewer access.Principal, requestID uint, status models.EnrollmentStatus) (*Decision, error) {
	var (
		out    Decision
		course *models.Course
	)
	err := w.store.Tx(ctx, func(s store.Store) error {
		req, err := s.EnrollmentRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if course, err = access.OwnedCourse(ctx, s, reviewer, req.CourseID); err != nil {
			return err
		}
		now := w.clock.Now()
		ok, err := s.ReviewEnrollmentRequest(ctx, req.ID, status, reviewer.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.New(apperr.KindNotPending, "enrollment request %d is not pending", req.ID)
		}
		req.Status = status
		req.ReviewedAt = &now
		req.ReviewedBy = &reviewer.ID
		out.Request = req

		if status != models.EnrollmentApproved {
			return nil
		}
		if err := s.AddStudent(ctx, req.CourseID, req.StudentID, now); err != nil {
			return err
		}
		out.Progress, _, err = s.GetOrCreateProgress(ctx, req.StudentID, req.CourseID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	if status == models.EnrollmentApproved {
		w.changed(ctx, course)
	}
	w.notify(ctx, out.Request, course)
	return &out, nil
}

// Dismiss removes the student from the course and deletes their progress.
// Attempts and enrollment requests are kept, so the approved request still
// blocks a new one.
func (w *Workflow) Dismiss(ctx context.Context, teacher access.Principal, courseID, studentID uint) error {
	var course *models.Course
	err := w.store.Tx(ctx, func(s store.Store) error {
		var err error
		if course, err = access.OwnedCourse(ctx, s, teacher, courseID); err != nil {
			return err
		}
		enrolled, err := s.IsEnrolled(ctx, courseID, studentID)
		if err != nil {
			return err
		}
		if !enrolled {
			return apperr.NotFound("student %d is not enrolled in course %d", studentID, courseID)
		}
		if err := s.RemoveStudent(ctx, courseID, studentID); err != nil {
			return err
		}
		return s.DeleteProgress(ctx, studentID, courseID)
	})
	if err != nil {
		return err
	}
	w.changed(ctx, course)
	return nil
}

// PendingRequests lists a course's requests awaiting review, oldest first.
func (w *Workflow) PendingRequests(ctx context.Context, teacher access.Principal, courseID uint) ([]models.EnrollmentRequest, error) {
	if _, err := access.OwnedCourse(ctx, w.store, teacher, courseID); err != nil {
		return nil, err
	}
	return w.store.PendingEnrollmentRequests(ctx, courseID)
}

func (w *Workflow) notify(ctx context.Context, req *models.EnrollmentRequest, course *models.Course) {
	event := kfka.EnrollmentReviewed{
		RequestID:   req.ID,
		StudentID:   req.StudentID,
		CourseID:    req.CourseID,
		Status:      string(req.Status),
		CourseTitle: course.Title,
	}
	if req.ReviewedBy != nil {
		event.ReviewerID = *req.ReviewedBy
	}
	if req.ReviewedAt != nil {
		event.ReviewedAt = *req.ReviewedAt
	}
	if u, err := w.store.User(ctx, req.StudentID); err == nil {
		event.Email = u.Email
		event.StudentName = u.Name()
	} else {
		w.logger.Warn("load student for notification", "student_id", req.StudentID, "error", err)
	}
	if err := w.events.Publish(ctx, event); err != nil {
		w.logger.Warn("publish enrollment event", "request_id", req.ID, "error", err)
	}
}
