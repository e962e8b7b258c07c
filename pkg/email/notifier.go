package email

import (
	"context"
	"fmt"
	"github.com/pkg/errors"
	"lms-progress/pkg/kfka"
	"lms-progress/pkg/models"
	"strings"
)

// Notifier mails students the outcome of their enrollment requests.
type Notifier struct {
	mailer  Mailer
	baseURL string
}

func NewNotifier(m Mailer, baseURL string) *Notifier {
	return &Notifier{mailer: m, baseURL: strings.TrimRight(baseURL, "/")}
}

func (n *Notifier) EnrollmentReviewed(ctx context.Context, e kfka.EnrollmentReviewed) error {
	if e.Email == "" {
		return errors.Errorf("enrollment request %d: student has no email", e.RequestID)
	}
	data := EmailData{StudentName: e.StudentName, CourseTitle: e.CourseTitle}
	var (
		tmpl    string
		subject string
	)
	switch models.EnrollmentStatus(e.Status) {
	case models.EnrollmentApproved:
		tmpl, subject = TemplateApproved, "Enrollment approved: "+e.CourseTitle
		if n.baseURL != "" {
			data.Link = fmt.Sprintf("%s/courses/%d", n.baseURL, e.CourseID)
		}
	case models.EnrollmentRejected:
		tmpl, subject = TemplateRejected, "Enrollment update: "+e.CourseTitle
	default:
		return errors.Errorf("enrollment request %d: unexpected status %q", e.RequestID, e.Status)
	}
	html, err := data.Render(tmpl)
	if err != nil {
		return err
	}
	return n.mailer.Send(ctx, []string{e.Email}, subject, html)
}
