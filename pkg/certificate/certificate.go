// Package certificate issues course-completion certificates. A certificate is
// rendered once per progress row, uploaded to object storage and linked from
// the row.
package certificate

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"html/template"
	"lms-progress/pkg/email"
	"lms-progress/pkg/kfka"
	"lms-progress/pkg/models"
	"lms-progress/pkg/store"
	"log/slog"
	"time"
)

//go:embed templates/certificate.html
var templateFS embed.FS

var page = template.Must(template.ParseFS(templateFS, "templates/certificate.html"))

// ObjectStore uploads a document and returns the URL it is served from.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

type Issuer struct {
	store   store.Store
	objects ObjectStore
	mailer  email.Mailer
	logger  *slog.Logger
}

// NewIssuer builds an issuer. mailer may be nil to skip the notification mail.
func NewIssuer(s store.Store, objects ObjectStore, mailer email.Mailer, logger *slog.Logger) *Issuer {
	return &Issuer{store: s, objects: objects, mailer: mailer, logger: logger}
}

type pageData struct {
	StudentName string
	CourseTitle string
	TeacherName string
	FinalScore  float64
	CompletedAt time.Time
	Serial      string
}

// Serial is stable for a progress row so reissuing yields the same certificate.
func Serial(progressID uint) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("lms-certificate:%d", progressID))).String()
}

func Key(courseID, studentID uint) string {
	return fmt.Sprintf("certificates/course-%d/student-%d.html", courseID, studentID)
}

func render(data pageData) ([]byte, error) {
	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		return nil, errors.Wrap(err, "render certificate")
	}
	return buf.Bytes(), nil
}

// CourseCompleted issues the certificate for the event's progress row. Rows
// that are not complete or already have a certificate are skipped.
func (i *Issuer) CourseCompleted(ctx context.Context, e kfka.CourseCompleted) error {
	p, err := i.store.ProgressByID(ctx, e.ProgressID)
	if err != nil {
		return err
	}
	if !p.Completed || p.CertificateURL != "" {
		i.logger.Info("certificate skipped", "progress_id", p.ID, "completed", p.Completed, "issued", p.CertificateURL != "")
		return nil
	}
	student, err := i.store.User(ctx, p.StudentID)
	if err != nil {
		return err
	}
	course, err := i.store.Course(ctx, p.CourseID)
	if err != nil {
		return err
	}
	teacher, err := i.store.User(ctx, course.TeacherID)
	if err != nil {
		return err
	}

	data := pageData{
		StudentName: student.Name(),
		CourseTitle: course.Title,
		TeacherName: teacher.Name(),
		Serial:      Serial(p.ID),
	}
	if p.FinalExamScore != nil {
		data.FinalScore = *p.FinalExamScore
	}
	if p.CompletedAt != nil {
		data.CompletedAt = *p.CompletedAt
	}
	doc, err := render(data)
	if err != nil {
		return err
	}
	url, err := i.objects.Put(ctx, Key(p.CourseID, p.StudentID), "text/html; charset=utf-8", doc)
	if err != nil {
		return err
	}

	err = i.store.Tx(ctx, func(s store.Store) error {
		fresh, err := s.ProgressByID(ctx, p.ID)
		if err != nil {
			return err
		}
		if fresh.CertificateURL != "" {
			return nil
		}
		fresh.CertificateURL = url
		return s.SaveProgress(ctx, fresh)
	})
	if err != nil {
		return err
	}
	i.logger.Info("certificate issued", "progress_id", p.ID, "url", url)
	i.mail(ctx, student, course, url)
	return nil
}

func (i *Issuer) mail(ctx context.Context, student *models.User, course *models.Course, url string) {
	if i.mailer == nil {
		return
	}
	data := email.EmailData{StudentName: student.Name(), CourseTitle: course.Title, Link: url}
	html, err := data.Render(email.TemplateCertificate)
	if err == nil {
		err = i.mailer.Send(ctx, []string{student.Email}, "Your certificate for "+course.Title, html)
	}
	if err != nil {
		i.logger.Warn("certificate mail", "student_id", student.ID, "error", err)
	}
}
