package store

import (
	"context"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"lms-progress/pkg/apperr"
	"lms-progress/pkg/models"
	"time"
)

// Gorm is the postgres-backed Store. Inside Tx, progress rows are read with
// SELECT ... FOR UPDATE so concurrent mutations of one row run one after the other.
type Gorm struct {
	db   *gorm.DB
	inTx bool
}

var _ Store = (*Gorm)(nil)

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func (g *Gorm) Tx(ctx context.Context, fn func(Store) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Gorm{db: tx, inTx: true})
	})
}

// progressRows scopes a progress query, locking the selected rows inside a transaction.
func (g *Gorm) progressRows(ctx context.Context) *gorm.DB {
	q := g.db.WithContext(ctx)
	if g.inTx {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q.Preload("CompletedChapters")
}

func lookupErr(err error, what string, id interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("%s %v not found", what, id)
	}
	return errors.Wrapf(err, "load %s %v", what, id)
}

func (g *Gorm) User(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := g.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, lookupErr(err, "user", id)
	}
	return &u, nil
}

func (g *Gorm) Users(ctx context.Context, ids []uint) (map[uint]models.User, error) {
	out := make(map[uint]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := g.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, errors.Wrap(err, "load users")
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func (g *Gorm) CreateUser(ctx context.Context, u *models.User) error {
	return errors.Wrap(g.db.WithContext(ctx).Create(u).Error, "create user")
}

func (g *Gorm) CreateCourse(ctx context.Context, c *models.Course) error {
	return errors.Wrap(g.db.WithContext(ctx).Omit(clause.Associations).Create(c).Error, "create course")
}

func (g *Gorm) Course(ctx context.Context, id uint) (*models.Course, error) {
	var c models.Course
	if err := g.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, lookupErr(err, "course", id)
	}
	return &c, nil
}

func (g *Gorm) CoursesByTeacher(ctx context.Context, teacherID uint) ([]models.Course, error) {
	var courses []models.Course
	err := g.db.WithContext(ctx).Where("teacher_id = ?", teacherID).Order("id asc").Find(&courses).Error
	return courses, errors.Wrap(err, "load teacher courses")
}

func (g *Gorm) UpdateCourse(ctx context.Context, c *models.Course) error {
	res := g.db.WithContext(ctx).Model(&models.Course{}).Where("id = ?", c.ID).Updates(map[string]interface{}{
		"title":           c.Title,
		"description":     c.Description,
		"difficulty":      c.Difficulty,
		"estimated_hours": c.EstimatedHours,
		"tags":            c.Tags,
	})
	if res.Error != nil {
		return errors.Wrap(res.Error, "update course")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("course %d not found", c.ID)
	}
	return nil
}

func (g *Gorm) DeleteCourse(ctx context.Context, id uint) error {
	res := g.db.WithContext(ctx).Delete(&models.Course{}, id)
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete course")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("course %d not found", id)
	}
	return nil
}

func (g *Gorm) CreateChapter(ctx context.Context, ch *models.Chapter) error {
	return errors.Wrap(g.db.WithContext(ctx).Create(ch).Error, "create chapter")
}

func (g *Gorm) Chapter(ctx context.Context, id uint) (*models.Chapter, error) {
	var ch models.Chapter
	if err := g.db.WithContext(ctx).First(&ch, id).Error; err != nil {
		return nil, lookupErr(err, "chapter", id)
	}
	return &ch, nil
}

func (g *Gorm) Chapters(ctx context.Context, courseID uint) ([]models.Chapter, error) {
	var chapters []models.Chapter
	err := g.db.WithContext(ctx).Where("course_id = ?", courseID).Order("position asc").Find(&chapters).Error
	return chapters, errors.Wrap(err, "load chapters")
}

func (g *Gorm) CountChapters(ctx context.Context, courseID uint) (int, error) {
	var n int64
	err := g.db.WithContext(ctx).Model(&models.Chapter{}).Where("course_id = ?", courseID).Count(&n).Error
	return int(n), errors.Wrap(err, "count chapters")
}

func (g *Gorm) CreateQuiz(ctx context.Context, q *models.Quiz) error {
	return errors.Wrap(g.db.WithContext(ctx).Omit(clause.Associations).Create(q).Error, "create quiz")
}

func (g *Gorm) Quiz(ctx context.Context, id uint) (*models.Quiz, error) {
	var q models.Quiz
	if err := g.db.WithContext(ctx).First(&q, id).Error; err != nil {
		return nil, lookupErr(err, "quiz", id)
	}
	return &q, nil
}

func (g *Gorm) QuizzesByCourse(ctx context.Context, courseIDs []uint) ([]models.Quiz, error) {
	if len(courseIDs) == 0 {
		return nil, nil
	}
	var quizzes []models.Quiz
	err := g.db.WithContext(ctx).Where("course_id IN ?", courseIDs).Order("id asc").Find(&quizzes).Error
	return quizzes, errors.Wrap(err, "load quizzes")
}

func (g *Gorm) CreateQuestion(ctx context.Context, q *models.Question) error {
	return errors.Wrap(g.db.WithContext(ctx).Create(q).Error, "create question")
}

func (g *Gorm) Questions(ctx context.Context, quizID uint) ([]models.Question, error) {
	var questions []models.Question
	err := g.db.WithContext(ctx).Where("quiz_id = ?", quizID).Order("position asc").Find(&questions).Error
	return questions, errors.Wrap(err, "load questions")
}

func (g *Gorm) SaveRating(ctx context.Context, r *models.CourseRating) error {
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "course_id"}, {Name: "student_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"rating", "review", "updated_at"}),
	}).Create(r).Error
	return errors.Wrap(err, "save rating")
}

func (g *Gorm) Ratings(ctx context.Context, courseIDs []uint) ([]models.CourseRating, error) {
	if len(courseIDs) == 0 {
		return nil, nil
	}
	var ratings []models.CourseRating
	err := g.db.WithContext(ctx).Where("course_id IN ?", courseIDs).Find(&ratings).Error
	return ratings, errors.Wrap(err, "load ratings")
}

func (g *Gorm) IsEnrolled(ctx context.Context, courseID, studentID uint) (bool, error) {
	var n int64
	err := g.db.WithContext(ctx).Model(&models.CourseStudent{}).
		Where("course_id = ? AND student_id = ?", courseID, studentID).Count(&n).Error
	return n > 0, errors.Wrap(err, "check membership")
}

func (g *Gorm) AddStudent(ctx context.Context, courseID, studentID uint, at time.Time) error {
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.CourseStudent{CourseID: courseID, StudentID: studentID, CreatedAt: at}).Error
	return errors.Wrap(err, "add student")
}

func (g *Gorm) RemoveStudent(ctx context.Context, courseID, studentID uint) error {
	err := g.db.WithContext(ctx).Where("course_id = ? AND student_id = ?", courseID, studentID).
		Delete(&models.CourseStudent{}).Error
	return errors.Wrap(err, "remove student")
}

func (g *Gorm) CountEnrolled(ctx context.Context, courseID uint) (int, error) {
	var n int64
	err := g.db.WithContext(ctx).Model(&models.CourseStudent{}).Where("course_id = ?", courseID).Count(&n).Error
	return int(n), errors.Wrap(err, "count enrolled")
}

func (g *Gorm) CreateEnrollmentRequest(ctx context.Context, r *models.EnrollmentRequest) error {
	return errors.Wrap(g.db.WithContext(ctx).Create(r).Error, "create enrollment request")
}

func (g *Gorm) EnrollmentRequest(ctx context.Context, id uint) (*models.EnrollmentRequest, error) {
	var r models.EnrollmentRequest
	if err := g.db.WithContext(ctx).First(&r, id).Error; err != nil {
		return nil, lookupErr(err, "enrollment request", id)
	}
	return &r, nil
}

func (g *Gorm) LatestEnrollmentRequest(ctx context.Context, studentID, courseID uint) (*models.EnrollmentRequest, error) {
	var r models.EnrollmentRequest
	err := g.db.WithContext(ctx).Where("student_id = ? AND course_id = ?", studentID, courseID).
		Order("requested_at desc, id desc").First(&r).Error
	if err != nil {
		return nil, lookupErr(err, "enrollment request for course", courseID)
	}
	return &r, nil
}

func (g *Gorm) PendingEnrollmentRequests(ctx context.Context, courseID uint) ([]models.EnrollmentRequest, error) {
	var out []models.EnrollmentRequest
	err := g.db.WithContext(ctx).Where("course_id = ? AND status = ?", courseID, models.EnrollmentPending).
		Order("requested_at asc").Find(&out).Error
	return out, errors.Wrap(err, "load pending requests")
}

func (g *Gorm) ReviewEnrollmentRequest(ctx context.Context, id uint, status models.EnrollmentStatus, reviewerID uint, at time.Time) (bool, error) {
	res := g.db.WithContext(ctx).Model(&models.EnrollmentRequest{}).
		Where("id = ? AND status = ?", id, models.EnrollmentPending).
		Updates(map[string]interface{}{
			"status":      status,
			"reviewed_at": at,
			"reviewed_by": reviewerID,
		})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "review enrollment request")
	}
	return res.RowsAffected == 1, nil
}

func (g *Gorm) GetOrCreateProgress(ctx context.Context, studentID, courseID uint, at time.Time) (*models.StudentProgress, bool, error) {
	p := models.StudentProgress{
		StudentID:      studentID,
		CourseID:       courseID,
		EnrolledAt:     at,
		LastAccessedAt: at,
	}
	res := g.db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "student_id"}, {Name: "course_id"}},
		DoNothing: true,
	}).Create(&p)
	if res.Error != nil {
		return nil, false, errors.Wrap(res.Error, "create progress")
	}
	out, err := g.Progress(ctx, studentID, courseID)
	if err != nil {
		return nil, false, err
	}
	return out, res.RowsAffected == 1, nil
}

func (g *Gorm) Progress(ctx context.Context, studentID, courseID uint) (*models.StudentProgress, error) {
	var p models.StudentProgress
	err := g.progressRows(ctx).Where("student_id = ? AND course_id = ?", studentID, courseID).First(&p).Error
	if err != nil {
		return nil, lookupErr(err, "progress for course", courseID)
	}
	return &p, nil
}

func (g *Gorm) ProgressByID(ctx context.Context, id uint) (*models.StudentProgress, error) {
	var p models.StudentProgress
	if err := g.progressRows(ctx).First(&p, id).Error; err != nil {
		return nil, lookupErr(err, "progress", id)
	}
	return &p, nil
}

func (g *Gorm) ProgressForStudent(ctx context.Context, studentID uint) ([]models.StudentProgress, error) {
	var out []models.StudentProgress
	err := g.db.WithContext(ctx).Preload("CompletedChapters").Where("student_id = ?", studentID).
		Order("enrolled_at desc").Find(&out).Error
	return out, errors.Wrap(err, "load student progress")
}

func (g *Gorm) ProgressForCourses(ctx context.Context, courseIDs []uint) ([]models.StudentProgress, error) {
	if len(courseIDs) == 0 {
		return nil, nil
	}
	var out []models.StudentProgress
	err := g.db.WithContext(ctx).Preload("CompletedChapters").Where("course_id IN ?", courseIDs).
		Order("enrolled_at desc").Find(&out).Error
	return out, errors.Wrap(err, "load course progress")
}

func (g *Gorm) AddCompletedChapter(ctx context.Context, progressID, chapterID uint, at time.Time) error {
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.CompletedChapter{ProgressID: progressID, ChapterID: chapterID, CompletedAt: at}).Error
	return errors.Wrap(err, "add completed chapter")
}

func (g *Gorm) SaveProgress(ctx context.Context, p *models.StudentProgress) error {
	return errors.Wrap(g.db.WithContext(ctx).Omit(clause.Associations).Save(p).Error, "save progress")
}

func (g *Gorm) DeleteProgress(ctx context.Context, studentID, courseID uint) error {
	var p models.StudentProgress
	err := g.db.WithContext(ctx).Where("student_id = ? AND course_id = ?", studentID, courseID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "load progress")
	}
	if err := g.db.WithContext(ctx).Where("progress_id = ?", p.ID).Delete(&models.CompletedChapter{}).Error; err != nil {
		return errors.Wrap(err, "delete completed chapters")
	}
	return errors.Wrap(g.db.WithContext(ctx).Unscoped().Delete(&models.StudentProgress{}, p.ID).Error, "delete progress")
}

func (g *Gorm) CreateAttempt(ctx context.Context, a *models.QuizAttempt) error {
	return errors.Wrap(g.db.WithContext(ctx).Create(a).Error, "create attempt")
}

func (g *Gorm) CountAttempts(ctx context.Context, studentID, quizID uint) (int, error) {
	var n int64
	err := g.db.WithContext(ctx).Model(&models.QuizAttempt{}).
		Where("student_id = ? AND quiz_id = ?", studentID, quizID).Count(&n).Error
	return int(n), errors.Wrap(err, "count attempts")
}

func (g *Gorm) RecentAttempts(ctx context.Context, quizIDs []uint, limit int) ([]models.QuizAttempt, error) {
	if len(quizIDs) == 0 {
		return nil, nil
	}
	var out []models.QuizAttempt
	err := g.db.WithContext(ctx).Where("quiz_id IN ?", quizIDs).Order("started_at desc").Limit(limit).Find(&out).Error
	return out, errors.Wrap(err, "load recent attempts")
}
