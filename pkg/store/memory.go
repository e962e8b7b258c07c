package store

import (
	"context"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"lms-progress/pkg/apperr"
	"lms-progress/pkg/models"
	"sort"
	"sync"
	"time"
)

type member struct {
	courseID, studentID uint
}

type memData struct {
	seq       uint
	users     map[uint]models.User
	courses   map[uint]models.Course
	members   map[member]time.Time
	chapters  map[uint]models.Chapter
	quizzes   map[uint]models.Quiz
	questions map[uint]models.Question
	ratings   map[uint]models.CourseRating
	requests  map[uint]models.EnrollmentRequest
	progress  map[uint]models.StudentProgress
	attempts  map[uint]models.QuizAttempt
}

func newMemData() *memData {
	return &memData{
		users:     map[uint]models.User{},
		courses:   map[uint]models.Course{},
		members:   map[member]time.Time{},
		chapters:  map[uint]models.Chapter{},
		quizzes:   map[uint]models.Quiz{},
		questions: map[uint]models.Question{},
		ratings:   map[uint]models.CourseRating{},
		requests:  map[uint]models.EnrollmentRequest{},
		progress:  map[uint]models.StudentProgress{},
		attempts:  map[uint]models.QuizAttempt{},
	}
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (d *memData) clone() *memData {
	c := &memData{
		seq:       d.seq,
		users:     copyMap(d.users),
		courses:   copyMap(d.courses),
		members:   copyMap(d.members),
		chapters:  copyMap(d.chapters),
		quizzes:   copyMap(d.quizzes),
		questions: copyMap(d.questions),
		ratings:   copyMap(d.ratings),
		requests:  copyMap(d.requests),
		progress:  make(map[uint]models.StudentProgress, len(d.progress)),
		attempts:  copyMap(d.attempts),
	}
	for id, p := range d.progress {
		c.progress[id] = cloneProgress(p)
	}
	return c
}

func cloneScores(j datatypes.JSONType[map[string]float64]) datatypes.JSONType[map[string]float64] {
	src := j.Data()
	if src == nil {
		return j
	}
	return datatypes.NewJSONType(copyMap(src))
}

func cloneProgress(p models.StudentProgress) models.StudentProgress {
	p.CompletedChapters = append([]models.CompletedChapter(nil), p.CompletedChapters...)
	p.ChapterScores = cloneScores(p.ChapterScores)
	p.QuizScores = cloneScores(p.QuizScores)
	if p.FinalExamScore != nil {
		v := *p.FinalExamScore
		p.FinalExamScore = &v
	}
	if p.CompletedAt != nil {
		v := *p.CompletedAt
		p.CompletedAt = &v
	}
	return p
}

// Memory is an in-process Store. Tx serializes on a single lock and restores
// a snapshot when fn fails.
type Memory struct {
	mu   *sync.Mutex
	d    *memData
	inTx bool
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{mu: &sync.Mutex{}, d: newMemData()}
}

func (m *Memory) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *Memory) nextID() uint {
	m.d.seq++
	return m.d.seq
}

func (m *Memory) Tx(ctx context.Context, fn func(Store) error) error {
	if m.inTx {
		return fn(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.d.clone()
	if err := fn(&Memory{mu: m.mu, d: m.d, inTx: true}); err != nil {
		*m.d = *snapshot
		return err
	}
	return nil
}

func (m *Memory) User(ctx context.Context, id uint) (*models.User, error) {
	defer m.lock()()
	u, ok := m.d.users[id]
	if !ok {
		return nil, apperr.NotFound("user %d not found", id)
	}
	return &u, nil
}

func (m *Memory) Users(ctx context.Context, ids []uint) (map[uint]models.User, error) {
	defer m.lock()()
	out := make(map[uint]models.User, len(ids))
	for _, id := range ids {
		if u, ok := m.d.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (m *Memory) CreateUser(ctx context.Context, u *models.User) error {
	defer m.lock()()
	for _, other := range m.d.users {
		if other.Email == u.Email {
			return errors.Errorf("create user: duplicate email %q", u.Email)
		}
	}
	u.ID = m.nextID()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	m.d.users[u.ID] = *u
	return nil
}

func (m *Memory) CreateCourse(ctx context.Context, c *models.Course) error {
	defer m.lock()()
	c.ID = m.nextID()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	stored := *c
	stored.Chapters, stored.Quizzes = nil, nil
	m.d.courses[c.ID] = stored
	return nil
}

func (m *Memory) Course(ctx context.Context, id uint) (*models.Course, error) {
	defer m.lock()()
	c, ok := m.d.courses[id]
	if !ok {
		return nil, apperr.NotFound("course %d not found", id)
	}
	return &c, nil
}

func (m *Memory) CoursesByTeacher(ctx context.Context, teacherID uint) ([]models.Course, error) {
	defer m.lock()()
	var out []models.Course
	for _, c := range m.d.courses {
		if c.TeacherID == teacherID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdateCourse(ctx context.Context, c *models.Course) error {
	defer m.lock()()
	stored, ok := m.d.courses[c.ID]
	if !ok {
		return apperr.NotFound("course %d not found", c.ID)
	}
	stored.Title = c.Title
	stored.Description = c.Description
	stored.Difficulty = c.Difficulty
	stored.EstimatedHours = c.EstimatedHours
	stored.Tags = append(datatypes.JSONSlice[string](nil), c.Tags...)
	stored.UpdatedAt = time.Now()
	m.d.courses[c.ID] = stored
	c.UpdatedAt = stored.UpdatedAt
	return nil
}

func (m *Memory) DeleteCourse(ctx context.Context, id uint) error {
	defer m.lock()()
	if _, ok := m.d.courses[id]; !ok {
		return apperr.NotFound("course %d not found", id)
	}
	delete(m.d.courses, id)
	return nil
}

func (m *Memory) CreateChapter(ctx context.Context, ch *models.Chapter) error {
	defer m.lock()()
	for _, other := range m.d.chapters {
		if other.CourseID == ch.CourseID && other.Position == ch.Position {
			return errors.Errorf("create chapter: duplicate position %d in course %d", ch.Position, ch.CourseID)
		}
	}
	ch.ID = m.nextID()
	ch.CreatedAt = time.Now()
	ch.UpdatedAt = ch.CreatedAt
	m.d.chapters[ch.ID] = *ch
	return nil
}

func (m *Memory) Chapter(ctx context.Context, id uint) (*models.Chapter, error) {
	defer m.lock()()
	ch, ok := m.d.chapters[id]
	if !ok {
		return nil, apperr.NotFound("chapter %d not found", id)
	}
	return &ch, nil
}

func (m *Memory) Chapters(ctx context.Context, courseID uint) ([]models.Chapter, error) {
	defer m.lock()()
	return m.chapters(courseID), nil
}

func (m *Memory) chapters(courseID uint) []models.Chapter {
	var out []models.Chapter
	for _, ch := range m.d.chapters {
		if ch.CourseID == courseID {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (m *Memory) CountChapters(ctx context.Context, courseID uint) (int, error) {
	defer m.lock()()
	return len(m.chapters(courseID)), nil
}

func (m *Memory) CreateQuiz(ctx context.Context, q *models.Quiz) error {
	defer m.lock()()
	if q.ChapterID != nil {
		for _, other := range m.d.quizzes {
			if other.ChapterID != nil && *other.ChapterID == *q.ChapterID {
				return errors.Errorf("create quiz: chapter %d already has a quiz", *q.ChapterID)
			}
		}
	}
	q.ID = m.nextID()
	q.CreatedAt = time.Now()
	q.UpdatedAt = q.CreatedAt
	stored := *q
	stored.Questions = nil
	m.d.quizzes[q.ID] = stored
	return nil
}

func (m *Memory) Quiz(ctx context.Context, id uint) (*models.Quiz, error) {
	defer m.lock()()
	q, ok := m.d.quizzes[id]
	if !ok {
		return nil, apperr.NotFound("quiz %d not found", id)
	}
	return &q, nil
}

func (m *Memory) QuizzesByCourse(ctx context.Context, courseIDs []uint) ([]models.Quiz, error) {
	defer m.lock()()
	want := idSet(courseIDs)
	var out []models.Quiz
	for _, q := range m.d.quizzes {
		if want[q.CourseID] {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateQuestion(ctx context.Context, q *models.Question) error {
	defer m.lock()()
	for _, other := range m.d.questions {
		if other.QuizID == q.QuizID && other.Position == q.Position {
			return errors.Errorf("create question: duplicate position %d in quiz %d", q.Position, q.QuizID)
		}
	}
	q.ID = m.nextID()
	q.CreatedAt = time.Now()
	q.UpdatedAt = q.CreatedAt
	m.d.questions[q.ID] = *q
	return nil
}

func (m *Memory) Questions(ctx context.Context, quizID uint) ([]models.Question, error) {
	defer m.lock()()
	var out []models.Question
	for _, q := range m.d.questions {
		if q.QuizID == quizID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *Memory) SaveRating(ctx context.Context, r *models.CourseRating) error {
	defer m.lock()()
	now := time.Now()
	for id, other := range m.d.ratings {
		if other.CourseID == r.CourseID && other.StudentID == r.StudentID {
			other.Rating, other.Review, other.UpdatedAt = r.Rating, r.Review, now
			m.d.ratings[id] = other
			*r = other
			return nil
		}
	}
	r.ID = m.nextID()
	r.CreatedAt, r.UpdatedAt = now, now
	m.d.ratings[r.ID] = *r
	return nil
}

func (m *Memory) Ratings(ctx context.Context, courseIDs []uint) ([]models.CourseRating, error) {
	defer m.lock()()
	want := idSet(courseIDs)
	var out []models.CourseRating
	for _, r := range m.d.ratings {
		if want[r.CourseID] {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) IsEnrolled(ctx context.Context, courseID, studentID uint) (bool, error) {
	defer m.lock()()
	_, ok := m.d.members[member{courseID, studentID}]
	return ok, nil
}

func (m *Memory) AddStudent(ctx context.Context, courseID, studentID uint, at time.Time) error {
	defer m.lock()()
	key := member{courseID, studentID}
	if _, ok := m.d.members[key]; !ok {
		m.d.members[key] = at
	}
	return nil
}

func (m *Memory) RemoveStudent(ctx context.Context, courseID, studentID uint) error {
	defer m.lock()()
	delete(m.d.members, member{courseID, studentID})
	return nil
}

func (m *Memory) CountEnrolled(ctx context.Context, courseID uint) (int, error) {
	defer m.lock()()
	n := 0
	for key := range m.d.members {
		if key.courseID == courseID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CreateEnrollmentRequest(ctx context.Context, r *models.EnrollmentRequest) error {
	defer m.lock()()
	r.ID = m.nextID()
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	m.d.requests[r.ID] = *r
	return nil
}

func (m *Memory) EnrollmentRequest(ctx context.Context, id uint) (*models.EnrollmentRequest, error) {
	defer m.lock()()
	r, ok := m.d.requests[id]
	if !ok {
		return nil, apperr.NotFound("enrollment request %d not found", id)
	}
	return &r, nil
}

func (m *Memory) LatestEnrollmentRequest(ctx context.Context, studentID, courseID uint) (*models.EnrollmentRequest, error) {
	defer m.lock()()
	var latest *models.EnrollmentRequest
	for _, r := range m.d.requests {
		if r.StudentID != studentID || r.CourseID != courseID {
			continue
		}
		if latest == nil || r.RequestedAt.After(latest.RequestedAt) ||
			(r.RequestedAt.Equal(latest.RequestedAt) && r.ID > latest.ID) {
			r := r
			latest = &r
		}
	}
	if latest == nil {
		return nil, apperr.NotFound("enrollment request for course %d not found", courseID)
	}
	return latest, nil
}

func (m *Memory) PendingEnrollmentRequests(ctx context.Context, courseID uint) ([]models.EnrollmentRequest, error) {
	defer m.lock()()
	var out []models.EnrollmentRequest
	for _, r := range m.d.requests {
		if r.CourseID == courseID && r.Status == models.EnrollmentPending {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out, nil
}

func (m *Memory) ReviewEnrollmentRequest(ctx context.Context, id uint, status models.EnrollmentStatus, reviewerID uint, at time.Time) (bool, error) {
	defer m.lock()()
	r, ok := m.d.requests[id]
	if !ok || r.Status != models.EnrollmentPending {
		return false, nil
	}
	r.Status = status
	r.ReviewedAt = &at
	r.ReviewedBy = &reviewerID
	r.UpdatedAt = time.Now()
	m.d.requests[id] = r
	return true, nil
}

func (m *Memory) findProgress(studentID, courseID uint) (models.StudentProgress, bool) {
	for _, p := range m.d.progress {
		if p.StudentID == studentID && p.CourseID == courseID {
			return p, true
		}
	}
	return models.StudentProgress{}, false
}

func (m *Memory) GetOrCreateProgress(ctx context.Context, studentID, courseID uint, at time.Time) (*models.StudentProgress, bool, error) {
	defer m.lock()()
	if p, ok := m.findProgress(studentID, courseID); ok {
		out := cloneProgress(p)
		return &out, false, nil
	}
	p := models.StudentProgress{
		StudentID:      studentID,
		CourseID:       courseID,
		EnrolledAt:     at,
		LastAccessedAt: at,
	}
	p.ID = m.nextID()
	p.CreatedAt, p.UpdatedAt = at, at
	m.d.progress[p.ID] = p
	out := cloneProgress(p)
	return &out, true, nil
}

func (m *Memory) Progress(ctx context.Context, studentID, courseID uint) (*models.StudentProgress, error) {
	defer m.lock()()
	p, ok := m.findProgress(studentID, courseID)
	if !ok {
		return nil, apperr.NotFound("progress for course %d not found", courseID)
	}
	out := cloneProgress(p)
	return &out, nil
}

func (m *Memory) ProgressByID(ctx context.Context, id uint) (*models.StudentProgress, error) {
	defer m.lock()()
	p, ok := m.d.progress[id]
	if !ok {
		return nil, apperr.NotFound("progress %d not found", id)
	}
	out := cloneProgress(p)
	return &out, nil
}

func sortByEnrolledDesc(rows []models.StudentProgress) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].EnrolledAt.Equal(rows[j].EnrolledAt) {
			return rows[i].ID > rows[j].ID
		}
		return rows[i].EnrolledAt.After(rows[j].EnrolledAt)
	})
}

func (m *Memory) ProgressForStudent(ctx context.Context, studentID uint) ([]models.StudentProgress, error) {
	defer m.lock()()
	var out []models.StudentProgress
	for _, p := range m.d.progress {
		if p.StudentID == studentID {
			out = append(out, cloneProgress(p))
		}
	}
	sortByEnrolledDesc(out)
	return out, nil
}

func (m *Memory) ProgressForCourses(ctx context.Context, courseIDs []uint) ([]models.StudentProgress, error) {
	defer m.lock()()
	want := idSet(courseIDs)
	var out []models.StudentProgress
	for _, p := range m.d.progress {
		if want[p.CourseID] {
			out = append(out, cloneProgress(p))
		}
	}
	sortByEnrolledDesc(out)
	return out, nil
}

func (m *Memory) AddCompletedChapter(ctx context.Context, progressID, chapterID uint, at time.Time) error {
	defer m.lock()()
	p, ok := m.d.progress[progressID]
	if !ok {
		return apperr.NotFound("progress %d not found", progressID)
	}
	if p.HasCompleted(chapterID) {
		return nil
	}
	p.CompletedChapters = append(append([]models.CompletedChapter(nil), p.CompletedChapters...),
		models.CompletedChapter{ProgressID: progressID, ChapterID: chapterID, CompletedAt: at})
	m.d.progress[progressID] = p
	return nil
}

// SaveProgress writes the scalar columns; the completed-chapter set is kept as stored.
func (m *Memory) SaveProgress(ctx context.Context, p *models.StudentProgress) error {
	defer m.lock()()
	stored, ok := m.d.progress[p.ID]
	if !ok {
		return apperr.NotFound("progress %d not found", p.ID)
	}
	next := cloneProgress(*p)
	next.CompletedChapters = stored.CompletedChapters
	next.UpdatedAt = time.Now()
	m.d.progress[p.ID] = next
	return nil
}

func (m *Memory) DeleteProgress(ctx context.Context, studentID, courseID uint) error {
	defer m.lock()()
	if p, ok := m.findProgress(studentID, courseID); ok {
		delete(m.d.progress, p.ID)
	}
	return nil
}

func (m *Memory) CreateAttempt(ctx context.Context, a *models.QuizAttempt) error {
	defer m.lock()()
	a.ID = m.nextID()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.d.attempts[a.ID] = *a
	return nil
}

func (m *Memory) CountAttempts(ctx context.Context, studentID, quizID uint) (int, error) {
	defer m.lock()()
	n := 0
	for _, a := range m.d.attempts {
		if a.StudentID == studentID && a.QuizID == quizID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) RecentAttempts(ctx context.Context, quizIDs []uint, limit int) ([]models.QuizAttempt, error) {
	defer m.lock()()
	want := idSet(quizIDs)
	var out []models.QuizAttempt
	for _, a := range m.d.attempts {
		if want[a.QuizID] {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func idSet(ids []uint) map[uint]bool {
	set := make(map[uint]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
