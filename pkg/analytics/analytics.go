// Package analytics computes read-only rollups of enrollment and progress for
// teachers. Any denominator that could be zero is floored at one.
package analytics

import (
	"context"
	"fmt"
	"lms-progress/pkg/access"
	"lms-progress/pkg/clock"
	"lms-progress/pkg/models"
	"lms-progress/pkg/store"
	"log/slog"
	"time"
)

const (
	recentEnrollmentCount = 5
	recentActivityCount   = 5
)

// Cache stores computed results as JSON. A nil Cache disables caching.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type Aggregator struct {
	store  store.Store
	clock  clock.Clock
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewAggregator(s store.Store, c clock.Clock, cache Cache, ttl time.Duration, logger *slog.Logger) *Aggregator {
	return &Aggregator{store: s, clock: c, cache: cache, ttl: ttl, logger: logger}
}

type CourseAnalytics struct {
	Course             *models.Course  `json:"course_info"`
	EnrollmentTrends   []TrendBucket   `json:"enrollment_trends"`
	CompletionRates    CompletionRates `json:"completion_rates"`
	ChapterPerformance []ChapterStat   `json:"chapter_performance"`
	StudentPerformance []StudentStat   `json:"student_performance"`
}

type Statistics struct {
	TotalCourses   int     `json:"total_courses"`
	TotalStudents  int     `json:"total_students"`
	AverageRating  float64 `json:"average_rating"`
	CompletionRate float64 `json:"completion_rate"`
}

type CourseStat struct {
	CourseID        uint    `json:"course_id"`
	CourseTitle     string  `json:"course_title"`
	EnrollmentCount int     `json:"enrollment_count"`
	CompletionRate  float64 `json:"completion_rate"`
	AverageRating   float64 `json:"average_rating"`
}

type Activity struct {
	Type        string    `json:"type"`
	StudentName string    `json:"student_name"`
	CourseTitle string    `json:"course_title"`
	QuizTitle   string    `json:"quiz_title"`
	Score       float64   `json:"score"`
	Timestamp   time.Time `json:"timestamp"`
}

type Dashboard struct {
	Teacher           models.User              `json:"teacher_info"`
	Statistics        Statistics               `json:"statistics"`
	RecentEnrollments []models.StudentProgress `json:"recent_enrollments"`
	CoursePerformance []CourseStat             `json:"course_performance"`
	RecentActivity    []Activity               `json:"recent_activity"`
}

func courseKey(courseID uint) string    { return fmt.Sprintf("analytics:course:%d", courseID) }
func dashboardKey(teacherID uint) string { return fmt.Sprintf("analytics:dashboard:%d", teacherID) }

// InvalidateCourse drops the cached course rollup and the owner's dashboard.
func (a *Aggregator) InvalidateCourse(ctx context.Context, course *models.Course) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Delete(ctx, courseKey(course.ID), dashboardKey(course.TeacherID)); err != nil {
		a.logger.Warn("analytics cache invalidate", "course_id", course.ID, "error", err)
	}
}

// cached returns the value stored under key, or builds and stores it.
// Cache failures are logged and never fail the read.
func cached[T any](ctx context.Context, a *Aggregator, key string, build func() (T, error)) (T, error) {
	var v T
	if a.cache != nil && a.ttl > 0 {
		ok, err := a.cache.GetJSON(ctx, key, &v)
		if err != nil {
			a.logger.Warn("analytics cache read", "key", key, "error", err)
		}
		if ok && err == nil {
			return v, nil
		}
	}
	v, err := build()
	if err != nil {
		return v, err
	}
	if a.cache != nil && a.ttl > 0 {
		if err := a.cache.SetJSON(ctx, key, v, a.ttl); err != nil {
			a.logger.Warn("analytics cache write", "key", key, "error", err)
		}
	}
	return v, nil
}

// CourseAnalytics bundles the four course rollups for the owning teacher.
func (a *Aggregator) CourseAnalytics(ctx context.Context, teacher access.Principal, courseID uint) (*CourseAnalytics, error) {
	course, err := access.OwnedCourse(ctx, a.store, teacher, courseID)
	if err != nil {
		return nil, err
	}
	return cached(ctx, a, courseKey(courseID), func() (*CourseAnalytics, error) {
		rows, err := a.store.ProgressForCourses(ctx, []uint{courseID})
		if err != nil {
			return nil, err
		}
		chapters, err := a.store.Chapters(ctx, courseID)
		if err != nil {
			return nil, err
		}
		users, err := a.store.Users(ctx, studentIDs(rows))
		if err != nil {
			return nil, err
		}
		return &CourseAnalytics{
			Course:             course,
			EnrollmentTrends:   EnrollmentTrend(rows, a.clock.Now()),
			CompletionRates:    Completion(rows),
			ChapterPerformance: ChapterPerformance(chapters, rows),
			StudentPerformance: StudentPerformance(rows, users, len(chapters)),
		}, nil
	})
}

// TeacherDashboard rolls up every course the teacher owns.
func (a *Aggregator) TeacherDashboard(ctx context.Context, teacher access.Principal) (*Dashboard, error) {
	if err := access.RequireTeacher(teacher, "view the dashboard"); err != nil {
		return nil, err
	}
	return cached(ctx, a, dashboardKey(teacher.ID), func() (*Dashboard, error) {
		return a.dashboard(ctx, teacher.ID)
	})
}

func (a *Aggregator) dashboard(ctx context.Context, teacherID uint) (*Dashboard, error) {
	me, err := a.store.User(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	courses, err := a.store.CoursesByTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(courses))
	for _, c := range courses {
		ids = append(ids, c.ID)
	}
	rows, err := a.store.ProgressForCourses(ctx, ids)
	if err != nil {
		return nil, err
	}
	ratings, err := a.store.Ratings(ctx, ids)
	if err != nil {
		return nil, err
	}

	byCourse := map[uint][]models.StudentProgress{}
	for _, p := range rows {
		byCourse[p.CourseID] = append(byCourse[p.CourseID], p)
	}
	ratingsByCourse := map[uint][]models.CourseRating{}
	for _, r := range ratings {
		ratingsByCourse[r.CourseID] = append(ratingsByCourse[r.CourseID], r)
	}

	stats := make([]CourseStat, 0, len(courses))
	for _, c := range courses {
		enrolled, err := a.store.CountEnrolled(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		stats = append(stats, CourseStat{
			CourseID:        c.ID,
			CourseTitle:     c.Title,
			EnrollmentCount: enrolled,
			CompletionRate:  Completion(byCourse[c.ID]).CompletionPercentage,
			AverageRating:   averageRating(ratingsByCourse[c.ID]),
		})
	}

	activity, err := a.recentActivity(ctx, courses)
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		Teacher: *me,
		Statistics: Statistics{
			TotalCourses:   len(courses),
			TotalStudents:  len(studentIDs(rows)),
			AverageRating:  round1(averageRating(ratings)),
			CompletionRate: round1(Completion(rows).CompletionPercentage),
		},
		RecentEnrollments: recentEnrollments(rows, recentEnrollmentCount),
		CoursePerformance: stats,
		RecentActivity:    activity,
	}, nil
}

func (a *Aggregator) recentActivity(ctx context.Context, courses []models.Course) ([]Activity, error) {
	titles := make(map[uint]string, len(courses))
	ids := make([]uint, 0, len(courses))
	for _, c := range courses {
		titles[c.ID] = c.Title
		ids = append(ids, c.ID)
	}
	quizzes, err := a.store.QuizzesByCourse(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]models.Quiz, len(quizzes))
	quizIDs := make([]uint, 0, len(quizzes))
	for _, q := range quizzes {
		byID[q.ID] = q
		quizIDs = append(quizIDs, q.ID)
	}
	attempts, err := a.store.RecentAttempts(ctx, quizIDs, recentActivityCount)
	if err != nil {
		return nil, err
	}
	students := make([]uint, 0, len(attempts))
	for _, at := range attempts {
		students = append(students, at.StudentID)
	}
	users, err := a.store.Users(ctx, students)
	if err != nil {
		return nil, err
	}

	out := make([]Activity, 0, len(attempts))
	for _, at := range attempts {
		q := byID[at.QuizID]
		out = append(out, Activity{
			Type:        "quiz_completion",
			StudentName: users[at.StudentID].Name(),
			CourseTitle: titles[q.CourseID],
			QuizTitle:   q.Title,
			Score:       at.Score,
			Timestamp:   at.StartedAt,
		})
	}
	return out, nil
}

// studentIDs returns the distinct students in rows.
func studentIDs(rows []models.StudentProgress) []uint {
	seen := map[uint]bool{}
	out := make([]uint, 0, len(rows))
	for _, p := range rows {
		if !seen[p.StudentID] {
			seen[p.StudentID] = true
			out = append(out, p.StudentID)
		}
	}
	return out
}
