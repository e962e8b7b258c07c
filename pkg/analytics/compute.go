package analytics

import (
	"fmt"
	"lms-progress/pkg/models"
	"lms-progress/pkg/progress"
	"math"
	"sort"
	"time"
)

const (
	trendWeeks = 12
	week       = 7 * 24 * time.Hour
)

type TrendBucket struct {
	Week        string    `json:"week"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Enrollments int       `json:"enrollments"`
}

type CompletionRates struct {
	Completed            int     `json:"completed"`
	InProgress           int     `json:"in_progress"`
	CompletionPercentage float64 `json:"completion_percentage"`
}

type ChapterStat struct {
	ChapterID      uint    `json:"chapter_id"`
	ChapterTitle   string  `json:"chapter_title"`
	CompletionRate float64 `json:"completion_rate"`
	AverageScore   float64 `json:"average_score"`
}

type StudentStat struct {
	StudentID          uint      `json:"student_id"`
	StudentName        string    `json:"student_name"`
	ProgressPercentage float64   `json:"progress_percentage"`
	CompletedChapters  int       `json:"completed_chapters"`
	TotalChapters      int       `json:"total_chapters"`
	AverageScore       float64   `json:"average_score"`
	LastAccessed       time.Time `json:"last_accessed"`
}

func rate(part, total int) float64 {
	return float64(part) / math.Max(float64(total), 1) * 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// EnrollmentTrend counts enrollments in each of the last twelve weeks before
// now. Buckets run oldest first, so "Week 12" is the week ending at now.
// Each bucket covers [Start, End).
func EnrollmentTrend(rows []models.StudentProgress, now time.Time) []TrendBucket {
	buckets := make([]TrendBucket, trendWeeks)
	for i := range buckets {
		start := now.Add(-time.Duration(trendWeeks-i) * week)
		buckets[i] = TrendBucket{Week: fmt.Sprintf("Week %d", i+1), Start: start, End: start.Add(week)}
	}
	first := buckets[0].Start
	for _, p := range rows {
		if p.EnrolledAt.Before(first) || !p.EnrolledAt.Before(now) {
			continue
		}
		i := int(p.EnrolledAt.Sub(first) / week)
		if i >= trendWeeks {
			i = trendWeeks - 1
		}
		buckets[i].Enrollments++
	}
	return buckets
}

func Completion(rows []models.StudentProgress) CompletionRates {
	done := 0
	for _, p := range rows {
		if p.Completed {
			done++
		}
	}
	return CompletionRates{
		Completed:            done,
		InProgress:           len(rows) - done,
		CompletionPercentage: rate(done, len(rows)),
	}
}

// ChapterPerformance averages each chapter's score over the rows that recorded one.
func ChapterPerformance(chapters []models.Chapter, rows []models.StudentProgress) []ChapterStat {
	out := make([]ChapterStat, 0, len(chapters))
	for _, ch := range chapters {
		key := fmt.Sprint(ch.ID)
		var (
			completed, scored int
			sum               float64
		)
		for i := range rows {
			if rows[i].HasCompleted(ch.ID) {
				completed++
			}
			if s, ok := rows[i].ChapterScores.Data()[key]; ok {
				sum += s
				scored++
			}
		}
		stat := ChapterStat{
			ChapterID:      ch.ID,
			ChapterTitle:   ch.Title,
			CompletionRate: rate(completed, len(rows)),
		}
		if scored > 0 {
			stat.AverageScore = sum / float64(scored)
		}
		out = append(out, stat)
	}
	return out
}

func StudentPerformance(rows []models.StudentProgress, users map[uint]models.User, totalChapters int) []StudentStat {
	out := make([]StudentStat, 0, len(rows))
	for i := range rows {
		p := &rows[i]
		stat := StudentStat{
			StudentID:          p.StudentID,
			ProgressPercentage: progress.ProgressPercentage(p, totalChapters),
			CompletedChapters:  len(p.CompletedChapters),
			TotalChapters:      totalChapters,
			LastAccessed:       p.LastAccessedAt,
		}
		if u, ok := users[p.StudentID]; ok {
			stat.StudentName = u.Name()
		}
		if scores := p.ChapterScores.Data(); len(scores) > 0 {
			var sum float64
			for _, s := range scores {
				sum += s
			}
			stat.AverageScore = sum / float64(len(scores))
		}
		out = append(out, stat)
	}
	return out
}

func averageRating(ratings []models.CourseRating) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r.Rating
	}
	return float64(sum) / float64(len(ratings))
}

// recentEnrollments returns up to n rows, newest enrollment first.
func recentEnrollments(rows []models.StudentProgress, n int) []models.StudentProgress {
	sorted := append([]models.StudentProgress(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].EnrolledAt.After(sorted[j].EnrolledAt) })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
