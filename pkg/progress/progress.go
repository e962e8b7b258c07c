// Package progress maintains per-student course progress. Completion state is
// recomputed from the completed-chapter set on every mutation.
package progress

import (
	"context"
	"gorm.io/datatypes"
	"lms-progress/pkg/access"
	"lms-progress/pkg/apperr"
	"lms-progress/pkg/clock"
	"lms-progress/pkg/kfka"
	"lms-progress/pkg/models"
	"lms-progress/pkg/store"
	"log/slog"
	"strconv"
	"time"
)

// Invalidator is told, after commit, about courses whose derived views changed.
type Invalidator interface {
	InvalidateCourse(ctx context.Context, course *models.Course)
}

type Tracker struct {
	store      store.Store
	clock      clock.Clock
	events     kfka.Publisher
	invalidate Invalidator
	logger     *slog.Logger
}

func NewTracker(s store.Store, c clock.Clock, events kfka.Publisher, logger *slog.Logger) *Tracker {
	return &Tracker{store: s, clock: c, events: events, logger: logger}
}

func (t *Tracker) WithInvalidator(i Invalidator) *Tracker {
	t.invalidate = i
	return t
}

func (t *Tracker) changed(ctx context.Context, course *models.Course) {
	if t.invalidate != nil && course != nil {
		t.invalidate.InvalidateCourse(ctx, course)
	}
}

// Snapshot is a progress row together with its derived values.
type Snapshot struct {
	*models.StudentProgress
	TotalChapters      int     `json:"total_chapters"`
	ProgressPercentage float64 `json:"progress_percentage"`
}

// Percentage is completed/total*100, and 0 for a course without chapters.
func Percentage(completed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(completed) / float64(total) * 100
}

func ProgressPercentage(p *models.StudentProgress, totalChapters int) float64 {
	return Percentage(len(p.CompletedChapters), totalChapters)
}

func snapshot(p *models.StudentProgress, total int) *Snapshot {
	return &Snapshot{StudentProgress: p, TotalChapters: total, ProgressPercentage: ProgressPercentage(p, total)}
}

// recompute sets Completed from the chapter counts. CompletedAt is stamped on
// the first transition and never moved afterwards. It reports that transition.
func recompute(p *models.StudentProgress, totalChapters int, now time.Time) bool {
	was := p.Completed
	p.Completed = len(p.CompletedChapters) >= totalChapters
	if p.Completed && p.CompletedAt == nil {
		at := now
		p.CompletedAt = &at
	}
	return p.Completed && !was
}

func setScore(j *datatypes.JSONType[map[string]float64], id uint, score float64) {
	scores := make(map[string]float64, len(j.Data())+1)
	for k, v := range j.Data() {
		scores[k] = v
	}
	scores[strconv.FormatUint(uint64(id), 10)] = score
	*j = datatypes.NewJSONType(scores)
}

func validScore(score float64) error {
	if score < 0 || score > 100 {
		return apperr.Validation("invalid score", apperr.FieldError{Field: "score", Error: "must be between 0 and 100"})
	}
	return nil
}

// load fetches a progress row the actor may act on.
func (t *Tracker) load(ctx context.Context, s store.Store, actor access.Principal, progressID uint) (*models.StudentProgress, *models.Course, error) {
	resolver, err := access.For(actor)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.ProgressByID(ctx, progressID)
	if err != nil {
		return nil, nil, err
	}
	course, err := s.Course(ctx, p.CourseID)
	if err != nil {
		return nil, nil, err
	}
	if !resolver.CanAccessProgress(p, course) {
		return nil, nil, apperr.NotFound("progress %d not found", progressID)
	}
	return p, course, nil
}

// CompleteChapter adds chapter to the completed set and records its score.
// Repeating the call only overwrites the score and advances last access.
func (t *Tracker) CompleteChapter(ctx context.Context, actor access.Principal, progressID, chapterID uint, score float64) (*Snapshot, error) {
	if err := validScore(score); err != nil {
		return nil, err
	}
	var (
		out    *Snapshot
		course *models.Course
		became bool
	)
	err := t.store.Tx(ctx, func(s store.Store) error {
		p, c, err := t.load(ctx, s, actor, progressID)
		if err != nil {
			return err
		}
		course = c
		chapter, err := s.Chapter(ctx, chapterID)
		if err != nil {
			return err
		}
		var total int
		became, total, err = completeChapter(ctx, s, p, chapter, score, t.clock.Now())
		if err != nil {
			return err
		}
		out = snapshot(p, total)
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.changed(ctx, course)
	if became {
		t.publish(ctx, completedEvent(out.StudentProgress))
	}
	return out, nil
}

func completeChapter(ctx context.Context, s store.Store, p *models.StudentProgress, chapter *models.Chapter, score float64, now time.Time) (bool, int, error) {
	if chapter.CourseID != p.CourseID {
		return false, 0, apperr.NotFound("chapter %d not found in course %d", chapter.ID, p.CourseID)
	}
	if err := s.AddCompletedChapter(ctx, p.ID, chapter.ID, now); err != nil {
		return false, 0, err
	}
	if !p.HasCompleted(chapter.ID) {
		p.CompletedChapters = append(p.CompletedChapters, models.CompletedChapter{
			ProgressID:  p.ID,
			ChapterID:   chapter.ID,
			CompletedAt: now,
		})
	}
	setScore(&p.ChapterScores, chapter.ID, score)
	p.LastAccessedAt = now

	total, err := s.CountChapters(ctx, p.CourseID)
	if err != nil {
		return false, 0, err
	}
	became := recompute(p, total, now)
	if err := s.SaveProgress(ctx, p); err != nil {
		return false, 0, err
	}
	return became, total, nil
}

// RecordTime adds minutes to the accumulated time spent on the course.
func (t *Tracker) RecordTime(ctx context.Context, actor access.Principal, progressID uint, minutes int) (*Snapshot, error) {
	if minutes <= 0 {
		return nil, apperr.Validation("invalid time", apperr.FieldError{Field: "minutes", Error: "must be positive"})
	}
	var (
		out    *Snapshot
		course *models.Course
	)
	err := t.store.Tx(ctx, func(s store.Store) error {
		p, c, err := t.load(ctx, s, actor, progressID)
		if err != nil {
			return err
		}
		course = c
		p.TotalTimeSpent += minutes
		p.LastAccessedAt = t.clock.Now()
		if err := s.SaveProgress(ctx, p); err != nil {
			return err
		}
		total, err := s.CountChapters(ctx, p.CourseID)
		if err != nil {
			return err
		}
		out = snapshot(p, total)
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.changed(ctx, course)
	return out, nil
}

func (t *Tracker) View(ctx context.Context, actor access.Principal, progressID uint) (*Snapshot, error) {
	p, _, err := t.load(ctx, t.store, actor, progressID)
	if err != nil {
		return nil, err
	}
	total, err := t.store.CountChapters(ctx, p.CourseID)
	if err != nil {
		return nil, err
	}
	return snapshot(p, total), nil
}

// List returns the progress rows visible to actor.
func (t *Tracker) List(ctx context.Context, actor access.Principal) ([]*Snapshot, error) {
	resolver, err := access.For(actor)
	if err != nil {
		return nil, err
	}
	rows, err := resolver.VisibleProgress(ctx, t.store)
	if err != nil {
		return nil, err
	}
	totals := map[uint]int{}
	out := make([]*Snapshot, 0, len(rows))
	for i := range rows {
		p := &rows[i]
		total, ok := totals[p.CourseID]
		if !ok {
			if total, err = t.store.CountChapters(ctx, p.CourseID); err != nil {
				return nil, err
			}
			totals[p.CourseID] = total
		}
		out = append(out, snapshot(p, total))
	}
	return out, nil
}

func completedEvent(p *models.StudentProgress) kfka.CourseCompleted {
	e := kfka.CourseCompleted{ProgressID: p.ID, StudentID: p.StudentID, CourseID: p.CourseID}
	if p.CompletedAt != nil {
		e.CompletedAt = *p.CompletedAt
	}
	return e
}

func (t *Tracker) publish(ctx context.Context, events ...kfka.Event) {
	if err := t.events.Publish(ctx, events...); err != nil {
		t.logger.Warn("publish progress events", "count", len(events), "error", err)
	}
}
