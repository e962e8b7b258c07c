// Package scoring grades quiz submissions.
package scoring

import (
	"encoding/json"
	"lms-progress/pkg/models"
	"math"
	"strconv"
	"strings"
)

type Result struct {
	EarnedPoints int     `json:"earned_points"`
	TotalPoints  int     `json:"total_points"`
	Percentage   float64 `json:"percentage"`
	CorrectCount int     `json:"correct_count"`
	TotalCount   int     `json:"total_count"`
}

func (r Result) Passed(passingScore int) bool {
	return r.Percentage >= float64(passingScore)
}

// Score grades answers, keyed by question id, against questions. Missing or
// malformed answers count as incorrect; Score never fails.
func Score(questions []models.Question, answers map[string]interface{}) Result {
	res := Result{TotalCount: len(questions)}
	for _, q := range questions {
		res.TotalPoints += q.Points
		raw, ok := answers[strconv.FormatUint(uint64(q.ID), 10)]
		if !ok {
			continue
		}
		idx, ok := AnswerIndex(raw)
		if !ok || idx < 0 || idx >= len(q.Options) {
			continue
		}
		if idx == q.CorrectAnswer {
			res.CorrectCount++
			res.EarnedPoints += q.Points
		}
	}
	if res.TotalPoints > 0 {
		res.Percentage = float64(res.EarnedPoints) / float64(res.TotalPoints) * 100
	}
	return res
}

// AnswerIndex parses a submitted option index. JSON numbers must be integral.
func AnswerIndex(v interface{}) (int, bool) {
	switch a := v.(type) {
	case int:
		return a, true
	case int64:
		return int(a), true
	case float64:
		if a != math.Trunc(a) || math.IsInf(a, 0) {
			return 0, false
		}
		return int(a), true
	case json.Number:
		n, err := strconv.Atoi(a.String())
		return n, err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(a))
		return n, err == nil
	}
	return 0, false
}
