package handlers

import (
	"net/http"
)

type completeChapterRequest struct {
	ChapterID uint    `json:"chapter_id"`
	Score     float64 `json:"score"`
}

type recordTimeRequest struct {
	Minutes int `json:"minutes"`
}

type submitQuizRequest struct {
	Answers   map[string]interface{} `json:"answers"`
	TimeTaken int                    `json:"time_taken"`
}

func (h *Handler) ListProgress(w http.ResponseWriter, r *http.Request) {
	user, err := principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rows, err := h.progress.List(r.Context(), user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	user, err := principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := idParam(r, "progressID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	snap, err := h.progress.View(r.Context(), user, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) CompleteChapter(w http.ResponseWriter, r *http.Request) {
	user, err := principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := idParam(r, "progressID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in completeChapterRequest
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	snap, err := h.progress.CompleteChapter(r.Context(), user, id, in.ChapterID, in.Score)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) RecordTime(w http.ResponseWriter, r *http.Request) {
	user, err := principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := idParam(r, "progressID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in recordTimeRequest
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	snap, err := h.progress.RecordTime(r.Context(), user, id, in.Minutes)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) SubmitQuiz(w http.ResponseWriter, r *http.Request) {
	user, err := principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	quizID, err := idParam(r, "quizID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in submitQuizRequest
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.progress.SubmitQuiz(r.Context(), user, quizID, in.Answers, in.TimeTaken)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
