package handlers

import (
	"net/http"
)

func (h *Handler) TeacherDashboard(w http.ResponseWriter, r *http.Request) {
	user, err := principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	d, err := h.analytics.TeacherDashboard(r.Context(), user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) CourseAnalytics(w http.ResponseWriter, r *http.Request) {
	user, err := principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	courseID, err := idParam(r, "courseID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	a, err := h.analytics.CourseAnalytics(r.Context(), user, courseID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
