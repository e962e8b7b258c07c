package handlers

import (
	"net/http"
)

func (h *Handler) RequestEnrollment(w http.ResponseWriter, r *http.Request) {
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
	req, err := h.enrollment.RequestEnrollment(r.Context(), user, courseID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *Handler) PendingRequests(w http.ResponseWriter, r *http.Request) {
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
	reqs, err := h.enrollment.PendingRequests(r.Context(), user, courseID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	user, err := principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := idParam(r, "requestID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	decision, err := h.enrollment.Approve(r.Context(), user, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	user, err := principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := idParam(r, "requestID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	decision, err := h.enrollment.Reject(r.Context(), user, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (h *Handler) DismissStudent(w http.ResponseWriter, r *http.Request) {
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
	studentID, err := idParam(r, "studentID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.enrollment.Dismiss(r.Context(), user, courseID, studentID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
