package handlers

import (
	"lms-progress/pkg/catalog"
	"net/http"
)

func (h *Handler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	user, err := principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in catalog.CourseInput
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	course, err := h.catalog.CreateCourse(r.Context(), user, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, course)
}

func (h *Handler) GetCourse(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "courseID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	detail, err := h.catalog.Course(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) UpdateCourse(w http.ResponseWriter, r *http.Request) {
	user, err := principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := idParam(r, "courseID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in catalog.CourseInput
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	course, err := h.catalog.UpdateCourse(r.Context(), user, id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, course)
}

func (h *Handler) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	user, err := principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := idParam(r, "courseID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.catalog.DeleteCourse(r.Context(), user, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SearchCourses(w http.ResponseWriter, r *http.Request) {
	docs, err := h.catalog.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *Handler) AddChapter(w http.ResponseWriter, r *http.Request) {
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
	var in catalog.ChapterInput
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	chapter, err := h.catalog.AddChapter(r.Context(), user, courseID, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, chapter)
}

func (h *Handler) AddQuiz(w http.ResponseWriter, r *http.Request) {
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
	var in catalog.QuizInput
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	quiz, err := h.catalog.AddQuiz(r.Context(), user, courseID, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}

func (h *Handler) GetQuiz(w http.ResponseWriter, r *http.Request) {
	user, err := principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := idParam(r, "quizID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	quiz, err := h.catalog.Quiz(r.Context(), user, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *Handler) AddQuestion(w http.ResponseWriter, r *http.Request) {
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
	var in catalog.QuestionInput
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.catalog.AddQuestion(r.Context(), user, quizID, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (h *Handler) RateCourse(w http.ResponseWriter, r *http.Request) {
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
	var in catalog.RatingInput
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	rating, err := h.catalog.RateCourse(r.Context(), user, courseID, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rating)
}
