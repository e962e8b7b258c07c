package routes

import (
	"github.com/gorilla/mux"
	"lms-progress/pkg/handlers"
)

// Setup mounts every route on r. Everything under /api except /api/health
// goes through auth.
func Setup(r *mux.Router, h *handlers.Handler, auth mux.MiddlewareFunc) {
	r.HandleFunc("/api/health", h.Health).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth)
	SetupCourses(api.PathPrefix("/courses").Subrouter(), h)
	SetupQuizzes(api.PathPrefix("/quizzes").Subrouter(), h)
	SetupEnrollment(api.PathPrefix("/enrollment-requests").Subrouter(), h)
	SetupProgress(api.PathPrefix("/progress").Subrouter(), h)
	SetupAnalytics(api.PathPrefix("/analytics").Subrouter(), h)
}

func SetupCourses(h *mux.Router, hd *handlers.Handler) {
	h.HandleFunc("", hd.CreateCourse).Methods("POST")
	h.HandleFunc("/search", hd.SearchCourses).Methods("GET")
	h.HandleFunc("/{courseID:[0-9]+}", hd.GetCourse).Methods("GET")
	h.HandleFunc("/{courseID:[0-9]+}", hd.UpdateCourse).Methods("PUT")
	h.HandleFunc("/{courseID:[0-9]+}", hd.DeleteCourse).Methods("DELETE")
	h.HandleFunc("/{courseID:[0-9]+}/chapters", hd.AddChapter).Methods("POST")
	h.HandleFunc("/{courseID:[0-9]+}/quizzes", hd.AddQuiz).Methods("POST")
	h.HandleFunc("/{courseID:[0-9]+}/rating", hd.RateCourse).Methods("PUT")
	h.HandleFunc("/{courseID:[0-9]+}/enroll", hd.RequestEnrollment).Methods("POST")
	h.HandleFunc("/{courseID:[0-9]+}/enrollment-requests", hd.PendingRequests).Methods("GET")
	h.HandleFunc("/{courseID:[0-9]+}/students/{studentID:[0-9]+}", hd.DismissStudent).Methods("DELETE")
}

func SetupQuizzes(h *mux.Router, hd *handlers.Handler) {
	h.HandleFunc("/{quizID:[0-9]+}", hd.GetQuiz).Methods("GET")
	h.HandleFunc("/{quizID:[0-9]+}/questions", hd.AddQuestion).Methods("POST")
	h.HandleFunc("/{quizID:[0-9]+}/submit", hd.SubmitQuiz).Methods("POST")
}

func SetupEnrollment(h *mux.Router, hd *handlers.Handler) {
	h.HandleFunc("/{requestID:[0-9]+}/approve", hd.ApproveRequest).Methods("POST")
	h.HandleFunc("/{requestID:[0-9]+}/reject", hd.RejectRequest).Methods("POST")
}

func SetupProgress(h *mux.Router, hd *handlers.Handler) {
	h.HandleFunc("", hd.ListProgress).Methods("GET")
	h.HandleFunc("/{progressID:[0-9]+}", hd.GetProgress).Methods("GET")
	h.HandleFunc("/{progressID:[0-9]+}/chapters", hd.CompleteChapter).Methods("POST")
	h.HandleFunc("/{progressID:[0-9]+}/time", hd.RecordTime).Methods("POST")
}

func SetupAnalytics(h *mux.Router, hd *handlers.Handler) {
	h.HandleFunc("/dashboard", hd.TeacherDashboard).Methods("GET")
	h.HandleFunc("/courses/{courseID:[0-9]+}", hd.CourseAnalytics).Methods("GET")
}
