package api

import (
	"net/http"

	"jobboard/internal/apperr"
)

func (s *server) routeAdmin(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/admin/approve-recruiter", s.approveRecruiter)
	mux.HandleFunc("POST /api/admin/block-student", s.blockStudent)
	mux.HandleFunc("POST /api/admin/block-employer", s.blockEmployer)
	mux.HandleFunc("POST /api/admin/premium-prices", s.updatePrices)
	mux.HandleFunc("GET /api/admin/premium-prices", s.getPrices)
	mux.HandleFunc("POST /api/admin/sweep-deadlines", s.sweepDeadlines)
	mux.HandleFunc("POST /api/premium/mark-student-premium", s.markStudentPremium)
}

type emailRequest struct {
	Email string `json:"email"`
}

func (s *server) approveRecruiter(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := readBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	emp, err := s.Moderation.ApproveRecruiter(r.Context(), req.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Recruiter approved successfully", "recruiter": emp})
}

func (s *server) blockStudent(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := readBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.Moderation.BlockStudent(r.Context(), req.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Student blocked successfully", "student": st})
}

func (s *server) blockEmployer(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := readBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	emp, err := s.Moderation.BlockEmployer(r.Context(), req.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Employer blocked successfully", "employer": emp})
}

func (s *server) updatePrices(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Gold     any `json:"gold"`
		Platinum any `json:"platinum"`
		Silver   any `json:"silver"`
	}
	if err := readBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	prices, err := s.Moderation.UpdatePremiumPrices(r.Context(), req.Gold, req.Platinum, req.Silver)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Premium prices updated", "prices": prices})
}

func (s *server) getPrices(w http.ResponseWriter, r *http.Request) {
	prices, err := s.Moderation.PremiumPrices(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prices)
}

func (s *server) markStudentPremium(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string `json:"email"`
		IsPremium *bool  `json:"is_premium"`
		Plan      string `json:"plan"`
	}
	if err := readBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Email == "" || req.IsPremium == nil {
		s.writeError(w, r, apperr.ErrMissingField.With("email and is_premium are required"))
		return
	}
	st, err := s.Moderation.MarkStudentPremium(r.Context(), req.Email, *req.IsPremium, req.Plan)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Student premium status updated", "student": st})
}

// sweepDeadlines 手动触发一次截止日期清扫。
func (s *server) sweepDeadlines(w http.ResponseWriter, r *http.Request) {
	if s.Scheduler == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("scheduler disabled"))
		return
	}
	closed, err := s.Scheduler.RunOnce(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"closed": closed})
}
