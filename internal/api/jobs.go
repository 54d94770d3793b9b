package api

import (
	"net/http"

	"jobboard/internal/apperr"
	"jobboard/internal/applications"
	"jobboard/internal/jobs"
	"jobboard/internal/model"
)

// 请求体中的操作者与职位字段，令牌缺失时使用。
type actorFields struct {
	EmployerID string `json:"employer_id"`
	AdminID    string `json:"admin_id"`
	StudentID  string `json:"student_id"`
	JobID      string `json:"job_id"`
}

func (a actorFields) forOrigin(r *http.Request, origin model.Origin) string {
	if origin == model.OriginRecruiter {
		return actorID(r, model.RoleRecruiter, a.EmployerID)
	}
	return actorID(r, model.RoleAdmin, a.AdminID)
}

func (s *server) routeJobs(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/job/jobs", s.listJobs)
	mux.HandleFunc("GET /api/job/jobs/{job_id}", s.getJob(model.OriginRecruiter))
	mux.HandleFunc("GET /api/job/Govtjobs/{job_id}", s.getJob(model.OriginGovernment))

	mux.HandleFunc("POST /api/job/jobs", s.postJob(model.OriginRecruiter))
	mux.HandleFunc("POST /api/job/jobsadmin", s.postJob(model.OriginAdmin))
	mux.HandleFunc("POST /api/job/Govtjobs", s.postJob(model.OriginGovernment))

	mux.HandleFunc("POST /api/job/Updatejobs/{job_id}", s.updateJob(model.OriginRecruiter))
	mux.HandleFunc("POST /api/job/updateadminjobs/{job_id}", s.updateJob(model.OriginAdmin))
	mux.HandleFunc("POST /api/job/updateGovtjobs/{job_id}", s.updateJob(model.OriginGovernment))

	mux.HandleFunc("POST /api/job/closedRecruiterjobs/{job_id}", s.closeJob(model.OriginRecruiter))
	mux.HandleFunc("POST /api/job/closedadminjobs/{job_id}", s.closeJob(model.OriginAdmin))
	mux.HandleFunc("POST /api/job/closedGovtjobs/{job_id}", s.closeJob(model.OriginGovernment))

	mux.HandleFunc("POST /api/premium/mark-job-premium", s.markJobPremium)
}

func (s *server) listJobs(w http.ResponseWriter, r *http.Request) {
	list, err := s.Jobs.ListVisible(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(list), "jobs": list})
}

func (s *server) getJob(origin model.Origin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := s.Jobs.Get(r.Context(), origin, r.PathValue("job_id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func (s *server) postJob(origin model.Origin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			req   jobs.PostRequest
			actor actorFields
		)
		if err := readBody(r, &req, &actor); err != nil {
			s.writeError(w, r, err)
			return
		}
		res, err := s.Jobs.Post(r.Context(), origin, actor.forOrigin(r, origin), req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		body := map[string]any{"message": "Job posted successfully", "job": res.Job}
		if res.Task != nil {
			body["task"] = res.Task
		}
		writeJSON(w, http.StatusCreated, body)
	}
}

func (s *server) updateJob(origin model.Origin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			patch map[string]any
			actor actorFields
		)
		if err := readBody(r, &patch, &actor); err != nil {
			s.writeError(w, r, err)
			return
		}
		res, err := s.Jobs.Update(r.Context(), origin, r.PathValue("job_id"), actor.forOrigin(r, origin), patch)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		body := map[string]any{"message": "Job updated successfully", "job": res.Job}
		if res.Task != nil {
			body["task"] = res.Task
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func (s *server) closeJob(origin model.Origin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var actor actorFields
		if err := readBody(r, &actor); err != nil {
			s.writeError(w, r, err)
			return
		}
		jobID := r.PathValue("job_id")
		if jobID == "" {
			jobID = actor.JobID
		}
		job, err := s.Jobs.Close(r.Context(), origin, jobID, actor.forOrigin(r, origin))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Job closed successfully", "job": job})
	}
}

func (s *server) markJobPremium(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobID     string `json:"job_id"`
		IsPremium *bool  `json:"is_premium"`
		Category  string `json:"category"`
	}
	if err := readBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.JobID == "" || req.IsPremium == nil || req.Category == "" {
		s.writeError(w, r, apperr.ErrMissingField.With("job_id, is_premium, and category are required"))
		return
	}
	job, err := s.Jobs.MarkPremium(r.Context(), req.JobID, req.Category, *req.IsPremium)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Job premium status updated", "job": job})
}

func (s *server) routeApplications(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/application/jobs/{job_id}/apply", s.apply(applications.TrackPrivate))
	mux.HandleFunc("POST /api/application/Govtjobs/{job_id}/apply", s.apply(applications.TrackGovernment))
	mux.HandleFunc("POST /api/application/Adminjobs/{job_id}/apply", s.apply(applications.TrackAdmin))
	mux.HandleFunc("GET /api/application/jobs/applications/{job_id}", s.listApplications)
	mux.HandleFunc("GET /api/application/students/{student_id}/applications", s.listStudentApplications)
}

func (s *server) apply(track applications.Track) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			req   applications.ApplyRequest
			actor actorFields
		)
		if err := readBody(r, &req, &actor); err != nil {
			s.writeError(w, r, err)
			return
		}
		studentID := actorID(r, model.RoleStudent, actor.StudentID)
		res, err := s.Applications.Apply(r.Context(), track, studentID, r.PathValue("job_id"), req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"message": "Application submitted successfully", "result": res})
	}
}

func (s *server) listApplications(w http.ResponseWriter, r *http.Request) {
	list, err := s.Applications.ListForJob(r.Context(), r.PathValue("job_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(list), "applications": list})
}

func (s *server) listStudentApplications(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("student_id")
	if c, ok := claimsFrom(r.Context()); ok && c.Role == model.RoleStudent && c.ID != studentID {
		s.writeError(w, r, apperr.ErrForbidden.With("cannot view another student's applications"))
		return
	}
	list, err := s.Applications.ListForStudent(r.Context(), studentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(list), "applications": list})
}
