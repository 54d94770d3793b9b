package api

import (
	"errors"
	"net/http"
	"strings"

	"jobboard/internal/accounts"
	"jobboard/internal/apperr"
	"jobboard/internal/model"
)

func (s *server) routeAccounts(mux *http.ServeMux) {
	mounts := []struct {
		prefix  string
		role    model.Role
		profile string
	}{
		{"/api/students", model.RoleStudent, "PUT /api/students/profile/{email}"},
		{"/api/Recruiter", model.RoleRecruiter, "PUT /api/Recruiter/update/{email}"},
		{"/api/admin", model.RoleAdmin, "PUT /api/admin/update/{email}"},
	}
	for _, m := range mounts {
		mux.HandleFunc("POST "+m.prefix+"/register", s.register(m.role))
		mux.HandleFunc("POST "+m.prefix+"/login", s.login(m.role))
		mux.HandleFunc(m.profile, s.updateProfile(m.role))
	}

	mux.HandleFunc("POST /api/password/send-otp", s.sendResetCode)
	mux.HandleFunc("POST /api/password/verify-otp", s.verifyResetCode)
	mux.HandleFunc("POST /api/password/reset-password", s.resetPassword)
	mux.HandleFunc("POST /api/password/send-otp-registration", s.sendRegistrationCode)
	mux.HandleFunc("POST /api/password/verify-otp-registration", s.verifyRegistrationCode)
}

func (s *server) register(role model.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req accounts.RegisterRequest
		if err := readBody(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		id, err := s.Accounts.Register(r.Context(), role, req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"message": "registered successfully", "user_id": id})
	}
}

func (s *server) login(role model.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := readBody(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		res, err := s.Accounts.Login(r.Context(), role, req.Email, req.Password)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Login successful", "token": res.Token, "user": res.User})
	}
}

// updateProfile 接受 JSON 或 multipart 表单，表单文件字段为 file。学生资料需携带学生令牌。
func (s *server) updateProfile(role model.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if role == model.RoleStudent {
			if c, ok := claimsFrom(r.Context()); !ok || c.Role != model.RoleStudent {
				writeJSON(w, http.StatusUnauthorized, errorBody("access denied, token missing"))
				return
			}
		}

		fields := map[string]any{}
		var att *accounts.Attachment
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			if err := r.ParseMultipartForm(s.MaxUpload); err != nil {
				s.writeError(w, r, apperr.ErrInvalidInput.With("invalid multipart form"))
				return
			}
			for k, v := range r.MultipartForm.Value {
				if len(v) > 0 {
					fields[k] = v[0]
				}
			}
			file, header, err := r.FormFile("file")
			switch {
			case err == nil:
				defer file.Close()
				att = &accounts.Attachment{
					Filename:    header.Filename,
					ContentType: header.Header.Get("Content-Type"),
					Size:        header.Size,
					Body:        file,
				}
			case !errors.Is(err, http.ErrMissingFile):
				s.writeError(w, r, apperr.ErrInvalidInput.With("invalid file upload"))
				return
			}
		} else if err := readBody(r, &fields); err != nil {
			s.writeError(w, r, err)
			return
		}

		rec, err := s.Accounts.UpdateProfile(r.Context(), role, r.PathValue("email"), fields, att)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Profile updated successfully", "user": rec})
	}
}

type codeRequest struct {
	Email       string `json:"email"`
	Role        string `json:"role"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

func (s *server) decodeCode(r *http.Request) (codeRequest, model.Role, error) {
	var req codeRequest
	if err := readBody(r, &req); err != nil {
		return req, "", err
	}
	if req.Email == "" || req.Role == "" {
		return req, "", apperr.ErrMissingField.With("email and role are required")
	}
	role, err := parseRole(req.Role)
	return req, role, err
}

func (s *server) sendResetCode(w http.ResponseWriter, r *http.Request) {
	req, role, err := s.decodeCode(r)
	if err == nil {
		err = s.Accounts.SendResetCode(r.Context(), role, req.Email)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "OTP sent successfully"})
}

func (s *server) verifyResetCode(w http.ResponseWriter, r *http.Request) {
	req, role, err := s.decodeCode(r)
	if err == nil {
		err = s.Accounts.VerifyResetCode(r.Context(), role, req.Email, req.OTP)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "OTP verified successfully"})
}

func (s *server) resetPassword(w http.ResponseWriter, r *http.Request) {
	req, role, err := s.decodeCode(r)
	if err == nil {
		err = s.Accounts.ResetPassword(r.Context(), role, req.Email, req.OTP, req.NewPassword)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password reset successfully"})
}

func (s *server) sendRegistrationCode(w http.ResponseWriter, r *http.Request) {
	req, role, err := s.decodeCode(r)
	if err == nil {
		err = s.Accounts.SendRegistrationCode(r.Context(), role, req.Email)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Registration OTP sent"})
}

func (s *server) verifyRegistrationCode(w http.ResponseWriter, r *http.Request) {
	req, role, err := s.decodeCode(r)
	if err == nil {
		err = s.Accounts.VerifyRegistrationCode(r.Context(), role, req.Email, req.OTP)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "OTP verified"})
}
