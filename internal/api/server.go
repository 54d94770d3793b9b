// Package api 提供 JSON REST 接口。
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"jobboard/internal/accounts"
	"jobboard/internal/apperr"
	"jobboard/internal/applications"
	"jobboard/internal/jobs"
	"jobboard/internal/model"
	"jobboard/internal/storage"
)

// JobService 为职位接口依赖。
type JobService interface {
	Post(ctx context.Context, origin model.Origin, actorID string, req jobs.PostRequest) (jobs.Result, error)
	Update(ctx context.Context, origin model.Origin, jobID, actorID string, patch map[string]any) (jobs.Result, error)
	Close(ctx context.Context, origin model.Origin, jobID, actorID string) (model.Job, error)
	MarkPremium(ctx context.Context, jobID, category string, isPremium bool) (model.Job, error)
	Get(ctx context.Context, origin model.Origin, jobID string) (model.Job, error)
	ListVisible(ctx context.Context) ([]model.Job, error)
}

// ApplicationService 为投递接口依赖。
type ApplicationService interface {
	Apply(ctx context.Context, track applications.Track, studentID, jobID string, req applications.ApplyRequest) (applications.Result, error)
	ListForJob(ctx context.Context, jobID string) ([]model.Application, error)
	ListForStudent(ctx context.Context, studentID string) ([]model.Application, error)
}

// AccountService 为账号与验证码接口依赖。
type AccountService interface {
	Register(ctx context.Context, role model.Role, req accounts.RegisterRequest) (string, error)
	Login(ctx context.Context, role model.Role, email, password string) (accounts.LoginResult, error)
	UpdateProfile(ctx context.Context, role model.Role, email string, fields map[string]any, att *accounts.Attachment) (storage.Record, error)
	ParseToken(token string) (accounts.Claims, error)
	SendResetCode(ctx context.Context, role model.Role, email string) error
	VerifyResetCode(ctx context.Context, role model.Role, email, code string) error
	ResetPassword(ctx context.Context, role model.Role, email, code, newPassword string) error
	SendRegistrationCode(ctx context.Context, role model.Role, email string) error
	VerifyRegistrationCode(ctx context.Context, role model.Role, email, code string) error
}

// ModerationService 为管理端审核接口依赖。
type ModerationService interface {
	ApproveRecruiter(ctx context.Context, email string) (model.Employer, error)
	BlockStudent(ctx context.Context, email string) (model.Student, error)
	BlockEmployer(ctx context.Context, email string) (model.Employer, error)
	MarkStudentPremium(ctx context.Context, email string, isPremium bool, plan string) (model.Student, error)
	UpdatePremiumPrices(ctx context.Context, gold, platinum, silver any) (model.PremiumPrices, error)
	PremiumPrices(ctx context.Context) (model.PremiumPrices, error)
}

// Scheduler 抽象手动触发截止日期清扫。
type Scheduler interface {
	RunOnce(ctx context.Context) (int, error)
}

// Deps 为 Handler 的全部依赖，Scheduler 可为 nil。
type Deps struct {
	Jobs         JobService
	Applications ApplicationService
	Accounts     AccountService
	Moderation   ModerationService
	Scheduler    Scheduler
	Logger       *slog.Logger
	MaxUpload    int64
}

type server struct {
	Deps
}

// NewHandler 构造 HTTP 多路复用器。
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.MaxUpload <= 0 {
		deps.MaxUpload = 10 << 20
	}
	s := &server{Deps: deps}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.routeAccounts(mux)
	s.routeJobs(mux)
	s.routeApplications(mux)
	s.routeAdmin(mux)

	return s.withAuth(s.logRequests(mux))
}

type claimsKey struct{}

// withAuth 解析可选的 Bearer 令牌。携带了令牌但无效时直接拒绝。
func (s *server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody("invalid authorization header"))
			return
		}
		claims, err := s.Accounts.ParseToken(strings.TrimSpace(token))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody("invalid or expired token"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		s.Logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rw.status, "duration", time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func claimsFrom(ctx context.Context) (accounts.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(accounts.Claims)
	return c, ok
}

// actorID 优先取令牌中对应角色的 id，否则取请求体字段。
func actorID(r *http.Request, role model.Role, fallback string) string {
	if c, ok := claimsFrom(r.Context()); ok && c.Role == role && c.ID != "" {
		return c.ID
	}
	return fallback
}

// readBody 读取请求体并依次解码到每个目标，空请求体视为 {}。
func readBody(r *http.Request, dst ...any) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return apperr.ErrInvalidInput.With("invalid payload")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		data = []byte("{}")
	}
	for _, d := range dst {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(d); err != nil {
			return apperr.ErrInvalidInput.With("invalid payload")
		}
	}
	return nil
}

func parseRole(value string) (model.Role, error) {
	role, ok := model.ParseRole(value)
	if !ok {
		return "", apperr.ErrInvalidInput.With("role must be student, recruiter, or admin")
	}
	return role, nil
}

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindAuthorization:
		if errors.Is(err, apperr.ErrInvalidCredentials) {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.Logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorBody(apperr.Message(err)))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
