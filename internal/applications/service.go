// Package applications 管理学生投递：防重复、按来源设置默认审核状态、列表查询。
package applications

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"jobboard/internal/apperr"
	"jobboard/internal/model"
	"jobboard/internal/storage"

	"github.com/google/uuid"
)

// Store 为投递服务所需的存储能力。
type Store interface {
	Get(ctx context.Context, collection, key string) (storage.Record, error)
	Put(ctx context.Context, collection, key string, rec storage.Record) error
	PutIfAbsent(ctx context.Context, collection, key string, rec storage.Record) error
	Delete(ctx context.Context, collection, key string) error
	FindOne(ctx context.Context, collection string, filters ...storage.Condition) (storage.Record, error)
	Query(ctx context.Context, collection string, idx storage.Index, value any) ([]storage.Record, error)
}

// JobFinder 按来源读取职位，缺失返回 apperr.ErrJobNotFound。
type JobFinder interface {
	Get(ctx context.Context, origin model.Origin, jobID string) (model.Job, error)
}

// TaskCreator 创建审核任务。
type TaskCreator interface {
	Create(ctx context.Context, task model.Task) (model.Task, error)
}

var (
	byJob     = storage.Index{Name: "job_id-index", Field: "job_id"}
	byStudent = storage.Index{Name: "user_id-index", Field: "user_id"}
)

// Track 为投递通道，对应职位来源。
type Track struct {
	origin   model.Origin
	verified model.Verify
	snapshot bool
	task     bool
}

var (
	// TrackPrivate 招聘方职位：需学生资料快照并生成 newapplication 任务。
	TrackPrivate = Track{origin: model.OriginRecruiter, verified: model.VerifyNotVerified, snapshot: true, task: true}
	// TrackGovernment 政府职位。
	TrackGovernment = Track{origin: model.OriginGovernment, verified: model.VerifyNotVerified}
	// TrackAdmin 管理员职位：直接视为已审核，但双方均不可见。
	TrackAdmin = Track{origin: model.OriginAdmin, verified: model.VerifyVerified}
)

// ApplyRequest 为投递输入。
type ApplyRequest struct {
	ResumeURL    string `json:"resume_url"`
	CoverLetter  string `json:"cover_letter"`
	StudentEmail string `json:"student_email"`
}

// Result 为投递结果。
type Result struct {
	Application model.Application `json:"application"`
	Applied     model.Applied     `json:"applied_entry"`
	Task        *model.Task       `json:"task_entry,omitempty"`
}

// Service 为投递生命周期管理器。
type Service struct {
	store  Store
	cols   storage.Collections
	jobs   JobFinder
	tasks  TaskCreator
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewService 创建服务。
func NewService(store Store, cols storage.Collections, jobs JobFinder, tasks TaskCreator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		cols:   cols.WithDefaults(),
		jobs:   jobs,
		tasks:  tasks,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// ApplyForJob 投递招聘方职位。
func (s *Service) ApplyForJob(ctx context.Context, studentID, jobID string, req ApplyRequest) (Result, error) {
	return s.Apply(ctx, TrackPrivate, studentID, jobID, req)
}

// ApplyForGovernmentJob 投递政府职位。
func (s *Service) ApplyForGovernmentJob(ctx context.Context, studentID, jobID string, req ApplyRequest) (Result, error) {
	return s.Apply(ctx, TrackGovernment, studentID, jobID, req)
}

// ApplyForAdminJob 投递管理员职位。
func (s *Service) ApplyForAdminJob(ctx context.Context, studentID, jobID string, req ApplyRequest) (Result, error) {
	return s.Apply(ctx, TrackAdmin, studentID, jobID, req)
}

// Apply 创建投递。(job_id, student_id) 的唯一性由 applied 记录的原子写入保证：
// 先占用 job_id#student_id 键，再写投递；投递写入失败时释放占用。
func (s *Service) Apply(ctx context.Context, track Track, studentID, jobID string, req ApplyRequest) (Result, error) {
	if studentID == "" || jobID == "" {
		return Result{}, apperr.ErrMissingField.With("student_id and job_id are required")
	}
	if track.snapshot && req.StudentEmail == "" {
		return Result{}, apperr.ErrMissingField.With("student_email is required")
	}

	job, err := s.jobs.Get(ctx, track.origin, jobID)
	if err != nil {
		return Result{}, err
	}

	key := model.AppliedKey(jobID, studentID)
	if _, err := s.store.Get(ctx, s.cols.Applied, key); err == nil {
		return Result{}, apperr.ErrDuplicateApplication
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error("check existing application", "collection", s.cols.Applied, "key", key, "error", err)
		return Result{}, apperr.Dependency("failed to apply for job", err)
	}

	var snapshot model.StudentSnapshot
	if track.snapshot {
		snapshot, err = s.studentSnapshot(ctx, req.StudentEmail)
		if err != nil {
			return Result{}, err
		}
	}

	now := s.now().UTC()
	app := model.Application{
		ApplicationID:   s.newID(),
		JobID:           jobID,
		StudentID:       studentID,
		ResumeURL:       nullable(req.ResumeURL),
		CoverLetter:     nullable(req.CoverLetter),
		Status:          model.ApplicationStatusPending,
		StatusVerified:  track.verified,
		ToShowRecruiter: false,
		ToShowUser:      false,
		StudentSnapshot: snapshot,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if track.origin != model.OriginGovernment {
		app.EmployerID = nullable(job.EmployerID)
	}
	applied := model.Applied{
		AppliedID:     s.newID(),
		JobID:         jobID,
		UserID:        studentID,
		ApplicationID: app.ApplicationID,
		Duration:      now,
		CreatedAt:     now,
	}

	appliedRec, err := storage.Encode(applied)
	if err != nil {
		return Result{}, apperr.Dependency("failed to apply for job", err)
	}
	err = s.store.PutIfAbsent(ctx, s.cols.Applied, key, appliedRec)
	if errors.Is(err, storage.ErrAlreadyExists) {
		return Result{}, apperr.ErrDuplicateApplication
	}
	if err != nil {
		s.logger.Error("claim application", "collection", s.cols.Applied, "key", key, "error", err)
		return Result{}, apperr.Dependency("failed to apply for job", err)
	}

	appRec, err := storage.Encode(app)
	if err == nil {
		err = s.store.Put(ctx, s.cols.Applications, app.ApplicationID, appRec)
	}
	if err != nil {
		s.logger.Error("put application", "collection", s.cols.Applications, "application_id", app.ApplicationID, "error", err)
		if derr := s.store.Delete(ctx, s.cols.Applied, key); derr != nil {
			s.logger.Error("release application claim", "collection", s.cols.Applied, "key", key, "error", derr)
		}
		return Result{}, apperr.Dependency("failed to apply for job", err)
	}

	res := Result{Application: app, Applied: applied}
	if track.task {
		task, err := s.tasks.Create(ctx, model.Task{
			Category:      model.TaskNewApplication,
			JobID:         jobID,
			RecruiterID:   job.EmployerID,
			ApplicationID: app.ApplicationID,
			StudentID:     studentID,
		})
		if err != nil {
			return Result{}, err
		}
		res.Task = &task
	}
	return res, nil
}

// ListForJob 返回职位下全部投递，最新在前。
func (s *Service) ListForJob(ctx context.Context, jobID string) ([]model.Application, error) {
	if jobID == "" {
		return nil, apperr.ErrMissingField.With("job_id is required")
	}
	recs, err := s.store.Query(ctx, s.cols.Applications, byJob, jobID)
	if err != nil {
		s.logger.Error("list applications", "collection", s.cols.Applications, "job_id", jobID, "error", err)
		return nil, apperr.Dependency("failed to fetch applications", err)
	}
	return decodeApplications(recs)
}

// ListForStudent 通过 applied 索引返回学生的全部投递。
func (s *Service) ListForStudent(ctx context.Context, studentID string) ([]model.Application, error) {
	if studentID == "" {
		return nil, apperr.ErrMissingField.With("student_id is required")
	}
	entries, err := s.store.Query(ctx, s.cols.Applied, byStudent, studentID)
	if err != nil {
		s.logger.Error("list applied", "collection", s.cols.Applied, "student_id", studentID, "error", err)
		return nil, apperr.Dependency("failed to fetch applications", err)
	}

	out := make([]model.Application, 0, len(entries))
	for _, e := range entries {
		appID, _ := e["application_id"].(string)
		rec, err := s.store.Get(ctx, s.cols.Applications, appID)
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("applied entry without application", "application_id", appID, "student_id", studentID)
			continue
		}
		if err != nil {
			return nil, apperr.Dependency("failed to fetch applications", err)
		}
		var app model.Application
		if err := storage.Decode(rec, &app); err != nil {
			return nil, apperr.Dependency("failed to fetch applications", err)
		}
		out = append(out, app)
	}
	return out, nil
}

func (s *Service) studentSnapshot(ctx context.Context, email string) (model.StudentSnapshot, error) {
	rec, err := s.store.FindOne(ctx, s.cols.Students, storage.Eq("email", email))
	if errors.Is(err, storage.ErrNotFound) {
		return model.StudentSnapshot{}, apperr.ErrStudentNotFound
	}
	if err != nil {
		s.logger.Error("lookup student", "collection", s.cols.Students, "email", email, "error", err)
		return model.StudentSnapshot{}, apperr.Dependency("failed to apply for job", err)
	}

	profile := make(map[string]any, len(rec))
	for k, v := range rec {
		if k == "password" {
			continue
		}
		profile[k] = v
	}

	snap := model.StudentSnapshot{
		StudentEmail:      stringField(rec, "email"),
		StudentName:       stringField(rec, "full_name"),
		StudentPhone:      nullable(stringField(rec, "phone")),
		StudentDepartment: nullable(stringField(rec, "department")),
		StudentUniversity: nullable(stringField(rec, "university")),
		StudentCGPA:       rec["cgpa"],
		StudentSkills:     []string{},
		StudentProfile:    profile,
	}
	if snap.StudentName == "" {
		snap.StudentName = stringField(rec, "name")
	}
	if skills, ok := rec["skills"].([]any); ok {
		for _, sk := range skills {
			if str, ok := sk.(string); ok {
				snap.StudentSkills = append(snap.StudentSkills, str)
			}
		}
	}
	return snap, nil
}

func decodeApplications(recs []storage.Record) ([]model.Application, error) {
	out := make([]model.Application, 0, len(recs))
	for _, rec := range recs {
		var app model.Application
		if err := storage.Decode(rec, &app); err != nil {
			return nil, apperr.Dependency("failed to fetch applications", err)
		}
		out = append(out, app)
	}
	return out, nil
}

func stringField(rec storage.Record, key string) string {
	v, _ := rec[key].(string)
	return v
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
