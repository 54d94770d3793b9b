// Package jobs 管理职位的发布、修改、关闭与审核可见性。
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"jobboard/internal/apperr"
	"jobboard/internal/model"
	"jobboard/internal/storage"

	"github.com/google/uuid"
)

// Store 为职位服务所需的存储能力。
type Store interface {
	Get(ctx context.Context, collection, key string) (storage.Record, error)
	Put(ctx context.Context, collection, key string, rec storage.Record) error
	Scan(ctx context.Context, collection string, filters ...storage.Condition) ([]storage.Record, error)
	FindOne(ctx context.Context, collection string, filters ...storage.Condition) (storage.Record, error)
	UpdateFields(ctx context.Context, collection, key string, fields storage.Record, conds ...storage.Condition) (storage.Record, error)
}

// TaskCreator 创建审核任务。
type TaskCreator interface {
	Create(ctx context.Context, task model.Task) (model.Task, error)
}

// Announcer 后台广播新职位，不阻塞调用方。
type Announcer interface {
	Announce(subject, text, html string)
}

// Config 职位相关配置。
type Config struct {
	// CloseRequiresOwner 为 true 时关闭职位也校验归属字段。
	CloseRequiresOwner bool `yaml:"close_requires_owner" json:"close_requires_owner"`
}

// Result 为写操作的返回，Task 仅在生成审核任务时非空。
type Result struct {
	Job  model.Job   `json:"job"`
	Task *model.Task `json:"task,omitempty"`
}

// PostRequest 为发布职位的输入。
type PostRequest struct {
	Title               string   `json:"job_title"`
	Description         string   `json:"description"`
	Location            string   `json:"location"`
	EmploymentType      string   `json:"employment_type"`
	CompanyName         string   `json:"company_name"`
	DepartmentName      string   `json:"department_name"`
	WorkMode            string   `json:"work_mode"`
	SalaryRange         string   `json:"salary_range"`
	ExperienceRequired  string   `json:"experience_required"`
	SkillsRequired      []string `json:"skills_required"`
	Responsibilities    []string `json:"responsibilities"`
	Qualifications      []string `json:"qualifications"`
	ApplicationDeadline string   `json:"application_deadline"`
	ContactEmail        string   `json:"contact_email"`
	JobStatus           string   `json:"job_status"`
	Status              string   `json:"status"`
}

// listFields 为数组类型的可更新字段，其余可更新字段均为字符串。
var listFields = map[string]bool{"skills_required": true, "responsibilities": true, "qualifications": true}

var commonUpdatable = []string{
	"job_title", "description", "location", "salary_range", "employment_type",
	"skills_required", "experience_required", "work_mode", "responsibilities",
	"qualifications", "application_deadline", "contact_email", "status",
}

// Service 为职位生命周期管理器。
type Service struct {
	store     Store
	cols      storage.Collections
	tasks     TaskCreator
	announcer Announcer
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// NewService 创建服务，announcer 可为 nil。
func NewService(store Store, cols storage.Collections, tasks TaskCreator, announcer Announcer, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		cols:      cols.WithDefaults(),
		tasks:     tasks,
		announcer: announcer,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// PostJob 招聘方发布职位，需管理员已批准该招聘方。
func (s *Service) PostJob(ctx context.Context, employerID string, req PostRequest) (Result, error) {
	return s.Post(ctx, model.OriginRecruiter, employerID, req)
}

// PostJobByAdmin 管理员发布私企职位，默认已审核且可见。
func (s *Service) PostJobByAdmin(ctx context.Context, adminID string, req PostRequest) (Result, error) {
	return s.Post(ctx, model.OriginAdmin, adminID, req)
}

// PostGovernmentJob 管理员发布政府职位，默认已审核且可见。
func (s *Service) PostGovernmentJob(ctx context.Context, adminID string, req PostRequest) (Result, error) {
	return s.Post(ctx, model.OriginGovernment, adminID, req)
}

// Post 按来源创建职位。
func (s *Service) Post(ctx context.Context, origin model.Origin, actorID string, req PostRequest) (Result, error) {
	if !origin.Valid() {
		return Result{}, apperr.ErrInvalidInput.Withf("unknown job origin %q", origin)
	}
	if err := validatePost(origin, actorID, req); err != nil {
		return Result{}, err
	}
	if origin == model.OriginRecruiter {
		if err := s.requireApprovedEmployer(ctx, actorID); err != nil {
			return Result{}, err
		}
	}

	job := s.newJob(origin, actorID, req)
	rec, err := storage.Encode(job)
	if err != nil {
		return Result{}, apperr.Dependency("failed to post job", err)
	}
	collection := s.collectionFor(origin)
	if err := s.store.Put(ctx, collection, job.JobID, rec); err != nil {
		s.logger.Error("post job", "origin", origin, "collection", collection, "job_id", job.JobID, "error", err)
		return Result{}, apperr.Dependency("failed to post job", err)
	}

	res := Result{Job: job}
	if origin == model.OriginRecruiter {
		task, err := s.tasks.Create(ctx, model.Task{
			Category:    model.TaskPostNewJob,
			JobID:       job.JobID,
			RecruiterID: actorID,
		})
		if err != nil {
			return Result{}, err
		}
		res.Task = &task
	}

	s.announce(job)
	return res, nil
}

// UpdateJob 招聘方修改职位，无论改动内容都重新进入审核。
func (s *Service) UpdateJob(ctx context.Context, jobID, employerID string, patch map[string]any) (Result, error) {
	return s.Update(ctx, model.OriginRecruiter, jobID, employerID, patch)
}

// UpdateAdminJob 管理员修改自己发布的私企职位。
func (s *Service) UpdateAdminJob(ctx context.Context, jobID, adminID string, patch map[string]any) (Result, error) {
	return s.Update(ctx, model.OriginAdmin, jobID, adminID, patch)
}

// UpdateGovernmentJob 管理员修改自己发布的政府职位。
func (s *Service) UpdateGovernmentJob(ctx context.Context, jobID, adminID string, patch map[string]any) (Result, error) {
	return s.Update(ctx, model.OriginGovernment, jobID, adminID, patch)
}

// Update 以归属字段为条件合并白名单字段，条件不满足返回 Forbidden。
func (s *Service) Update(ctx context.Context, origin model.Origin, jobID, actorID string, patch map[string]any) (Result, error) {
	if !origin.Valid() {
		return Result{}, apperr.ErrInvalidInput.Withf("unknown job origin %q", origin)
	}
	if jobID == "" || actorID == "" {
		return Result{}, apperr.ErrMissingField.Withf("job_id and %s required", origin.OwnerField())
	}

	fields, err := pickUpdatable(origin, patch)
	if err != nil {
		return Result{}, err
	}
	if origin != model.OriginRecruiter && len(fields) == 0 {
		return Result{}, apperr.ErrInvalidInput.With("no updatable fields provided")
	}
	if raw, ok := fields["status"].(string); ok {
		status := NormalizeStatus(raw)
		fields["status"] = status
		if status == string(model.JobStatusClosed) {
			fields["to_show_user"] = false
		}
	}
	if origin == model.OriginRecruiter {
		fields["edit"] = model.EditPending
		fields["edit_verified"] = model.VerifyNotVerified
		fields["to_show_user"] = false
	}
	fields["updated_at"] = s.now().UTC()

	collection := s.collectionFor(origin)
	rec, err := s.store.UpdateFields(ctx, collection, jobID, fields, storage.Eq(origin.OwnerField(), actorID))
	if err != nil {
		return Result{}, s.updateError("failed to update job", collection, jobID, err)
	}
	job, err := decodeJob(rec)
	if err != nil {
		return Result{}, err
	}

	res := Result{Job: job}
	if origin == model.OriginRecruiter {
		task, err := s.tasks.Create(ctx, model.Task{
			Category:    model.TaskEditJob,
			JobID:       jobID,
			RecruiterID: actorID,
		})
		if err != nil {
			return Result{}, err
		}
		res.Task = &task
	}
	return res, nil
}

// Close 关闭职位并对学生隐藏，可重复调用。
func (s *Service) Close(ctx context.Context, origin model.Origin, jobID, actorID string) (model.Job, error) {
	if !origin.Valid() {
		return model.Job{}, apperr.ErrInvalidInput.Withf("unknown job origin %q", origin)
	}
	if jobID == "" {
		return model.Job{}, apperr.ErrMissingField.With("job_id is required")
	}

	var conds []storage.Condition
	if s.cfg.CloseRequiresOwner {
		if actorID == "" {
			return model.Job{}, apperr.ErrMissingField.Withf("%s is required", origin.OwnerField())
		}
		conds = append(conds, storage.Eq(origin.OwnerField(), actorID))
	}

	collection := s.collectionFor(origin)
	rec, err := s.store.UpdateFields(ctx, collection, jobID, closedFields(s.now()), conds...)
	if err != nil {
		return model.Job{}, s.updateError("failed to close job", collection, jobID, err)
	}
	return decodeJob(rec)
}

// MarkPremium 设置 premium_job，category 为 job 或 government。
func (s *Service) MarkPremium(ctx context.Context, jobID, category string, isPremium bool) (model.Job, error) {
	if jobID == "" {
		return model.Job{}, apperr.ErrMissingField.With("job_id, is_premium (boolean), and category are required")
	}
	var collection string
	switch category {
	case "job":
		collection = s.cols.Jobs
	case "government":
		collection = s.cols.GovernmentJobs
	default:
		return model.Job{}, apperr.ErrInvalidCategory
	}

	rec, err := s.store.UpdateFields(ctx, collection, jobID, storage.Record{"premium_job": isPremium})
	if err != nil {
		return model.Job{}, s.updateError("failed to update premium status for job", collection, jobID, err)
	}
	return decodeJob(rec)
}

// Get 读取指定来源集合中的职位。
func (s *Service) Get(ctx context.Context, origin model.Origin, jobID string) (model.Job, error) {
	collection := s.collectionFor(origin)
	rec, err := s.store.Get(ctx, collection, jobID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Job{}, apperr.ErrJobNotFound
	}
	if err != nil {
		s.logger.Error("get job", "collection", collection, "job_id", jobID, "error", err)
		return model.Job{}, apperr.Dependency("failed to fetch job", err)
	}
	return decodeJob(rec)
}

// ListVisible 返回学生端可见的全部职位，最新发布在前。
func (s *Service) ListVisible(ctx context.Context) ([]model.Job, error) {
	var out []model.Job
	for _, collection := range []string{s.cols.Jobs, s.cols.GovernmentJobs} {
		recs, err := s.store.Scan(ctx, collection,
			storage.Eq("to_show_user", true),
			storage.Eq("status", string(model.JobStatusOpen)),
		)
		if err != nil {
			s.logger.Error("list visible jobs", "collection", collection, "error", err)
			return nil, apperr.Dependency("failed to fetch jobs", err)
		}
		for _, rec := range recs {
			job, err := decodeJob(rec)
			if err != nil {
				s.logger.Warn("skip undecodable job", "collection", collection, "job_id", rec["job_id"], "error", err)
				continue
			}
			if job.Visible() {
				out = append(out, job)
			}
		}
	}
	slices.SortStableFunc(out, func(a, b model.Job) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// CloseExpired 关闭截止日期早于 now 的开放职位，返回关闭数量。
func (s *Service) CloseExpired(ctx context.Context, now time.Time) (int, error) {
	closed := 0
	for _, collection := range []string{s.cols.Jobs, s.cols.GovernmentJobs} {
		recs, err := s.store.Scan(ctx, collection, storage.Eq("status", string(model.JobStatusOpen)))
		if err != nil {
			return closed, apperr.Dependency("failed to scan open jobs", err)
		}
		for _, rec := range recs {
			jobID, _ := rec["job_id"].(string)
			deadline, _ := rec["application_deadline"].(string)
			expired, ok := deadlinePassed(deadline, now)
			if !ok {
				if deadline != "" {
					s.logger.Warn("unparseable deadline", "collection", collection, "job_id", jobID, "deadline", deadline)
				}
				continue
			}
			if !expired || jobID == "" {
				continue
			}
			_, err := s.store.UpdateFields(ctx, collection, jobID, closedFields(now),
				storage.Eq("status", string(model.JobStatusOpen)))
			if errors.Is(err, storage.ErrConditionFailed) || errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				s.logger.Warn("close expired job", "collection", collection, "job_id", jobID, "error", err)
				continue
			}
			closed++
		}
	}
	return closed, nil
}

func (s *Service) requireApprovedEmployer(ctx context.Context, employerID string) error {
	rec, err := s.store.FindOne(ctx, s.cols.Employers, storage.Eq("employer_id", employerID))
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.ErrEmployerNotFound
	}
	if err != nil {
		s.logger.Error("lookup employer", "collection", s.cols.Employers, "employer_id", employerID, "error", err)
		return apperr.Dependency("failed to post job", err)
	}
	if approved, _ := rec["hasadminapproved"].(bool); !approved {
		return apperr.ErrEmployerNotApproved
	}
	return nil
}

func (s *Service) newJob(origin model.Origin, actorID string, req PostRequest) model.Job {
	now := s.now().UTC()
	status := req.JobStatus
	if status == "" {
		status = req.Status
	}
	if status == "" {
		status = string(model.JobStatusOpen)
	}

	job := model.Job{
		JobID:               s.newID(),
		Origin:              origin,
		JobType:             model.JobTypePrivate,
		PostedBy:            string(model.OriginAdmin),
		Title:               req.Title,
		Description:         req.Description,
		Location:            req.Location,
		EmploymentType:      req.EmploymentType,
		WorkMode:            nullable(req.WorkMode),
		SalaryRange:         nullable(req.SalaryRange),
		ExperienceRequired:  nullable(req.ExperienceRequired),
		SkillsRequired:      orEmpty(req.SkillsRequired),
		Responsibilities:    orEmpty(req.Responsibilities),
		Qualifications:      orEmpty(req.Qualifications),
		ApplicationDeadline: nullable(req.ApplicationDeadline),
		ContactEmail:        nullable(req.ContactEmail),
		Status:              model.JobStatus(NormalizeStatus(status)),
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	verified := model.VerifyVerified
	switch origin {
	case model.OriginRecruiter:
		job.EmployerID = actorID
		job.PostedBy = string(model.OriginRecruiter)
		job.CompanyName = nullable(req.CompanyName)
		job.StatusVerified = model.VerifyNotVerified
		job.ToShowUser = false
	case model.OriginAdmin:
		job.AdminID = actorID
		job.CompanyName = nullable(req.CompanyName)
		job.StatusVerified = model.VerifyVerified
		job.EditVerified = &verified
		job.ToShowUser = true
	case model.OriginGovernment:
		job.AdminID = actorID
		job.JobType = model.JobTypeGovernment
		job.DepartmentName = nullable(req.DepartmentName)
		job.StatusVerified = model.VerifyVerified
		job.EditVerified = &verified
		job.ToShowUser = true
	}
	return job
}

func (s *Service) announce(job model.Job) {
	if s.announcer == nil {
		return
	}
	a := buildAnnouncement(job)
	s.announcer.Announce(a.subject, a.text, a.html)
}

func (s *Service) collectionFor(origin model.Origin) string {
	if origin == model.OriginGovernment {
		return s.cols.GovernmentJobs
	}
	return s.cols.Jobs
}

func (s *Service) updateError(op, collection, jobID string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return apperr.ErrJobNotFound
	case errors.Is(err, storage.ErrConditionFailed):
		return apperr.ErrForbidden
	}
	s.logger.Error(op, "collection", collection, "job_id", jobID, "error", err)
	return apperr.Dependency(op, err)
}

type requiredField struct {
	name  string
	value string
}

func validatePost(origin model.Origin, actorID string, req PostRequest) error {
	required := []requiredField{
		{origin.OwnerField(), actorID},
		{"job_title", req.Title},
		{"description", req.Description},
		{"location", req.Location},
		{"employment_type", req.EmploymentType},
	}
	if origin == model.OriginGovernment {
		required = append(required, requiredField{"department_name", req.DepartmentName})
	}

	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return apperr.ErrMissingField.Withf("required fields missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

func pickUpdatable(origin model.Origin, patch map[string]any) (storage.Record, error) {
	allowed := append([]string{}, commonUpdatable...)
	if origin == model.OriginGovernment {
		allowed = append(allowed, "department_name")
	} else {
		allowed = append(allowed, "company_name")
	}

	fields := storage.Record{}
	for _, k := range allowed {
		v, ok := patch[k]
		if !ok {
			continue
		}
		if v == nil {
			fields[k] = nil
			continue
		}
		if listFields[k] {
			list, ok := stringList(v)
			if !ok {
				return nil, apperr.ErrInvalidInput.Withf("%s must be an array of strings", k)
			}
			fields[k] = list
			continue
		}
		str, ok := v.(string)
		if !ok {
			return nil, apperr.ErrInvalidInput.Withf("%s must be a string", k)
		}
		fields[k] = str
	}
	return fields, nil
}

func stringList(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	default:
		return nil, false
	}
}

func closedFields(now time.Time) storage.Record {
	return storage.Record{
		"status":       string(model.JobStatusClosed),
		"to_show_user": false,
		"updated_at":   now.UTC(),
	}
}

func decodeJob(rec storage.Record) (model.Job, error) {
	var job model.Job
	if err := storage.Decode(rec, &job); err != nil {
		return model.Job{}, apperr.Dependency("failed to decode job", err)
	}
	return job, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func orEmpty(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
