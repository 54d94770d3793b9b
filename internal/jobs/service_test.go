package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"jobboard/internal/apperr"
	"jobboard/internal/model"
	"jobboard/internal/storage"
)

type stubTasks struct {
	mu    sync.Mutex
	tasks []model.Task
	err   error
}

func (s *stubTasks) Create(ctx context.Context, task model.Task) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return model.Task{}, s.err
	}
	task.TaskID = "t-" + task.JobID
	task.Status = model.TaskStatusPending
	s.tasks = append(s.tasks, task)
	return task, nil
}

type stubAnnouncer struct {
	subjects []string
}

func (a *stubAnnouncer) Announce(subject, text, html string) {
	a.subjects = append(a.subjects, subject)
}

type fixture struct {
	svc       *Service
	store     *storage.Store
	tasks     *stubTasks
	announcer *stubAnnouncer
}

func newFixture(t *testing.T, cfg Config) fixture {
	t.Helper()

	store, err := storage.NewStore(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	tasks := &stubTasks{}
	ann := &stubAnnouncer{}
	svc := NewService(store, storage.Collections{}, tasks, ann, cfg, nil)
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	return fixture{svc: svc, store: store, tasks: tasks, announcer: ann}
}

func (f fixture) seedEmployer(t *testing.T, id string, approved bool) {
	t.Helper()
	rec := storage.Record{"employer_id": id, "email": id + "@corp.example", "hasadminapproved": approved}
	if err := f.store.Put(context.Background(), "employers", id+"@corp.example", rec); err != nil {
		t.Fatalf("seed employer: %v", err)
	}
}

func baseRequest() PostRequest {
	return PostRequest{
		Title:          "Go Developer",
		Description:    "Build services",
		Location:       "Pune",
		EmploymentType: "Full-time",
		CompanyName:    "Acme",
		JobStatus:      "open",
	}
}

func TestPostJobRecruiterStartsHidden(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.seedEmployer(t, "e1", true)
	ctx := context.Background()

	res, err := f.svc.PostJob(ctx, "e1", baseRequest())
	if err != nil {
		t.Fatalf("PostJob error: %v", err)
	}

	stored, err := f.svc.Get(ctx, model.OriginRecruiter, res.Job.JobID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if stored.Status != model.JobStatusOpen {
		t.Fatalf("expected status Open, got %q", stored.Status)
	}
	if stored.StatusVerified != model.VerifyNotVerified || stored.ToShowUser {
		t.Fatalf("expected recruiter job unverified and hidden, got %s/%v", stored.StatusVerified, stored.ToShowUser)
	}
	if stored.Edit != nil || stored.EditVerified != nil {
		t.Fatalf("expected edit fields null on creation")
	}
	if stored.JobType != model.JobTypePrivate || stored.PostedBy != "RECRUITER" || stored.EmployerID != "e1" {
		t.Fatalf("unexpected ownership fields %+v", stored)
	}
	if stored.SkillsRequired == nil || len(stored.SkillsRequired) != 0 {
		t.Fatalf("expected empty skills list, got %v", stored.SkillsRequired)
	}

	if len(f.tasks.tasks) != 1 || f.tasks.tasks[0].Category != model.TaskPostNewJob || f.tasks.tasks[0].RecruiterID != "e1" {
		t.Fatalf("expected one postnewjob task, got %+v", f.tasks.tasks)
	}
	if res.Task == nil {
		t.Fatalf("expected task in result")
	}
	if len(f.announcer.subjects) != 1 || f.announcer.subjects[0] != "New Job Posted: Go Developer" {
		t.Fatalf("unexpected announcements %v", f.announcer.subjects)
	}
}

func TestPostJobRejectsUnapprovedEmployer(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.seedEmployer(t, "e1", false)
	ctx := context.Background()

	_, err := f.svc.PostJob(ctx, "e1", baseRequest())
	if !errors.Is(err, apperr.ErrEmployerNotApproved) {
		t.Fatalf("expected ErrEmployerNotApproved, got %v", err)
	}
	if apperr.KindOf(err) != apperr.KindAuthorization {
		t.Fatalf("expected authorization kind, got %s", apperr.KindOf(err))
	}

	jobs, _ := f.store.Scan(ctx, "jobs")
	if len(jobs) != 0 || len(f.tasks.tasks) != 0 {
		t.Fatalf("expected no job or task written, got %d jobs %d tasks", len(jobs), len(f.tasks.tasks))
	}
	if len(f.announcer.subjects) != 0 {
		t.Fatalf("expected no announcement")
	}

	if _, err := f.svc.PostJob(ctx, "ghost", baseRequest()); !errors.Is(err, apperr.ErrEmployerNotFound) {
		t.Fatalf("expected ErrEmployerNotFound, got %v", err)
	}
}

func TestApprovalUnblocksButKeepsGate(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.seedEmployer(t, "e1", false)
	ctx := context.Background()

	if _, err := f.svc.PostJob(ctx, "e1", baseRequest()); err == nil {
		t.Fatalf("expected rejection before approval")
	}
	if _, err := f.store.UpdateFields(ctx, "employers", "e1@corp.example", storage.Record{"hasadminapproved": true}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	res, err := f.svc.PostJob(ctx, "e1", baseRequest())
	if err != nil {
		t.Fatalf("PostJob after approval error: %v", err)
	}
	if res.Job.StatusVerified != model.VerifyNotVerified || res.Job.ToShowUser {
		t.Fatalf("expected approval not to bypass verification gate")
	}
}

func TestPostValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	ctx := context.Background()

	req := baseRequest()
	req.Location = ""
	if _, err := f.svc.PostJobByAdmin(ctx, "a1", req); !errors.Is(err, apperr.ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
	if _, err := f.svc.PostJobByAdmin(ctx, "", baseRequest()); !errors.Is(err, apperr.ErrMissingField) {
		t.Fatalf("expected missing actor to be rejected, got %v", err)
	}
	// 政府职位还需要 department_name。
	if _, err := f.svc.PostGovernmentJob(ctx, "a1", baseRequest()); !errors.Is(err, apperr.ErrMissingField) {
		t.Fatalf("expected department_name to be required, got %v", err)
	}
}

func TestPostAdminAndGovernmentVisible(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	ctx := context.Background()

	admin, err := f.svc.PostJobByAdmin(ctx, "a1", baseRequest())
	if err != nil {
		t.Fatalf("PostJobByAdmin error: %v", err)
	}
	greq := baseRequest()
	greq.DepartmentName = "Railways"
	gov, err := f.svc.PostGovernmentJob(ctx, "a1", greq)
	if err != nil {
		t.Fatalf("PostGovernmentJob error: %v", err)
	}

	for _, job := range []model.Job{admin.Job, gov.Job} {
		if job.StatusVerified != model.VerifyVerified || !job.ToShowUser {
			t.Fatalf("expected %s job verified and visible", job.Origin)
		}
		if job.EditVerified == nil || *job.EditVerified != model.VerifyVerified {
			t.Fatalf("expected edit_verified verified for %s", job.Origin)
		}
	}
	if admin.Task != nil || gov.Task != nil || len(f.tasks.tasks) != 0 {
		t.Fatalf("expected no moderation tasks for admin origins")
	}
	if gov.Job.JobType != model.JobTypeGovernment {
		t.Fatalf("expected government job type, got %s", gov.Job.JobType)
	}
	if _, err := f.store.Get(ctx, "government_jobs", gov.Job.JobID); err != nil {
		t.Fatalf("expected government job in government_jobs: %v", err)
	}
	if len(f.announcer.subjects) != 2 || f.announcer.subjects[1] != "New Government Job Posted: Go Developer" {
		t.Fatalf("unexpected announcements %v", f.announcer.subjects)
	}

	visible, err := f.svc.ListVisible(ctx)
	if err != nil {
		t.Fatalf("ListVisible error: %v", err)
	}
	if len(visible) != 2 {
		t.Fatalf("expected 2 visible jobs, got %d", len(visible))
	}
}

func TestUpdateJobForcesModeration(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.seedEmployer(t, "e1", true)
	ctx := context.Background()

	posted, err := f.svc.PostJob(ctx, "e1", baseRequest())
	if err != nil {
		t.Fatalf("PostJob error: %v", err)
	}
	// 模拟管理员已审核通过。
	if _, err := f.store.UpdateFields(ctx, "jobs", posted.Job.JobID, storage.Record{"to_show_user": true, "status_verified": "verified"}); err != nil {
		t.Fatalf("verify: %v", err)
	}

	res, err := f.svc.UpdateJob(ctx, posted.Job.JobID, "e1", map[string]any{"location": "Remote", "employer_id": "hijack"})
	if err != nil {
		t.Fatalf("UpdateJob error: %v", err)
	}
	got := res.Job
	if got.Location != "Remote" || got.Title != "Go Developer" {
		t.Fatalf("expected only location changed, got %+v", got)
	}
	if got.Edit == nil || *got.Edit != model.EditPending {
		t.Fatalf("expected edit=pending")
	}
	if got.EditVerified == nil || *got.EditVerified != model.VerifyNotVerified || got.ToShowUser {
		t.Fatalf("expected edit_verified=notverified and hidden")
	}
	if got.EmployerID != "e1" {
		t.Fatalf("expected owner field not patchable, got %s", got.EmployerID)
	}
	if res.Task == nil || res.Task.Category != model.TaskEditJob {
		t.Fatalf("expected editjob task, got %+v", res.Task)
	}

	// 空 patch 仍重新进入审核。
	if _, err := f.store.UpdateFields(ctx, "jobs", posted.Job.JobID, storage.Record{"to_show_user": true}); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	res, err = f.svc.UpdateJob(ctx, posted.Job.JobID, "e1", map[string]any{})
	if err != nil {
		t.Fatalf("UpdateJob empty patch error: %v", err)
	}
	if res.Job.ToShowUser {
		t.Fatalf("expected no-op patch to hide job again")
	}
	if len(f.tasks.tasks) != 3 {
		t.Fatalf("expected postnewjob + 2 editjob tasks, got %d", len(f.tasks.tasks))
	}
}

func TestUpdateOwnershipFailureIsForbidden(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.seedEmployer(t, "e1", true)
	ctx := context.Background()

	posted, err := f.svc.PostJob(ctx, "e1", baseRequest())
	if err != nil {
		t.Fatalf("PostJob error: %v", err)
	}

	_, err = f.svc.UpdateJob(ctx, posted.Job.JobID, "e2", map[string]any{"location": "Delhi"})
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	stored, _ := f.svc.Get(ctx, model.OriginRecruiter, posted.Job.JobID)
	if stored.Location != "Pune" || stored.Edit != nil {
		t.Fatalf("expected job untouched after failed condition, got %+v", stored)
	}
	if len(f.tasks.tasks) != 1 {
		t.Fatalf("expected no editjob task after forbidden update")
	}

	// 管理员不能改招聘方职位。
	if _, err := f.svc.UpdateAdminJob(ctx, posted.Job.JobID, "a1", map[string]any{"location": "Delhi"}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected admin mismatch to be forbidden, got %v", err)
	}
	if _, err := f.svc.UpdateJob(ctx, "missing", "e1", map[string]any{"location": "Delhi"}); !errors.Is(err, apperr.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestUpdateRejectsMistypedFields(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.seedEmployer(t, "e1", true)
	ctx := context.Background()

	posted, err := f.svc.PostJob(ctx, "e1", baseRequest())
	if err != nil {
		t.Fatalf("PostJob error: %v", err)
	}
	jobID := posted.Job.JobID

	bad := []map[string]any{
		{"skills_required": "go, sql"},
		{"responsibilities": []any{"build", 3}},
		{"status": 1},
		{"job_title": true},
	}
	for _, patch := range bad {
		if _, err := f.svc.UpdateJob(ctx, jobID, "e1", patch); apperr.KindOf(err) != apperr.KindValidation {
			t.Fatalf("expected validation error for %v, got %v", patch, err)
		}
	}
	if len(f.tasks.tasks) != 1 {
		t.Fatalf("expected no editjob task after rejected patches, got %d", len(f.tasks.tasks))
	}

	stored, err := f.svc.Get(ctx, model.OriginRecruiter, jobID)
	if err != nil {
		t.Fatalf("expected job still readable, got %v", err)
	}
	if stored.Edit != nil {
		t.Fatalf("expected rejected patch not to touch moderation fields")
	}

	res, err := f.svc.UpdateJob(ctx, jobID, "e1", map[string]any{
		"skills_required": []any{"go", "sql"},
		"salary_range":    nil,
	})
	if err != nil {
		t.Fatalf("UpdateJob error: %v", err)
	}
	if len(res.Job.SkillsRequired) != 2 || res.Job.SalaryRange != nil {
		t.Fatalf("unexpected job after valid patch %+v", res.Job)
	}
	if res.Task == nil {
		t.Fatalf("expected editjob task for valid patch")
	}
}

func TestUpdateAdminJobTrusted(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	ctx := context.Background()

	posted, err := f.svc.PostJobByAdmin(ctx, "a1", baseRequest())
	if err != nil {
		t.Fatalf("PostJobByAdmin error: %v", err)
	}

	res, err := f.svc.UpdateAdminJob(ctx, posted.Job.JobID, "a1", map[string]any{"job_title": "Staff Go Developer"})
	if err != nil {
		t.Fatalf("UpdateAdminJob error: %v", err)
	}
	if res.Job.Title != "Staff Go Developer" || !res.Job.ToShowUser || res.Job.Edit != nil {
		t.Fatalf("expected trusted admin edit, got %+v", res.Job)
	}
	if res.Task != nil || len(f.tasks.tasks) != 0 {
		t.Fatalf("expected no task for admin edit")
	}

	if _, err := f.svc.UpdateAdminJob(ctx, posted.Job.JobID, "a1", map[string]any{"unknown": 1}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected no updatable fields error, got %v", err)
	}

	res, err = f.svc.UpdateAdminJob(ctx, posted.Job.JobID, "a1", map[string]any{"status": "CLOSED"})
	if err != nil {
		t.Fatalf("UpdateAdminJob status error: %v", err)
	}
	if res.Job.Status != model.JobStatusClosed || res.Job.ToShowUser {
		t.Fatalf("expected normalized Closed status to hide job, got %s/%v", res.Job.Status, res.Job.ToShowUser)
	}
}

func TestCloseIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	ctx := context.Background()

	greq := baseRequest()
	greq.DepartmentName = "Railways"
	posted, err := f.svc.PostGovernmentJob(ctx, "a1", greq)
	if err != nil {
		t.Fatalf("PostGovernmentJob error: %v", err)
	}

	for i := 0; i < 2; i++ {
		job, err := f.svc.Close(ctx, model.OriginGovernment, posted.Job.JobID, "")
		if err != nil {
			t.Fatalf("Close #%d error: %v", i+1, err)
		}
		if job.Status != model.JobStatusClosed || job.ToShowUser {
			t.Fatalf("expected Closed and hidden after close #%d", i+1)
		}
	}

	if _, err := f.svc.Close(ctx, model.OriginAdmin, "missing", ""); !errors.Is(err, apperr.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	visible, _ := f.svc.ListVisible(ctx)
	if len(visible) != 0 {
		t.Fatalf("expected closed job hidden from listing")
	}
}

func TestCloseRequiresOwnerWhenConfigured(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{CloseRequiresOwner: true})
	ctx := context.Background()

	posted, err := f.svc.PostJobByAdmin(ctx, "a1", baseRequest())
	if err != nil {
		t.Fatalf("PostJobByAdmin error: %v", err)
	}
	if _, err := f.svc.Close(ctx, model.OriginAdmin, posted.Job.JobID, "a2"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := f.svc.Close(ctx, model.OriginAdmin, posted.Job.JobID, "a1"); err != nil {
		t.Fatalf("expected owner close to succeed, got %v", err)
	}
}

func TestMarkPremium(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	ctx := context.Background()

	posted, err := f.svc.PostJobByAdmin(ctx, "a1", baseRequest())
	if err != nil {
		t.Fatalf("PostJobByAdmin error: %v", err)
	}

	job, err := f.svc.MarkPremium(ctx, posted.Job.JobID, "job", true)
	if err != nil {
		t.Fatalf("MarkPremium error: %v", err)
	}
	if job.PremiumJob == nil || !*job.PremiumJob {
		t.Fatalf("expected premium_job=true")
	}
	if _, err := f.svc.MarkPremium(ctx, posted.Job.JobID, "internship", true); !errors.Is(err, apperr.ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}
	if _, err := f.svc.MarkPremium(ctx, posted.Job.JobID, "government", true); !errors.Is(err, apperr.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound in government collection, got %v", err)
	}
}

func TestCloseExpired(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	ctx := context.Background()

	expired := baseRequest()
	expired.ApplicationDeadline = "2024-04-30"
	today := baseRequest()
	today.ApplicationDeadline = "2024-05-01"
	open := baseRequest()

	var ids []string
	for _, req := range []PostRequest{expired, today, open} {
		res, err := f.svc.PostJobByAdmin(ctx, "a1", req)
		if err != nil {
			t.Fatalf("PostJobByAdmin error: %v", err)
		}
		ids = append(ids, res.Job.JobID)
	}

	n, err := f.svc.CloseExpired(ctx, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("CloseExpired error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 job closed, got %d", n)
	}
	first, _ := f.svc.Get(ctx, model.OriginAdmin, ids[0])
	if first.Status != model.JobStatusClosed || first.ToShowUser {
		t.Fatalf("expected expired job closed")
	}
	second, _ := f.svc.Get(ctx, model.OriginAdmin, ids[1])
	if second.Status != model.JobStatusOpen {
		t.Fatalf("expected job due today to stay open")
	}

	if n, _ := f.svc.CloseExpired(ctx, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)); n != 0 {
		t.Fatalf("expected second sweep to close nothing, got %d", n)
	}
}

func TestNormalizeStatus(t *testing.T) {
	t.Parallel()

	cases := map[string]string{"open": "Open", "CLOSED": "Closed", "oPeN": "Open", "": ""}
	for in, want := range cases {
		if got := NormalizeStatus(in); got != want {
			t.Fatalf("NormalizeStatus(%q) = %q, want %q", in, got, want)
		}
	}
}
