package model

import (
	"time"
)

// Origin 表示职位的发布方类别，决定默认审核状态。
type Origin string

const (
	OriginRecruiter  Origin = "RECRUITER"
	OriginAdmin      Origin = "ADMIN"
	OriginGovernment Origin = "GOVERNMENT"
)

// JobType 区分私企岗位与政府岗位。
type JobType string

const (
	JobTypePrivate    JobType = "PRIVATE"
	JobTypeGovernment JobType = "GOVERNMENT"
)

// JobStatus 为首字母大写的职位状态。
type JobStatus string

const (
	JobStatusOpen   JobStatus = "Open"
	JobStatusClosed JobStatus = "Closed"
)

// Verify 表示审核状态字面量。
type Verify string

const (
	VerifyNotVerified Verify = "notverified"
	VerifyVerified    Verify = "verified"
)

// EditPending 表示招聘方修改后等待管理员复核。
const EditPending = "pending"

// Job 表示一个职位
// - EmployerID: 招聘方发布时的归属
// - AdminID: 管理员或政府岗位的归属
// - ToShowUser: 与 Status 独立控制学生端可见性
// - Edit/EditVerified: 招聘方修改后的复核状态，初始为 null
type Job struct {
	JobID               string    `json:"job_id"`
	Origin              Origin    `json:"origin"`
	JobType             JobType   `json:"job_type"`
	PostedBy            string    `json:"posted_by"`
	EmployerID          string    `json:"employer_id,omitempty"`
	AdminID             string    `json:"admin_id,omitempty"`
	Title               string    `json:"job_title"`
	CompanyName         *string   `json:"company_name"`
	DepartmentName      *string   `json:"department_name,omitempty"`
	Description         string    `json:"description"`
	Location            string    `json:"location"`
	EmploymentType      string    `json:"employment_type"`
	WorkMode            *string   `json:"work_mode"`
	SalaryRange         *string   `json:"salary_range"`
	ExperienceRequired  *string   `json:"experience_required"`
	SkillsRequired      []string  `json:"skills_required"`
	Responsibilities    []string  `json:"responsibilities"`
	Qualifications      []string  `json:"qualifications"`
	ApplicationDeadline *string   `json:"application_deadline"`
	ContactEmail        *string   `json:"contact_email"`
	Status              JobStatus `json:"status"`
	StatusVerified      Verify    `json:"status_verified"`
	Edit                *string   `json:"edit"`
	EditVerified        *Verify   `json:"edit_verified"`
	ToShowUser          bool      `json:"to_show_user"`
	IsPremium           bool      `json:"is_premium"`
	PremiumJob          *bool     `json:"premium_job,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Visible 判断学生端是否可见。
func (j Job) Visible() bool {
	return j.ToShowUser && j.Status == JobStatusOpen
}

// OwnerField 返回该来源职位的归属字段名。
func (o Origin) OwnerField() string {
	if o == OriginRecruiter {
		return "employer_id"
	}
	return "admin_id"
}

// Valid 判断来源是否合法。
func (o Origin) Valid() bool {
	switch o {
	case OriginRecruiter, OriginAdmin, OriginGovernment:
		return true
	}
	return false
}
