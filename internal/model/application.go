package model

import (
	"strings"
	"time"
)

// ApplicationStatusPending 为投递默认状态。
const ApplicationStatusPending = "Pending"

// Application 表示一次学生投递，含投递时的学生资料快照。
type Application struct {
	ApplicationID   string  `json:"application_id"`
	JobID           string  `json:"job_id"`
	StudentID       string  `json:"student_id"`
	EmployerID      *string `json:"employer_id"`
	ResumeURL       *string `json:"resume_url"`
	CoverLetter     *string `json:"cover_letter"`
	Status          string  `json:"status"`
	StatusVerified  Verify  `json:"status_verified"`
	ToShowRecruiter bool    `json:"to_show_recruiter"`
	ToShowUser      bool    `json:"to_show_user"`

	// 仅私企投递填充
	StudentSnapshot

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StudentSnapshot 为投递时冗余保存的学生资料。
type StudentSnapshot struct {
	StudentEmail      string         `json:"student_email,omitempty"`
	StudentName       string         `json:"student_name,omitempty"`
	StudentPhone      *string        `json:"student_phone,omitempty"`
	StudentDepartment *string        `json:"student_department,omitempty"`
	StudentUniversity *string        `json:"student_university,omitempty"`
	StudentCGPA       any            `json:"student_cgpa,omitempty"`
	StudentSkills     []string       `json:"student_skills,omitempty"`
	StudentProfile    map[string]any `json:"student_profile,omitempty"`
}

// Applied 为按学生反查投递的索引记录，键为 job_id#student_id。
type Applied struct {
	AppliedID     string    `json:"applied_id"`
	JobID         string    `json:"job_id"`
	UserID        string    `json:"user_id"`
	ApplicationID string    `json:"application_id"`
	Duration      time.Time `json:"duration"`
	CreatedAt     time.Time `json:"created_at"`
}

var keyEscaper = strings.NewReplacer("%", "%25", "#", "%23")

// AppliedKey 返回 (job, student) 唯一键，两段中的 % 与 # 先转义。
func AppliedKey(jobID, studentID string) string {
	return keyEscaper.Replace(jobID) + "#" + keyEscaper.Replace(studentID)
}
