package model

import "time"

// TaskCategory 表示审核任务类别。
type TaskCategory string

const (
	TaskNewApplication TaskCategory = "newapplication"
	TaskPostNewJob     TaskCategory = "postnewjob"
	TaskEditJob        TaskCategory = "editjob"
)

// TaskStatusPending 为任务初始状态。
const TaskStatusPending = "pending"

// Task 为管理员审核队列中的一条记录，只写不读。
type Task struct {
	TaskID        string       `json:"task_id"`
	Category      TaskCategory `json:"category"`
	JobID         string       `json:"job_id"`
	RecruiterID   string       `json:"recruiter_id,omitempty"`
	ApplicationID string       `json:"application_id,omitempty"`
	StudentID     string       `json:"student_id,omitempty"`
	Status        string       `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}
