package model

import "time"

// Role 表示账号角色。
type Role string

const (
	RoleStudent   Role = "student"
	RoleRecruiter Role = "recruiter"
	RoleAdmin     Role = "admin"
)

// ParseRole 解析角色，兼容原有的 "Employer" 写法。
func ParseRole(s string) (Role, bool) {
	switch s {
	case "student", "Student":
		return RoleStudent, true
	case "recruiter", "Recruiter", "employer", "Employer":
		return RoleRecruiter, true
	case "admin", "Admin":
		return RoleAdmin, true
	}
	return "", false
}

// Employer 为招聘方账号，以 email 为主键。
type Employer struct {
	EmployerID       string    `json:"employer_id"`
	FullName         string    `json:"full_name"`
	Email            string    `json:"email"`
	Password         string    `json:"password"`
	PhoneNumber      string    `json:"phone_number,omitempty"`
	CompanyName      string    `json:"company_name"`
	CompanyWebsite   *string   `json:"company_website"`
	Industry         *string   `json:"industry"`
	CompanySize      *string   `json:"company_size"`
	Location         *string   `json:"location"`
	Description      *string   `json:"description"`
	KYCDocURL        string    `json:"kycDocUrl,omitempty"`
	Status           string    `json:"status"`
	Role             string    `json:"role"`
	HasAdminApproved bool      `json:"hasadminapproved"`
	IsAdminClosed    bool      `json:"is_admin_closed"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Student 为求职学生账号，以 email 为主键。
type Student struct {
	UserID        string    `json:"user_id"`
	FullName      string    `json:"full_name"`
	Email         string    `json:"email"`
	Password      string    `json:"password"`
	PhoneNumber   string    `json:"phone_number,omitempty"`
	Phone         *string   `json:"phone,omitempty"`
	Department    *string   `json:"department,omitempty"`
	University    *string   `json:"university,omitempty"`
	CGPA          any       `json:"cgpa,omitempty"`
	Skills        []string  `json:"skills,omitempty"`
	ResumeURL     string    `json:"resumeUrl,omitempty"`
	Role          string    `json:"role"`
	Status        string    `json:"status"`
	PremiumUser   bool      `json:"premium_user"`
	Plan          string    `json:"plan,omitempty"`
	IsAdminClosed bool      `json:"is_admin_closed"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Admin 为管理员账号，以 email 为主键。
type Admin struct {
	UserID      string    `json:"user_id"`
	FullName    string    `json:"full_name"`
	Email       string    `json:"email"`
	Password    string    `json:"password"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	Logo        string    `json:"logo,omitempty"`
	Role        string    `json:"role"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PremiumPricesKey 为价格配置的固定键。
const PremiumPricesKey = "premium_prices"

// PremiumPrices 为会员价格配置。
type PremiumPrices struct {
	ID        string    `json:"id"`
	Gold      float64   `json:"gold"`
	Platinum  float64   `json:"platinum"`
	Silver    float64   `json:"silver"`
	UpdatedAt time.Time `json:"updated_at"`
}
