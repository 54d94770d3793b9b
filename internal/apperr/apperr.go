// Package apperr 定义业务错误分类，供服务层返回、传输层映射状态码。
package apperr

import (
	"errors"
	"fmt"
)

// Kind 为错误类别。
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindAuthorization Kind = "authorization"
	KindDependency    Kind = "dependency"
)

// Error 为带类别与错误码的业务错误。
// errors.Is 只比较 Code，因此 With 生成的副本仍能匹配原哨兵。
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// With 返回替换了提示信息的副本。
func (e *Error) With(msg string) *Error {
	cp := *e
	cp.Msg = msg
	return &cp
}

// Withf 同 With，支持格式化。
func (e *Error) Withf(format string, args ...any) *Error {
	return e.With(fmt.Sprintf(format, args...))
}

var (
	ErrMissingField    = &Error{Kind: KindValidation, Code: "missing_field", Msg: "required fields missing"}
	ErrInvalidCategory = &Error{Kind: KindValidation, Code: "invalid_category", Msg: "invalid category, must be 'job' or 'government'"}
	ErrInvalidInput    = &Error{Kind: KindValidation, Code: "invalid_input", Msg: "invalid input"}
	ErrInvalidCode     = &Error{Kind: KindValidation, Code: "invalid_code", Msg: "invalid OTP"}
	ErrCodeExpired     = &Error{Kind: KindValidation, Code: "code_expired", Msg: "OTP not found or expired"}

	ErrJobNotFound         = &Error{Kind: KindNotFound, Code: "job_not_found", Msg: "job not found"}
	ErrEmployerNotFound    = &Error{Kind: KindNotFound, Code: "employer_not_found", Msg: "employer not found"}
	ErrStudentNotFound     = &Error{Kind: KindNotFound, Code: "student_not_found", Msg: "student not found"}
	ErrRecruiterNotFound   = &Error{Kind: KindNotFound, Code: "recruiter_not_found", Msg: "recruiter not found"}
	ErrAccountNotFound     = &Error{Kind: KindNotFound, Code: "account_not_found", Msg: "account not found"}
	ErrApplicationNotFound = &Error{Kind: KindNotFound, Code: "application_not_found", Msg: "application not found"}
	ErrPricesNotFound      = &Error{Kind: KindNotFound, Code: "prices_not_found", Msg: "premium prices not configured"}

	ErrDuplicateApplication = &Error{Kind: KindConflict, Code: "duplicate_application", Msg: "you have already applied for this job"}
	ErrAlreadyRegistered    = &Error{Kind: KindConflict, Code: "already_registered", Msg: "account already registered"}

	ErrEmployerNotApproved = &Error{Kind: KindAuthorization, Code: "employer_not_approved", Msg: "your recruiter account is not approved by admin, you cannot post jobs"}
	ErrForbidden           = &Error{Kind: KindAuthorization, Code: "forbidden", Msg: "unauthorized: owner mismatch"}
	ErrAccountBlocked      = &Error{Kind: KindAuthorization, Code: "account_blocked", Msg: "account has been blocked by admin"}
	ErrInvalidCredentials  = &Error{Kind: KindAuthorization, Code: "invalid_credentials", Msg: "invalid credentials"}
)

// Dependency 包装存储或外部依赖失败，对外只暴露操作名。
func Dependency(op string, err error) error {
	return &Error{Kind: KindDependency, Code: "dependency", Msg: op, Err: err}
}

// KindOf 返回错误类别，非业务错误视为依赖错误。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindDependency
}

// Message 返回可展示给调用方的信息，依赖错误只给出操作名，不带底层原因。
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "internal server error"
}
