// Package accounts 管理三类账号的注册、登录、资料更新与验证码流程。
package accounts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"jobboard/internal/apperr"
	"jobboard/internal/model"
	"jobboard/internal/notifier"
	"jobboard/internal/otp"
	"jobboard/internal/storage"
)

// Store 为账号服务所需的存储能力，账号以 email 为键。
type Store interface {
	Get(ctx context.Context, collection, key string) (storage.Record, error)
	PutIfAbsent(ctx context.Context, collection, key string, rec storage.Record) error
	UpdateFields(ctx context.Context, collection, key string, fields storage.Record, conds ...storage.Condition) (storage.Record, error)
}

// Uploader 保存附件并返回公开 URL。
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, r io.Reader, size int64) (string, error)
}

// Config 为认证配置。
type Config struct {
	JWTSecret  string `yaml:"jwt_secret" json:"jwt_secret"`
	TokenTTL   string `yaml:"token_ttl" json:"token_ttl"`
	BcryptCost int    `yaml:"bcrypt_cost" json:"bcrypt_cost"`
	CodeTTL    string `yaml:"code_ttl" json:"code_ttl"`
}

// RegisterRequest 为注册输入，招聘方使用公司相关字段。
type RegisterRequest struct {
	FullName       string `json:"full_name"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	PhoneNumber    string `json:"phone_number"`
	CompanyName    string `json:"company_name"`
	CompanyWebsite string `json:"company_website"`
	Industry       string `json:"industry"`
	CompanySize    string `json:"company_size"`
	Location       string `json:"location"`
	Description    string `json:"description"`
}

// LoginResult 为登录结果，User 不含密码哈希。
type LoginResult struct {
	Token string         `json:"token"`
	User  storage.Record `json:"user"`
}

// Attachment 为资料更新时上传的文件。
type Attachment struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// 资料更新不能改写的字段。
var protectedFields = map[string]bool{
	"password":         true,
	"email":            true,
	"role":             true,
	"user_id":          true,
	"employer_id":      true,
	"hasadminapproved": true,
	"is_admin_closed":  true,
	"premium_user":     true,
	"plan":             true,
	"created_at":       true,
}

// Service 为账号服务。
type Service struct {
	store    Store
	cols     storage.Collections
	codes    otp.Store
	mailer   notifier.Sender
	uploader Uploader
	logger   *slog.Logger

	secret   []byte
	tokenTTL time.Duration
	codeTTL  time.Duration
	cost     int

	now     func() time.Time
	newID   func() string
	newCode func() (string, error)
}

// NewService 创建服务。uploader 可为 nil，此时带附件的资料更新失败。
func NewService(store Store, cols storage.Collections, codes otp.Store, mailer notifier.Sender, uploader Uploader, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		store:    store,
		cols:     cols.WithDefaults(),
		codes:    codes,
		mailer:   mailer,
		uploader: uploader,
		logger:   logger,
		secret:   []byte(cfg.JWTSecret),
		tokenTTL: parseTTL(cfg.TokenTTL, 24*time.Hour),
		codeTTL:  parseTTL(cfg.CodeTTL, 5*time.Minute),
		cost:     cost,
		now:      time.Now,
		newID:    uuid.NewString,
		newCode:  generateCode,
	}
}

func (s *Service) collection(role model.Role) string {
	switch role {
	case model.RoleRecruiter:
		return s.cols.Employers
	case model.RoleAdmin:
		return s.cols.Admins
	default:
		return s.cols.Students
	}
}

func idField(role model.Role) string {
	if role == model.RoleRecruiter {
		return "employer_id"
	}
	return "user_id"
}

// Register 创建账号，email 已存在时返回 ErrAlreadyRegistered。
func (s *Service) Register(ctx context.Context, role model.Role, req RegisterRequest) (string, error) {
	req.Email = strings.TrimSpace(req.Email)
	if req.FullName == "" || req.Email == "" || req.Password == "" {
		return "", apperr.ErrMissingField.With("full_name, email, and password are required")
	}
	if role == model.RoleRecruiter && req.CompanyName == "" {
		return "", apperr.ErrMissingField.With("company_name is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return "", apperr.Dependency("registration failed", err)
	}

	now := s.now().UTC()
	id := s.newID()
	var account any
	switch role {
	case model.RoleRecruiter:
		account = model.Employer{
			EmployerID:       id,
			FullName:         req.FullName,
			Email:            req.Email,
			Password:         string(hash),
			PhoneNumber:      req.PhoneNumber,
			CompanyName:      req.CompanyName,
			CompanyWebsite:   nullable(req.CompanyWebsite),
			Industry:         nullable(req.Industry),
			CompanySize:      nullable(req.CompanySize),
			Location:         nullable(req.Location),
			Description:      nullable(req.Description),
			Status:           "Active",
			Role:             string(role),
			HasAdminApproved: false,
			IsAdminClosed:    false,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
	case model.RoleAdmin:
		account = model.Admin{
			UserID:      id,
			FullName:    req.FullName,
			Email:       req.Email,
			Password:    string(hash),
			PhoneNumber: req.PhoneNumber,
			Role:        string(role),
			Status:      "Active",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	default:
		account = model.Student{
			UserID:      id,
			FullName:    req.FullName,
			Email:       req.Email,
			Password:    string(hash),
			PhoneNumber: req.PhoneNumber,
			Role:        string(model.RoleStudent),
			Status:      "Active",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}

	rec, err := storage.Encode(account)
	if err != nil {
		return "", apperr.Dependency("registration failed", err)
	}
	coll := s.collection(role)
	err = s.store.PutIfAbsent(ctx, coll, req.Email, rec)
	if errors.Is(err, storage.ErrAlreadyExists) {
		return "", apperr.ErrAlreadyRegistered
	}
	if err != nil {
		s.logger.Error("register account", "collection", coll, "email", req.Email, "error", err)
		return "", apperr.Dependency("registration failed", err)
	}
	return id, nil
}

// Login 校验密码并签发令牌。被管理员封禁的账号在比对密码前即被拒绝。
func (s *Service) Login(ctx context.Context, role model.Role, email, password string) (LoginResult, error) {
	if email == "" || password == "" {
		return LoginResult{}, apperr.ErrMissingField.With("email and password are required")
	}
	rec, err := s.lookup(ctx, role, email)
	if err != nil {
		return LoginResult{}, err
	}
	if closed, _ := rec["is_admin_closed"].(bool); closed {
		return LoginResult{}, apperr.ErrAccountBlocked
	}
	hash, _ := rec["password"].(string)
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return LoginResult{}, apperr.ErrInvalidCredentials
	}

	id, _ := rec[idField(role)].(string)
	token, err := s.issueToken(id, role)
	if err != nil {
		return LoginResult{}, apperr.Dependency("login failed", err)
	}
	return LoginResult{Token: token, User: withoutPassword(rec)}, nil
}

// UpdateProfile 合并可改字段；附件上传后以 URL 写入对应字段。
func (s *Service) UpdateProfile(ctx context.Context, role model.Role, email string, fields map[string]any, att *Attachment) (storage.Record, error) {
	if email == "" {
		return nil, apperr.ErrMissingField.With("email is required")
	}
	patch := storage.Record{}
	for k, v := range fields {
		if protectedFields[k] {
			continue
		}
		patch[k] = v
	}
	if len(patch) == 0 && att == nil {
		return nil, apperr.ErrInvalidInput.With("no data provided to update")
	}

	if _, err := s.lookup(ctx, role, email); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if att != nil {
		url, err := s.upload(ctx, role, email, att, now)
		if err != nil {
			return nil, err
		}
		patch[attachmentField(role)] = url
	}
	patch["updated_at"] = now

	coll := s.collection(role)
	rec, err := s.store.UpdateFields(ctx, coll, email, patch)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.ErrAccountNotFound
	}
	if err != nil {
		s.logger.Error("update profile", "collection", coll, "email", email, "error", err)
		return nil, apperr.Dependency("failed to update profile", err)
	}
	return withoutPassword(rec), nil
}

func (s *Service) upload(ctx context.Context, role model.Role, email string, att *Attachment, now time.Time) (string, error) {
	if s.uploader == nil {
		return "", apperr.Dependency("file upload failed", fmt.Errorf("blob store not configured"))
	}
	key := fmt.Sprintf("%s/%s_%d%s", attachmentPrefix(role), email, now.UnixMilli(), filepath.Ext(att.Filename))
	url, err := s.uploader.Upload(ctx, key, att.ContentType, att.Body, att.Size)
	if err != nil {
		s.logger.Error("upload attachment", "key", key, "error", err)
		return "", apperr.Dependency("file upload failed", err)
	}
	return url, nil
}

func attachmentField(role model.Role) string {
	switch role {
	case model.RoleRecruiter:
		return "kycDocUrl"
	case model.RoleAdmin:
		return "logo"
	default:
		return "resumeUrl"
	}
}

func attachmentPrefix(role model.Role) string {
	switch role {
	case model.RoleRecruiter:
		return "kyc"
	case model.RoleAdmin:
		return "logos"
	default:
		return "resumes"
	}
}

func (s *Service) lookup(ctx context.Context, role model.Role, email string) (storage.Record, error) {
	coll := s.collection(role)
	rec, err := s.store.Get(ctx, coll, email)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.ErrAccountNotFound
	}
	if err != nil {
		s.logger.Error("lookup account", "collection", coll, "email", email, "error", err)
		return nil, apperr.Dependency("failed to fetch account", err)
	}
	return rec, nil
}

func withoutPassword(rec storage.Record) storage.Record {
	out := make(storage.Record, len(rec))
	for k, v := range rec {
		if k == "password" {
			continue
		}
		out[k] = v
	}
	return out
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
