// Package moderation 提供管理员审核操作：批准招聘方、封禁账号、会员标记与价格配置。
package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"jobboard/internal/apperr"
	"jobboard/internal/model"
	"jobboard/internal/storage"
)

// Store 为审核操作所需的存储能力。
type Store interface {
	Get(ctx context.Context, collection, key string) (storage.Record, error)
	Put(ctx context.Context, collection, key string, rec storage.Record) error
	UpdateFields(ctx context.Context, collection, key string, fields storage.Record, conds ...storage.Condition) (storage.Record, error)
}

// Service 为管理端审核网关。账号均以 email 为键，不存在时不会新建。
type Service struct {
	store  Store
	cols   storage.Collections
	logger *slog.Logger
	now    func() time.Time
}

// NewService 创建服务。
func NewService(store Store, cols storage.Collections, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cols: cols.WithDefaults(), logger: logger, now: time.Now}
}

// ApproveRecruiter 批准招聘方发布职位。
func (s *Service) ApproveRecruiter(ctx context.Context, email string) (model.Employer, error) {
	var emp model.Employer
	err := s.setFlags(ctx, s.cols.Employers, email, storage.Record{"hasadminapproved": true}, apperr.ErrRecruiterNotFound, &emp)
	return emp, err
}

// BlockStudent 封禁学生账号，之后登录将被拒绝。
func (s *Service) BlockStudent(ctx context.Context, email string) (model.Student, error) {
	var st model.Student
	err := s.setFlags(ctx, s.cols.Students, email, storage.Record{"is_admin_closed": true}, apperr.ErrAccountNotFound, &st)
	return st, err
}

// BlockEmployer 封禁招聘方账号，之后登录将被拒绝。
func (s *Service) BlockEmployer(ctx context.Context, email string) (model.Employer, error) {
	var emp model.Employer
	err := s.setFlags(ctx, s.cols.Employers, email, storage.Record{"is_admin_closed": true}, apperr.ErrAccountNotFound, &emp)
	return emp, err
}

// MarkStudentPremium 设置学生会员状态与套餐，开通时 plan 必填。
func (s *Service) MarkStudentPremium(ctx context.Context, email string, isPremium bool, plan string) (model.Student, error) {
	if isPremium && strings.TrimSpace(plan) == "" {
		return model.Student{}, apperr.ErrMissingField.With("plan is required when marking a student premium")
	}
	var st model.Student
	fields := storage.Record{"premium_user": isPremium, "plan": plan}
	err := s.setFlags(ctx, s.cols.Students, email, fields, apperr.ErrStudentNotFound, &st)
	return st, err
}

// UpdatePremiumPrices 覆盖写入固定键的价格配置。值可为数字或数字字符串。
func (s *Service) UpdatePremiumPrices(ctx context.Context, gold, platinum, silver any) (model.PremiumPrices, error) {
	if gold == nil || platinum == nil || silver == nil {
		return model.PremiumPrices{}, apperr.ErrMissingField.With("gold, platinum, and silver prices are required")
	}
	var vals [3]float64
	for i, raw := range []any{gold, platinum, silver} {
		v, ok := toNumber(raw)
		if !ok {
			return model.PremiumPrices{}, apperr.ErrInvalidInput.With("all prices must be valid numbers")
		}
		vals[i] = v
	}

	prices := model.PremiumPrices{
		ID:        model.PremiumPricesKey,
		Gold:      vals[0],
		Platinum:  vals[1],
		Silver:    vals[2],
		UpdatedAt: s.now().UTC(),
	}
	rec, err := storage.Encode(prices)
	if err != nil {
		return model.PremiumPrices{}, apperr.Dependency("failed to update premium prices", err)
	}
	if err := s.store.Put(ctx, s.cols.Settings, model.PremiumPricesKey, rec); err != nil {
		s.logger.Error("update premium prices", "collection", s.cols.Settings, "error", err)
		return model.PremiumPrices{}, apperr.Dependency("failed to update premium prices", err)
	}
	return prices, nil
}

// PremiumPrices 读取价格配置。
func (s *Service) PremiumPrices(ctx context.Context) (model.PremiumPrices, error) {
	rec, err := s.store.Get(ctx, s.cols.Settings, model.PremiumPricesKey)
	if errors.Is(err, storage.ErrNotFound) {
		return model.PremiumPrices{}, apperr.ErrPricesNotFound
	}
	if err != nil {
		return model.PremiumPrices{}, apperr.Dependency("failed to fetch premium prices", err)
	}
	var prices model.PremiumPrices
	if err := storage.Decode(rec, &prices); err != nil {
		return model.PremiumPrices{}, apperr.Dependency("failed to fetch premium prices", err)
	}
	return prices, nil
}

func (s *Service) setFlags(ctx context.Context, collection, email string, fields storage.Record, notFound *apperr.Error, out any) error {
	if strings.TrimSpace(email) == "" {
		return apperr.ErrMissingField.With("email is required")
	}
	fields["updated_at"] = s.now().UTC()

	rec, err := s.store.UpdateFields(ctx, collection, email, fields)
	if errors.Is(err, storage.ErrNotFound) {
		return notFound
	}
	if err != nil {
		s.logger.Error("moderation update", "collection", collection, "email", email, "error", err)
		return apperr.Dependency("failed to update account", err)
	}
	if err := storage.Decode(rec, out); err != nil {
		return apperr.Dependency("failed to update account", err)
	}
	return nil
}

// toNumber 接受 JSON 数字或数字字符串，NaN 与无穷大视为非法。
func toNumber(v any) (float64, bool) {
	var (
		f   float64
		err error
	)
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case json.Number:
		f, err = n.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
