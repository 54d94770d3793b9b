package accounts

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"

	"jobboard/internal/apperr"
	"jobboard/internal/model"
	"jobboard/internal/notifier"
	"jobboard/internal/otp"
	"jobboard/internal/storage"
)

func resetKey(role model.Role, email string) string {
	return string(role) + ":" + email
}

func registrationKey(role model.Role, email string) string {
	return "reg:" + string(role) + ":" + email
}

// SendResetCode 为已存在的账号生成重置密码验证码并发送邮件。
func (s *Service) SendResetCode(ctx context.Context, role model.Role, email string) error {
	if email == "" {
		return apperr.ErrMissingField.With("email and role are required")
	}
	if _, err := s.lookup(ctx, role, email); err != nil {
		return err
	}
	code, err := s.storeCode(ctx, resetKey(role, email))
	if err != nil {
		return err
	}
	minutes := int(s.codeTTL.Minutes())
	return s.mail(ctx, notifier.Message{
		To:      email,
		Subject: "Password Reset OTP",
		Text:    fmt.Sprintf("Your OTP for password reset is: %s. It is valid for %d minutes.", code, minutes),
		HTML:    fmt.Sprintf("<p>Your OTP for password reset is: <b>%s</b>. It is valid for %d minutes.</p>", code, minutes),
	})
}

// VerifyResetCode 校验重置码，校验成功不消耗验证码。
func (s *Service) VerifyResetCode(ctx context.Context, role model.Role, email, code string) error {
	if email == "" || code == "" {
		return apperr.ErrMissingField.With("email, role, and OTP required")
	}
	return s.checkCode(ctx, resetKey(role, email), code)
}

// ResetPassword 校验验证码后写入新密码哈希，并删除验证码。
func (s *Service) ResetPassword(ctx context.Context, role model.Role, email, code, newPassword string) error {
	if email == "" || code == "" || newPassword == "" {
		return apperr.ErrMissingField.With("email, role, OTP, and new password required")
	}
	key := resetKey(role, email)
	if err := s.checkCode(ctx, key, code); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return apperr.Dependency("failed to reset password", err)
	}
	coll := s.collection(role)
	_, err = s.store.UpdateFields(ctx, coll, email, storage.Record{
		"password":   string(hash),
		"updated_at": s.now().UTC(),
	})
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.ErrAccountNotFound
	}
	if err != nil {
		s.logger.Error("reset password", "collection", coll, "email", email, "error", err)
		return apperr.Dependency("failed to reset password", err)
	}

	if err := s.codes.Delete(ctx, key); err != nil {
		s.logger.Warn("delete used code", "key", key, "error", err)
	}
	return nil
}

// SendRegistrationCode 为尚未注册的 email 发送注册验证码。
func (s *Service) SendRegistrationCode(ctx context.Context, role model.Role, email string) error {
	if email == "" {
		return apperr.ErrMissingField.With("email and role are required")
	}
	_, err := s.lookup(ctx, role, email)
	if err == nil {
		return apperr.ErrAlreadyRegistered.With("user already exists")
	}
	if !errors.Is(err, apperr.ErrAccountNotFound) {
		return err
	}
	code, err := s.storeCode(ctx, registrationKey(role, email))
	if err != nil {
		return err
	}
	return s.mail(ctx, notifier.Message{
		To:      email,
		Subject: "Registration OTP",
		Text:    fmt.Sprintf("Your OTP is %s.", code),
	})
}

// VerifyRegistrationCode 校验注册验证码。
func (s *Service) VerifyRegistrationCode(ctx context.Context, role model.Role, email, code string) error {
	if email == "" || code == "" {
		return apperr.ErrMissingField.With("email, role, and OTP required")
	}
	return s.checkCode(ctx, registrationKey(role, email), code)
}

func (s *Service) storeCode(ctx context.Context, key string) (string, error) {
	code, err := s.newCode()
	if err != nil {
		return "", apperr.Dependency("failed to send OTP", err)
	}
	if err := s.codes.Set(ctx, key, code, s.codeTTL); err != nil {
		s.logger.Error("store code", "key", key, "error", err)
		return "", apperr.Dependency("failed to send OTP", err)
	}
	return code, nil
}

func (s *Service) checkCode(ctx context.Context, key, code string) error {
	stored, err := s.codes.Get(ctx, key)
	if errors.Is(err, otp.ErrNotFound) {
		return apperr.ErrCodeExpired
	}
	if err != nil {
		s.logger.Error("load code", "key", key, "error", err)
		return apperr.Dependency("failed to verify OTP", err)
	}
	if stored != code {
		return apperr.ErrInvalidCode
	}
	return nil
}

func (s *Service) mail(ctx context.Context, msg notifier.Message) error {
	if s.mailer == nil {
		return apperr.Dependency("failed to send OTP", fmt.Errorf("mailer not configured"))
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Error("send code email", "to", msg.To, "subject", msg.Subject, "error", err)
		return apperr.Dependency("failed to send OTP", err)
	}
	return nil
}

// generateCode 生成 6 位数字验证码。
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
