package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"jobboard/internal/apperr"
	"jobboard/internal/storage"
)

func newTestService(t *testing.T) (*Service, *storage.Store) {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "moderation.db"))
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	if err := store.Put(ctx, "employers", "hr@corp.example", storage.Record{
		"employer_id": "e1", "email": "hr@corp.example", "hasadminapproved": false, "is_admin_closed": false,
	}); err != nil {
		t.Fatalf("seed employer: %v", err)
	}
	if err := store.Put(ctx, "students", "s1@uni.example", storage.Record{
		"user_id": "s1", "email": "s1@uni.example", "premium_user": false,
	}); err != nil {
		t.Fatalf("seed student: %v", err)
	}
	return NewService(store, storage.Collections{}, nil), store
}

func TestApproveRecruiter(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	ctx := context.Background()

	emp, err := svc.ApproveRecruiter(ctx, "hr@corp.example")
	if err != nil {
		t.Fatalf("ApproveRecruiter error: %v", err)
	}
	if !emp.HasAdminApproved || emp.EmployerID != "e1" {
		t.Fatalf("unexpected employer %+v", emp)
	}
	rec, _ := store.Get(ctx, "employers", "hr@corp.example")
	if rec["hasadminapproved"] != true {
		t.Fatalf("expected approval persisted, got %v", rec["hasadminapproved"])
	}

	if _, err := svc.ApproveRecruiter(ctx, "ghost@corp.example"); !errors.Is(err, apperr.ErrRecruiterNotFound) {
		t.Fatalf("expected ErrRecruiterNotFound, got %v", err)
	}
	// 不存在的账号不应被创建。
	if _, err := store.Get(ctx, "employers", "ghost@corp.example"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected no phantom employer, got %v", err)
	}
	if _, err := svc.ApproveRecruiter(ctx, ""); !errors.Is(err, apperr.ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}

func TestBlockAccounts(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	st, err := svc.BlockStudent(ctx, "s1@uni.example")
	if err != nil || !st.IsAdminClosed {
		t.Fatalf("expected student blocked, got %+v, %v", st, err)
	}
	emp, err := svc.BlockEmployer(ctx, "hr@corp.example")
	if err != nil || !emp.IsAdminClosed {
		t.Fatalf("expected employer blocked, got %+v, %v", emp, err)
	}
	if _, err := svc.BlockStudent(ctx, "hr@corp.example"); !errors.Is(err, apperr.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound for wrong role, got %v", err)
	}
}

func TestMarkStudentPremium(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.MarkStudentPremium(ctx, "s1@uni.example", true, ""); !errors.Is(err, apperr.ErrMissingField) {
		t.Fatalf("expected plan required, got %v", err)
	}
	st, err := svc.MarkStudentPremium(ctx, "s1@uni.example", true, "gold")
	if err != nil {
		t.Fatalf("MarkStudentPremium error: %v", err)
	}
	if !st.PremiumUser || st.Plan != "gold" {
		t.Fatalf("unexpected student %+v", st)
	}
	if _, err := svc.MarkStudentPremium(ctx, "s1@uni.example", false, ""); err != nil {
		t.Fatalf("expected revoke without plan, got %v", err)
	}
	if _, err := svc.MarkStudentPremium(ctx, "nobody@uni.example", false, ""); !errors.Is(err, apperr.ErrStudentNotFound) {
		t.Fatalf("expected ErrStudentNotFound, got %v", err)
	}
}

func TestPremiumPrices(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.PremiumPrices(ctx); !errors.Is(err, apperr.ErrPricesNotFound) {
		t.Fatalf("expected ErrPricesNotFound, got %v", err)
	}
	if _, err := svc.UpdatePremiumPrices(ctx, 10.0, nil, 5.0); !errors.Is(err, apperr.ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
	if _, err := svc.UpdatePremiumPrices(ctx, 10.0, "lots", 5.0); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.UpdatePremiumPrices(ctx, 10.0, true, 5.0); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected bool rejected, got %v", err)
	}
	for _, v := range []any{"NaN", "Inf", "-Infinity", math.Inf(1), math.NaN(), json.Number("1e400")} {
		if _, err := svc.UpdatePremiumPrices(ctx, 10.0, v, 5.0); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Fatalf("expected non-finite %v rejected, got %v", v, err)
		}
	}

	if _, err := svc.UpdatePremiumPrices(ctx, 499.0, json.Number("999"), " 199.5 "); err != nil {
		t.Fatalf("UpdatePremiumPrices error: %v", err)
	}
	got, err := svc.PremiumPrices(ctx)
	if err != nil {
		t.Fatalf("PremiumPrices error: %v", err)
	}
	if got.Gold != 499 || got.Platinum != 999 || got.Silver != 199.5 {
		t.Fatalf("unexpected prices %+v", got)
	}

	// 再次写入覆盖旧值。
	if _, err := svc.UpdatePremiumPrices(ctx, 1.0, 2.0, 3.0); err != nil {
		t.Fatalf("second update error: %v", err)
	}
	got, _ = svc.PremiumPrices(ctx)
	if got.Gold != 1 || got.ID != "premium_prices" {
		t.Fatalf("expected overwritten prices, got %+v", got)
	}
}
