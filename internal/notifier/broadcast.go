// Package notifier 提供邮件发送、全体学生广播与后台执行器。
package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"jobboard/internal/storage"

	"golang.org/x/sync/errgroup"
)

// StudentSource 定义学生读取接口。
type StudentSource interface {
	ScanFields(ctx context.Context, collection string, fields []string, filters ...storage.Condition) ([]storage.Record, error)
}

// Submitter 为后台执行能力，Executor 实现该接口。
type Submitter interface {
	Submit(name string, fn func(ctx context.Context)) bool
}

// Broadcaster 向所有学生推送邮件，单封失败不影响其余。
type Broadcaster struct {
	store       StudentSource
	collection  string
	sender      Sender
	exec        Submitter
	concurrency int
	logger      *slog.Logger
}

// NewBroadcaster 创建实例；exec 为 nil 时 Announce 同步执行。
func NewBroadcaster(store StudentSource, collection string, sender Sender, exec Submitter, concurrency int, logger *slog.Logger) *Broadcaster {
	if concurrency <= 0 {
		concurrency = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		store:       store,
		collection:  collection,
		sender:      sender,
		exec:        exec,
		concurrency: concurrency,
		logger:      logger,
	}
}

// NotifyAllStudents 并发发送，返回尝试发送的数量。
func (b *Broadcaster) NotifyAllStudents(ctx context.Context, subject, text, html string) (int, error) {
	recs, err := b.store.ScanFields(ctx, b.collection, []string{"email"})
	if err != nil {
		return 0, fmt.Errorf("list students: %w", err)
	}

	var emails []string
	for _, r := range recs {
		email, _ := r["email"].(string)
		if strings.TrimSpace(email) == "" {
			continue
		}
		emails = append(emails, email)
	}

	var failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for _, email := range emails {
		g.Go(func() error {
			msg := Message{To: email, Subject: subject, Text: text, HTML: html}
			if err := b.sender.Send(ctx, msg); err != nil {
				failed.Add(1)
				b.logger.Warn("notify student", "email", email, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	b.logger.Info("notified students", "subject", subject, "attempted", len(emails), "failed", failed.Load())
	return len(emails), nil
}

// Announce 将广播交给后台执行，不阻塞调用方。
func (b *Broadcaster) Announce(subject, text, html string) {
	fn := func(ctx context.Context) {
		if _, err := b.NotifyAllStudents(ctx, subject, text, html); err != nil {
			b.logger.Warn("notify all students", "subject", subject, "error", err)
		}
	}
	if b.exec == nil {
		fn(context.Background())
		return
	}
	b.exec.Submit("notify-all-students", fn)
}
