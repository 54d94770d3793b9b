package notifier

import (
	"context"
	"log/slog"
)

// LogNotifier 仅记录邮件内容，适合开发阶段使用。
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier 创建日志通知器，未提供 logger 时使用 slog.Default()。
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify")}
}

func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.logger.Info("email", "to", msg.To, "subject", msg.Subject)
	return nil
}
