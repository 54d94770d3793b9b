package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"jobboard/internal/accounts"
	"jobboard/internal/api"
	"jobboard/internal/applications"
	"jobboard/internal/blob"
	"jobboard/internal/jobs"
	"jobboard/internal/moderation"
	"jobboard/internal/notifier"
	"jobboard/internal/otp"
	"jobboard/internal/queue"
	"jobboard/internal/scheduler"
	"jobboard/internal/storage"
	"jobboard/internal/tasks"
)

type appDeps struct {
	handler http.Handler
	sched   runner
}

// buildDeps 按配置装配全部组件，返回的 cleanup 逆序释放资源。
func buildDeps(cfg AppConfig) (appDeps, func(), error) {
	logger := slog.Default()
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (appDeps, func(), error) {
		cleanup()
		return appDeps{}, func() {}, err
	}

	cols := cfg.Collections.WithDefaults()

	store, err := storage.Open(cfg.Database)
	if err != nil {
		return fail(fmt.Errorf("init store: %w", err))
	}
	closers = append(closers, func() { _ = store.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var rdb *redis.Client
	redisClient := func(url string) (*redis.Client, error) {
		if rdb != nil {
			return rdb, nil
		}
		c, err := otp.NewRedisClient(ctx, url)
		if err != nil {
			return nil, err
		}
		rdb = c
		closers = append(closers, func() { _ = c.Close() })
		return c, nil
	}

	var publisher tasks.Publisher
	switch strings.ToLower(cfg.Events.Driver) {
	case "", "none":
	case "redis":
		c, err := redisClient(firstNonEmpty(cfg.Events.URL, cfg.OTP.RedisURL))
		if err != nil {
			return fail(fmt.Errorf("init redis events: %w", err))
		}
		publisher = tasks.NewRedisPublisher(c, firstNonEmpty(cfg.Events.Prefix, "jobboard:"))
	case "rabbitmq":
		p, err := queue.Dial(cfg.Events.URL, cfg.Events.Exchange)
		if err != nil {
			return fail(fmt.Errorf("init rabbitmq events: %w", err))
		}
		closers = append(closers, func() { _ = p.Close() })
		publisher = p
	default:
		return fail(fmt.Errorf("unsupported events driver %q", cfg.Events.Driver))
	}

	var codes otp.Store
	switch strings.ToLower(cfg.OTP.Driver) {
	case "", "memory":
		codes = otp.NewMemoryStore()
	case "redis":
		c, err := redisClient(cfg.OTP.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("init redis otp: %w", err))
		}
		codes = otp.NewRedisStore(c, firstNonEmpty(cfg.OTP.Prefix, "otp:"))
	default:
		return fail(fmt.Errorf("unsupported otp driver %q", cfg.OTP.Driver))
	}

	var uploader accounts.Uploader
	if cfg.Blob.Endpoint != "" {
		b, err := blob.NewStore(cfg.Blob)
		if err != nil {
			return fail(fmt.Errorf("init blob store: %w", err))
		}
		uploader = b
	} else {
		logger.Warn("blob store disabled: missing endpoint, profile uploads will fail")
	}

	sender := buildSender(cfg.Email, logger)
	exec := notifier.NewExecutor(cfg.Notify.Workers, cfg.Notify.QueueSize, parseDuration(cfg.Notify.Timeout, 5*time.Minute), logger)
	closers = append(closers, exec.Close)
	broadcaster := notifier.NewBroadcaster(store, cols.Students, sender, exec, cfg.Notify.Concurrency, logger)

	coord := tasks.NewCoordinator(store, cols.Tasks, publisher, logger)
	jobSvc := jobs.NewService(store, cols, coord, broadcaster, cfg.Jobs, logger)
	appSvc := applications.NewService(store, cols, jobSvc, coord, logger)
	accSvc := accounts.NewService(store, cols, codes, sender, uploader, cfg.Auth, logger)
	modSvc := moderation.NewService(store, cols, logger)
	sched := scheduler.NewScheduler(jobSvc, cfg.Scheduler, logger)

	if cfg.Auth.JWTSecret == "" {
		logger.Warn("auth jwt secret empty: set JOBBOARD_JWT_SECRET")
	}

	handler := api.NewHandler(api.Deps{
		Jobs:         jobSvc,
		Applications: appSvc,
		Accounts:     accSvc,
		Moderation:   modSvc,
		Scheduler:    sched,
		Logger:       logger,
		MaxUpload:    cfg.Server.MaxUploadBytes,
	})
	return appDeps{handler: handler, sched: sched}, cleanup, nil
}

// buildSender 未配置 SMTP 时退回日志通知。
func buildSender(cfg notifier.EmailConfig, logger *slog.Logger) notifier.Sender {
	if cfg.Host == "" || cfg.Port == 0 || cfg.From == "" {
		logger.Warn("smtp disabled: missing host/port/from, logging emails instead")
		return notifier.NewLogNotifier(logger)
	}
	return notifier.NewSMTPSender(cfg)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
