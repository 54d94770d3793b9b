package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"jobboard/internal/accounts"
	"jobboard/internal/blob"
	"jobboard/internal/jobs"
	"jobboard/internal/notifier"
	"jobboard/internal/scheduler"
	"jobboard/internal/storage"
)

// AppConfig 应用配置。
type AppConfig struct {
	Server      ServerConfig         `yaml:"server"`
	Log         LogConfig            `yaml:"log"`
	Database    storage.Config       `yaml:"database"`
	Collections storage.Collections  `yaml:"collections"`
	Jobs        jobs.Config          `yaml:"jobs"`
	Email       notifier.EmailConfig `yaml:"email"`
	Notify      NotifyConfig         `yaml:"notify"`
	Auth        accounts.Config      `yaml:"auth"`
	OTP         OTPConfig            `yaml:"otp"`
	Blob        blob.Config          `yaml:"blob"`
	Events      EventsConfig         `yaml:"events"`
	Scheduler   scheduler.Config     `yaml:"scheduler"`
}

type ServerConfig struct {
	Addr            string `yaml:"addr"`
	RequestTimeout  string `yaml:"request_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64  `yaml:"max_upload_bytes"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NotifyConfig 控制群发通知的后台执行。
type NotifyConfig struct {
	Workers     int    `yaml:"workers"`
	QueueSize   int    `yaml:"queue_size"`
	Concurrency int    `yaml:"concurrency"`
	Timeout     string `yaml:"timeout"`
}

// OTPConfig 中 Driver 为 redis 或 memory。
type OTPConfig struct {
	Driver   string `yaml:"driver"`
	RedisURL string `yaml:"redis_url"`
	Prefix   string `yaml:"prefix"`
}

// EventsConfig 中 Driver 为 none、redis 或 rabbitmq。
type EventsConfig struct {
	Driver   string `yaml:"driver"`
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
	Prefix   string `yaml:"prefix"`
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

type runner interface {
	Start(ctx context.Context) error
	RunOnce(ctx context.Context) (int, error)
}

func main() {
	sweepOnce := flag.Bool("sweep-once", false, "close expired jobs once and exit")
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *sweepOnce {
		closed, err := runOnceManual(ctx, cfg, buildDeps)
		if err != nil {
			slog.Error("manual sweep", "error", err)
			os.Exit(1)
		}
		slog.Info("manual sweep finished", "closed", closed)
		return
	}

	deps, cleanup, err := buildDeps(cfg)
	if err != nil {
		slog.Error("init dependencies", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	addr := cfg.Server.Addr
	if addr == "" {
		addr = ":8080"
	}
	handler := deps.handler
	if d := parseDuration(cfg.Server.RequestTimeout, 0); d > 0 {
		handler = http.TimeoutHandler(handler, d, `{"error":"request timeout"}`)
	}
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	slog.Info("listening", "addr", addr)
	if err := runServer(ctx, srv, deps.sched, parseDuration(cfg.Server.ShutdownTimeout, 5*time.Second)); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// runServer 运行 HTTP 服务与调度器，上下文取消后优雅关闭。
func runServer(ctx context.Context, srv httpServer, sched runner, shutdownTimeout time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if sched == nil {
			return
		}
		if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("scheduler stopped", "error", err)
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		cancel()
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("shutdown: %w", err)
	}
	<-schedDone
	return runErr
}

// runOnceManual 构建依赖后执行一次截止日期清扫。
func runOnceManual(ctx context.Context, cfg AppConfig, build func(AppConfig) (appDeps, func(), error)) (int, error) {
	deps, cleanup, err := build(cfg)
	if err != nil {
		return 0, fmt.Errorf("build deps: %w", err)
	}
	defer cleanup()
	if deps.sched == nil {
		return 0, fmt.Errorf("scheduler not configured")
	}
	return deps.sched.RunOnce(ctx)
}

func loadConfig() (AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return AppConfig{}, fmt.Errorf("load .env: %w", err)
	}
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return AppConfig{}, err
	}
	cfg, err := parseConfig(data)
	if err != nil {
		return AppConfig{}, err
	}
	applyEnv(&cfg, os.Getenv)
	return cfg, nil
}

func parseConfig(data []byte) (AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.Collections = cfg.Collections.WithDefaults()
	return cfg, nil
}

// applyEnv 用环境变量覆盖敏感配置。
func applyEnv(cfg *AppConfig, getenv func(string) string) {
	overrides := []struct {
		key string
		dst *string
	}{
		{"JOBBOARD_DB_DSN", &cfg.Database.DSN},
		{"JOBBOARD_JWT_SECRET", &cfg.Auth.JWTSecret},
		{"JOBBOARD_SMTP_PASSWORD", &cfg.Email.Password},
		{"JOBBOARD_REDIS_URL", &cfg.OTP.RedisURL},
		{"JOBBOARD_RABBITMQ_URL", &cfg.Events.URL},
		{"JOBBOARD_S3_SECRET_KEY", &cfg.Blob.SecretKey},
	}
	for _, o := range overrides {
		if v := getenv(o.key); v != "" {
			*o.dst = v
		}
	}
}

func newLogger(cfg LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func parseDuration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
