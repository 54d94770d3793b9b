package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// Config 用于调度配置。Interval 可以是 Go duration（如 1h）或 cron 表达式（如 0 * * * *、@daily）。
type Config struct {
	Interval string `yaml:"interval" json:"interval"`
	Timeout  string `yaml:"timeout" json:"timeout"`
}

// Sweeper 关闭截止日期已过的职位。
type Sweeper interface {
	CloseExpired(ctx context.Context, now time.Time) (int, error)
}

// Scheduler 周期性执行截止日期清扫。
type Scheduler struct {
	sweeper   Sweeper
	logger    *slog.Logger
	interval  time.Duration
	cronSpec  string
	cron      cron.Schedule
	timeout   time.Duration
	running   atomic.Bool
	newTicker func(time.Duration) ticker
	now       func() time.Time
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewScheduler 创建 Scheduler，解析配置的间隔与超时。
func NewScheduler(sw Sweeper, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	interval, spec, schedule := parseSchedule(cfg.Interval)
	timeout := 30 * time.Second
	if cfg.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Timeout); err == nil && d > 0 {
			timeout = d
		}
	}

	return &Scheduler{
		sweeper:   sw,
		logger:    logger,
		interval:  interval,
		cronSpec:  spec,
		cron:      schedule,
		timeout:   timeout,
		newTicker: defaultTicker,
		now:       time.Now,
	}
}

// Start 启动调度循环，直到上下文取消。单次清扫失败只记录日志。
func (s *Scheduler) Start(ctx context.Context) error {
	if s.sweeper == nil {
		return fmt.Errorf("scheduler missing sweeper")
	}

	g, ctx := errgroup.WithContext(ctx)

	if s.cron != nil {
		s.logger.Info("deadline sweep scheduled", "cron", s.cronSpec)
		g.Go(func() error {
			return s.startCron(ctx)
		})
	} else {
		s.logger.Info("deadline sweep scheduled", "interval", s.interval)
		tick := s.newTicker(s.interval)
		ch := tick.C()

		g.Go(func() error {
			defer tick.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ch:
					s.runLogged(ctx)
				drain:
					for {
						select {
						case <-ch:
							continue
						default:
							break drain
						}
					}
				}
			}
		})
	}

	return g.Wait()
}

// RunOnce 对外暴露单次清扫接口，便于手动触发。
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	return s.runOnce(ctx)
}

func (s *Scheduler) runLogged(ctx context.Context) {
	closed, err := s.runOnce(ctx)
	if err != nil {
		s.logger.Warn("deadline sweep failed", "error", err)
		return
	}
	if closed > 0 {
		s.logger.Info("deadline sweep closed jobs", "closed", closed)
	}
}

func (s *Scheduler) runOnce(ctx context.Context) (int, error) {
	if s.running.Swap(true) {
		return 0, nil
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	closed, err := s.sweeper.CloseExpired(ctx, s.now())
	if err != nil {
		return closed, fmt.Errorf("close expired jobs: %w", err)
	}
	return closed, nil
}

func defaultTicker(d time.Duration) ticker {
	t := time.NewTicker(d)
	return tickerWrapper{t}
}

type tickerWrapper struct {
	*time.Ticker
}

func (t tickerWrapper) C() <-chan time.Time { return t.Ticker.C }
func (t tickerWrapper) Stop()               { t.Ticker.Stop() }

func (s *Scheduler) startCron(ctx context.Context) error {
	for {
		next := s.cron.Next(s.now())
		if next.IsZero() {
			return fmt.Errorf("cron spec %q has no next run", s.cronSpec)
		}
		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			s.runLogged(ctx)
		}
	}
}

func parseSchedule(value string) (time.Duration, string, cron.Schedule) {
	trimmed := strings.TrimSpace(value)
	if trimmed != "" {
		if d, err := time.ParseDuration(trimmed); err == nil && d > 0 {
			return d, "", nil
		}
		if schedule, err := cronParser.Parse(trimmed); err == nil {
			return 0, trimmed, schedule
		}
	}

	return time.Hour, "", nil
}
