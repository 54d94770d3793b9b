// Package tasks 负责写入管理员审核任务并发布任务事件。
package tasks

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"jobboard/internal/apperr"
	"jobboard/internal/model"
	"jobboard/internal/storage"

	"github.com/google/uuid"
)

// Writer 为任务持久化所需的存储能力。
type Writer interface {
	Put(ctx context.Context, collection, key string, rec storage.Record) error
}

// Publisher 发布任务事件，topic 形如 task.postnewjob。
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Coordinator 创建审核任务。
type Coordinator struct {
	store      Writer
	collection string
	publisher  Publisher
	logger     *slog.Logger
	now        func() time.Time
}

// NewCoordinator 创建 Coordinator，publisher 可为 nil。
func NewCoordinator(store Writer, collection string, publisher Publisher, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:      store,
		collection: collection,
		publisher:  publisher,
		logger:     logger,
		now:        time.Now,
	}
}

// Create 生成 task_id 与时间戳后写入，再尽力发布事件。
func (c *Coordinator) Create(ctx context.Context, task model.Task) (model.Task, error) {
	now := c.now().UTC()
	task.TaskID = uuid.NewString()
	task.Status = model.TaskStatusPending
	task.CreatedAt = now
	task.UpdatedAt = now

	rec, err := storage.Encode(task)
	if err != nil {
		return model.Task{}, apperr.Dependency("failed to create task", err)
	}
	if err := c.store.Put(ctx, c.collection, task.TaskID, rec); err != nil {
		c.logger.Error("create task", "category", task.Category, "job_id", task.JobID, "collection", c.collection, "error", err)
		return model.Task{}, apperr.Dependency("failed to create task", err)
	}

	c.publish(ctx, task)
	return task, nil
}

func (c *Coordinator) publish(ctx context.Context, task model.Task) {
	if c.publisher == nil {
		return
	}
	payload, err := json.Marshal(task)
	if err != nil {
		c.logger.Warn("marshal task event", "task_id", task.TaskID, "error", err)
		return
	}
	topic := Topic(task.Category)
	if err := c.publisher.Publish(ctx, topic, payload); err != nil {
		c.logger.Warn("publish task event", "topic", topic, "task_id", task.TaskID, "error", err)
	}
}

// Topic 返回任务类别对应的事件主题。
func Topic(category model.TaskCategory) string {
	return "task." + string(category)
}
