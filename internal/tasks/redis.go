package tasks

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher 通过 Redis Pub/Sub 发布任务事件，频道为 prefix + topic。
type RedisPublisher struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisPublisher 创建 RedisPublisher。
func NewRedisPublisher(rdb *redis.Client, prefix string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, prefix: prefix}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := p.rdb.Publish(ctx, p.prefix+topic, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}
