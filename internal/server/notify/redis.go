package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher публикует события через Redis pub/sub, канал на документ
type RedisPublisher struct {
	rdb *redis.Client
}

// NewRedisPublisher подключается к Redis и проверяет соединение
func NewRedisPublisher(ctx context.Context, addr, password string, db int) (*RedisPublisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 3 * time.Second,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}

	return &RedisPublisher{rdb: rdb}, nil
}

// Publish отправляет событие в канал subject
func (p *RedisPublisher) Publish(ctx context.Context, subject string, ev *Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.rdb.Publish(ctx, subject, data).Err(); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}

// Close закрывает соединение
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
