// Package notify はタスクのレビュー通知の送出を提供する。
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hitoshi/labquest/internal/model"
	"github.com/redis/go-redis/v9"
)

// Sink は通知の送出先。
type Sink interface {
	Notify(ctx context.Context, n *model.Notification) error
}

// listPusher は RedisQueue が使う go-redis のサブセット。
type listPusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// RedisQueue は通知をJSONにしてRedisリストの末尾に積む。
// 配信は別プロセスがリストを消費して行う。
type RedisQueue struct {
	client listPusher
	key    string
}

// NewRedisQueue はRedisQueueを生成する。
func NewRedisQueue(client listPusher, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

// Notify は通知をキューに積む。
func (q *RedisQueue) Notify(ctx context.Context, n *model.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, body).Err(); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// LogSink は通知を構造化ログに出力するだけのSink。Redis未設定時に使う。
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink はLogSinkを生成する。
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Notify は通知をinfoログに出力する。
func (s *LogSink) Notify(ctx context.Context, n *model.Notification) error {
	s.logger.InfoContext(ctx, "notification",
		slog.String("id", n.ID),
		slog.String("kind", string(n.Kind)),
		slog.String("task_id", n.TaskID),
		slog.Any("recipients", n.RecipientIDs),
		slog.String("actor_id", n.ActorID),
	)
	return nil
}

var (
	_ Sink = (*RedisQueue)(nil)
	_ Sink = (*LogSink)(nil)
)
