package dlqxredis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Abraxas-365/remodel/pkg/dlqx"
	"github.com/Abraxas-365/remodel/pkg/errx"
	"github.com/redis/go-redis/v9"
)

var redisErrors = errx.NewRegistry("DLQX_REDIS")

var (
	ErrConnect   = redisErrors.Register("CONNECT", errx.TypeExternal, 503, "Redis connection for dead letters failed")
	ErrWrite     = redisErrors.Register("WRITE", errx.TypeExternal, 500, "Redis dead letter write failed")
	ErrList      = redisErrors.Register("LIST", errx.TypeExternal, 500, "Redis dead letter list failed")
	ErrMarshal   = redisErrors.Register("MARSHAL", errx.TypeInternal, 500, "Failed to marshal dead letter")
	ErrUnmarshal = redisErrors.Register("UNMARSHAL", errx.TypeInternal, 500, "Failed to unmarshal dead letter")
)

func listKey(queue string) string { return fmt.Sprintf("dlq:%s", queue) }

// Sink stores dead letters as JSON in one Redis list per queue, newest at
// the head, trimmed to the retention count.
type Sink struct {
	rdb       *redis.Client
	retention int
	owned     bool
}

// NewSink wraps a client owned by the caller; Close leaves it open.
func NewSink(rdb *redis.Client, retention int) *Sink {
	return &Sink{rdb: rdb, retention: retention}
}

// Factory connects to url on first use. The connection belongs to the sink.
func Factory(url string, retention int) dlqx.SinkFactory {
	return func(ctx context.Context) (dlqx.Sink, error) {
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, redisErrors.NewWithCause(ErrConnect, err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, redisErrors.NewWithCause(ErrConnect, err)
		}
		return &Sink{rdb: rdb, retention: retention, owned: true}, nil
	}
}

// SharedFactory hands out a sink over an existing client.
func SharedFactory(rdb *redis.Client, retention int) dlqx.SinkFactory {
	return func(context.Context) (dlqx.Sink, error) {
		return NewSink(rdb, retention), nil
	}
}

func (s *Sink) Write(ctx context.Context, entry dlqx.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return redisErrors.NewWithCause(ErrMarshal, err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, listKey(entry.SourceQueue), data)
	if s.retention > 0 {
		pipe.LTrim(ctx, listKey(entry.SourceQueue), 0, int64(s.retention-1))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return redisErrors.NewWithCause(ErrWrite, err).WithDetail("queue", entry.SourceQueue)
	}
	return nil
}

func (s *Sink) List(ctx context.Context, queue string, limit int) ([]dlqx.Entry, error) {
	raw, err := s.rdb.LRange(ctx, listKey(queue), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, redisErrors.NewWithCause(ErrList, err).WithDetail("queue", queue)
	}

	entries := make([]dlqx.Entry, 0, len(raw))
	for _, item := range raw {
		var e dlqx.Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, redisErrors.NewWithCause(ErrUnmarshal, err).WithDetail("queue", queue)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Sink) Close() error {
	if !s.owned {
		return nil
	}
	return s.rdb.Close()
}
