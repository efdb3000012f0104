package redisstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/suPer8Hu/chatcore/internal/cancel"
)

// flagTTL bounds how long a stale pause flag can linger after its stream ended.
const flagTTL = time.Hour

// Store wraps the redis client shared by the server and the worker.
type Store struct {
	rdb    *redis.Client
	prefix string
}

func New(addr, password string, db int) *Store {
	return NewWithClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}))
}

func NewWithClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, prefix: "chatcore:"}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

// CancelBus is a cancel.Bus shared across processes through redis.
type CancelBus struct {
	s *Store
}

var _ cancel.Bus = (*CancelBus)(nil)

func (s *Store) CancelBus() *CancelBus {
	return &CancelBus{s: s}
}

func (b *CancelBus) key(surface string) string {
	return b.s.prefix + cancel.Key(surface)
}

func (b *CancelBus) Reset(ctx context.Context, surface string) error {
	return b.s.rdb.Del(ctx, b.key(surface)).Err()
}

func (b *CancelBus) RequestCancel(ctx context.Context, surface string) error {
	return b.s.rdb.Set(ctx, b.key(surface), "1", flagTTL).Err()
}

// IsCancelRequested treats a redis failure as "not requested" so a flaky
// connection never aborts a healthy stream.
func (b *CancelBus) IsCancelRequested(ctx context.Context, surface string) bool {
	n, err := b.s.rdb.Exists(ctx, b.key(surface)).Result()
	if err != nil {
		slog.Warn("cancel flag read failed", "surface", surface, "err", err)
		return false
	}
	return n > 0
}
