package redis

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	xerrors "RewardPilot/internal/errors"
	"RewardPilot/internal/ledger"
)

// DefaultLedgerKey 是账本列表的默认键名。
const DefaultLedgerKey = "rewardpilot:ledger"

type listAppender interface {
	RPush(ctx context.Context, key string, values ...interface{}) *goredis.IntCmd
}

// LedgerStore 以 JSON 形式 RPUSH 账本记录，列表顺序即生成顺序。
type LedgerStore struct {
	client listAppender
	closer io.Closer
	key    string
}

// NewLedgerStore 连接 Redis 并返回账本。
func NewLedgerStore(ctx context.Context, cfg Config, key string) (*LedgerStore, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeLedgerFailure, err, "open redis ledger")
	}
	return newLedgerStore(client, client, key), nil
}

func newLedgerStore(client listAppender, closer io.Closer, key string) *LedgerStore {
	if strings.TrimSpace(key) == "" {
		key = DefaultLedgerKey
	}
	return &LedgerStore{client: client, closer: closer, key: key}
}

// Key 返回列表键名。
func (s *LedgerStore) Key() string {
	return s.key
}

// Append 实现 ledger.Sink。
func (s *LedgerStore) Append(ctx context.Context, record ledger.Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeLedgerFailure, err, "encode ledger record")
	}
	if err := s.client.RPush(ctx, s.key, payload).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeLedgerFailure, err, "push ledger record",
			xerrors.WithMetadata("key", s.key))
	}
	return nil
}

// Close 关闭底层连接。
func (s *LedgerStore) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

var _ ledger.Sink = (*LedgerStore)(nil)
