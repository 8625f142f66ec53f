package redis

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	xerrors "RewardPilot/internal/errors"
	"RewardPilot/internal/ledger"
)

type fakeList struct {
	key    string
	values [][]byte
	err    error
}

func (f *fakeList) RPush(ctx context.Context, key string, values ...interface{}) *goredis.IntCmd {
	if f.err != nil {
		return goredis.NewIntResult(0, f.err)
	}
	f.key = key
	for _, v := range values {
		f.values = append(f.values, v.([]byte))
	}
	return goredis.NewIntResult(int64(len(f.values)), nil)
}

func TestLedgerStoreAppend(t *testing.T) {
	list := &fakeList{}
	store := newLedgerStore(list, nil, "")

	record := ledger.Record{IdentityID: "id-1", Scheme: "evm", PublicKey: "0xabc", EncodedSecret: "0x01", CreatedAt: time.Unix(10, 0).UTC()}
	if err := store.Append(context.Background(), record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if list.key != DefaultLedgerKey {
		t.Fatalf("unexpected key %q", list.key)
	}
	var decoded ledger.Record
	if err := json.Unmarshal(list.values[0], &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.PublicKey != record.PublicKey || decoded.EncodedSecret != record.EncodedSecret || !decoded.CreatedAt.Equal(record.CreatedAt) {
		t.Fatalf("unexpected record %+v", decoded)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close without closer should be a no-op: %v", err)
	}
}

func TestLedgerStoreAppendFailure(t *testing.T) {
	store := newLedgerStore(&fakeList{err: stdErrors.New("READONLY")}, nil, "custom")
	err := store.Append(context.Background(), ledger.Record{})
	if !stdErrors.Is(err, xerrors.ErrLedger) {
		t.Fatalf("expected ledger error, got %v", err)
	}
	if store.Key() != "custom" {
		t.Fatalf("unexpected key %q", store.Key())
	}
}

func TestNewClientRequiresAddress(t *testing.T) {
	if _, err := NewClient(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for empty address")
	}
}
