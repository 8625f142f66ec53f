// Package ledger records every generated identity's credentials before the
// identity is used, so a crashed or aborted run never loses a funded key.
package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	xerrors "RewardPilot/internal/errors"
	"RewardPilot/internal/identity"
)

// Separator closes every entry in the file ledger.
const Separator = "==================================================================="

// Record is one ledger entry.
type Record struct {
	IdentityID    string    `json:"identity_id"`
	Scheme        string    `json:"scheme"`
	PublicKey     string    `json:"public_key"`
	EncodedSecret string    `json:"encoded_secret"`
	CreatedAt     time.Time `json:"created_at"`
}

// Sink appends records. Implementations must be safe for concurrent use.
type Sink interface {
	Append(ctx context.Context, record Record) error
	Close() error
}

// NewRecord exports id's credentials. It fails once the identity is wiped.
func NewRecord(id *identity.Identity) (Record, error) {
	secret, err := id.ExportSecret()
	if err != nil {
		return Record{}, xerrors.Wrap(xerrors.CodeLedgerFailure, err, "export identity secret")
	}
	return Record{
		IdentityID:    id.ID,
		Scheme:        id.Scheme(),
		PublicKey:     id.PublicKey,
		EncodedSecret: secret,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// FileSink appends human-readable entries to a text file. Each entry is
// written with a single write call under a mutex, so entries never interleave.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink creates the parent directory of path.
func NewFileSink(path string) (*FileSink, error) {
	if strings.TrimSpace(path) == "" {
		return nil, xerrors.New(xerrors.CodeValidation, "ledger path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeLedgerFailure, err, "create ledger directory")
	}
	return &FileSink{path: path}, nil
}

// Path returns the ledger file location.
func (s *FileSink) Path() string {
	return s.path
}

// Append implements Sink.
func (s *FileSink) Append(ctx context.Context, record Record) error {
	if err := ctx.Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeCanceled, err, "ledger append canceled")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeLedgerFailure, err, "open ledger file")
	}
	defer file.Close()

	if _, err := file.WriteString(Format(record)); err != nil {
		return xerrors.Wrap(xerrors.CodeLedgerFailure, err, "write ledger entry")
	}
	return nil
}

// Close implements Sink.
func (s *FileSink) Close() error { return nil }

// Format renders record in the file ledger layout.
func Format(record Record) string {
	return fmt.Sprintf("Wallet Address : %s\nPrivate Key : %s\n%s\n", record.PublicKey, record.EncodedSecret, Separator)
}

// MemorySink keeps records in memory. Used by tests and dry runs.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

// Append implements Sink.
func (s *MemorySink) Append(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// Records returns a copy of the stored records.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

// Close implements Sink.
func (s *MemorySink) Close() error { return nil }
