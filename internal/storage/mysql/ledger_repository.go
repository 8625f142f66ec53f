package mysql

import (
	"context"
	"database/sql"
	"errors"

	xerrors "RewardPilot/internal/errors"
	"RewardPilot/internal/ledger"
)

// ErrUnsupportedDriver 表示配置了未知的账本驱动。
var ErrUnsupportedDriver = errors.New("unsupported ledger driver")

const insertLedgerSQL = `INSERT INTO identity_ledger (identity_id, scheme, public_key, encoded_secret, created_at)
    VALUES (?, ?, ?, ?, ?)`

// LedgerRepository 将身份凭据写入 identity_ledger 表，实现 ledger.Sink。
type LedgerRepository struct {
	db *sql.DB
}

// NewLedgerRepository 建立连接并执行迁移。
func NewLedgerRepository(ctx context.Context, cfg Config) (*LedgerRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeLedgerFailure, err, "open mysql ledger")
	}
	repo, err := newLedgerRepository(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

func newLedgerRepository(ctx context.Context, db *sql.DB) (*LedgerRepository, error) {
	if err := migrate(ctx, db, nil); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeLedgerFailure, err, "migrate mysql ledger")
	}
	return &LedgerRepository{db: db}, nil
}

// Append 写入一条账本记录。
func (r *LedgerRepository) Append(ctx context.Context, record ledger.Record) error {
	_, err := r.db.ExecContext(ctx, insertLedgerSQL,
		record.IdentityID,
		record.Scheme,
		record.PublicKey,
		record.EncodedSecret,
		record.CreatedAt.Unix(),
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeLedgerFailure, err, "insert ledger record",
			xerrors.WithMetadata("public_key", record.PublicKey))
	}
	return nil
}

// Close 关闭连接池。
func (r *LedgerRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

var _ ledger.Sink = (*LedgerRepository)(nil)
