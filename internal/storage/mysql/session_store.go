package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	xerrors "RecruitChain/internal/errors"
	"RecruitChain/internal/session"
)

const (
	insertRecordSQL = `INSERT INTO session_records
    (session_id, network, chain_id, account, contract, interface_desc, initialized_at)
    VALUES (?, ?, ?, ?, ?, ?, ?)
    ON DUPLICATE KEY UPDATE network = VALUES(network), chain_id = VALUES(chain_id), account = VALUES(account),
    contract = VALUES(contract), interface_desc = VALUES(interface_desc), initialized_at = VALUES(initialized_at)`

	selectRecordSQL = `SELECT session_id, network, chain_id, account, contract, interface_desc, initialized_at
    FROM session_records WHERE session_id = ?`

	listRecordsSQL = `SELECT session_id, network, chain_id, account, contract, interface_desc, initialized_at
    FROM session_records ORDER BY initialized_at DESC, session_id DESC LIMIT ?`
)

// SessionStore 将会话记录写入 MySQL。
type SessionStore struct {
	db *sql.DB
}

var _ session.Recorder = (*SessionStore)(nil)

// NewSessionStore 建立连接并执行内置迁移。
func NewSessionStore(ctx context.Context, cfg Config) (*SessionStore, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store := &SessionStore{db: db}
	if err := newMigrator(db).run(ctx); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "执行 MySQL 迁移失败")
	}
	return store, nil
}

// Save 写入或覆盖会话记录。
func (s *SessionStore) Save(ctx context.Context, rec session.Record) error {
	if _, err := s.db.ExecContext(ctx, insertRecordSQL,
		rec.SessionID, rec.Network, rec.ChainID, rec.Account, rec.Contract, rec.Interface,
		rec.InitializedAt.UnixMilli()); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入会话记录失败",
			xerrors.WithMetadata("session_id", rec.SessionID))
	}
	return nil
}

// Get 按会话 ID 读取记录。
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*session.Record, error) {
	row := s.db.QueryRowContext(ctx, selectRecordSQL, sessionID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrRecordNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取会话记录失败")
	}
	return rec, nil
}

// ListLatest 按初始化时间倒序返回最近的记录。
func (s *SessionStore) ListLatest(ctx context.Context, limit int) ([]session.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, listRecordsSQL, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询会话记录失败")
	}
	defer rows.Close()

	var list []session.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析会话记录失败")
		}
		list = append(list, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历会话记录失败")
	}
	return list, nil
}

// Close 关闭连接池。
func (s *SessionStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*session.Record, error) {
	var (
		rec    session.Record
		millis int64
	)
	if err := row.Scan(&rec.SessionID, &rec.Network, &rec.ChainID, &rec.Account, &rec.Contract, &rec.Interface, &millis); err != nil {
		return nil, err
	}
	rec.InitializedAt = time.UnixMilli(millis).UTC()
	return &rec, nil
}
