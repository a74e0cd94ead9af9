package redis

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	xerrors "RecruitChain/internal/errors"
	"RecruitChain/internal/session"

	"github.com/redis/go-redis/v9"
)

// Config 描述 Redis 会话记录存储的连接参数。
type Config struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// SessionStore 使用 Redis hash 保存会话记录，并以 sorted set 维护时间索引。
type SessionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ session.Recorder = (*SessionStore)(nil)

// NewSessionStore 创建 Redis 会话存储并检测连通性。
func NewSessionStore(ctx context.Context, cfg Config) (*SessionStore, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "recruitchain:session"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 Redis 失败")
	}
	return &SessionStore{client: client, prefix: prefix, ttl: cfg.TTL}, nil
}

func (s *SessionStore) recordKey(id string) string { return s.prefix + ":" + id }

func (s *SessionStore) indexKey() string { return s.prefix + ":index" }

// Save 写入会话记录并更新时间索引。
func (s *SessionStore) Save(ctx context.Context, rec session.Record) error {
	key := s.recordKey(rec.SessionID)
	millis := rec.InitializedAt.UnixMilli()
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]any{
			"session_id":     rec.SessionID,
			"network":        rec.Network,
			"chain_id":       rec.ChainID,
			"account":        rec.Account,
			"contract":       rec.Contract,
			"interface":      rec.Interface,
			"initialized_at": strconv.FormatInt(millis, 10),
		})
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(millis), Member: rec.SessionID})
		return nil
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入 Redis 会话记录失败",
			xerrors.WithMetadata("session_id", rec.SessionID))
	}
	return nil
}

// Get 读取单条会话记录。
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*session.Record, error) {
	values, err := s.client.HGetAll(ctx, s.recordKey(sessionID)).Result()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取 Redis 会话记录失败")
	}
	if len(values) == 0 {
		return nil, session.ErrRecordNotFound
	}
	return decodeRecord(values)
}

// ListLatest 按初始化时间倒序返回最近的记录。索引中指向已过期记录的条目会被跳过
// 并清理，跳过后继续向后读取，直到凑满 limit 条或索引耗尽。
func (s *SessionStore) ListLatest(ctx context.Context, limit int) ([]session.Record, error) {
	if limit <= 0 {
		limit = 20
	}

	list := make([]session.Record, 0, limit)
	var stale []any
	for offset := int64(0); len(list) < limit; {
		want := int64(limit - len(list))
		ids, err := s.client.ZRevRange(ctx, s.indexKey(), offset, offset+want-1).Result()
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取 Redis 会话索引失败")
		}
		for _, id := range ids {
			rec, err := s.Get(ctx, id)
			if errors.Is(err, session.ErrRecordNotFound) {
				stale = append(stale, id)
				continue
			}
			if err != nil {
				return nil, err
			}
			list = append(list, *rec)
		}
		if int64(len(ids)) < want {
			break
		}
		offset += int64(len(ids))
	}
	if len(stale) > 0 {
		_ = s.client.ZRem(ctx, s.indexKey(), stale...).Err()
	}
	return list, nil
}

// Close 关闭 Redis 客户端。
func (s *SessionStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func decodeRecord(values map[string]string) (*session.Record, error) {
	millis, err := strconv.ParseInt(values["initialized_at"], 10, 64)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析会话记录时间失败")
	}
	return &session.Record{
		SessionID:     values["session_id"],
		Network:       values["network"],
		ChainID:       values["chain_id"],
		Account:       values["account"],
		Contract:      values["contract"],
		Interface:     values["interface"],
		InitializedAt: time.UnixMilli(millis).UTC(),
	}, nil
}
