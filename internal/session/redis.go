package session

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"fable/internal/logging"
	"fable/internal/types"
)

// rewriteAttempts bounds optimistic-transaction retries when another writer
// touches the list mid-rewrite.
const rewriteAttempts = 3

// RedisStore is the durable Store. Messages live in a Redis list under the
// session id; the context side-table lives in a hash under
// "session_ctx:<id>". The list supports no random deletion, so positional
// mutations are implemented as a transactional read-filter-rewrite: readers
// never observe a partially rewritten list.
type RedisStore struct {
	id       string
	humanCap int
	rdb      redis.UniversalClient
	logger   logging.Logger
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore binds a durable session to a Redis client.
func NewRedisStore(sessionID string, rdb redis.UniversalClient, humanCap int) *RedisStore {
	if humanCap <= 0 {
		humanCap = DefaultHumanCap
	}
	return &RedisStore{
		id:       sessionID,
		humanCap: humanCap,
		rdb:      rdb,
		logger:   logging.NewSessionLogger("redis-store", sessionID),
	}
}

func (s *RedisStore) ID() string { return s.id }

func (s *RedisStore) ctxKey() string { return "session_ctx:" + s.id }

func (s *RedisStore) Append(ctx context.Context, msg types.Message) {
	if msg.Role == types.RoleAI && len(msg.InvalidToolCalls) > 0 {
		s.logger.Error("dropping AI message with invalid tool calls")
		return
	}
	encoded, err := msg.Encode()
	if err != nil {
		s.logger.Error("encode message: %v", err)
		return
	}
	if err := s.rdb.RPush(ctx, s.id, encoded).Err(); err != nil {
		s.logger.Error("append message: %v", err)
	}
}

func (s *RedisStore) decodeRange(ctx context.Context, start, stop int64) []types.Message {
	raws, err := s.rdb.LRange(ctx, s.id, start, stop).Result()
	if err != nil {
		s.logger.Error("read messages: %v", err)
		return nil
	}
	messages := make([]types.Message, 0, len(raws))
	for _, raw := range raws {
		msg, err := types.DecodeMessage(raw)
		if err != nil {
			// A single corrupt entry must not fail the whole read.
			s.logger.Warn("skip undecodable message: %v", err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}

func (s *RedisStore) Messages(ctx context.Context, n int) []types.Message {
	if n <= 0 {
		return nil
	}
	return s.decodeRange(ctx, 0, int64(n)-1)
}

func (s *RedisStore) RecentMessages(ctx context.Context, n int) []types.Message {
	if n <= 0 {
		return nil
	}
	return s.decodeRange(ctx, int64(-n), -1)
}

func (s *RedisStore) AllMessages(ctx context.Context) []types.Message {
	return s.decodeRange(ctx, 0, -1)
}

func (s *RedisStore) LastMessage(ctx context.Context) (types.Message, bool) {
	messages := s.RecentMessages(ctx, 1)
	if len(messages) == 0 {
		return types.Message{}, false
	}
	return messages[0], true
}

func (s *RedisStore) Len(ctx context.Context) int {
	n, err := s.rdb.LLen(ctx, s.id).Result()
	if err != nil {
		s.logger.Error("message count: %v", err)
		return 0
	}
	return int(n)
}

func (s *RedisStore) UpdateAt(ctx context.Context, index int, msg types.Message) {
	s.lset(ctx, int64(index), msg)
}

func (s *RedisStore) UpdateFromEnd(ctx context.Context, k int, msg types.Message) {
	if k <= 0 {
		return
	}
	s.lset(ctx, int64(-k), msg)
}

func (s *RedisStore) lset(ctx context.Context, index int64, msg types.Message) {
	encoded, err := msg.Encode()
	if err != nil {
		s.logger.Error("encode message: %v", err)
		return
	}
	// LSET on an out-of-range index errors; that is the contract's
	// "silently ignored", so only log it.
	if err := s.rdb.LSet(ctx, s.id, index, encoded).Err(); err != nil {
		s.logger.Debug("update at %d ignored: %v", index, err)
	}
}

// rewriteList atomically replaces the message list with the entries keep
// selects, identified by forward index over the current list.
func (s *RedisStore) rewriteList(ctx context.Context, keep func(index int, total int) bool) {
	txn := func(tx *redis.Tx) error {
		raws, err := tx.LRange(ctx, s.id, 0, -1).Result()
		if err != nil {
			return err
		}
		kept := make([]any, 0, len(raws))
		for i, raw := range raws {
			if keep(i, len(raws)) {
				kept = append(kept, raw)
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.id)
			if len(kept) > 0 {
				pipe.RPush(ctx, s.id, kept...)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < rewriteAttempts; attempt++ {
		err := s.rdb.Watch(ctx, txn, s.id)
		if err == nil {
			return
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		s.logger.Error("rewrite message list: %v", err)
		return
	}
	s.logger.Error("rewrite message list: gave up after %d contended attempts", rewriteAttempts)
}

func (s *RedisStore) DeleteFromEnd(ctx context.Context, k int) {
	if k <= 0 || k > s.Len(ctx) {
		return
	}
	s.rewriteList(ctx, func(index, total int) bool {
		return index != total-k
	})
}

func (s *RedisStore) TruncateLastK(ctx context.Context, k int) {
	if k <= 0 {
		return
	}
	if err := s.rdb.LTrim(ctx, s.id, 0, int64(-k)-1).Err(); err != nil {
		s.logger.Error("truncate last %d: %v", k, err)
	}
}

func (s *RedisStore) WindowedHistory(ctx context.Context) []types.Message {
	return windowMessages(s.AllMessages(ctx), s.humanCap)
}

func (s *RedisStore) PurgeToLastToolCalls(ctx context.Context) {
	cut := lastToolCallIndex(s.AllMessages(ctx))
	if cut < 0 {
		return
	}
	s.rewriteList(ctx, func(index, total int) bool {
		return index < cut
	})
}

func (s *RedisStore) Clear(ctx context.Context) {
	if err := s.rdb.Del(ctx, s.id).Err(); err != nil {
		s.logger.Error("clear messages: %v", err)
	}
}

func (s *RedisStore) SetContext(ctx context.Context, key string, value any) {
	encoded, err := json.Marshal(value)
	if err != nil {
		s.logger.Error("encode context %s: %v", key, err)
		return
	}
	if err := s.rdb.HSet(ctx, s.ctxKey(), key, string(encoded)).Err(); err != nil {
		s.logger.Error("set context %s: %v", key, err)
	}
}

func (s *RedisStore) Context(ctx context.Context, key string) (any, bool) {
	raw, err := s.rdb.HGet(ctx, s.ctxKey(), key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Error("get context %s: %v", key, err)
		}
		return nil, false
	}
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		s.logger.Warn("decode context %s: %v", key, err)
		return nil, false
	}
	return value, true
}
