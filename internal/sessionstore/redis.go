package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/playperu/reelquiz/internal/game"
	"github.com/playperu/reelquiz/internal/moviequiz"
)

// keyTTLBackstop keeps abandoned keys from living forever if the sweep
// stops running. The sweep itself works from the expiry index.
const keyTTLBackstop = 24 * time.Hour

type redisEnvelope struct {
	Version int64        `json:"version"`
	Session game.Session `json:"session"`
}

// Redis stores sessions as JSON envelopes and serialises writes with
// WATCH/MULTI, so a concurrent write aborts the transaction instead of
// overwriting it.
type Redis struct {
	rdb       *redis.Client
	retention Retention
	prefix    string
}

func NewRedis(rdb *redis.Client, retention Retention, prefix string) *Redis {
	return &Redis{rdb: rdb, retention: retention, prefix: prefix}
}

func (r *Redis) key(id string) string { return r.prefix + "session:" + id }
func (r *Redis) index() string        { return r.prefix + "sessions:expiry" }

func (r *Redis) encode(s game.Session) ([]byte, time.Time, error) {
	data, err := json.Marshal(redisEnvelope{Version: s.Version, Session: s})
	if err != nil {
		return nil, time.Time{}, err
	}
	return data, r.retention.ExpiresAt(s), nil
}

func keyTTL(expires time.Time) time.Duration {
	return max(time.Until(expires), 0) + keyTTLBackstop
}

func (r *Redis) Create(ctx context.Context, s game.Session) (game.Session, error) {
	s.Version = 1
	data, expires, err := r.encode(s)
	if err != nil {
		return game.Session{}, err
	}

	ok, err := r.rdb.SetNX(ctx, r.key(s.ID), data, keyTTL(expires)).Result()
	if err != nil {
		return game.Session{}, fmt.Errorf("storing session: %w", err)
	}
	if !ok {
		return game.Session{}, fmt.Errorf("session %q already exists", s.ID)
	}
	if err := r.rdb.ZAdd(ctx, r.index(), redis.Z{Score: float64(expires.UnixMilli()), Member: s.ID}).Err(); err != nil {
		return game.Session{}, fmt.Errorf("indexing session: %w", err)
	}
	return s, nil
}

func (r *Redis) Get(ctx context.Context, id string) (game.Session, error) {
	data, err := r.rdb.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return game.Session{}, moviequiz.ErrSessionNotFound
	}
	if err != nil {
		return game.Session{}, err
	}
	return decodeEnvelope(data)
}

func (r *Redis) Update(ctx context.Context, s game.Session) (game.Session, error) {
	key := r.key(s.ID)
	var stored game.Session

	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return moviequiz.ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		current, err := decodeEnvelope(data)
		if err != nil {
			return err
		}
		if current.Version != s.Version {
			return moviequiz.ErrStaleWrite
		}

		next := s
		next.Version++
		out, expires, err := r.encode(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, out, keyTTL(expires))
			p.ZAdd(ctx, r.index(), redis.Z{Score: float64(expires.UnixMilli()), Member: s.ID})
			return nil
		})
		if err != nil {
			return err
		}
		stored = next
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return game.Session{}, moviequiz.ErrStaleWrite
	}
	if err != nil {
		return game.Session{}, err
	}
	return stored, nil
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, r.key(id))
		p.ZRem(ctx, r.index(), id)
		return nil
	})
	if err != nil {
		return err
	}
	if del.Val() == 0 {
		return moviequiz.ErrSessionNotFound
	}
	return nil
}

func (r *Redis) Due(ctx context.Context, now time.Time) ([]game.Session, error) {
	ids, err := r.rdb.ZRangeByScore(ctx, r.index(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}
	values, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var (
		due   []game.Session
		stale []any
	)
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// Key TTL fired before the sweep did.
			stale = append(stale, ids[i])
			continue
		}
		s, err := decodeEnvelope([]byte(str))
		if err != nil {
			return nil, err
		}
		due = append(due, s)
	}
	if len(stale) > 0 {
		if err := r.rdb.ZRem(ctx, r.index(), stale...).Err(); err != nil {
			return nil, err
		}
	}
	return due, nil
}

// Close is a no-op: the client belongs to the caller.
func (r *Redis) Close() error { return nil }

func decodeEnvelope(data []byte) (game.Session, error) {
	var env redisEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return game.Session{}, fmt.Errorf("decoding session: %w", err)
	}
	env.Session.Version = env.Version
	return env.Session, nil
}

var _ Store = (*Redis)(nil)
