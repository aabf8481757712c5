package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nadzzz/helpline/internal/config"
	"github.com/nadzzz/helpline/internal/message"
)

const (
	keyPrefix = "helpline:history:"
	seqSuffix = ":seq"
	seqSep    = '|'
)

// Redis keeps each session as a sorted set scored by turn timestamp, so
// racing appends from several replicas still read back in order. Members
// carry a zero-padded per-session sequence number: equal timestamps then
// sort by arrival and identical turns never collapse into one member.
type Redis struct {
	rdb      *redis.Client
	maxTurns int
	ttl      time.Duration
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg config.RedisConfig, maxTurns int, ttl time.Duration) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("could not connect to redis at %s: %w", cfg.Addr, err)
	}
	return &Redis{rdb: rdb, maxTurns: maxTurns, ttl: ttl}, nil
}

// Append adds the turn, trims the set and refreshes the expiry in one transaction.
func (r *Redis) Append(ctx context.Context, sessionID string, turn message.Turn) error {
	if sessionID == "" {
		return ErrNoSession
	}
	turn.SessionID = sessionID
	member, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}

	key := keyPrefix + sessionID
	seqKey := key + seqSuffix
	seq, err := r.rdb.Incr(ctx, seqKey).Result()
	if err != nil {
		return fmt.Errorf("next turn sequence: %w", err)
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(turn.Timestamp.UnixMicro()),
			Member: fmt.Sprintf("%020d%c%s", seq, seqSep, member),
		})
		if r.maxTurns > 0 {
			pipe.ZRemRangeByRank(ctx, key, 0, int64(-r.maxTurns-1))
		}
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
			pipe.Expire(ctx, seqKey, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// Recent returns the newest turns, oldest first.
func (r *Redis) Recent(ctx context.Context, sessionID string, limit int) ([]message.Turn, error) {
	if sessionID == "" {
		return nil, nil
	}
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	members, err := r.rdb.ZRange(ctx, keyPrefix+sessionID, start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	turns := make([]message.Turn, 0, len(members))
	for _, m := range members {
		_, body, ok := strings.Cut(m, string(seqSep))
		if !ok {
			return nil, errors.New("decode turn: missing sequence prefix")
		}
		var t message.Turn
		if err := json.Unmarshal([]byte(body), &t); err != nil {
			return nil, fmt.Errorf("decode turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error { return r.rdb.Ping(ctx).Err() }

// Close closes the client.
func (r *Redis) Close() error { return r.rdb.Close() }
