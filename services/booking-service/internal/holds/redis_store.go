package holds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/redis/go-redis/v9"
)

const defaultRetention = 10 * time.Minute

// RedisStore shares holds across instances. Each hold is a JSON value at
// <prefix>hold:<key>; per-business and global sorted sets scored by expiry index them.
// Index entries are hints: readers always re-check the stored value.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	// retention keeps an expired value around so confirmations can tell Expired from NotFound.
	retention time.Duration
	logger    *slog.Logger
}

type RedisOptions struct {
	Prefix    string
	Retention time.Duration
	Logger    *slog.Logger
}

func NewRedisStore(rdb *redis.Client, opts RedisOptions) *RedisStore {
	if opts.Prefix == "" {
		opts.Prefix = "slotbook:"
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &RedisStore{rdb: rdb, prefix: opts.Prefix, retention: opts.Retention, logger: opts.Logger}
}

func (s *RedisStore) holdKey(key string) string { return s.prefix + "hold:" + key }

func (s *RedisStore) businessIndex(businessID string) string {
	return s.prefix + "holds:business:" + businessID
}

func (s *RedisStore) expiryIndex() string { return s.prefix + "holds:expiry" }

func score(t time.Time) float64 { return float64(t.UnixMilli()) }

func (s *RedisStore) Put(ctx context.Context, hold model.Hold) error {
	raw, err := json.Marshal(hold)
	if err != nil {
		return err
	}
	ttl := hold.ExpiresAt.Sub(hold.CreatedAt) + s.retention
	if ttl <= 0 {
		ttl = s.retention
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.holdKey(hold.ConversationKey), raw, ttl)
		pipe.ZAdd(ctx, s.businessIndex(hold.BusinessID), redis.Z{Score: score(hold.ExpiresAt), Member: hold.ConversationKey})
		pipe.ZAdd(ctx, s.expiryIndex(), redis.Z{Score: score(hold.ExpiresAt), Member: hold.BusinessID + "\n" + hold.ConversationKey})
		return nil
	})
	if err != nil {
		return fmt.Errorf("store hold: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string, now time.Time) (model.Hold, bool, error) {
	raw, err := s.rdb.Get(ctx, s.holdKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Hold{}, false, nil
	}
	if err != nil {
		return model.Hold{}, false, fmt.Errorf("load hold: %w", err)
	}
	h, err := decodeHold(raw)
	if err != nil {
		return model.Hold{}, false, err
	}
	if h.Expired(now) {
		return model.Hold{}, false, nil
	}
	return h, true, nil
}

// Take uses GETDEL so two concurrent confirmations never both receive the hold.
func (s *RedisStore) Take(ctx context.Context, key string) (model.Hold, bool, error) {
	raw, err := s.rdb.GetDel(ctx, s.holdKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Hold{}, false, nil
	}
	if err != nil {
		return model.Hold{}, false, fmt.Errorf("take hold: %w", err)
	}
	h, err := decodeHold(raw)
	if err != nil {
		return model.Hold{}, false, err
	}
	// The hold is already ours. A stale index entry is skipped by ListActive
	// and trimmed by PurgeExpired once its score passes.
	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, s.businessIndex(h.BusinessID), key)
		pipe.ZRem(ctx, s.expiryIndex(), h.BusinessID+"\n"+key)
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "hold index cleanup failed",
			"business_id", h.BusinessID, "conversation_key", key, "error", err)
	}
	return h, true, nil
}

func (s *RedisStore) ListActive(ctx context.Context, businessID string, now time.Time) ([]model.Hold, error) {
	keys, err := s.rdb.ZRangeByScore(ctx, s.businessIndex(businessID), &redis.ZRangeBy{
		Min: strconv.FormatInt(now.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list holds: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.holdKey(k)
	}
	values, err := s.rdb.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("load holds: %w", err)
	}

	var out []model.Hold
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		h, err := decodeHold([]byte(raw))
		if err != nil {
			return nil, err
		}
		// The key may have been overwritten by a hold for another business.
		if h.BusinessID != businessID || h.Expired(now) {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// PurgeExpired trims index entries; values themselves expire through their Redis TTL.
func (s *RedisStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	cutoff := strconv.FormatInt(now.UnixMilli()-1, 10)
	members, err := s.rdb.ZRangeByScore(ctx, s.expiryIndex(), &redis.ZRangeBy{Min: "-inf", Max: cutoff}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan expired holds: %w", err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	businesses := map[string]struct{}{}
	for _, m := range members {
		businessID, _, ok := strings.Cut(m, "\n")
		if ok {
			businesses[businessID] = struct{}{}
		}
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for businessID := range businesses {
			pipe.ZRemRangeByScore(ctx, s.businessIndex(businessID), "-inf", cutoff)
		}
		pipe.ZRemRangeByScore(ctx, s.expiryIndex(), "-inf", cutoff)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("purge expired holds: %w", err)
	}
	return len(members), nil
}

func decodeHold(raw []byte) (model.Hold, error) {
	var h model.Hold
	if err := json.Unmarshal(raw, &h); err != nil {
		return model.Hold{}, fmt.Errorf("decode hold: %w", err)
	}
	return h, nil
}
