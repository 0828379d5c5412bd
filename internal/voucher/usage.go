package voucher

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// recordScript adds the order to the coupon's redeemed set and bumps the
// counters only when the order was not seen before, in one atomic step.
//
//	KEYS[1] orders set, KEYS[2] total counter, KEYS[3] per-user counter
//	ARGV[1] order id, ARGV[2] "1" when a user is attached, ARGV[3] ttl seconds (0 = none)
const recordScript = `if redis.call("SADD", KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call("INCR", KEYS[2])
if ARGV[2] == "1" then
  redis.call("INCR", KEYS[3])
end
local ttl = tonumber(ARGV[3])
if ttl and ttl > 0 then
  redis.call("EXPIRE", KEYS[1], ttl)
  redis.call("EXPIRE", KEYS[2], ttl)
  if ARGV[2] == "1" then
    redis.call("EXPIRE", KEYS[3], ttl)
  end
end
return 1`

var recorder = redis.NewScript(recordScript)

// RedisUsageStore keeps redemption counters in Redis.
type RedisUsageStore struct {
	R      *redis.Client
	Prefix string
	// TTL bounds how long counters live; zero keeps them forever.
	TTL time.Duration
}

func (s RedisUsageStore) prefix() string {
	if s.Prefix == "" {
		return "voucher"
	}
	return s.Prefix
}

func (s RedisUsageStore) ordersKey(couponID string) string {
	return s.prefix() + ":" + couponID + ":orders"
}

func (s RedisUsageStore) totalKey(couponID string) string {
	return s.prefix() + ":" + couponID + ":uses"
}

func (s RedisUsageStore) userKey(couponID, userID string) string {
	return s.prefix() + ":" + couponID + ":user:" + userID
}

// Usage implements UsageStore.
func (s RedisUsageStore) Usage(ctx context.Context, couponID, userID string) (History, error) {
	if s.R == nil {
		return History{}, errors.New("voucher usage: redis client not configured")
	}
	keys := []string{s.totalKey(couponID)}
	if userID != "" {
		keys = append(keys, s.userKey(couponID, userID))
	}
	vals, err := s.R.MGet(ctx, keys...).Result()
	if err != nil {
		return History{}, err
	}
	var h History
	if h.TotalUses, err = counterValue(vals[0]); err != nil {
		return History{}, err
	}
	if len(vals) > 1 {
		if h.UserUses, err = counterValue(vals[1]); err != nil {
			return History{}, err
		}
	}
	return h, nil
}

// Record implements UsageStore.
func (s RedisUsageStore) Record(ctx context.Context, couponID, userID, orderID string) (bool, error) {
	if s.R == nil {
		return false, errors.New("voucher usage: redis client not configured")
	}
	withUser := "0"
	if userID != "" {
		withUser = "1"
	}
	keys := []string{s.ordersKey(couponID), s.totalKey(couponID), s.userKey(couponID, userID)}
	res, err := recorder.Run(ctx, s.R, keys, orderID, withUser, int64(s.TTL/time.Second)).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func counterValue(v any) (int, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case string:
		return strconv.Atoi(t)
	default:
		return 0, errors.New("voucher usage: unexpected counter type")
	}
}

// MemoryUsageStore is an in-process UsageStore for tests and single-node use.
type MemoryUsageStore struct {
	mu     sync.Mutex
	orders map[string]map[string]struct{}
	total  map[string]int
	user   map[string]int
}

// NewMemoryUsageStore returns an empty store.
func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{
		orders: map[string]map[string]struct{}{},
		total:  map[string]int{},
		user:   map[string]int{},
	}
}

// Usage implements UsageStore.
func (m *MemoryUsageStore) Usage(_ context.Context, couponID, userID string) (History, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := History{TotalUses: m.total[couponID]}
	if userID != "" {
		h.UserUses = m.user[couponID+"\x00"+userID]
	}
	return h, nil
}

// Record implements UsageStore.
func (m *MemoryUsageStore) Record(_ context.Context, couponID, userID, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen, ok := m.orders[couponID]
	if !ok {
		seen = map[string]struct{}{}
		m.orders[couponID] = seen
	}
	if _, dup := seen[orderID]; dup {
		return false, nil
	}
	seen[orderID] = struct{}{}
	m.total[couponID]++
	if userID != "" {
		m.user[couponID+"\x00"+userID]++
	}
	return true, nil
}
