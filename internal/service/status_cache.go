package service

import (
	"context"
	"encoding/json"
	"fmt"
	"lingo_edu_backend/pkg/logger"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// 未就绪的状态很快会被发布操作改变，缓存时间不超过这个值
const notReadyStatusTTL = 30 * time.Second

// StatusCache 缓存测试的发布就绪状态。
// 每次 Invalidate 都会推进该测试的代数，Set 时带上读库前取到的代数，
// 代数已变化的条目在 Get 时视为未命中，避免慢读者把旧状态写回。
type StatusCache interface {
	Get(ctx context.Context, testID uint) (*TestStatus, bool)
	Generation(ctx context.Context, testID uint) (int64, bool)
	Set(ctx context.Context, status *TestStatus, gen int64)
	Invalidate(ctx context.Context, testID uint)
}

// NewStatusCache 未配置 Redis 时退回进程内缓存
func NewStatusCache(rdb *redis.Client, ttl time.Duration) StatusCache {
	if rdb == nil {
		return NewMemoryStatusCache(ttl)
	}
	return &RedisStatusCache{Redis: rdb, TTL: ttl}
}

func statusTTL(status *TestStatus, ttl time.Duration) time.Duration {
	if !status.IsReady && ttl > notReadyStatusTTL {
		return notReadyStatusTTL
	}
	return ttl
}

type noopStatusCache struct{}

func (noopStatusCache) Get(context.Context, uint) (*TestStatus, bool)  { return nil, false }
func (noopStatusCache) Generation(context.Context, uint) (int64, bool) { return 0, false }
func (noopStatusCache) Set(context.Context, *TestStatus, int64)        {}
func (noopStatusCache) Invalidate(context.Context, uint)               {}

type cachedStatus struct {
	Gen     int64      `json:"gen"`
	Status  TestStatus `json:"status"`
	expires time.Time
}

// MemoryStatusCache 单实例部署使用
type MemoryStatusCache struct {
	TTL time.Duration
	Now func() time.Time

	mu      sync.Mutex
	entries map[uint]cachedStatus
	gens    map[uint]int64
}

func NewMemoryStatusCache(ttl time.Duration) *MemoryStatusCache {
	return &MemoryStatusCache{
		TTL:     ttl,
		Now:     time.Now,
		entries: make(map[uint]cachedStatus),
		gens:    make(map[uint]int64),
	}
}

func (c *MemoryStatusCache) Get(_ context.Context, testID uint) (*TestStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[testID]
	if !ok || e.Gen != c.gens[testID] || !c.Now().Before(e.expires) {
		return nil, false
	}
	status := e.Status
	return &status, true
}

func (c *MemoryStatusCache) Generation(_ context.Context, testID uint) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[testID], true
}

func (c *MemoryStatusCache) Set(_ context.Context, status *TestStatus, gen int64) {
	ttl := statusTTL(status, c.TTL)
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gens[status.TestID] {
		return
	}
	c.entries[status.TestID] = cachedStatus{Gen: gen, Status: *status, expires: c.Now().Add(ttl)}
}

func (c *MemoryStatusCache) Invalidate(_ context.Context, testID uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[testID]++
	delete(c.entries, testID)
}

type RedisStatusCache struct {
	Redis *redis.Client
	TTL   time.Duration
}

func statusKey(testID uint) string {
	return fmt.Sprintf("online_test:status:%d", testID)
}

func statusGenKey(testID uint) string {
	return fmt.Sprintf("online_test:status_gen:%d", testID)
}

func parseGen(v interface{}) (int64, bool) {
	if v == nil {
		return 0, true
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}

func (c *RedisStatusCache) Get(ctx context.Context, testID uint) (*TestStatus, bool) {
	vals, err := c.Redis.MGet(ctx, statusKey(testID), statusGenKey(testID)).Result()
	if err != nil {
		logger.Log.Warn("status cache get failed", zap.Uint("testId", testID), zap.Error(err))
		return nil, false
	}
	raw, ok := vals[0].(string)
	if !ok {
		return nil, false
	}
	gen, ok := parseGen(vals[1])
	if !ok {
		return nil, false
	}
	var entry cachedStatus
	if err := json.Unmarshal([]byte(raw), &entry); err != nil || entry.Gen != gen {
		return nil, false
	}
	return &entry.Status, true
}

func (c *RedisStatusCache) Generation(ctx context.Context, testID uint) (int64, bool) {
	gen, err := c.Redis.Get(ctx, statusGenKey(testID)).Int64()
	if err == redis.Nil {
		return 0, true
	}
	if err != nil {
		logger.Log.Warn("status cache generation failed", zap.Uint("testId", testID), zap.Error(err))
		return 0, false
	}
	return gen, true
}

func (c *RedisStatusCache) Set(ctx context.Context, status *TestStatus, gen int64) {
	b, err := json.Marshal(cachedStatus{Gen: gen, Status: *status})
	if err != nil {
		return
	}
	if err := c.Redis.Set(ctx, statusKey(status.TestID), b, statusTTL(status, c.TTL)).Err(); err != nil {
		logger.Log.Warn("status cache set failed", zap.Uint("testId", status.TestID), zap.Error(err))
	}
}

func (c *RedisStatusCache) Invalidate(ctx context.Context, testID uint) {
	_, err := c.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, statusGenKey(testID))
		pipe.Del(ctx, statusKey(testID))
		return nil
	})
	if err != nil {
		logger.Log.Warn("status cache invalidate failed", zap.Uint("testId", testID), zap.Error(err))
	}
}
