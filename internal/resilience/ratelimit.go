package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/atendai/conversation-pipeline/pkg/logger"
	"github.com/atendai/conversation-pipeline/pkg/metrics"
)

// Preset identifies a rate-limit profile.
type Preset string

const (
	PresetAuth    Preset = "auth"
	PresetAPI     Preset = "api"
	PresetWebhook Preset = "webhook"
	PresetAI      Preset = "ai"
	PresetAdmin   Preset = "admin"
	PresetUpload  Preset = "upload"
)

type presetConfig struct {
	limit  int
	window time.Duration
}

var presets = map[Preset]presetConfig{
	PresetAuth:    {limit: 10, window: time.Minute},
	PresetAPI:     {limit: 100, window: time.Minute},
	PresetWebhook: {limit: 50, window: time.Second},
	PresetAI:      {limit: 30, window: time.Minute},
	PresetAdmin:   {limit: 200, window: time.Minute},
	PresetUpload:  {limit: 20, window: time.Minute},
}

// LimitResult reports the outcome of a rate-limit check.
type LimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type localCounter struct {
	count   int
	resetAt time.Time
}

// RateLimiter is a fixed-window counter keyed by (preset, identifier). The
// shared store is Redis; when it is unavailable the limiter falls back to
// an in-process counter map, preserving a best-effort single-process limit
// rather than failing open entirely.
type RateLimiter struct {
	rdb    *redis.Client
	logger *logger.Logger

	mu    sync.Mutex
	local map[string]*localCounter

	now func() time.Time
}

// NewRateLimiter creates a rate limiter. rdb may be nil, in which case
// only the local fallback is used.
func NewRateLimiter(rdb *redis.Client, log *logger.Logger) *RateLimiter {
	return &RateLimiter{
		rdb:    rdb,
		logger: log,
		local:  make(map[string]*localCounter),
		now:    time.Now,
	}
}

// Allow checks and consumes one unit of the identifier's window.
func (rl *RateLimiter) Allow(ctx context.Context, preset Preset, identifier string) LimitResult {
	cfg, ok := presets[preset]
	if !ok {
		cfg = presets[PresetAPI]
	}

	key := fmt.Sprintf("ratelimit:%s:%s", preset, identifier)

	if rl.rdb != nil {
		res, err := rl.allowRedis(ctx, key, cfg)
		if err == nil {
			if !res.Allowed {
				metrics.RateLimitRejections.WithLabelValues(string(preset)).Inc()
			}
			return res
		}
		rl.logger.Warn("rate limit store unavailable, using local fallback",
			zap.String("preset", string(preset)),
			zap.Error(err),
		)
	}

	res := rl.allowLocal(key, cfg)
	if !res.Allowed {
		metrics.RateLimitRejections.WithLabelValues(string(preset)).Inc()
	}
	return res
}

func (rl *RateLimiter) allowRedis(ctx context.Context, key string, cfg presetConfig) (LimitResult, error) {
	count, err := rl.rdb.Incr(ctx, key).Result()
	if err != nil {
		return LimitResult{}, err
	}
	if count == 1 {
		if err := rl.rdb.Expire(ctx, key, cfg.window).Err(); err != nil {
			return LimitResult{}, err
		}
	}

	ttl, err := rl.rdb.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = cfg.window
	}

	remaining := cfg.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return LimitResult{
		Allowed:   int(count) <= cfg.limit,
		Limit:     cfg.limit,
		Remaining: remaining,
		ResetAt:   rl.now().Add(ttl),
	}, nil
}

func (rl *RateLimiter) allowLocal(key string, cfg presetConfig) LimitResult {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, ok := rl.local[key]
	if !ok || now.After(c.resetAt) {
		c = &localCounter{resetAt: now.Add(cfg.window)}
		rl.local[key] = c
	}
	c.count++

	remaining := cfg.limit - c.count
	if remaining < 0 {
		remaining = 0
	}

	return LimitResult{
		Allowed:   c.count <= cfg.limit,
		Limit:     cfg.limit,
		Remaining: remaining,
		ResetAt:   c.resetAt,
	}
}
