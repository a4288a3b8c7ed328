package valkey

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/socialpulse/commentguard/storage"
)

// ============================================================
// Lua Scripts for Atomic Operations
// ============================================================
//
// These Lua scripts provide the atomic steps the rate limiter depends on.
// Using Lua ensures atomicity in Valkey/Redis, preventing two concurrent
// requests for the same identity from both being admitted when only one
// unit of quota remains.

// luaIncrementWithWindow atomically increments a fixed-window counter and
// sets its expiry on the first increment, so a crash between INCR and
// EXPIRE cannot leave an immortal counter.
//
// KEYS[1] = counter key (e.g., "cg:rl:user-1:write")
// ARGV[1] = window length in milliseconds
//
// Returns: {post-increment count, remaining ttl in milliseconds}
const luaIncrementWithWindow = `
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local pttl = redis.call('PTTL', KEYS[1])
if pttl < 0 then
    redis.call('PEXPIRE', KEYS[1], ARGV[1])
    pttl = tonumber(ARGV[1])
end
return {count, pttl}
`

// luaTakeToken refills a token bucket for the time elapsed since its last
// access and, when ARGV[4] is 1, takes one token if available. Refill,
// check, and decrement are a single atomic step.
//
// SECURITY: This operation MUST be atomic - a read-then-write pair would
// let two concurrent callers both observe the last remaining token.
//
// KEYS[1] = bucket key (e.g., "cg:tb:user-1:write")
// ARGV[1] = capacity (tokens)
// ARGV[2] = refill rate in tokens per millisecond
// ARGV[3] = current time in Unix milliseconds
// ARGV[4] = 1 to take a token, 0 to peek
// ARGV[5] = bucket state TTL in milliseconds
//
// Returns: {allowed (0/1), whole tokens remaining, reset time in Unix ms}
const luaTakeToken = `
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local take = tonumber(ARGV[4])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
    tokens = capacity
    ts = now
end

local elapsed = now - ts
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed * refill)
end

local allowed = 0
if tokens >= 1 then
    allowed = 1
    if take == 1 then
        tokens = tokens - 1
    end
end

if take == 1 then
    redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', tostring(now))
    redis.call('PEXPIRE', KEYS[1], ARGV[5])
end

local reset = now
if refill > 0 and tokens < capacity then
    reset = now + math.ceil((capacity - tokens) / refill)
end

return {allowed, math.floor(tokens), reset}
`

// IncrementWithWindow atomically increments the counter, setting its expiry
// to window on the first increment.
func (s *Store) IncrementWithWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	result, err := s.client.Do(ctx,
		s.client.B().Eval().Script(luaIncrementWithWindow).
			Numkeys(1).
			Key(s.key(key)).
			Arg(strconv.FormatInt(window.Milliseconds(), 10)).
			Build(),
	).ToArray()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to execute atomic increment: %w", err)
	}
	if len(result) != 2 {
		return 0, 0, fmt.Errorf("unexpected increment script result length %d", len(result))
	}

	count, err := result[0].AsInt64()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse counter value: %w", err)
	}
	ttlMs, err := result[1].AsInt64()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse counter ttl: %w", err)
	}

	return count, time.Duration(ttlMs) * time.Millisecond, nil
}

// TakeToken atomically refills the bucket and takes one token if available.
func (s *Store) TakeToken(ctx context.Context, key string, capacity int, refillPerSecond float64) (storage.TokenBucketResult, error) {
	return s.bucketStep(ctx, key, capacity, refillPerSecond, true)
}

// PeekToken computes the bucket state without consuming a token.
func (s *Store) PeekToken(ctx context.Context, key string, capacity int, refillPerSecond float64) (storage.TokenBucketResult, error) {
	return s.bucketStep(ctx, key, capacity, refillPerSecond, false)
}

func (s *Store) bucketStep(ctx context.Context, key string, capacity int, refillPerSecond float64, take bool) (storage.TokenBucketResult, error) {
	takeArg := "0"
	if take {
		takeArg = "1"
	}

	// Keep bucket state around long enough for a full refill from empty,
	// with margin; an evicted idle bucket simply restarts full.
	ttl := 2 * time.Duration(float64(capacity)/refillPerSecond*float64(time.Second))
	if ttl < time.Minute {
		ttl = time.Minute
	}

	result, err := s.client.Do(ctx,
		s.client.B().Eval().Script(luaTakeToken).
			Numkeys(1).
			Key(s.key(key)).
			Arg(strconv.Itoa(capacity)).
			Arg(formatFloat(refillPerSecond / 1000.0)).
			Arg(strconv.FormatInt(time.Now().UnixMilli(), 10)).
			Arg(takeArg).
			Arg(strconv.FormatInt(ttl.Milliseconds(), 10)).
			Build(),
	).ToArray()
	if err != nil {
		return storage.TokenBucketResult{}, fmt.Errorf("failed to execute atomic bucket step: %w", err)
	}
	if len(result) != 3 {
		return storage.TokenBucketResult{}, fmt.Errorf("unexpected bucket script result length %d", len(result))
	}

	allowed, err := result[0].AsInt64()
	if err != nil {
		return storage.TokenBucketResult{}, fmt.Errorf("failed to parse allowed flag: %w", err)
	}
	remaining, err := result[1].AsInt64()
	if err != nil {
		return storage.TokenBucketResult{}, fmt.Errorf("failed to parse remaining tokens: %w", err)
	}
	resetMs, err := result[2].AsInt64()
	if err != nil {
		return storage.TokenBucketResult{}, fmt.Errorf("failed to parse reset timestamp: %w", err)
	}

	return storage.TokenBucketResult{
		Allowed:   allowed == 1,
		Remaining: int(remaining),
		ResetAt:   time.UnixMilli(resetMs),
	}, nil
}
