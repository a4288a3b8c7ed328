package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/socialpulse/commentguard/storage"
	"github.com/socialpulse/commentguard/storage/memory"
)

func testConfig() Config {
	return Config{
		ReadLimit:            5,
		ReadWindow:           time.Minute,
		ModerateLimit:        3,
		ModerateWindow:       time.Minute,
		WriteCapacity:        3,
		WriteRefillPerSecond: 1.0,
		FailureThreshold:     3,
		FailureWindow:        time.Hour,
		BlockDuration:        time.Hour,
	}
}

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *memory.CounterStore, *time.Time) {
	t.Helper()

	store := memory.NewCounterStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	l, err := New(store, cfg, nil, slog.Default())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return l, store, &now
}

func TestCheckFixedWindow(t *testing.T) {
	l, _, _ := newTestLimiter(t, testConfig())
	ctx := context.Background()

	// Requests 1..5 consume the window
	for i := 1; i <= 5; i++ {
		res, err := l.Check(ctx, "user-1", OpRead)
		if err != nil {
			t.Fatalf("Check() request %d error = %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("Check() request %d denied, want allowed", i)
		}
		if res.Remaining != 5-i {
			t.Errorf("Check() request %d remaining = %d, want %d", i, res.Remaining, 5-i)
		}
	}

	// Request 6 exceeds the limit
	res, err := l.Check(ctx, "user-1", OpRead)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if res.Allowed {
		t.Error("Check() request 6 allowed, want denied")
	}
	if res.RetryAfter <= 0 {
		t.Errorf("Check() RetryAfter = %v, want > 0", res.RetryAfter)
	}
}

func TestCheckWindowExpiry(t *testing.T) {
	l, _, now := newTestLimiter(t, testConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if res, _ := l.Check(ctx, "user-1", OpRead); !res.Allowed {
			t.Fatalf("setup request %d denied", i)
		}
	}
	if res, _ := l.Check(ctx, "user-1", OpRead); res.Allowed {
		t.Fatal("request over limit allowed")
	}

	// The window expires and quota comes back
	*now = now.Add(time.Minute + time.Second)

	res, err := l.Check(ctx, "user-1", OpRead)
	if err != nil {
		t.Fatalf("Check() after expiry error = %v", err)
	}
	if !res.Allowed {
		t.Error("Check() after window expiry denied, want allowed")
	}
	if res.Remaining != 4 {
		t.Errorf("Check() after expiry remaining = %d, want 4", res.Remaining)
	}
}

func TestCheckIdentityIsolation(t *testing.T) {
	l, _, _ := newTestLimiter(t, testConfig())
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		l.Check(ctx, "user-1", OpRead)
	}

	// A different identity has its own window
	res, err := l.Check(ctx, "user-2", OpRead)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !res.Allowed {
		t.Error("Check() for fresh identity denied, want allowed")
	}
}

func TestCheckOperationClassIsolation(t *testing.T) {
	l, _, _ := newTestLimiter(t, testConfig())
	ctx := context.Background()

	// Exhaust the moderate window
	for i := 0; i < 4; i++ {
		l.Check(ctx, "user-1", OpModerate)
	}
	if res, _ := l.Check(ctx, "user-1", OpModerate); res.Allowed {
		t.Fatal("moderate over limit allowed")
	}

	// Reads are unaffected
	res, err := l.Check(ctx, "user-1", OpRead)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !res.Allowed {
		t.Error("Check(read) denied after moderate exhaustion, want allowed")
	}
}

func TestCheckTokenBucket(t *testing.T) {
	l, _, now := newTestLimiter(t, testConfig())
	ctx := context.Background()

	// Full burst of 3 is available immediately
	for i := 0; i < 3; i++ {
		res, err := l.Check(ctx, "user-1", OpWrite)
		if err != nil {
			t.Fatalf("Check() write %d error = %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("Check() write %d denied, want allowed", i)
		}
	}

	// Bucket empty
	res, _ := l.Check(ctx, "user-1", OpWrite)
	if res.Allowed {
		t.Error("Check() with empty bucket allowed, want denied")
	}

	// One second refills one token
	*now = now.Add(time.Second)
	res, _ = l.Check(ctx, "user-1", OpWrite)
	if !res.Allowed {
		t.Error("Check() after refill denied, want allowed")
	}

	// But only one
	res, _ = l.Check(ctx, "user-1", OpWrite)
	if res.Allowed {
		t.Error("Check() second request after single refill allowed, want denied")
	}
}

func TestCheckTokenBucketClampsAtCapacity(t *testing.T) {
	l, _, now := newTestLimiter(t, testConfig())
	ctx := context.Background()

	// Establish bucket state, then idle far longer than a full refill
	l.Check(ctx, "user-1", OpWrite)
	*now = now.Add(time.Hour)

	for i := 0; i < 3; i++ {
		res, _ := l.Check(ctx, "user-1", OpWrite)
		if !res.Allowed {
			t.Fatalf("Check() write %d after idle denied, want allowed", i)
		}
	}
	if res, _ := l.Check(ctx, "user-1", OpWrite); res.Allowed {
		t.Error("Check() write past capacity allowed, want clamped at capacity")
	}
}

func TestStatusDoesNotConsume(t *testing.T) {
	l, _, _ := newTestLimiter(t, testConfig())
	ctx := context.Background()

	l.Check(ctx, "user-1", OpRead)

	for i := 0; i < 3; i++ {
		res, err := l.Status(ctx, "user-1", OpRead)
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if res.Remaining != 4 {
			t.Errorf("Status() call %d remaining = %d, want 4", i, res.Remaining)
		}
	}

	// Write class status is non-consuming too
	for i := 0; i < 3; i++ {
		res, err := l.Status(ctx, "user-1", OpWrite)
		if err != nil {
			t.Fatalf("Status(write) error = %v", err)
		}
		if res.Remaining != 3 {
			t.Errorf("Status(write) call %d remaining = %d, want 3", i, res.Remaining)
		}
	}
}

func TestStatusFreshIdentity(t *testing.T) {
	l, _, _ := newTestLimiter(t, testConfig())

	res, err := l.Status(context.Background(), "never-seen", OpRead)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !res.Allowed || res.Remaining != 5 {
		t.Errorf("Status() for fresh identity = %+v, want allowed with full quota", res)
	}
}

func TestStatusReportsBlockedIdentity(t *testing.T) {
	l, _, _ := newTestLimiter(t, testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		l.RecordFailedAttempt(ctx, "attacker")
	}
	if blocked, _, _ := l.IsBlocked(ctx, "attacker"); !blocked {
		t.Fatal("identity not blocked after threshold")
	}

	// Status mirrors the denial Check would return, untouched quota or not
	for _, op := range []Operation{OpRead, OpWrite, OpModerate} {
		res, err := l.Status(ctx, "attacker", op)
		if err != nil {
			t.Fatalf("Status(%s) error = %v", op, err)
		}
		if res.Allowed {
			t.Errorf("Status(%s) for blocked identity allowed, want denied", op)
		}
		if res.RetryAfter <= 0 {
			t.Errorf("Status(%s) RetryAfter = %v, want > 0", op, res.RetryAfter)
		}
	}
}

func TestRecordFailedAttemptBlocks(t *testing.T) {
	l, _, _ := newTestLimiter(t, testConfig())
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		blocked, err := l.RecordFailedAttempt(ctx, "attacker")
		if err != nil {
			t.Fatalf("RecordFailedAttempt() %d error = %v", i, err)
		}
		if blocked {
			t.Fatalf("RecordFailedAttempt() %d blocked below threshold", i)
		}
	}

	blocked, err := l.RecordFailedAttempt(ctx, "attacker")
	if err != nil {
		t.Fatalf("RecordFailedAttempt() error = %v", err)
	}
	if !blocked {
		t.Fatal("RecordFailedAttempt() at threshold did not block")
	}

	// Blocked identities are denied on every operation class
	for _, op := range []Operation{OpRead, OpWrite, OpModerate} {
		res, err := l.Check(ctx, "attacker", op)
		if err != nil {
			t.Fatalf("Check(%s) error = %v", op, err)
		}
		if res.Allowed {
			t.Errorf("Check(%s) for blocked identity allowed, want denied", op)
		}
		if res.RetryAfter <= 0 {
			t.Errorf("Check(%s) RetryAfter = %v, want > 0", op, res.RetryAfter)
		}
	}

	// Other identities are untouched
	if res, _ := l.Check(ctx, "bystander", OpRead); !res.Allowed {
		t.Error("Check() for unblocked identity denied")
	}
}

func TestBlockExpires(t *testing.T) {
	l, _, now := newTestLimiter(t, testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		l.RecordFailedAttempt(ctx, "attacker")
	}
	if blocked, _, _ := l.IsBlocked(ctx, "attacker"); !blocked {
		t.Fatal("identity not blocked after threshold")
	}

	*now = now.Add(time.Hour + time.Minute)

	blocked, _, err := l.IsBlocked(ctx, "attacker")
	if err != nil {
		t.Fatalf("IsBlocked() error = %v", err)
	}
	if blocked {
		t.Error("IsBlocked() = true after block duration elapsed")
	}
}

func TestReset(t *testing.T) {
	l, _, _ := newTestLimiter(t, testConfig())
	ctx := context.Background()

	// Exhaust a window, empty the bucket, and trigger a block
	for i := 0; i < 6; i++ {
		l.Check(ctx, "user-1", OpRead)
	}
	for i := 0; i < 4; i++ {
		l.Check(ctx, "user-1", OpWrite)
	}
	for i := 0; i < 3; i++ {
		l.RecordFailedAttempt(ctx, "user-1")
	}

	if err := l.Reset(ctx, "user-1"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	if blocked, _, _ := l.IsBlocked(ctx, "user-1"); blocked {
		t.Error("IsBlocked() = true after Reset")
	}
	if res, _ := l.Check(ctx, "user-1", OpRead); !res.Allowed {
		t.Error("Check(read) denied after Reset")
	}
	if res, _ := l.Check(ctx, "user-1", OpWrite); !res.Allowed {
		t.Error("Check(write) denied after Reset")
	}
}

// failingStore simulates an unreachable counter backend.
type failingStore struct{}

var errStoreDown = errors.New("connection refused")

func (failingStore) Get(context.Context, string) (string, error) { return "", errStoreDown }
func (failingStore) Set(context.Context, string, string, time.Duration) error {
	return errStoreDown
}
func (failingStore) IncrementWithWindow(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errStoreDown
}
func (failingStore) TakeToken(context.Context, string, int, float64) (storage.TokenBucketResult, error) {
	return storage.TokenBucketResult{}, errStoreDown
}
func (failingStore) PeekToken(context.Context, string, int, float64) (storage.TokenBucketResult, error) {
	return storage.TokenBucketResult{}, errStoreDown
}
func (failingStore) TTL(context.Context, string) (time.Duration, error) { return 0, errStoreDown }
func (failingStore) Delete(context.Context, ...string) error            { return errStoreDown }

func TestFailOpen(t *testing.T) {
	l, err := New(failingStore{}, testConfig(), nil, slog.Default())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for _, op := range []Operation{OpRead, OpWrite, OpModerate} {
		res, err := l.Check(context.Background(), "user-1", op)
		if err != nil {
			t.Fatalf("Check(%s) error = %v", op, err)
		}
		if !res.Allowed {
			t.Errorf("Check(%s) with store down denied, want fail-open", op)
		}
		if !res.FailedOpen {
			t.Errorf("Check(%s) FailedOpen = false, want true", op)
		}
	}
}

func TestFailClosed(t *testing.T) {
	cfg := testConfig()
	cfg.FailClosed = true

	l, err := New(failingStore{}, cfg, nil, slog.Default())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := l.Check(context.Background(), "user-1", OpRead)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if res.Allowed {
		t.Error("Check() with store down allowed, want fail-closed denial")
	}
}

func TestCheckUnknownOperation(t *testing.T) {
	l, _, _ := newTestLimiter(t, testConfig())

	if _, err := l.Check(context.Background(), "user-1", Operation("delete-everything")); err == nil {
		t.Error("Check() with unknown operation succeeded, want error")
	}
}

func TestCheckRequiresIdentity(t *testing.T) {
	l, _, _ := newTestLimiter(t, testConfig())

	if _, err := l.Check(context.Background(), "", OpRead); err == nil {
		t.Error("Check() with empty identity succeeded, want error")
	}
}
