package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiterTest(t *testing.T, rules map[Scope]Rule) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return New(rdb, Config{Rules: rules}), mr
}

func TestHitLimitsAfterMax(t *testing.T) {
	l, mr := newLimiterTest(t, map[Scope]Rule{ScopeOTPIssue: {Max: 2, Window: time.Minute}})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.Hit(ctx, ScopeOTPIssue, "u1"); err != nil {
			t.Fatalf("hit %d: %v", i, err)
		}
	}
	if err := l.Hit(ctx, ScopeOTPIssue, "u1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.Hit(ctx, ScopeOTPIssue, "u2"); err != nil {
		t.Fatalf("other id should not be limited: %v", err)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := l.Hit(ctx, ScopeOTPIssue, "u1"); err != nil {
		t.Fatalf("expected new window, got %v", err)
	}
}

func TestUnconfiguredScopeIsUnlimited(t *testing.T) {
	l, _ := newLimiterTest(t, nil)
	for i := 0; i < 10; i++ {
		if err := l.Hit(context.Background(), ScopeRefresh, "s1"); err != nil {
			t.Fatalf("unexpected limit: %v", err)
		}
	}
}

func TestRemainingAndReset(t *testing.T) {
	l, _ := newLimiterTest(t, map[Scope]Rule{ScopeResetRequest: {Max: 3, Window: time.Hour}})
	ctx := context.Background()

	_ = l.Hit(ctx, ScopeResetRequest, "a@example.com")
	left, err := l.Remaining(ctx, ScopeResetRequest, "a@example.com")
	if err != nil || left != 2 {
		t.Fatalf("expected 2 remaining, got %d (%v)", left, err)
	}
	if err := l.Reset(ctx, ScopeResetRequest, "a@example.com"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	left, _ = l.Remaining(ctx, ScopeResetRequest, "a@example.com")
	if left != 3 {
		t.Fatalf("expected full budget after reset, got %d", left)
	}
}
