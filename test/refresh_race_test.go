//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MrEthical07/tenantauth"
)

func TestRefreshRaceSingleWinner(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Refresh.MaxAttempts = 0
	eng, n := newEngine(t, newMiniredis(t), seededStore(), cfg)
	pair := signIn(t, eng, n, "race@c1.test")

	const workers = 16
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)

	type outcome struct {
		pair *tenantauth.TokenPair
		err  error
	}
	results := make(chan outcome, workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			p, err := eng.Refresh(ctx, pair.RefreshToken)
			results <- outcome{p, err}
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	var (
		winner *tenantauth.TokenPair
		reused int
	)
	for r := range results {
		switch {
		case r.err == nil:
			if winner != nil {
				t.Fatal("more than one refresh succeeded")
			}
			winner = r.pair
		case errors.Is(r.err, tenantauth.ErrRefreshReused):
			reused++
		default:
			t.Fatalf("unexpected refresh error: %v", r.err)
		}
	}
	if winner == nil {
		t.Fatal("no refresh succeeded")
	}
	if reused != workers-1 {
		t.Fatalf("expected %d reuse failures, got %d", workers-1, reused)
	}

	// Reuse revoked the whole family, including the winner's new session.
	if _, err := eng.Refresh(ctx, winner.RefreshToken); err == nil {
		t.Fatal("winner token survived reuse detection")
	}
	if _, err := eng.ValidateAccessMode(ctx, winner.AccessToken, tenantauth.ModeStrict); !errors.Is(err, tenantauth.ErrTokenInvalid) {
		t.Fatalf("expected strict validation to fail after revocation, got %v", err)
	}
}
