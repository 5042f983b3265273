package ids

import (
	"testing"
	"time"
)

func TestNewIsMonotonic(t *testing.T) {
	now := time.Now()
	prev := At(now)
	for i := 0; i < 100; i++ {
		next := At(now)
		if next <= prev {
			t.Fatalf("expected increasing ids, got %s after %s", next, prev)
		}
		prev = next
	}
}
