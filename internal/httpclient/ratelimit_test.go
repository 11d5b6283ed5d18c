package httpclient

import (
	"testing"
	"time"
)

func TestRateLimiterRefillsAfterInterval(t *testing.T) {
	rl := NewRateLimiter(1, 50*time.Millisecond)

	if !rl.allow() {
		t.Fatal("expected first request to be allowed")
	}
	if rl.allow() {
		t.Fatal("expected second request to be denied before refill")
	}

	time.Sleep(60 * time.Millisecond)
	if !rl.allow() {
		t.Fatal("expected request to be allowed after refill interval")
	}
}
