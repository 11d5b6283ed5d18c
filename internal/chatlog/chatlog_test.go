package chatlog

import (
	"testing"

	"listing-sniper/internal/corelog"
)

func TestEnqueueDropsWhenFull(t *testing.T) {
	q := &Queue{ch: make(chan entry, 1), log: corelog.New("test")}

	q.Enqueue("first")
	// Second call would block on a send to the full one-slot channel; the
	// select/default path must drop it instead of blocking the caller.
	done := make(chan struct{})
	go func() {
		q.Enqueue("second")
		close(done)
	}()
	<-done

	if len(q.ch) != 1 {
		t.Fatalf("expected queue to retain only the first entry, got len=%d", len(q.ch))
	}
}
