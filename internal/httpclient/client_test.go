package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetTooManyRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New()
	_, err := c.Get(context.Background(), srv.URL, OutputJSON, nil)
	tmr, ok := err.(*TooManyRequests)
	if !ok {
		t.Fatalf("expected *TooManyRequests, got %T (%v)", err, err)
	}
	if tmr.RetryAfter != 30 {
		t.Errorf("RetryAfter = %d, want 30", tmr.RetryAfter)
	}
}

func TestGetTooManyRequestsNoHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New()
	_, err := c.Get(context.Background(), srv.URL, OutputJSON, nil)
	tmr, ok := err.(*TooManyRequests)
	if !ok {
		t.Fatalf("expected *TooManyRequests, got %T", err)
	}
	if tmr.RetryAfter != 0 {
		t.Errorf("RetryAfter = %d, want 0", tmr.RetryAfter)
	}
}

func TestGetOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("expected a User-Agent header")
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New()
	data, err := c.Get(context.Background(), srv.URL, OutputJSON, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("body = %q", data)
	}
}

func TestStripLeadingJunk(t *testing.T) {
	in := []byte(`while(1);{"a":1}`)
	out := StripLeadingJunk(in)
	if string(out) != `{"a":1}` {
		t.Errorf("got %q", out)
	}
}
