package proxy

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPool_AddAndNext(t *testing.T) {
	pool := NewPool(Config{})

	if err := pool.Add("127.0.0.1:8080", "http://127.0.0.1:8081", "socks5://127.0.0.1:9050", "127.0.0.1:8080"); err != nil {
		t.Fatalf("unexpected error adding proxies: %v", err)
	}
	if pool.Len() != 3 {
		t.Fatalf("expected duplicates to be ignored, got %d proxies", pool.Len())
	}

	want := []string{
		"http://127.0.0.1:8080",
		"http://127.0.0.1:8081",
		"socks5://127.0.0.1:9050",
		"http://127.0.0.1:8080",
	}
	for i, w := range want {
		if got := pool.Next(); got == nil || got.String() != w {
			t.Errorf("call %d: expected %s, got %v", i, w, got)
		}
	}
}

func TestPool_BenchAndRevive(t *testing.T) {
	pool := NewPool(Config{MaxFailures: 2, Cooldown: time.Minute})
	now := time.Now()
	pool.now = func() time.Time { return now }

	_ = pool.Add("http://a", "http://b")

	a := pool.Next()
	_ = pool.Report(a, false)
	_ = pool.Report(a, false)

	for i := 0; i < 3; i++ {
		if got := pool.Next(); got.String() != "http://b" {
			t.Fatalf("expected benched proxy to be skipped, got %v", got)
		}
	}

	b, _ := url.Parse("http://b")
	_ = pool.Report(b, false)
	_ = pool.Report(b, false)
	if got := pool.Next(); got != nil {
		t.Fatalf("expected nil when all proxies are benched, got %v", got)
	}

	now = now.Add(2 * time.Minute)
	if got := pool.Next(); got == nil {
		t.Fatalf("expected proxies to revive after cooldown")
	}
}

func TestPool_SuccessForgivesFailure(t *testing.T) {
	pool := NewPool(Config{MaxFailures: 2})
	_ = pool.Add("http://a")
	a := pool.Next()

	_ = pool.Report(a, false)
	_ = pool.Report(a, true)
	_ = pool.Report(a, false)

	if got := pool.Next(); got == nil {
		t.Errorf("proxy should not be benched after a forgiven failure")
	}
}

func TestPool_ReportUnknown(t *testing.T) {
	pool := NewPool(Config{})
	u, _ := url.Parse("http://nowhere")
	if err := pool.Report(u, true); !errors.Is(err, ErrUnknownProxy) {
		t.Errorf("expected ErrUnknownProxy, got %v", err)
	}
	if err := pool.Report(nil, true); !errors.Is(err, ErrUnknownProxy) {
		t.Errorf("expected ErrUnknownProxy for nil, got %v", err)
	}
}

func TestPool_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.txt")
	content := "# comment\n\nhttp://one:1\ntwo:2\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	pool := NewPool(Config{})
	if err := pool.LoadFile(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pool.Len() != 2 {
		t.Errorf("expected 2 proxies, got %d", pool.Len())
	}
}
