package watch

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/strikezone/internal/testutil"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestWatch_ChangeTriggersOnce(t *testing.T) {
	ranking, crawl := testutil.Exports(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, []string{ranking, crawl}, 50*time.Millisecond, quietLogger(), func(context.Context) {
			runs.Add(1)
		})
	}()
	time.Sleep(100 * time.Millisecond)

	// Several writes in one burst collapse into one run.
	for i := 0; i < 3; i++ {
		_ = os.WriteFile(ranking, []byte(testutil.RankingCSV+"new shoes,https://example.com/a,100,6,\n"), 0o644)
	}
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return runs.Load() == 1
	}, "change did not trigger a run")

	time.Sleep(200 * time.Millisecond)
	if n := runs.Load(); n != 1 {
		t.Errorf("runs = %d, want 1", n)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatch_SameContentSkipped(t *testing.T) {
	ranking, crawl := testutil.Exports(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	go Watch(ctx, []string{ranking, crawl}, 50*time.Millisecond, quietLogger(), func(context.Context) {
		runs.Add(1)
	})
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(crawl, []byte(testutil.CrawlCSV), 0o644)
	time.Sleep(300 * time.Millisecond)
	if n := runs.Load(); n != 0 {
		t.Errorf("runs = %d, want 0 for unchanged content", n)
	}
}

func TestWatch_IgnoresOtherFiles(t *testing.T) {
	ranking, crawl := testutil.Exports(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	go Watch(ctx, []string{ranking, crawl}, 50*time.Millisecond, quietLogger(), func(context.Context) {
		runs.Add(1)
	})
	time.Sleep(100 * time.Millisecond)

	testutil.WriteFile(t, t.TempDir(), "other.csv", "a,b\n")
	_ = os.WriteFile(ranking+".bak", []byte("x"), 0o644)
	time.Sleep(300 * time.Millisecond)
	if n := runs.Load(); n != 0 {
		t.Errorf("runs = %d, want 0", n)
	}
}
