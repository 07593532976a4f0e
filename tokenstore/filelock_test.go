package tokenstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFileLock_AcquireRelease(t *testing.T) {
	target := filepath.Join(t.TempDir(), "tokens.json")

	lock, err := acquireFileLock(context.Background(), target)
	if err != nil {
		t.Fatalf("acquireFileLock() error = %v", err)
	}
	if _, err := os.Stat(target + ".lock"); err != nil {
		t.Errorf("lock file missing while held: %v", err)
	}

	if err := lock.release(); err != nil {
		t.Errorf("release() error = %v", err)
	}
	if _, err := os.Stat(target + ".lock"); !os.IsNotExist(err) {
		t.Errorf("lock file still present after release")
	}
}

func TestFileLock_SerializesWriters(t *testing.T) {
	target := filepath.Join(t.TempDir(), "tokens.json")

	const goroutines = 8
	var (
		wg      sync.WaitGroup
		holders atomic.Int32
		overlap atomic.Bool
	)

	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			lock, err := acquireFileLock(context.Background(), target)
			if err != nil {
				t.Errorf("goroutine %d: acquireFileLock() error = %v", id, err)
				return
			}
			if holders.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(5 * time.Millisecond)
			holders.Add(-1)
			if err := lock.release(); err != nil {
				t.Errorf("goroutine %d: release() error = %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	if overlap.Load() {
		t.Errorf("two holders held the lock at the same time")
	}
}

func TestFileLock_RemovesStaleLock(t *testing.T) {
	target := filepath.Join(t.TempDir(), "tokens.json")
	lockPath := target + ".lock"

	if err := os.WriteFile(lockPath, []byte("12345"), 0o600); err != nil {
		t.Fatalf("write stale lock: %v", err)
	}
	old := time.Now().Add(-lockStaleAfter - 5*time.Second)
	if err := os.Chtimes(lockPath, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	lock, err := acquireFileLock(context.Background(), target)
	if err != nil {
		t.Fatalf("acquireFileLock() error = %v", err)
	}
	defer lock.release()

	if lock.f == nil {
		t.Errorf("lock file handle is nil")
	}
}

func TestFileLock_HonorsContext(t *testing.T) {
	target := filepath.Join(t.TempDir(), "tokens.json")

	held, err := acquireFileLock(context.Background(), target)
	if err != nil {
		t.Fatalf("acquireFileLock() error = %v", err)
	}
	defer held.release()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = acquireFileLock(ctx, target)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("acquireFileLock() error = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("acquireFileLock() ignored context cancellation")
	}
}

func TestFileLock_Timeout(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping lock timeout test in short mode")
	}

	target := filepath.Join(t.TempDir(), "tokens.json")
	if err := os.WriteFile(target+".lock", nil, 0o600); err != nil {
		t.Fatalf("write lock: %v", err)
	}

	start := time.Now()
	_, err := acquireFileLock(context.Background(), target)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatalf("expected timeout error, lock was acquired")
	}
	if elapsed < lockWaitLimit-time.Second || elapsed > lockWaitLimit+2*time.Second {
		t.Errorf("timed out after %v, want about %v", elapsed, lockWaitLimit)
	}
}

func BenchmarkFileLock_AcquireRelease(b *testing.B) {
	target := filepath.Join(b.TempDir(), "tokens.json")
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		lock, err := acquireFileLock(ctx, target)
		if err != nil {
			b.Fatalf("acquireFileLock() error = %v", err)
		}
		if err := lock.release(); err != nil {
			b.Fatalf("release() error = %v", err)
		}
	}
}
