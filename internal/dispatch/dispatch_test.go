package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testLogger() *zap.Logger { return zap.NewNop() }

func TestDo_RunsJobAndReturnsResult(t *testing.T) {
	d := New(8, testLogger())
	d.Start(context.Background())
	defer d.Stop()

	got := 0
	err := d.Do(context.Background(), func() error {
		got = 42
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != 42 {
		t.Errorf("job did not run, got = %d", got)
	}
}

func TestDo_PropagatesJobError(t *testing.T) {
	d := New(8, testLogger())
	d.Start(context.Background())
	defer d.Stop()

	wantErr := errors.New("boom")
	err := d.Do(context.Background(), func() error { return wantErr })
	if err != wantErr {
		t.Errorf("Do() error = %v, want %v", err, wantErr)
	}
}

func TestDo_SerializesConcurrentJobs(t *testing.T) {
	d := New(64, testLogger())
	d.Start(context.Background())
	defer d.Stop()

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = d.Do(context.Background(), func() error {
				mu.Lock()
				order = append(order, n)
				mu.Unlock()
				return nil
			})
		}(i)
	}
	wg.Wait()

	if len(order) != 20 {
		t.Fatalf("len(order) = %d, want 20", len(order))
	}
}

func TestRunning_ReflectsLifecycle(t *testing.T) {
	d := New(8, testLogger())
	if d.Running() {
		t.Error("Running() before Start() = true")
	}
	d.Start(context.Background())
	if !d.Running() {
		t.Error("Running() after Start() = false")
	}
	d.Stop()
	if d.Running() {
		t.Error("Running() after Stop() = true")
	}
}

func TestRun_RecoversPanic(t *testing.T) {
	d := New(8, testLogger())
	d.Start(context.Background())
	defer d.Stop()

	d.run(func() { panic("job panic") })

	got := 0
	if err := d.Do(context.Background(), func() error { got = 1; return nil }); err != nil {
		t.Fatalf("Do() after a panicking job = %v", err)
	}
	if got != 1 {
		t.Error("dispatcher goroutine did not survive a panicking job")
	}
}

func TestDo_ContextCanceledBeforePost(t *testing.T) {
	d := New(8, testLogger())
	d.Start(context.Background())
	defer d.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Do(ctx, func() error { return nil })
	if err == nil {
		t.Error("Do() with a canceled context = nil error, want non-nil")
	}
}

func TestPost_TimesOutWhenMailboxFull(t *testing.T) {
	d := New(1, testLogger())
	// Do not Start: nothing drains the mailbox, so the first Post fills
	// it and a second Post with a short deadline must time out.
	ok1 := d.Post(context.Background(), func() {})
	if !ok1 {
		t.Fatal("first Post() into an empty mailbox returned false")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if ok2 := d.Post(ctx, func() {}); ok2 {
		t.Error("Post() into a full, undrained mailbox returned true, want false")
	}
}
