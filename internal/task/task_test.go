package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSubmitAndWait(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()

	tk := m.Submit("compute_signal", "qa", "pii over question", "", func(ctx context.Context) error {
		return nil
	})
	if tk.ID == "" {
		t.Fatal("task needs an id")
	}
	if tk.Kind != "compute_signal" || tk.Dataset != "qa" {
		t.Fatalf("task metadata: %+v", tk)
	}

	done, err := m.Wait(context.Background(), tk.ID)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Fatalf("status: %s", done.Status)
	}
	if done.FinishedAt == nil {
		t.Fatal("finished task needs a finish time")
	}
	if done.Error != "" {
		t.Fatalf("unexpected error: %q", done.Error)
	}
}

func TestFailedTask(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()

	boom := errors.New("source field missing")
	tk := m.Submit("compute_signal", "qa", "", "", func(ctx context.Context) error {
		return boom
	})

	done, err := m.Wait(context.Background(), tk.ID)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if done.Status != StatusError {
		t.Fatalf("status: %s", done.Status)
	}
	if done.Error != boom.Error() {
		t.Fatalf("error: %q", done.Error)
	}
	if !done.Status.Terminal() {
		t.Fatal("error status must be terminal")
	}
}

func TestGetUnknown(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()
	if _, err := m.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if _, err := m.Wait(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("wait unknown: got %v, want ErrNotFound", err)
	}
}

func TestCoalescing(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()

	release := make(chan struct{})
	var runs int
	var mu sync.Mutex

	fn := func(ctx context.Context) error {
		mu.Lock()
		runs++
		mu.Unlock()
		<-release
		return nil
	}

	first := m.Submit("compute_signal", "qa", "", "qa/question.pii", fn)
	second := m.Submit("compute_signal", "qa", "", "qa/question.pii", fn)
	if first.ID != second.ID {
		t.Fatalf("expected coalesced task, got %s and %s", first.ID, second.ID)
	}

	// A different key runs separately.
	third := m.Submit("compute_signal", "qa", "", "qa/answer.pii", fn)
	if third.ID == first.ID {
		t.Fatal("distinct keys must not coalesce")
	}

	close(release)
	if _, err := m.Wait(context.Background(), first.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Wait(context.Background(), third.ID); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if runs != 2 {
		t.Fatalf("expected 2 executions, got %d", runs)
	}

	// After completion the key is free again.
	fourth := m.Submit("compute_signal", "qa", "", "qa/question.pii", func(ctx context.Context) error { return nil })
	if fourth.ID == first.ID {
		t.Fatal("completed task must not absorb new submissions")
	}
}

func TestListNewestFirst(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()

	a := m.Submit("compute_signal", "qa", "", "", func(ctx context.Context) error { return nil })
	if _, err := m.Wait(context.Background(), a.ID); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	b := m.Submit("compute_embedding_index", "qa", "", "", func(ctx context.Context) error { return nil })
	if _, err := m.Wait(context.Background(), b.ID); err != nil {
		t.Fatal(err)
	}

	tasks := m.List()
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks", len(tasks))
	}
	if tasks[0].ID != b.ID {
		t.Fatalf("expected newest first, got %s", tasks[0].ID)
	}
}

func TestWaitContextCancel(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()

	release := make(chan struct{})
	tk := m.Submit("compute_signal", "qa", "", "", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := m.Wait(ctx, tk.ID); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want DeadlineExceeded", err)
	}
	close(release)
}

func TestConcurrencyLimit(t *testing.T) {
	m := NewManagerWithLimit(nil, 1)
	defer m.Close()

	release := make(chan struct{})
	started := make(chan struct{}, 2)

	first := m.Submit("compute_signal", "qa", "", "", func(ctx context.Context) error {
		started <- struct{}{}
		<-release
		return nil
	})
	second := m.Submit("compute_signal", "qa", "", "", func(ctx context.Context) error {
		started <- struct{}{}
		return nil
	})

	<-started
	select {
	case <-started:
		t.Fatal("second task started while first held the only slot")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	for _, id := range []string{first.ID, second.ID} {
		got, err := m.Wait(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != StatusCompleted {
			t.Fatalf("task %s status = %s", id, got.Status)
		}
	}
}
