package monitor

import (
	"context"
	"testing"
	"time"

	"live-relay/model"
)

type staticSource model.Status

func (s staticSource) Status() model.Status { return model.Status(s) }

func TestCollect(t *testing.T) {
	m := New(staticSource(model.NewStatus(true, "alice", 3)), time.Minute)

	r := m.Collect()
	if !r.Status.Connected || r.Status.Watching != "alice" || r.Status.SubscriberCount != 3 {
		t.Fatalf("unexpected status %+v", r.Status)
	}
	if r.Goroutines < 1 {
		t.Fatalf("goroutines = %d", r.Goroutines)
	}

	fields := r.Fields()
	if fields["watching"] != "alice" || fields["subscribers"] != 3 {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestRunStopsWithContext(t *testing.T) {
	m := New(staticSource(model.NewStatus(false, "", 0)), 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestRunDisabled(t *testing.T) {
	m := New(staticSource(model.NewStatus(false, "", 0)), 0)
	m.Run(context.Background())
}
