package jobs

import (
	"testing"
	"time"
)

func TestStoreLifecycle(t *testing.T) {
	s := NewStore(time.Minute)
	s.Create("a", "merge")
	s.Create("b", "split")

	if got := len(s.Running()); got != 2 {
		t.Fatalf("running = %d, want 2", got)
	}

	s.Finish("a", StatusSuccess, "")
	s.Finish("a", StatusError, "late")
	j, ok := s.Get("a")
	if !ok || j.Status != StatusSuccess || j.FinishedAt == nil {
		t.Fatalf("job a = %+v, %v", j, ok)
	}

	running := s.Running()
	if len(running) != 1 || running[0].ID != "b" {
		t.Fatalf("running = %+v", running)
	}

	s.Finish("missing", StatusError, "x")
	if _, ok := s.Get("missing"); ok {
		t.Fatal("unknown id should not be created by Finish")
	}
}

func TestStorePrunesFinished(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(time.Minute)
	s.now = func() time.Time { return now }

	s.Create("old", "compress")
	s.Finish("old", StatusError, "boom")
	s.Create("slow", "ocr")

	now = now.Add(2 * time.Minute)
	s.Create("new", "rotate")

	if _, ok := s.Get("old"); ok {
		t.Error("finished job past retention should be pruned")
	}
	if _, ok := s.Get("slow"); !ok {
		t.Error("running job must never be pruned")
	}
	if _, ok := s.Get("new"); !ok {
		t.Error("new job missing")
	}
}
