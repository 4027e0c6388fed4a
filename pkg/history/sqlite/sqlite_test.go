package sqlite

import (
	"context"
	"fmt"
	"testing"

	"github.com/nstogner/forge/pkg/domain"
)

func newTestLog(t *testing.T, capacity int) *Log {
	t.Helper()
	l, err := New(t.TempDir()+"/history.db", capacity)
	if err != nil {
		t.Fatalf("failed to create log: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestAppendAndList(t *testing.T) {
	l := newTestLog(t, 10)
	ctx := context.Background()

	e := &domain.HistoryEntry{
		Kind:      domain.HistoryGeneration,
		Model:     "gemini-2.0-flash",
		Signature: "abc",
		Summary:   "todo app",
		Success:   true,
	}
	if err := l.Append(ctx, e); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if e.ID == "" {
		t.Fatal("expected ID to be assigned")
	}

	got, err := l.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].ID != e.ID || got[0].Kind != domain.HistoryGeneration || !got[0].Success {
		t.Errorf("got %+v, want %+v", got[0], *e)
	}
	if got[0].Signature != "abc" {
		t.Errorf("Signature = %q, want %q", got[0].Signature, "abc")
	}
}

func TestEmptyOnOpen(t *testing.T) {
	l := newTestLog(t, 3)
	got, err := l.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestTrimsOldest(t *testing.T) {
	l := newTestLog(t, 3)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if err := l.Append(ctx, &domain.HistoryEntry{Kind: domain.HistoryPlan, Summary: fmt.Sprint(i)}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	got, err := l.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"5", "4", "3"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Summary != w {
			t.Errorf("entry %d: Summary = %q, want %q", i, got[i].Summary, w)
		}
	}

	limited, err := l.List(ctx, 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(limited) != 1 || limited[0].Summary != "5" {
		t.Errorf("List(1) = %+v", limited)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := t.TempDir() + "/history.db"
	ctx := context.Background()

	l, err := New(path, 5)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := l.Append(ctx, &domain.HistoryEntry{Kind: domain.HistoryActions, Summary: "kept"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	l.Close()

	l2, err := New(path, 5)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l2.Close()
	got, err := l2.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].Summary != "kept" {
		t.Errorf("got %+v", got)
	}
}

func TestNewRejectsZeroCapacity(t *testing.T) {
	if _, err := New(t.TempDir()+"/h.db", 0); err == nil {
		t.Fatal("expected error")
	}
}
