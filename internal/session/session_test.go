package session

import (
	"context"
	"errors"
	"testing"

	"github.com/rzbill/vizsync/internal/sessionlog"
	pebblestore "github.com/rzbill/vizsync/internal/storage/pebble"
	"github.com/rzbill/vizsync/internal/timeslice"
)

func newTestDB(t *testing.T) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestEnsureIdempotent(t *testing.T) {
	db := newTestDB(t)
	m1, err := Ensure(db, "drive")
	if err != nil {
		t.Fatalf("ensure1: %v", err)
	}
	m2, err := Ensure(db, "drive")
	if err != nil {
		t.Fatalf("ensure2: %v", err)
	}
	if m1.ID != m2.ID || m1.CreatedAtMs != m2.CreatedAtMs {
		t.Fatalf("not idempotent: %+v vs %+v", m1, m2)
	}
}

func TestInvalidNames(t *testing.T) {
	db := newTestDB(t)
	for _, name := range []string{"", "a/b", "x\x00"} {
		if _, err := Ensure(db, name); err == nil {
			t.Fatalf("expected error for %q", name)
		}
	}
}

func TestGetMissing(t *testing.T) {
	db := newTestDB(t)
	if _, err := Get(db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateObserve(t *testing.T) {
	db := newTestDB(t)
	if _, err := Ensure(db, "drive"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	tss := []*timeslice.Timeslice{
		{Timestamp: 5, Streams: map[string]*timeslice.Datum{"/b": nil, "/a": nil}},
		{Timestamp: 2, Streams: map[string]*timeslice.Datum{"/c": nil, "/a": nil}},
	}
	m, err := Update(db, "drive", func(m *Meta) error {
		for _, ts := range tss {
			m.Observe(ts)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := Get(db, "drive")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != m.ID || got.StartTime != 2 || got.EndTime != 5 || got.Timeslices != 2 {
		t.Fatalf("meta: %+v", got)
	}
	if len(got.Streams) != 3 || got.Streams[0] != "/a" || got.Streams[1] != "/b" || got.Streams[2] != "/c" {
		t.Fatalf("streams: %v", got.Streams)
	}

	wantErr := errors.New("boom")
	if _, err := Update(db, "drive", func(*Meta) error { return wantErr }); !errors.Is(err, wantErr) {
		t.Fatalf("expected callback error, got %v", err)
	}
}

func TestListSkipsLogKeys(t *testing.T) {
	db := newTestDB(t)
	for _, name := range []string{"b", "a"} {
		if _, err := Ensure(db, name); err != nil {
			t.Fatalf("ensure: %v", err)
		}
	}
	l, err := sessionlog.Open(db, "a", nil)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	if _, err := l.Append(context.Background(), []*timeslice.Timeslice{{Timestamp: 1}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.CommitCursor("m", 1); err != nil {
		t.Fatalf("cursor: %v", err)
	}

	list, err := List(db)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Name != "a" || list[1].Name != "b" {
		t.Fatalf("list: %+v", list)
	}
}

func TestDeleteRemovesLog(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	for _, name := range []string{"a", "ab"} {
		if _, err := Ensure(db, name); err != nil {
			t.Fatalf("ensure: %v", err)
		}
		l, _ := sessionlog.Open(db, name, nil)
		if _, err := l.Append(ctx, []*timeslice.Timeslice{{Timestamp: 1}}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := Delete(ctx, db, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := Get(db, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	l, _ := sessionlog.Open(db, "a", nil)
	if st := l.Stats(); st.Count != 0 {
		t.Fatalf("log survived delete: %+v", st)
	}
	other, _ := sessionlog.Open(db, "ab", nil)
	if st := other.Stats(); st.Count != 1 {
		t.Fatalf("neighbouring session touched: %+v", st)
	}
	if err := Delete(ctx, db, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
