// Package session stores the metadata of named recordings next to their
// timeslice logs.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rzbill/vizsync/internal/sessionlog"
	pebblestore "github.com/rzbill/vizsync/internal/storage/pebble"
	"github.com/rzbill/vizsync/internal/timeslice"
	"github.com/rzbill/vizsync/pkg/id"
)

// ErrNotFound is returned for unknown sessions.
var ErrNotFound = errors.New("session: not found")

// Meta describes one recorded session.
type Meta struct {
	ID          id.ID    `json:"id"`
	Name        string   `json:"name"`
	CreatedAtMs int64    `json:"createdAtMs"`
	UpdatedAtMs int64    `json:"updatedAtMs"`
	Streams     []string `json:"streams,omitempty"`
	StartTime   float64  `json:"startTime"`
	EndTime     float64  `json:"endTime"`
	Timeslices  int      `json:"timeslices"`
}

// Observe widens the stream set and time range with ts.
func (m *Meta) Observe(ts *timeslice.Timeslice) {
	if ts == nil {
		return
	}
	if m.Timeslices == 0 || ts.Timestamp < m.StartTime {
		m.StartTime = ts.Timestamp
	}
	if m.Timeslices == 0 || ts.Timestamp > m.EndTime {
		m.EndTime = ts.Timestamp
	}
	m.Timeslices++
	for name := range ts.Streams {
		i := sort.SearchStrings(m.Streams, name)
		if i < len(m.Streams) && m.Streams[i] == name {
			continue
		}
		m.Streams = append(m.Streams, "")
		copy(m.Streams[i+1:], m.Streams[i:])
		m.Streams[i] = name
	}
}

var ids = id.NewGenerator()

// ValidateName rejects names that cannot be used as a key segment.
func ValidateName(name string) error {
	if name == "" {
		return errors.New("session: name is required")
	}
	if strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("session: invalid name %q", name)
	}
	return nil
}

// Ensure creates the session if absent and returns its metadata.
// Idempotent: returns the existing meta if already present.
func Ensure(db *pebblestore.DB, name string) (Meta, error) {
	if m, err := Get(db, name); err == nil {
		return m, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Meta{}, err
	}
	now := id.NowMs()
	m := Meta{ID: ids.Next(), Name: name, CreatedAtMs: now, UpdatedAtMs: now}
	if err := put(db, m); err != nil {
		return Meta{}, err
	}
	return m, nil
}

// Get loads the metadata of name.
func Get(db *pebblestore.DB, name string) (Meta, error) {
	if err := ValidateName(name); err != nil {
		return Meta{}, err
	}
	b, err := db.Get(sessionlog.KeySessionMeta(name))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return Meta{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return Meta{}, fmt.Errorf("session: load %s: %w", name, err)
	}
	var m Meta
	if err := json.Unmarshal(b, &m); err != nil {
		return Meta{}, fmt.Errorf("session: decode %s: %w", name, err)
	}
	return m, nil
}

// Update applies fn to the stored metadata of name and persists the result.
func Update(db *pebblestore.DB, name string, fn func(*Meta) error) (Meta, error) {
	m, err := Get(db, name)
	if err != nil {
		return Meta{}, err
	}
	if err := fn(&m); err != nil {
		return Meta{}, err
	}
	m.Name = name
	m.UpdatedAtMs = id.NowMs()
	if err := put(db, m); err != nil {
		return Meta{}, err
	}
	return m, nil
}

// List returns every session ordered by name.
func List(db *pebblestore.DB) ([]Meta, error) {
	var out []Meta
	var decodeErr error
	prefix := []byte("sess/")
	err := db.ScanPrefix(prefix, func(k, v []byte) bool {
		name, ok := nameFromMetaKey(k[len(prefix):])
		if !ok {
			return true
		}
		var m Meta
		if err := json.Unmarshal(v, &m); err != nil {
			decodeErr = fmt.Errorf("session: decode %s: %w", name, err)
			return false
		}
		out = append(out, m)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, decodeErr
}

// Delete removes the session and everything stored under it.
func Delete(ctx context.Context, db *pebblestore.DB, name string) error {
	if _, err := Get(db, name); err != nil {
		return err
	}
	bounds := pebblestore.PrefixBounds(sessionlog.KeySessionPrefix(name))
	b := db.NewBatch()
	defer b.Close()
	if err := b.DeleteRange(bounds.LowerBound, bounds.UpperBound, nil); err != nil {
		return err
	}
	if err := b.Delete(sessionlog.KeySessionMeta(name), nil); err != nil {
		return err
	}
	return db.CommitBatch(ctx, b)
}

func nameFromMetaKey(rest []byte) (string, bool) {
	if !bytes.HasSuffix(rest, []byte("/m")) {
		return "", false
	}
	name := rest[:len(rest)-2]
	if len(name) == 0 || bytes.IndexByte(name, '/') >= 0 {
		return "", false
	}
	return string(name), true
}

func put(db *pebblestore.DB, m Meta) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := db.Set(sessionlog.KeySessionMeta(m.Name), b); err != nil {
		return fmt.Errorf("session: store %s: %w", m.Name, err)
	}
	return nil
}

// Age reports how long ago the session was last updated.
func (m Meta) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(m.UpdatedAtMs))
}
