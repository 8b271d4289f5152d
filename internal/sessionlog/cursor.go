package sessionlog

import (
	"encoding/binary"
	"errors"
	"fmt"

	pebblestore "github.com/rzbill/vizsync/internal/storage/pebble"
	"github.com/rzbill/vizsync/internal/timeslice"
)

// CommitCursor stores the playhead of a consumer group. Commits behind the
// stored playhead are ignored.
func (l *Log) CommitCursor(group string, t float64) error {
	if group == "" {
		return errors.New("sessionlog: cursor group is required")
	}
	if !timeslice.IsFinite(t) {
		return fmt.Errorf("sessionlog: non-finite cursor %v", t)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	key := KeyCursor(l.name, group)
	cur, err := l.db.Get(key)
	if err == nil && len(cur) >= 8 {
		if SortableTime(t) <= binary.BigEndian.Uint64(cur[:8]) {
			return nil
		}
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], SortableTime(t))
	return l.db.Set(key, b[:])
}

// GetCursor loads the playhead of a consumer group.
func (l *Log) GetCursor(group string) (float64, error) {
	cur, err := l.db.Get(KeyCursor(l.name, group))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	if len(cur) < 8 {
		return 0, ErrCorrupt
	}
	return TimeFromSortable(binary.BigEndian.Uint64(cur[:8])), nil
}
