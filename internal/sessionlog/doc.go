// Package sessionlog persists the timeslices of a recorded session in Pebble.
//
// # Overview
//
// Each session keeps one record per timestamp. Keys order records by time:
//   - sess/{name}/tm                (log metadata: count, first, last)
//   - sess/{name}/ts/{time_sort8}   (timeslice records)
//   - sess/{name}/cursor/{group}    (playhead cursors)
//
// Records are stored as: uvarint headerLen | header | snappy(json) | crc32c.
// The header carries the missing-content flags and the update type.
//
//	l, _ := sessionlog.Open(db, "drive-42", logger)
//	// Append merges into records that share a timestamp, atomically
//	_, _ = l.Append(ctx, tss)
//
//	// Range reads and per-stream logs for a LogSynchronizer
//	recent, _ := l.Read(sessionlog.ReadOptions{Start: 100, End: 110, Reverse: true, Limit: 10})
//	logs, _ := l.LoadLogs(ctx)
//
//	// Followers block until the next append
//	woke := l.WaitForAppend(200 * time.Millisecond)
//
//	// Playhead cursors never move backwards
//	_ = l.CommitCursor("viewer", 105.5)
//
//	// Retention by time or by bytes; TrimHook sees each deleted range
//	_, _ = l.TrimBefore(ctx, 60, 1024, 0)
//	_, _ = l.TrimToMaxBytes(ctx, 64<<20, 1024, 0)
package sessionlog
