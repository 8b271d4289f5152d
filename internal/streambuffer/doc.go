// Package streambuffer keeps timeslices sorted by timestamp under a bounded
// memory policy.
//
// A Buffer is created with one of three policies:
//
//   - unbounded (default): accept everything, never evict;
//   - offset: keep [now+StartOffset, now+EndOffset] around the playhead set by
//     SetCurrentTime;
//   - fixed: keep an explicit [start, end] window set by UpdateFixedBuffer,
//     optionally capped by MaxLength.
//
// Inserts outside the active window are rejected without mutating the buffer.
// Inserts that hit an existing timestamp merge into it (see timeslice.Merge).
// Every mutation bumps Generation, which callers use as a cheap change token.
//
// A Buffer is not safe for concurrent use.
package streambuffer
