// Package timeslice defines the data model shared by the buffer, the
// synchronizers and the session archive: timeslices keyed by timestamp, each
// holding a set of named streams.
//
// Stream names are slash-delimited (/vehicle_pose, /lidar/points). A nil
// *Datum stored under a stream name is an explicit "no data" entry: it claims
// the stream during a newest-first merge but contributes nothing.
//
// FindInsertPos is the binary search used everywhere a sorted timeslice
// sequence is searched; Merge is the single rule applied when two timeslices
// share a timestamp.
package timeslice
