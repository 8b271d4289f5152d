// Package synchronizer resolves, for a query time, the most recent datum of
// every stream within a trailing window and turns the result into frames.
//
// Two variants share one base:
//
//   - LogSynchronizer reads pre-loaded per-stream logs through forward-moving
//     cursors; a backward seek resets the cursor of every log.
//   - StreamSynchronizer reads a live streambuffer.Buffer.
//
// Both keep a single-entry slice cache and a single-entry frame cache keyed
// by structural fingerprints, so repeated queries over unchanged inputs
// return the previous result. Call Invalidate after changing anything the
// fingerprint cannot see.
//
// Synchronizers are not safe for concurrent use.
package synchronizer
