// Package slice merges newest-first timeslices into one Slice per query and
// turns a Slice plus a vehicle pose into a Frame.
//
// Recency precedence is positional: the first record that mentions a stream
// claims it, so callers must pass records strictly newest-first. A nil datum
// claims its stream without contributing data.
package slice
