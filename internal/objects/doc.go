// Package objects tracks entities that are correlated by id across streams
// and frames.
//
// A Registry is owned by one session (one buffer and its synchronizer) and
// passed to the components that need it; there is no package-level default.
// Objects are created by Observe, their observed lifetime widens on every
// later observation, and Prune drops those whose lifetime falls outside the
// retained window. Per-frame properties (tracking point, label, label values)
// are cleared by ResetAll at the start of every frame; the cached geometry
// summary survives across frames.
package objects
