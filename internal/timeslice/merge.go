package timeslice

// Merge folds incoming into existing, which must share its timestamp.
// Streams and links are shallow-unioned with incoming winning per key,
// missing-content flags are AND-combined. UpdateType is taken from incoming
// but does not change the rule.
func Merge(existing, incoming *Timeslice) {
	if existing.Streams == nil && len(incoming.Streams) > 0 {
		existing.Streams = make(map[string]*Datum, len(incoming.Streams))
	}
	for name, d := range incoming.Streams {
		existing.Streams[name] = d
	}
	if existing.Links == nil && len(incoming.Links) > 0 {
		existing.Links = make(map[string]*Link, len(incoming.Links))
	}
	for name, l := range incoming.Links {
		existing.Links[name] = l
	}
	existing.MissingContentFlags &= incoming.MissingContentFlags
	if incoming.UpdateType != "" {
		existing.UpdateType = incoming.UpdateType
	}
}

// Clone returns a copy whose maps may be mutated without touching ts.
// Datum values are shared.
func Clone(ts *Timeslice) *Timeslice {
	out := *ts
	if ts.Streams != nil {
		out.Streams = make(map[string]*Datum, len(ts.Streams))
		for k, v := range ts.Streams {
			out.Streams[k] = v
		}
	}
	if ts.Links != nil {
		out.Links = make(map[string]*Link, len(ts.Links))
		for k, v := range ts.Links {
			out.Links[k] = v
		}
	}
	return &out
}
