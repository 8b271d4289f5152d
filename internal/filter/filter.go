// Package filter selects which streams take part in a slice.
//
// Filters expose a structural Key so synchronizers can memoize on the
// filter's identity without pointer comparison. A nil Filter includes every
// stream.
package filter

import (
	"sort"
	"strings"
)

// Filter decides whether a stream is included.
type Filter interface {
	Include(stream string) bool
	// Key identifies the filter's behavior; equal keys select equal streams.
	Key() string
}

// Includes reports whether f includes stream, treating a nil f as "all".
func Includes(f Filter, stream string) bool {
	return f == nil || f.Include(stream)
}

// KeyOf returns f's key, or "" for a nil filter.
func KeyOf(f Filter) string {
	if f == nil {
		return ""
	}
	return f.Key()
}

type streamSet struct {
	names map[string]struct{}
	key   string
}

// Streams returns a filter including exactly the named streams. An empty
// set includes everything.
func Streams(names ...string) Filter {
	s := streamSet{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		if n != "" {
			s.names[n] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(s.names))
	for n := range s.names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)
	if len(sorted) > 0 {
		s.key = "streams:" + strings.Join(sorted, ",")
	}
	return s
}

func (s streamSet) Include(stream string) bool {
	if len(s.names) == 0 {
		return true
	}
	_, ok := s.names[stream]
	return ok
}

func (s streamSet) Key() string { return s.key }

// Segments splits a slash-delimited stream name into its non-empty parts.
func Segments(stream string) []string {
	parts := strings.Split(stream, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
