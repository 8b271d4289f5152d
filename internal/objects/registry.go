package objects

import "github.com/rzbill/vizsync/internal/timeslice"

// Registry holds every tracked object of a session. It is not safe for
// concurrent use.
type Registry struct {
	objects map[string]*Object
	serial  int
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{objects: map[string]*Object{}}
}

// Observe creates the object at timestamp or widens its observed lifetime.
// Empty ids are ignored.
func (r *Registry) Observe(id string, timestamp float64) {
	if id == "" {
		return
	}
	if o, ok := r.objects[id]; ok {
		o.observe(timestamp)
		return
	}
	r.objects[id] = newObject(id, r.serial, timestamp)
	r.serial++
}

// ObserveTimeslice observes every identified feature, label and variable in
// ts at its timestamp.
func (r *Registry) ObserveTimeslice(ts *timeslice.Timeslice) {
	for _, d := range ts.Streams {
		if d == nil {
			continue
		}
		for i := range d.Features {
			r.Observe(d.Features[i].ID, ts.Timestamp)
		}
		for _, l := range d.Labels {
			r.Observe(l.ID, ts.Timestamp)
		}
		if d.Variable != nil {
			r.Observe(d.Variable.ID, ts.Timestamp)
		}
	}
}

// Get returns the object or nil.
func (r *Registry) Get(id string) *Object {
	if id == "" {
		return nil
	}
	return r.objects[id]
}

// GetAll returns every object keyed by id.
func (r *Registry) GetAll() map[string]*Object {
	out := make(map[string]*Object, len(r.objects))
	for id, o := range r.objects {
		out[id] = o
	}
	return out
}

// GetAllInCurrentFrame returns the objects placed in the current frame.
func (r *Registry) GetAllInCurrentFrame() map[string]*Object {
	out := map[string]*Object{}
	for id, o := range r.objects {
		if o.Valid() {
			out[id] = o
		}
	}
	return out
}

// ResetAll clears every object's per-frame properties.
func (r *Registry) ResetAll() {
	for _, o := range r.objects {
		o.reset()
	}
}

// Prune removes objects whose observed lifetime lies entirely outside
// [start, end] and returns how many were removed.
func (r *Registry) Prune(start, end float64) int {
	removed := 0
	for id, o := range r.objects {
		if o.EndTime < start || o.StartTime > end {
			delete(r.objects, id)
			removed++
		}
	}
	return removed
}

// Count returns the number of tracked objects.
func (r *Registry) Count() int { return len(r.objects) }

// Clear drops every object.
func (r *Registry) Clear() { clear(r.objects) }
