package metrics

// ring is a fixed-capacity buffer that overwrites its oldest entry once full.
// It is not safe for concurrent use; the Aggregator serialises access.
type ring[T any] struct {
	items []T
	start int
	count int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{items: make([]T, capacity)}
}

// Add appends v, evicting the oldest entry when the ring is full.
func (r *ring[T]) Add(v T) {
	if len(r.items) == 0 {
		return
	}
	idx := (r.start + r.count) % len(r.items)
	r.items[idx] = v
	if r.count < len(r.items) {
		r.count++
		return
	}
	r.start = (r.start + 1) % len(r.items)
}

// Len returns the number of stored entries.
func (r *ring[T]) Len() int {
	return r.count
}

// Last returns the newest entry.
func (r *ring[T]) Last() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.items[(r.start+r.count-1)%len(r.items)], true
}

// Filter returns, oldest first, a copy of every entry keep accepts.
func (r *ring[T]) Filter(keep func(T) bool) []T {
	out := make([]T, 0, r.count)
	for i := 0; i < r.count; i++ {
		v := r.items[(r.start+i)%len(r.items)]
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}
