package usecase

// ring is a fixed-capacity FIFO buffer. Single writer; readers get a copied
// snapshot so they never iterate under mutation.
type ring[T any] struct {
	buf   []T
	head  int
	count int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) add(v T) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// snapshot returns the buffered values oldest-first.
func (r *ring[T]) snapshot() []T {
	out := make([]T, 0, r.count)
	start := r.head - r.count
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

// last returns the most recent value, if any.
func (r *ring[T]) last() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	idx := r.head - 1
	if idx < 0 {
		idx += len(r.buf)
	}
	return r.buf[idx], true
}
