package window

// deque is a FIFO ring buffer with a fixed capacity.
// Callers push at the back and pop from the front; push never grows the
// buffer, so a full deque must be popped before the next push.
type deque[T any] struct {
	buf  []T
	head int
	size int
}

func newDeque[T any](capacity int) *deque[T] {
	return &deque[T]{buf: make([]T, capacity)}
}

func (d *deque[T]) Len() int {
	return d.size
}

// PushBack appends v. It reports false when the deque is full.
func (d *deque[T]) PushBack(v T) bool {
	if d.size == len(d.buf) {
		return false
	}
	d.buf[(d.head+d.size)%len(d.buf)] = v
	d.size++
	return true
}

// PopFront removes and returns the oldest element.
func (d *deque[T]) PopFront() (T, bool) {
	var zero T
	if d.size == 0 {
		return zero, false
	}
	v := d.buf[d.head]
	d.buf[d.head] = zero
	d.head = (d.head + 1) % len(d.buf)
	d.size--
	return v, true
}

// At returns the i-th element counted from the front.
func (d *deque[T]) At(i int) T {
	return d.buf[(d.head+i)%len(d.buf)]
}

// Front returns the oldest element.
func (d *deque[T]) Front() (T, bool) {
	var zero T
	if d.size == 0 {
		return zero, false
	}
	return d.buf[d.head], true
}
