package ringbuf

// queue is a growable FIFO, backed by a power-of-2 sized circular slice.
//
// The r and w fields are free-running counters, masked on access, meaning
// Len is always w-r, even after either has wrapped around.
type queue[E any] struct {
	s    []E
	r, w uint
}

func newQueue[E any](size int) *queue[E] {
	if size <= 0 || size&(size-1) != 0 {
		panic(`ringbuf: queue: size must be a power of 2`)
	}
	return &queue[E]{s: make([]E, size)}
}

func (x *queue[E]) mask(val uint) uint {
	return val & (uint(len(x.s)) - 1)
}

// bounds returns the (up to) two contiguous regions of s that hold values,
// s[i1:l1] followed by s[:l2].
func (x *queue[E]) bounds() (i1, l1, l2 int) {
	if x.r == x.w {
		return
	}
	i1 = int(x.mask(x.r))
	l1 = int(x.mask(x.w))
	if l1 <= i1 {
		l2 = l1
		l1 = len(x.s)
	}
	return
}

func (x *queue[E]) Len() int {
	return int(x.w - x.r)
}

func (x *queue[E]) Get(i int) E {
	if i < 0 || i >= x.Len() {
		panic(`ringbuf: queue: get: index out of range`)
	}
	return x.s[x.mask(x.r+uint(i))]
}

func (x *queue[E]) Front() E {
	return x.Get(0)
}

func (x *queue[E]) Back() E {
	return x.Get(x.Len() - 1)
}

func (x *queue[E]) PushBack(value E) {
	if x.Len() == len(x.s) {
		x.grow()
	}
	x.s[x.mask(x.w)] = value
	x.w++
}

func (x *queue[E]) PopFront() (value E) {
	if x.r == x.w {
		panic(`ringbuf: queue: pop front: empty`)
	}
	i := x.mask(x.r)
	value = x.s[i]
	var zero E
	x.s[i] = zero
	x.r++
	if x.r == x.w {
		// everything works nicer if it's not wrapped around
		x.r = 0
		x.w = 0
	}
	return value
}

// grow doubles the backing slice, unwrapping the contents to start at 0.
func (x *queue[E]) grow() {
	s := make([]E, uint(len(x.s))<<1)
	if len(s) == 0 {
		panic(`ringbuf: queue: grow: overflow`)
	}
	i1, l1, l2 := x.bounds()
	l := copy(s, x.s[i1:l1])
	l += copy(s[l:], x.s[:l2])
	x.s = s
	x.r = 0
	x.w = uint(l)
}
