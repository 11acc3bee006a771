package ringbuf

func (x *queue[E]) Cap() int {
	return len(x.s)
}

// Slice copies the contents, front to back.
func (x *queue[E]) Slice() (b []E) {
	if l := x.Len(); l != 0 {
		b = make([]E, l)
		i1, l1, l2 := x.bounds()
		copy(b, x.s[i1:l1])
		copy(b[l1-i1:], x.s[:l2])
	}
	return b
}
