//go:build linux

package poller

// Len returns the number of registered file descriptors, excluding the
// internal wakeup.
func (p *Poller) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.callbacks)
}
