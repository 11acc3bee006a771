// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux

package poller

import (
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Poller manages readiness notifications using epoll, and an eventfd for
// wakeups.
//
// Register, Unregister, and Poll are expected to be called from a single
// goroutine. Wake may be called from any goroutine.
type Poller struct {
	callbacks map[int]Callback
	events    []unix.EpollEvent
	epfd      int
	wakefd    int
	wakeBuf   [8]byte
	mu        sync.RWMutex
	closed    bool
}

// New initializes an epoll instance, with an eventfd registered for
// wakeups. The maxEvents value bounds the events handled per Poll.
func New(maxEvents int) (*Poller, error) {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, err
	}

	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakefd),
	}); err != nil {
		_ = unix.Close(wakefd)
		_ = unix.Close(epfd)
		return nil, err
	}

	return &Poller{
		callbacks: make(map[int]Callback),
		events:    make([]unix.EpollEvent, maxEvents),
		epfd:      epfd,
		wakefd:    wakefd,
	}, nil
}

// Register starts monitoring fd for the given events. Errors and hangups
// are always reported.
func (p *Poller) Register(fd int, events Events, cb Callback) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPollerClosed
	}
	if _, ok := p.callbacks[fd]; ok || fd == p.wakefd {
		p.mu.Unlock()
		return ErrFDAlreadyRegistered
	}
	p.callbacks[fd] = cb
	p.mu.Unlock()

	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: eventsToEpoll(events),
		Fd:     int32(fd),
	})
	if err != nil {
		p.mu.Lock()
		delete(p.callbacks, fd) // rollback
		p.mu.Unlock()
		return err
	}

	return nil
}

// Unregister stops monitoring fd. It must be called before fd is closed.
func (p *Poller) Unregister(fd int) error {
	p.mu.Lock()
	if _, ok := p.callbacks[fd]; !ok {
		p.mu.Unlock()
		return ErrFDNotRegistered
	}
	delete(p.callbacks, fd)
	closed := p.closed
	p.mu.Unlock()

	if closed {
		return ErrPollerClosed
	}

	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Poll waits up to timeout for events, then dispatches callbacks inline. A
// negative timeout blocks indefinitely. Interrupted waits return 0, nil.
// Returns the number of callbacks dispatched.
func (p *Poller) Poll(timeout time.Duration) (int, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return 0, ErrPollerClosed
	}

	timeoutMs := -1
	if timeout >= 0 {
		timeoutMs = int(timeout / time.Millisecond)
	}

	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	var dispatched int
	for i := 0; i < n; i++ {
		fd := int(p.events[i].Fd)

		if fd == p.wakefd {
			p.drainWakeup()
			continue
		}

		// callbacks may unregister other fds, so look up each in turn
		p.mu.RLock()
		cb := p.callbacks[fd]
		p.mu.RUnlock()

		if cb != nil {
			cb(epollToEvents(p.events[i].Events))
			dispatched++
		}
	}

	return dispatched, nil
}

// Wake interrupts a concurrent (or the next) Poll call.
func (p *Poller) Wake() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPollerClosed
	}

	// native endianness
	var one uint64 = 1
	buf := (*[8]byte)(unsafe.Pointer(&one))[:]

	_, err := unix.Write(p.wakefd, buf)
	if err == unix.EAGAIN {
		// counter saturated, a wakeup is already pending
		return nil
	}
	return err
}

func (p *Poller) drainWakeup() {
	for {
		if _, err := unix.Read(p.wakefd, p.wakeBuf[:]); err != nil {
			break
		}
	}
}

// Close releases the epoll instance and the wakeup eventfd. Registered file
// descriptors are not closed. Subsequent calls are no-ops.
func (p *Poller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	err := unix.Close(p.wakefd)
	if e := unix.Close(p.epfd); err == nil {
		err = e
	}
	return err
}

func eventsToEpoll(events Events) uint32 {
	var epollEvents uint32
	if events&EventRead != 0 {
		epollEvents |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	return epollEvents
}

func epollToEvents(epollEvents uint32) Events {
	var events Events
	if epollEvents&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if epollEvents&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if epollEvents&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		events |= EventHangup
	}
	return events
}
