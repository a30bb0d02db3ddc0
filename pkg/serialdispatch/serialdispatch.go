// Package serialdispatch provides a single logical owner context: every task
// handed to a Dispatcher runs mutually exclusive with every other task, no
// matter which goroutine submitted it.
package serialdispatch

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var ErrClosed = errors.New("serialdispatch: dispatcher closed")

type task struct {
	fn   func() error
	done chan error
}

type Dispatcher struct {
	token   chan struct{}
	queue   chan task
	quit    chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
	once    sync.Once
}

// New starts a dispatcher whose queue holds up to size pending tasks.
func New(size int) *Dispatcher {
	if size < 1 {
		size = 1
	}
	d := &Dispatcher{
		token:   make(chan struct{}, 1),
		queue:   make(chan task, size),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	d.token <- struct{}{}
	go d.run()
	return d
}

// Dispatch runs fn serialized with all other tasks and returns its error.
// When the context is free fn runs inline on the caller's goroutine; otherwise
// it is queued and Dispatch waits for it. fn must not call Dispatch.
func (d *Dispatcher) Dispatch(fn func() error) error {
	if d.closed.Load() {
		return ErrClosed
	}

	select {
	case <-d.token:
		defer func() { d.token <- struct{}{} }()
		return call(fn)
	default:
	}

	done := make(chan error, 1)
	select {
	case d.queue <- task{fn: fn, done: done}:
	case <-d.quit:
		return ErrClosed
	}

	select {
	case err := <-done:
		return err
	case <-d.stopped:
		select {
		case err := <-done:
			return err
		default:
			return ErrClosed
		}
	}
}

// Post queues fn without waiting. Errors returned by fn are discarded; use it
// for fire-and-forget work such as republishing after a change notification.
func (d *Dispatcher) Post(fn func()) error {
	if d.closed.Load() {
		return ErrClosed
	}
	select {
	case d.queue <- task{fn: func() error { fn(); return nil }}:
		return nil
	case <-d.quit:
		return ErrClosed
	}
}

// Close stops the dispatcher. Queued tasks that have not started fail with
// ErrClosed; a running task finishes first.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.quit)
		<-d.stopped
	})
}

func (d *Dispatcher) run() {
	defer close(d.stopped)
	for {
		select {
		case t := <-d.queue:
			<-d.token
			err := call(t.fn)
			d.token <- struct{}{}
			if t.done != nil {
				t.done <- err
			}
		case <-d.quit:
			for {
				select {
				case t := <-d.queue:
					if t.done != nil {
						t.done <- ErrClosed
					}
				default:
					return
				}
			}
		}
	}
}

func call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("serialdispatch: task panicked: %v", r)
		}
	}()
	return fn()
}
