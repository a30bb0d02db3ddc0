package testutil

import (
	"slices"
	"sync"
)

// Recorder captures every publication handed to an interactor delegate.
type Recorder[E any] struct {
	mu    sync.Mutex
	calls [][][]E
}

func NewRecorder[E any]() *Recorder[E] {
	return &Recorder[E]{}
}

// Delegate is passed to the interactor under test.
func (r *Recorder[E]) Delegate(sections [][]E) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, slices.Clone(sections))
}

func (r *Recorder[E]) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Last returns the most recent publication.
func (r *Recorder[E]) Last() ([][]E, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil, false
	}
	return r.calls[len(r.calls)-1], true
}

func (r *Recorder[E]) All() [][][]E {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}
