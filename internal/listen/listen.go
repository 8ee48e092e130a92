// Package listen is a small typed callback registry. Callbacks run outside
// the registry lock, so a callback may unsubscribe itself or others.
package listen

import "sync"

// Registry holds callbacks for values of type T. The zero value is ready.
type Registry[T any] struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(T)
}

// Add registers fn. The returned function removes it and is safe to call
// more than once.
func (r *Registry[T]) Add(fn func(T)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fns == nil {
		r.fns = make(map[int]func(T))
	}
	id := r.next
	r.next++
	r.fns[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.fns, id)
			r.mu.Unlock()
		})
	}
}

// Emit calls every registered callback with v.
func (r *Registry[T]) Emit(v T) {
	r.mu.Lock()
	fns := make([]func(T), 0, len(r.fns))
	for _, fn := range r.fns {
		fns = append(fns, fn)
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

// Len returns the number of registered callbacks.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fns)
}
