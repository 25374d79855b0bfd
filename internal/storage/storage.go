// Package storage provides the lazy values and memoized functions that the
// analyzer uses for demand-driven resolution.
//
// Every cached value moves through three states: not started, in progress
// and done. Asking for a value that is still in progress (a reentrant request
// from inside its own computation) yields the recursion placeholder supplied
// at construction instead of recursing, which guarantees termination on
// cyclic demand. Values are computed at most once.
//
// A Manager and everything created from it belong to a single analysis run
// and are not safe for concurrent use.
package storage

type state uint8

const (
	notStarted state = iota
	inProgress
	done
)

// Manager is the factory for lazy values of one analysis run. It counts
// computations so callers can report how much work a run performed.
type Manager struct {
	computations int
	recursions   int
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Computations returns how many lazy values and memo entries were computed.
func (m *Manager) Computations() int {
	return m.computations
}

// Recursions returns how many times a placeholder was handed out because a
// value was requested while it was being computed.
func (m *Manager) Recursions() int {
	return m.recursions
}

// Lazy is a single value computed on first use.
type Lazy[T any] struct {
	m           *Manager
	state       state
	value       T
	compute     func() T
	onRecursion func() T
}

// NewLazy creates a lazy value. onRecursion may be nil, in which case a
// reentrant Get returns the zero value of T.
func NewLazy[T any](m *Manager, compute func() T, onRecursion func() T) *Lazy[T] {
	return &Lazy[T]{m: m, compute: compute, onRecursion: onRecursion}
}

// Get returns the value, computing it on first call.
func (l *Lazy[T]) Get() T {
	switch l.state {
	case done:
		return l.value
	case inProgress:
		l.m.recursions++
		if l.onRecursion != nil {
			return l.onRecursion()
		}
		var zero T
		return zero
	}

	l.state = inProgress
	ok := false
	defer func() {
		if !ok {
			// compute panicked; allow a later retry instead of pinning
			// the value in progress forever.
			l.state = notStarted
		}
	}()
	v := l.compute()
	ok = true
	l.value = v
	l.state = done
	l.compute = nil
	l.m.computations++
	return v
}

// IsComputed reports whether Get has completed at least once.
func (l *Lazy[T]) IsComputed() bool {
	return l.state == done
}

type entry[V any] struct {
	state state
	value V
}

// Memo is a function whose results are cached per key.
type Memo[K comparable, V any] struct {
	m           *Manager
	entries     map[K]*entry[V]
	compute     func(K) V
	onRecursion func(K) V
	onCompute   func(K)
}

// NewMemo creates a memoized function. onRecursion may be nil, in which case
// a reentrant Get for the same key returns the zero value of V.
func NewMemo[K comparable, V any](m *Manager, compute func(K) V, onRecursion func(K) V) *Memo[K, V] {
	return &Memo[K, V]{
		m:           m,
		entries:     make(map[K]*entry[V]),
		compute:     compute,
		onRecursion: onRecursion,
	}
}

// OnCompute registers a hook that runs exactly once per key, right before
// the key's value is computed.
func (f *Memo[K, V]) OnCompute(fn func(K)) *Memo[K, V] {
	f.onCompute = fn
	return f
}

// Get returns the value for k, computing it at most once.
func (f *Memo[K, V]) Get(k K) V {
	e, ok := f.entries[k]
	if ok {
		switch e.state {
		case done:
			return e.value
		case inProgress:
			f.m.recursions++
			if f.onRecursion != nil {
				return f.onRecursion(k)
			}
			var zero V
			return zero
		}
	} else {
		e = &entry[V]{}
		f.entries[k] = e
	}

	e.state = inProgress
	finished := false
	defer func() {
		if !finished {
			delete(f.entries, k)
		}
	}()
	if f.onCompute != nil {
		f.onCompute(k)
	}
	v := f.compute(k)
	finished = true
	e.value = v
	e.state = done
	f.m.computations++
	return v
}

// IsComputed reports whether the value for k is available.
func (f *Memo[K, V]) IsComputed(k K) bool {
	e, ok := f.entries[k]
	return ok && e.state == done
}

// InProgress reports whether k is currently being computed.
func (f *Memo[K, V]) InProgress(k K) bool {
	e, ok := f.entries[k]
	return ok && e.state == inProgress
}
