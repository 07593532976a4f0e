package tokenstore

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Storage.Get when the key holds no value.
var ErrNotFound = errors.New("tokenstore: key not found")

// Storage is a durable string key-value store scoped to one API origin.
type Storage interface {
	// Get returns the stored value or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Delete removes the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Watcher is implemented by storages that can report changes made to a key by
// other writers. fn receives the new value, or "" when the key was removed.
type Watcher interface {
	Watch(key string, fn func(value string)) (stop func())
}

// MemoryStorage keeps values in process memory. Views returned by Tab share the
// same values but, like browser tabs sharing localStorage, are only told about
// writes made through other views. The MemoryStorage itself counts as one view.
type MemoryStorage struct {
	mu       sync.Mutex
	values   map[string]string
	watchers map[uint64]memoryWatcher
	nextID   uint64
	nextView uint64
}

type memoryWatcher struct {
	key  string
	view uint64
	fn   func(string)
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		values:   make(map[string]string),
		watchers: make(map[uint64]memoryWatcher),
	}
}

func (m *MemoryStorage) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryStorage) Set(_ context.Context, key, value string) error {
	m.write(0, key, value, true)
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.write(0, key, "", false)
	return nil
}

// Watch reports changes to key made through a Tab view.
func (m *MemoryStorage) Watch(key string, fn func(string)) func() {
	return m.watch(0, key, fn)
}

// Tab returns a view of m that does not observe its own writes.
func (m *MemoryStorage) Tab() *MemoryTab {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextView++
	return &MemoryTab{m: m, view: m.nextView}
}

func (m *MemoryStorage) write(view uint64, key, value string, set bool) {
	m.mu.Lock()
	if set {
		m.values[key] = value
	} else {
		delete(m.values, key)
	}
	var fns []func(string)
	for _, w := range m.watchers {
		if w.key != key || w.view == view {
			continue
		}
		fns = append(fns, w.fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(value)
	}
}

func (m *MemoryStorage) watch(view uint64, key string, fn func(string)) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.watchers[id] = memoryWatcher{key: key, view: view, fn: fn}
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.watchers, id)
			m.mu.Unlock()
		})
	}
}

// MemoryTab is one view onto a MemoryStorage.
type MemoryTab struct {
	m    *MemoryStorage
	view uint64
}

func (t *MemoryTab) Get(ctx context.Context, key string) (string, error) {
	return t.m.Get(ctx, key)
}

func (t *MemoryTab) Set(_ context.Context, key, value string) error {
	t.m.write(t.view, key, value, true)
	return nil
}

func (t *MemoryTab) Delete(_ context.Context, key string) error {
	t.m.write(t.view, key, "", false)
	return nil
}

func (t *MemoryTab) Watch(key string, fn func(string)) func() {
	return t.m.watch(t.view, key, fn)
}
