package kvstore

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
)

// MemoryArea is an in-process storage area shared by several contexts, the way
// a popup and a side panel share one extension storage area.
type MemoryArea struct {
	mutex         sync.Mutex
	values        map[string]json.RawMessage
	watchers      map[int]memoryWatcher
	nextWatcherID int
}

type memoryWatcher struct {
	contextName string
	listener    Listener
}

// NewMemoryArea creates an empty storage area.
func NewMemoryArea() *MemoryArea {
	return &MemoryArea{
		values:   make(map[string]json.RawMessage),
		watchers: make(map[int]memoryWatcher),
	}
}

// Context returns a view of the area for one execution context.
func (area *MemoryArea) Context(name string) *MemoryContext {
	return &MemoryContext{area: area, name: name}
}

// MemoryContext is one context's view of a MemoryArea.
type MemoryContext struct {
	area *MemoryArea
	name string
}

// Get returns copies of the stored values.
func (view *MemoryContext) Get(_ context.Context, keys []string) (map[string]json.RawMessage, error) {
	view.area.mutex.Lock()
	defer view.area.mutex.Unlock()
	values := make(map[string]json.RawMessage, len(keys))
	for _, key := range keys {
		if value, exists := view.area.values[key]; exists {
			values[key] = cloneRaw(value)
		}
	}
	return values, nil
}

// Set stores values and notifies the watchers of other contexts.
func (view *MemoryContext) Set(_ context.Context, values map[string]json.RawMessage) error {
	view.area.mutex.Lock()
	changes := make(map[string]Change, len(values))
	for key, value := range values {
		previous, existed := view.area.values[key]
		if existed && bytes.Equal(previous, value) {
			continue
		}
		view.area.values[key] = cloneRaw(value)
		changes[key] = Change{OldValue: cloneRaw(previous), NewValue: cloneRaw(value)}
	}
	listeners := view.area.foreignListeners(view.name)
	view.area.mutex.Unlock()

	notify(listeners, changes)
	return nil
}

// Remove deletes keys and notifies the watchers of other contexts.
func (view *MemoryContext) Remove(_ context.Context, keys []string) error {
	view.area.mutex.Lock()
	changes := make(map[string]Change, len(keys))
	for _, key := range keys {
		previous, existed := view.area.values[key]
		if !existed {
			continue
		}
		delete(view.area.values, key)
		changes[key] = Change{OldValue: previous}
	}
	listeners := view.area.foreignListeners(view.name)
	view.area.mutex.Unlock()

	notify(listeners, changes)
	return nil
}

// Watch registers a listener for writes made through other contexts.
func (view *MemoryContext) Watch(listener Listener) (func(), error) {
	view.area.mutex.Lock()
	defer view.area.mutex.Unlock()
	watcherID := view.area.nextWatcherID
	view.area.nextWatcherID++
	view.area.watchers[watcherID] = memoryWatcher{contextName: view.name, listener: listener}

	var once sync.Once
	return func() {
		once.Do(func() {
			view.area.mutex.Lock()
			delete(view.area.watchers, watcherID)
			view.area.mutex.Unlock()
		})
	}, nil
}

// foreignListeners must be called with the mutex held.
func (area *MemoryArea) foreignListeners(contextName string) []Listener {
	listeners := make([]Listener, 0, len(area.watchers))
	for _, watcher := range area.watchers {
		if watcher.contextName != contextName {
			listeners = append(listeners, watcher.listener)
		}
	}
	return listeners
}

func notify(listeners []Listener, changes map[string]Change) {
	if len(changes) == 0 {
		return
	}
	for _, listener := range listeners {
		listener(changes)
	}
}
