package docstore

import "sync"

// DocumentListener receives a copy of the document that was added or updated.
type DocumentListener func(doc StoredDocument)

// RemovalListener receives the id of a removed document.
type RemovalListener func(id string)

// docListenerEntry pairs a listener with its registration token.
type docListenerEntry struct {
	id int
	fn DocumentListener
}

type removalListenerEntry struct {
	id int
	fn RemovalListener
}

// eventHub fans mutation events out to subscribers in subscription order.
//
// Listener invocation is synchronous within the mutating call and is not
// wrapped in a recover: a panicking listener unwinds the mutating
// operation, aborting its remaining side effects. Callers depend on that.
type eventHub struct {
	mu      sync.Mutex
	nextID  int
	added   []docListenerEntry
	updated []docListenerEntry
	removed []removalListenerEntry
}

func newEventHub() *eventHub {
	return &eventHub{}
}

// subscribeAdded registers fn and returns an idempotent unsubscribe.
func (h *eventHub) subscribeAdded(fn DocumentListener) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.added = append(h.added, docListenerEntry{id: id, fn: fn})
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.added = removeDocListener(h.added, id)
	}
}

func (h *eventHub) subscribeUpdated(fn DocumentListener) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.updated = append(h.updated, docListenerEntry{id: id, fn: fn})
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.updated = removeDocListener(h.updated, id)
	}
}

func (h *eventHub) subscribeRemoved(fn RemovalListener) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.removed = append(h.removed, removalListenerEntry{id: id, fn: fn})
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.removed = removeRemovalListener(h.removed, id)
	}
}

func (h *eventHub) emitAdded(doc StoredDocument) {
	for _, entry := range h.snapshotAdded() {
		entry.fn(doc)
	}
}

func (h *eventHub) emitUpdated(doc StoredDocument) {
	for _, entry := range h.snapshotUpdated() {
		entry.fn(doc)
	}
}

func (h *eventHub) emitRemoved(id string) {
	h.mu.Lock()
	entries := make([]removalListenerEntry, len(h.removed))
	copy(entries, h.removed)
	h.mu.Unlock()

	for _, entry := range entries {
		entry.fn(id)
	}
}

// clear drops every registration. Outstanding unsubscribe funcs stay safe
// to call.
func (h *eventHub) clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.added = nil
	h.updated = nil
	h.removed = nil
}

func (h *eventHub) snapshotAdded() []docListenerEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries := make([]docListenerEntry, len(h.added))
	copy(entries, h.added)
	return entries
}

func (h *eventHub) snapshotUpdated() []docListenerEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries := make([]docListenerEntry, len(h.updated))
	copy(entries, h.updated)
	return entries
}

func removeDocListener(entries []docListenerEntry, id int) []docListenerEntry {
	for i, e := range entries {
		if e.id == id {
			return append(entries[:i], entries[i+1:]...)
		}
	}
	return entries
}

func removeRemovalListener(entries []removalListenerEntry, id int) []removalListenerEntry {
	for i, e := range entries {
		if e.id == id {
			return append(entries[:i], entries[i+1:]...)
		}
	}
	return entries
}
