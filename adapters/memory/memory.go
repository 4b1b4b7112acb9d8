// Package memory provides in-memory implementations for testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/artpar/modreg/core/errs"
	"github.com/artpar/modreg/ports"
)

// SchemaStore is an in-memory implementation of ports.SchemaStore.
type SchemaStore struct {
	mu    sync.RWMutex
	texts map[string]map[string][]byte // name -> revision -> text
}

// NewSchemaStore creates a new in-memory schema store.
func NewSchemaStore() *SchemaStore {
	return &SchemaStore{texts: make(map[string]map[string][]byte)}
}

// Find returns stored schema text. An empty revision selects the newest.
func (s *SchemaStore) Find(name, revision string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	revs := s.texts[name]
	if revision == "" && len(revs) > 0 {
		revision = newest(revs)
	}
	text, ok := revs[revision]
	if !ok {
		return nil, errs.New(errs.NotFound, "schema of module %q revision %q not found", name, revision)
	}
	return text, nil
}

// Store saves schema text unless that revision is already stored.
func (s *SchemaStore) Store(name, revision string, text []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.texts[name] == nil {
		s.texts[name] = make(map[string][]byte)
	}
	if _, ok := s.texts[name][revision]; !ok {
		s.texts[name][revision] = append([]byte(nil), text...)
	}
	return nil
}

// Remove deletes a stored revision.
func (s *SchemaStore) Remove(name, revision string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.texts[name], revision)
	if len(s.texts[name]) == 0 {
		delete(s.texts, name)
	}
	return nil
}

// Has reports whether a revision is stored.
func (s *SchemaStore) Has(name, revision string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.texts[name][revision]
	return ok
}

func newest(revs map[string][]byte) string {
	keys := make([]string, 0, len(revs))
	for k := range revs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[len(keys)-1]
}

// DataStore is an in-memory implementation of ports.DataStore.
type DataStore struct {
	mu    sync.RWMutex
	files map[string][]byte // "module/datastore" -> content
}

// NewDataStore creates a new in-memory data store.
func NewDataStore() *DataStore {
	return &DataStore{files: make(map[string][]byte)}
}

func dataKey(module string, ds ports.Datastore) string {
	return module + "/" + ds.String()
}

// Read returns a module's data, nil when there is none.
func (s *DataStore) Read(module string, ds ports.Datastore) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.files[dataKey(module, ds)], nil
}

// Write replaces a module's data.
func (s *DataStore) Write(module string, ds ports.Datastore, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.files[dataKey(module, ds)] = append([]byte{}, data...)
	return nil
}

// CreateStartup creates empty startup data unless some exists.
func (s *DataStore) CreateStartup(module string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[dataKey(module, ports.Startup)]; !ok {
		s.files[dataKey(module, ports.Startup)] = []byte{}
	}
	return nil
}

// RemoveAll deletes every data file of a module.
func (s *DataStore) RemoveAll(module string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.files, dataKey(module, ports.Startup))
	delete(s.files, dataKey(module, ports.Running))
	return nil
}

// Exists reports whether a module has data in a datastore.
func (s *DataStore) Exists(module string, ds ports.Datastore) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.files[dataKey(module, ds)]
	return ok
}

// Locker is an in-process implementation of ports.Locker.
type Locker struct {
	ch chan struct{}
}

// NewLocker creates an unlocked locker.
func NewLocker() *Locker {
	return &Locker{ch: make(chan struct{}, 1)}
}

// Lock blocks until the lock is held or ctx is done.
func (l *Locker) Lock(ctx context.Context) error {
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unlock releases the lock.
func (l *Locker) Unlock() error {
	select {
	case <-l.ch:
		return nil
	default:
		return errs.New(errs.Internal, "unlock of unlocked locker")
	}
}

// ReplayIndex is an in-memory implementation of ports.ReplayIndex.
type ReplayIndex struct {
	mu      sync.RWMutex
	records map[string][]time.Time
}

// NewReplayIndex creates an empty replay index.
func NewReplayIndex() *ReplayIndex {
	return &ReplayIndex{records: make(map[string][]time.Time)}
}

// Earliest returns the oldest record of a module.
func (r *ReplayIndex) Earliest(ctx context.Context, module string) (time.Time, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var first time.Time
	for _, t := range r.records[module] {
		if first.IsZero() || t.Before(first) {
			first = t
		}
	}
	return first, !first.IsZero(), nil
}

// Record notes a stored notification.
func (r *ReplayIndex) Record(ctx context.Context, module string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[module] = append(r.records[module], at)
	return nil
}

var (
	_ ports.SchemaStore = (*SchemaStore)(nil)
	_ ports.DataStore   = (*DataStore)(nil)
	_ ports.Locker      = (*Locker)(nil)
	_ ports.ReplayIndex = (*ReplayIndex)(nil)
)
