// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Locker is an exclusive lock shared by every process that modifies the
// module registry.
type Locker interface {
	// Lock blocks until the lock is held or ctx is done.
	Lock(ctx context.Context) error

	// Unlock releases the lock.
	Unlock() error
}

// ChangeObserver receives the outcome of schedule and apply operations.
type ChangeObserver interface {
	// ScheduleOp reports one schedule operation; err is nil on success.
	ScheduleOp(op string, err error)

	// Applied reports one apply run.
	Applied(changed, failed bool, err error, d time.Duration)
}

// -----------------------------------------------------------------------------
// Store Ports
// -----------------------------------------------------------------------------

// SchemaStore keeps the schema text of installed modules and their imports.
// It satisfies schema.Source.
type SchemaStore interface {
	// Find returns the schema text of a module. An empty revision selects
	// the newest stored revision.
	Find(name, revision string) ([]byte, error)

	// Store saves schema text unless that revision is already stored.
	Store(name, revision string, text []byte) error

	// Remove deletes a stored revision. Removing a missing one is not an error.
	Remove(name, revision string) error
}

// Datastore selects a configuration datastore.
type Datastore int

const (
	Startup Datastore = iota
	Running
)

func (d Datastore) String() string {
	if d == Running {
		return "running"
	}
	return "startup"
}

// DataStore keeps the per-module configuration data files.
type DataStore interface {
	// Read returns a module's data in a datastore, nil when there is none.
	Read(module string, ds Datastore) ([]byte, error)

	// Write replaces a module's data in a datastore.
	Write(module string, ds Datastore, data []byte) error

	// CreateStartup creates an empty startup file unless one exists.
	CreateStartup(module string) error

	// RemoveAll deletes every data file of a module.
	RemoveAll(module string) error
}

// ReplayIndex records when notifications of a module were stored.
type ReplayIndex interface {
	// Earliest returns the time of the oldest stored record of a module.
	// ok is false when the module has no records.
	Earliest(ctx context.Context, module string) (t time.Time, ok bool, err error)

	// Record notes a stored notification of a module.
	Record(ctx context.Context, module string, at time.Time) error
}
