// Package idgen provides ID generation implementations. Apply runs carry
// an ID so their log lines can be correlated.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/artpar/modreg/ports"
)

// UUID generates random UUIDs.
type UUID struct{}

// New generates a new UUID v4.
func (UUID) New() string {
	return uuid.New().String()
}

// Sequential generates predictable IDs for tests.
type Sequential struct {
	prefix  string
	counter atomic.Uint64
}

// NewSequential creates a sequential generator producing prefix1, prefix2, ...
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// New generates the next ID.
func (s *Sequential) New() string {
	return s.prefix + strconv.FormatUint(s.counter.Add(1), 10)
}

var (
	_ ports.IDGenerator = UUID{}
	_ ports.IDGenerator = (*Sequential)(nil)
)
