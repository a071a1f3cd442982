// Package idx generates the identifiers the client attaches to logical
// requests: ULIDs, so they sort by creation time in logs.
package idx

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type ID string

// Zero is the empty ID.
const Zero ID = ""

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a ULID for the current UTC time. Safe for concurrent use.
func New() ID {
	mu.Lock()
	defer mu.Unlock()

	return ID(ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String())
}

// OrNew returns s as an ID when non-empty, otherwise a fresh one. Callers may
// pass their own opaque request identifiers; they are not required to be ULIDs.
func OrNew(s string) ID {
	if s = strings.TrimSpace(s); s != "" {
		return ID(s)
	}
	return New()
}

func (id ID) IsZero() bool   { return id == Zero }
func (id ID) String() string { return string(id) }
