// Package idx generates lexicographically sortable ULID identifiers used as
// primary keys across the store.
package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type ID string

// Zero is the zero value ID, only useful as a placeholder.
const Zero ID = ""

// ErrInvalid reports a malformed ULID string.
var ErrInvalid = errors.New("idx: invalid ulid")

var (
	globalOnce sync.Once
	global     *generator
)

// generator produces ULIDs safely under concurrency using a shared monotonic
// entropy source.
type generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func (g *generator) newAt(t time.Time) ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ID(ulid.MustNew(ulid.Timestamp(t), g.entropy).String())
}

func initGlobal() {
	global = &generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// New returns a fresh ID using the current UTC time.
func New() ID {
	globalOnce.Do(initGlobal)
	return global.newAt(time.Now().UTC())
}

// NewAt generates an ID at the provided time, useful in tests.
func NewAt(t time.Time) ID {
	globalOnce.Do(initGlobal)
	return global.newAt(t.UTC())
}

// Parse validates s as a ULID and returns it as an ID.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, ErrInvalid
	}
	if _, err := ulid.ParseStrict(s); err != nil {
		return Zero, ErrInvalid
	}
	return ID(s), nil
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool { return id == Zero }

// String returns the canonical string form.
func (id ID) String() string { return string(id) }

// Time extracts the embedded UTC timestamp, or the zero time for invalid IDs.
func (id ID) Time() time.Time {
	u, err := ulid.ParseStrict(id.String())
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time())
}
