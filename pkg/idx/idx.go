package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID is a ULID, optionally carrying a short kind prefix such as "flow_" or
// "req_" so ids stay recognisable in logs.
type ID string

// Zero represents the zero value ID, don't use this unless its a placeholder.
const Zero ID = ""

// Well known prefixes used across the SDK.
const (
	PrefixFlow    = "flow"
	PrefixRequest = "req"
)

// ErrInvalid reports a malformed id string.
var ErrInvalid = errors.New("idx: invalid id")

var (
	globalOnce sync.Once
	global     *generator
)

// generator hands out ULIDs from a monotonic source so ids minted within
// the same millisecond still sort in creation order.
type generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func (g *generator) newAt(t time.Time) ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy)
}

func gen() *generator {
	globalOnce.Do(func() {
		global = &generator{entropy: ulid.Monotonic(rand.Reader, 0)}
	})
	return global
}

// New returns a new unprefixed id stamped with the current UTC time.
func New() ID {
	return NewAt(time.Now().UTC())
}

// NewAt generates an unprefixed id at the provided time, useful for tests.
func NewAt(t time.Time) ID {
	return ID(gen().newAt(t).String())
}

// NewWithPrefix returns an id of the form "<prefix>_<ulid>".
func NewWithPrefix(prefix string) ID {
	u := gen().newAt(time.Now().UTC())
	if prefix == "" {
		return ID(u.String())
	}
	return ID(prefix + "_" + u.String())
}

// Parse validates s, accepting both bare and prefixed forms.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, ErrInvalid
	}
	if _, err := ulid.ParseStrict(ulidPart(s)); err != nil {
		return Zero, ErrInvalid
	}
	return ID(s), nil
}

// MustParse parses or panics. Useful for hard-coded IDs in tests.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool { return id == Zero }

// String returns the canonical string form.
func (id ID) String() string { return string(id) }

// Prefix returns the kind prefix, or "" for bare ids.
func (id ID) Prefix() string {
	if i := strings.LastIndexByte(string(id), '_'); i > 0 {
		return string(id[:i])
	}
	return ""
}

// Time extracts the embedded UTC timestamp. Invalid ids yield the zero time.
func (id ID) Time() time.Time {
	if id.IsZero() {
		return time.Time{}
	}
	u, err := ulid.ParseStrict(ulidPart(string(id)))
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time()).UTC()
}

// Compare reports the lexical ordering between a and b.
func Compare(a, b ID) int {
	return strings.Compare(a.String(), b.String())
}

func ulidPart(s string) string {
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		return s[i+1:]
	}
	return s
}
