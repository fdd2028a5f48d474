// Package ids generates client-side message identifiers. Locally minted ids
// carry a reserved prefix so retry logic can recognise entries that were
// never confirmed by the server.
package ids

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// LocalPrefix marks ids generated on this client before any server
// confirmation. Server-assigned ids never carry it.
const LocalPrefix = "local-"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New returns a fresh lexicographically sortable id.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String()
}

// NewLocal returns a fresh client-generated id carrying LocalPrefix.
func NewLocal() string {
	return LocalPrefix + New()
}

// IsLocal reports whether id was generated locally and is not yet confirmed
// by the server.
func IsLocal(id string) bool {
	return strings.HasPrefix(id, LocalPrefix)
}
