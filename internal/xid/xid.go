// Package xid mints prefixed identifiers such as "med-...", "sal-..."
// and "bat-...". The prefix makes ids self-describing in logs and
// audit trails; the timestamp keeps them roughly sortable by creation.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns a fresh id for the given entity prefix. The random tail
// disambiguates ids minted within the same nanosecond; if the system
// randomness source fails, the timestamp alone is used.
func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
