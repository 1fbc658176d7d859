package identity

import (
	"strconv"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// keyLocks serializes read-modify-write sequences per identity key.
// Entries are never evicted; the key space is bounded by the user base.
type keyLocks struct {
	locks *xsync.MapOf[string, *sync.Mutex]
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: xsync.NewMapOf[string, *sync.Mutex]()}
}

func (k *keyLocks) lock(key string) func() {
	mu, _ := k.locks.LoadOrCompute(key, func() *sync.Mutex {
		return &sync.Mutex{}
	})
	mu.Lock()
	return mu.Unlock
}

func stateKey(username string, scope Scope) string {
	return strconv.Itoa(scope.TenantID) + "/" + scope.Domain + "/" + username
}
