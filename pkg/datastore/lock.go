package datastore

import (
	"sync"

	"github.com/ncxd/confd/pkg/netconf"
)

// lockState records the global lock a <lock>/<unlock> pair holds against
// one named datastore (RFC 6241 §7.5).
type lockState struct {
	Holder string
}

// lockTable guards the four named datastores with a single mutex, the
// same serialization spec.md §5's single-threaded event loop gives for
// free — this module instead runs over goroutine-driven net/http and
// net.Listener front-ends, so the mutex is what stands in for it.
type lockTable struct {
	mu     sync.Mutex
	locked map[DBName]*lockState
}

func newLockTable() *lockTable {
	return &lockTable{locked: map[DBName]*lockState{}}
}

// Lock grants holder an exclusive lock on name, failing with
// lock-denied if another session already holds it (RFC 6241 §7.5).
func (l *lockTable) Lock(name DBName, holder string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.locked[name]; ok {
		if st.Holder == holder {
			return nil
		}
		return &netconf.RPCError{
			Type: netconf.ErrorTypeProtocol, Tag: netconf.ErrorTagLockDenied,
			Severity: netconf.SeverityError,
			Message:  "datastore already locked",
			Info:     map[string]string{"holder": st.Holder},
		}
	}
	l.locked[name] = &lockState{Holder: holder}
	return nil
}

// Unlock releases holder's lock on name, failing with operation-failed if
// holder does not currently hold it.
func (l *lockTable) Unlock(name DBName, holder string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.locked[name]
	if !ok || st.Holder != holder {
		return netconf.New(netconf.ErrorTypeProtocol, netconf.ErrorTagOperationFailed,
			"%q is not locked by this session", name)
	}
	delete(l.locked, name)
	return nil
}

// UnlockAll releases every lock holder holds, used when a session
// terminates without an explicit <unlock> (RFC 6241 §7.5's "released
// automatically when the session that obtained the lock terminates").
func (l *lockTable) UnlockAll(holder string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for name, st := range l.locked {
		if st.Holder == holder {
			delete(l.locked, name)
		}
	}
}

// IsLocked reports whether name is currently locked, and by whom.
func (l *lockTable) IsLocked(name DBName) (holder string, locked bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.locked[name]
	if !ok {
		return "", false
	}
	return st.Holder, true
}

// Lock exposes the Store's lock table to callers (pkg/engine's
// <lock>/<unlock>/<edit-config> handlers).
func (s *Store) Lock(name DBName, holder string) error { return s.locks.Lock(name, holder) }

// Unlock exposes the Store's lock table's Unlock.
func (s *Store) Unlock(name DBName, holder string) error { return s.locks.Unlock(name, holder) }

// UnlockAll exposes the Store's lock table's UnlockAll.
func (s *Store) UnlockAll(holder string) { s.locks.UnlockAll(holder) }

// IsLocked exposes the Store's lock table's IsLocked.
func (s *Store) IsLocked(name DBName) (string, bool) { return s.locks.IsLocked(name) }
