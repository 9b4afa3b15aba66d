// Package lock provides the advisory lease lock manager that serializes
// write tools per resource. Locks are cooperative: nothing in the host
// enforces them, the router simply refuses to run a write tool while another
// request holds the lease.
package lock

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultLease is the lease granted for every router acquisition.
const DefaultLease = 30 * time.Second

// Info describes a held lock.
type Info struct {
	Key       string    `json:"key"`
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
}

type entry struct {
	owner     string
	expiresAt time.Time
}

// Manager tracks advisory leases keyed by resource path.
type Manager struct {
	mu    sync.Mutex
	locks map[string]entry
	now   func() time.Time
}

func New() *Manager {
	return NewWithClock(time.Now)
}

// NewWithClock injects the time source, used by tests to step leases past
// expiry without sleeping.
func NewWithClock(now func() time.Time) *Manager {
	return &Manager{locks: make(map[string]entry), now: now}
}

// Acquire takes or refreshes the lease on key for owner. Expired leases are
// swept before the check. On conflict it returns false plus the current
// holder.
func (m *Manager) Acquire(key, owner string, lease time.Duration) (bool, Info) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweepLocked(now)

	if cur, ok := m.locks[key]; ok && cur.owner != owner {
		return false, Info{Key: key, Owner: cur.owner, ExpiresAt: cur.expiresAt}
	}

	m.locks[key] = entry{owner: owner, expiresAt: now.Add(lease)}
	log.Debug().Str("key", key).Str("owner", owner).Msg("lock acquired")
	return true, Info{Key: key, Owner: owner, ExpiresAt: now.Add(lease)}
}

// Renew extends the lease, but only for its current owner.
func (m *Manager) Renew(key, owner string, lease time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.locks[key]
	if !ok || cur.owner != owner || m.now().After(cur.expiresAt) {
		return false
	}
	m.locks[key] = entry{owner: owner, expiresAt: m.now().Add(lease)}
	return true
}

// Release drops the lease. Releasing a missing or already expired lock
// succeeds; releasing a lock held by someone else does not.
func (m *Manager) Release(key, owner string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.locks[key]
	if !ok {
		return true
	}
	if m.now().After(cur.expiresAt) {
		delete(m.locks, key)
		return true
	}
	if cur.owner != owner {
		return false
	}
	delete(m.locks, key)
	return true
}

// ReleaseAllByOwner drops every lease held by owner and reports how many.
func (m *Manager) ReleaseAllByOwner(owner string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	released := 0
	for key, cur := range m.locks {
		if cur.owner == owner {
			delete(m.locks, key)
			released++
		}
	}
	return released
}

// ReclaimStale removes every expired lease and reports how many were
// reclaimed.
func (m *Manager) ReclaimStale() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked(m.now())
}

// Held lists the currently live leases, for system.health reporting.
func (m *Manager) Held() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := []Info{}
	for key, cur := range m.locks {
		if now.After(cur.expiresAt) {
			continue
		}
		out = append(out, Info{Key: key, Owner: cur.owner, ExpiresAt: cur.expiresAt})
	}
	return out
}

func (m *Manager) sweepLocked(now time.Time) int {
	swept := 0
	for key, cur := range m.locks {
		if now.After(cur.expiresAt) {
			delete(m.locks, key)
			swept++
		}
	}
	return swept
}
