package lock_test

import (
	"testing"
	"time"

	"github.com/forgebridge/forgebridge/internal/lock"
)

// fakeClock lets tests step leases past expiry without sleeping.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newManager() (*lock.Manager, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return lock.NewWithClock(clock.Now), clock
}

func TestAcquireConflict(t *testing.T) {
	m, _ := newManager()

	ok, _ := m.Acquire("/Game/Maps/Arena", "req-1", lock.DefaultLease)
	if !ok {
		t.Fatal("first acquire should succeed")
	}

	ok, holder := m.Acquire("/Game/Maps/Arena", "req-2", lock.DefaultLease)
	if ok {
		t.Fatal("second acquire by a different owner should conflict")
	}
	if holder.Owner != "req-1" {
		t.Errorf("holder = %q, want req-1", holder.Owner)
	}

	if ok, _ := m.Acquire("/Game/Props/Crate", "req-2", lock.DefaultLease); !ok {
		t.Error("different key should be free")
	}
}

func TestAcquireSameOwnerRefreshes(t *testing.T) {
	m, clock := newManager()

	m.Acquire("k", "req-1", lock.DefaultLease)
	clock.Advance(20 * time.Second)
	ok, info := m.Acquire("k", "req-1", lock.DefaultLease)
	if !ok {
		t.Fatal("same owner re-acquire should succeed")
	}
	want := clock.Now().Add(lock.DefaultLease)
	if !info.ExpiresAt.Equal(want) {
		t.Errorf("lease not refreshed: expires %v, want %v", info.ExpiresAt, want)
	}
}

func TestExpiredLeaseIsReacquirable(t *testing.T) {
	m, clock := newManager()

	m.Acquire("k", "req-1", lock.DefaultLease)
	clock.Advance(lock.DefaultLease + time.Second)

	ok, _ := m.Acquire("k", "req-2", lock.DefaultLease)
	if !ok {
		t.Error("expired lease should be claimable by a new owner")
	}
}

func TestRenewOnlyByOwner(t *testing.T) {
	m, clock := newManager()

	m.Acquire("k", "req-1", lock.DefaultLease)
	if m.Renew("k", "req-2", lock.DefaultLease) {
		t.Error("renew by non-owner should fail")
	}
	if !m.Renew("k", "req-1", lock.DefaultLease) {
		t.Error("renew by owner should succeed")
	}

	clock.Advance(lock.DefaultLease + time.Second)
	if m.Renew("k", "req-1", lock.DefaultLease) {
		t.Error("renew after expiry should fail")
	}
}

func TestRelease(t *testing.T) {
	m, clock := newManager()

	m.Acquire("k", "req-1", lock.DefaultLease)
	if m.Release("k", "req-2") {
		t.Error("release by non-owner should fail")
	}
	if !m.Release("k", "req-1") {
		t.Error("release by owner should succeed")
	}
	if !m.Release("k", "req-1") {
		t.Error("releasing a missing lock should succeed")
	}

	m.Acquire("k", "req-1", lock.DefaultLease)
	clock.Advance(lock.DefaultLease + time.Second)
	if !m.Release("k", "req-2") {
		t.Error("releasing an expired lock should succeed for anyone")
	}
}

func TestReleaseAllByOwner(t *testing.T) {
	m, _ := newManager()

	m.Acquire("a", "req-1", lock.DefaultLease)
	m.Acquire("b", "req-1", lock.DefaultLease)
	m.Acquire("c", "req-2", lock.DefaultLease)

	if got := m.ReleaseAllByOwner("req-1"); got != 2 {
		t.Errorf("released %d, want 2", got)
	}
	if held := m.Held(); len(held) != 1 || held[0].Key != "c" {
		t.Errorf("held = %+v, want only c", held)
	}
}

func TestReclaimStale(t *testing.T) {
	m, clock := newManager()

	m.Acquire("a", "req-1", lock.DefaultLease)
	m.Acquire("b", "req-2", lock.DefaultLease)
	clock.Advance(lock.DefaultLease + time.Second)
	m.Acquire("c", "req-3", lock.DefaultLease)
	clock.Advance(lock.DefaultLease + time.Second)

	if got := m.ReclaimStale(); got != 1 {
		// a and b were already swept by the acquire of c.
		t.Errorf("reclaimed %d, want 1", got)
	}
	if held := m.Held(); len(held) != 0 {
		t.Errorf("held = %+v, want none", held)
	}
}
