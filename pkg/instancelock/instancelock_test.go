package instancelock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHeartbeat reproduces the conditional-update semantics of
// storage.Store.Heartbeat in memory, so two Locks racing against the same
// fakeHeartbeat contend exactly as they would against a real backend.
type fakeHeartbeat struct {
	mu   sync.Mutex
	date time.Time
	set  bool
}

func (f *fakeHeartbeat) Heartbeat(ctx context.Context, olderThan time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()

	if !f.set {
		f.set = true
		f.date = now
		return true, nil
	}
	if !f.date.After(now.Add(-olderThan)) {
		f.date = now
		return true, nil
	}
	return false, nil
}

func TestLock_SingleActiveInstance(t *testing.T) {
	backend := &fakeHeartbeat{}

	a := New(backend, 10*time.Millisecond, 50*time.Millisecond)
	b := New(backend, 10*time.Millisecond, 50*time.Millisecond)

	var activeCount int32
	var mu sync.Mutex
	onActive := func() {
		mu.Lock()
		activeCount++
		mu.Unlock()
	}

	go a.Run(context.Background(), onActive, func() {})
	go b.Run(context.Background(), onActive, func() {})

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	count := activeCount
	mu.Unlock()
	assert.Equal(t, int32(1), count)

	a.Stop()
	b.Stop()
}

func TestLock_OnLossCalledWhenHeartbeatFails(t *testing.T) {
	backend := &fakeHeartbeat{}
	l := New(backend, 10*time.Millisecond, 20*time.Millisecond)

	lostCh := make(chan struct{})
	onActive := func() {}
	onLoss := func() { close(lostCh) }

	go l.Run(context.Background(), onActive, onLoss)

	require.Eventually(t, func() bool { return l.IsActive() }, time.Second, time.Millisecond)

	// Simulate a competing instance stealing the row: a date fresher than
	// any threshold our next heartbeat can use makes its conditional update
	// lose deterministically.
	backend.mu.Lock()
	backend.date = time.Now().Add(time.Second)
	backend.mu.Unlock()

	select {
	case <-lostCh:
	case <-time.After(time.Second):
		t.Fatal("onLoss was never called")
	}
}
