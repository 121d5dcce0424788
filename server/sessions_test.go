package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/squirrel/vm"
)

// ---------------------------------------------------------------------------
// SessionStore
// ---------------------------------------------------------------------------

func TestSessionStoreCreateAndGet(t *testing.T) {
	env := newIsolatedEnv(t)

	a := env.Sessions.Create("alpha")
	b := env.Sessions.Create("")
	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, a.ID, 36, "session IDs are UUIDs")
	assert.Equal(t, 2, env.Sessions.Len())

	got, ok := env.Sessions.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, "alpha", got.Name)

	_, ok = env.Sessions.Get("nope")
	assert.False(t, ok)
}

func TestSessionsHaveSeparateVMs(t *testing.T) {
	env := newIsolatedEnv(t)
	a := env.Sessions.Create("a")
	b := env.Sessions.Create("b")

	_, err := a.Worker.Do(func(v *vm.VM) interface{} {
		_, err := v.Eval(bg(), "who <- \"a\"", "t")
		return err
	})
	require.NoError(t, err)

	result, err := b.Worker.Do(func(v *vm.VM) interface{} {
		_, err := v.Eval(bg(), "who", "t")
		return err
	})
	require.NoError(t, err)
	assert.ErrorIs(t, result.(error), vm.ErrKeyError)
}

func TestSessionStoreDestroy(t *testing.T) {
	env := newIsolatedEnv(t)
	s := env.Sessions.Create("doomed")
	v := s.Worker.VM()

	assert.True(t, env.Sessions.Destroy(s.ID))
	assert.False(t, env.Sessions.Destroy(s.ID))
	assert.Equal(t, 0, env.Sessions.Len())
	assert.True(t, v.Destroyed())

	_, err := s.Worker.Do(func(*vm.VM) interface{} { return nil })
	assert.ErrorIs(t, err, ErrWorkerStopped)
}

func TestSessionStoreSweep(t *testing.T) {
	env := newIsolatedEnv(t)
	idle := env.Sessions.Create("idle")
	idle.mu.Lock()
	idle.lastUsed = time.Now().Add(-time.Hour)
	idle.mu.Unlock()
	active := env.Sessions.Create("active")

	assert.Equal(t, 1, env.Sessions.Sweep(30*time.Minute))
	_, ok := env.Sessions.Get(idle.ID)
	assert.False(t, ok)
	_, ok = env.Sessions.Get(active.ID)
	assert.True(t, ok)
}

func TestSessionStoreSweeper(t *testing.T) {
	env := newIsolatedEnv(t)
	env.Sessions.Create("short-lived")

	stop := env.Sessions.StartSweeper(5*time.Millisecond, time.Nanosecond)
	defer stop()

	assert.Eventually(t, func() bool { return env.Sessions.Len() == 0 }, time.Second, 5*time.Millisecond)
}
