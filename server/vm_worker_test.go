package server

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/squirrel/vm"
)

// ---------------------------------------------------------------------------
// VMWorker
// ---------------------------------------------------------------------------

func TestVMWorkerDo(t *testing.T) {
	env := newIsolatedEnv(t)

	result, err := env.Worker.Do(func(v *vm.VM) interface{} {
		res, err := v.Eval(bg(), "6 * 7", "t")
		require.NoError(t, err)
		return res.AsInt()
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), result)
}

func TestVMWorkerSerializesAccess(t *testing.T) {
	env := newIsolatedEnv(t)
	_, err := env.Worker.Do(func(v *vm.VM) interface{} {
		_, err := v.Eval(bg(), "counter <- 0", "t")
		return err
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Worker.Do(func(v *vm.VM) interface{} {
				_, err := v.Eval(bg(), "counter += 1", "t")
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	result, err := env.Worker.Do(func(v *vm.VM) interface{} {
		res, _ := v.Eval(bg(), "counter", "t")
		return res.AsInt()
	})
	require.NoError(t, err)
	assert.Equal(t, int64(20), result)
}

func TestVMWorkerRecoversPanic(t *testing.T) {
	env := newIsolatedEnv(t)

	_, err := env.Worker.Do(func(v *vm.VM) interface{} {
		panic("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	result, err := env.Worker.Do(func(v *vm.VM) interface{} { return "still alive" })
	require.NoError(t, err)
	assert.Equal(t, "still alive", result)
}

func TestVMWorkerStopped(t *testing.T) {
	w := NewVMWorker(newQuietVM())
	shutdown(w)
	w.Stop() // idempotent

	_, err := w.Do(func(v *vm.VM) interface{} { return nil })
	assert.ErrorIs(t, err, ErrWorkerStopped)
}

func TestVMWorkerContextAbortsScript(t *testing.T) {
	env := newIsolatedEnv(t)
	ctx, cancel := context.WithCancel(bg())

	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()

	result, err := env.Worker.DoContext(ctx, func(v *vm.VM) interface{} {
		close(started)
		_, err := v.Eval(ctx, "while (true) {}", "spin")
		return err
	})
	require.NoError(t, err)
	assert.ErrorIs(t, result.(error), context.Canceled)
}
