package vm

import (
	"context"
	"time"
)

// ---------------------------------------------------------------------------
// Cooperative cancellation
// ---------------------------------------------------------------------------

// Abort asks the running script to stop. It is safe to call from another
// goroutine. The dispatch loop notices within CheckInterval instructions
// and fails the run with an uncatchable RuntimeFault. An abort that
// arrives while the VM is idle is discarded by the next top-level call.
func (vm *VM) Abort() {
	vm.abort.Store(true)
}

// checkAbort is called by the dispatch loop every CheckInterval
// instructions.
func (vm *VM) checkAbort() error {
	if vm.abort.CompareAndSwap(true, false) {
		return abortError(nil)
	}
	if err := vm.ctx.Err(); err != nil {
		return abortError(err)
	}
	return nil
}

func abortError(cause error) *ScriptError {
	se := newError(RuntimeFault, "execution aborted")
	if cause != nil {
		se = newError(RuntimeFault, "execution aborted: %v", cause)
	}
	se.Cause = cause
	se.abort = true
	return se
}

// RunTimeout compiles and runs src, aborting it after d.
func (vm *VM) RunTimeout(d time.Duration, src []byte, name string, args ...Value) (Value, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return vm.RunContext(ctx, src, name, args...)
}
