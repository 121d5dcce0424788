package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/squirrel/vm"
)

// ErrWorkerStopped is returned by Do once the worker has been stopped.
var ErrWorkerStopped = errors.New("vm worker stopped")

// vmRequest represents a unit of work to be executed on the VM goroutine.
type vmRequest struct {
	fn   func(*vm.VM) interface{}
	done chan vmResult
}

// vmResult holds the return value from a VM operation.
type vmResult struct {
	value interface{}
	err   error
}

// VMWorker serializes all VM access through a single goroutine.
// A VM is not safe for concurrent use; every handler goes through
// the worker.
type VMWorker struct {
	vm       *vm.VM
	requests chan vmRequest
	quit     chan struct{}
	stopOnce sync.Once
}

// NewVMWorker creates a VMWorker and starts the processing goroutine.
func NewVMWorker(v *vm.VM) *VMWorker {
	w := &VMWorker{
		vm:       v,
		requests: make(chan vmRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes VM requests sequentially on a dedicated goroutine.
func (w *VMWorker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs a function on the VM, recovering from panics.
func (w *VMWorker) execute(fn func(*vm.VM) interface{}) (result vmResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("vm worker %s: recovered panic: %v", w.vm.ID(), r)
			result.err = fmt.Errorf("%v", r)
		}
	}()
	result.value = fn(w.vm)
	return result
}

// Do submits a function for execution on the VM goroutine and blocks
// until it completes. Returns the result and any error (including panics).
func (w *VMWorker) Do(fn func(*vm.VM) interface{}) (interface{}, error) {
	return w.DoContext(context.Background(), fn)
}

// DoContext is Do that gives up waiting for a turn when ctx is done.
// Once fn has started it runs to completion; fn should pass ctx to the
// VM so a cancelled request aborts the script.
func (w *VMWorker) DoContext(ctx context.Context, fn func(*vm.VM) interface{}) (interface{}, error) {
	req := vmRequest{
		fn:   fn,
		done: make(chan vmResult, 1),
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrWorkerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		return nil, ErrWorkerStopped
	}
}

// Stop shuts down the worker goroutine. It is safe to call more than once.
func (w *VMWorker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}

// VM returns the underlying VM. Only Abort and ID may be used from
// outside the worker goroutine.
func (w *VMWorker) VM() *vm.VM {
	return w.vm
}
