package server

import (
	"context"
	"os"
	"testing"

	"connectrpc.com/connect"

	"github.com/chazu/squirrel/vm"
)

// ---------------------------------------------------------------------------
// Shared test infrastructure for server package tests.
//
// Tests that only read the standard library share one VM created in
// TestMain. Tests that define globals use a session or an isolated env.
// ---------------------------------------------------------------------------

var (
	testWorker   *VMWorker
	testSessions *SessionStore
)

func newQuietVM() *vm.VM {
	return vm.New(
		vm.WithPrintHandler(func(string) {}),
		vm.WithErrorHandler(func(string) {}),
	)
}

func TestMain(m *testing.M) {
	testWorker = NewVMWorker(newQuietVM())
	testSessions = NewSessionStore(newQuietVM)

	code := m.Run()

	testSessions.DestroyAll()
	shutdown(testWorker)
	os.Exit(code)
}

// newTestEvalService creates an EvalService backed by the shared VM.
func newTestEvalService() *EvalService {
	return NewEvalService(testWorker, testSessions)
}

// newTestSessionService creates a SessionService backed by the shared store.
func newTestSessionService() *SessionService {
	return NewSessionService(testSessions)
}

// ---------------------------------------------------------------------------
// Isolated VM helpers
// ---------------------------------------------------------------------------

// testEnv bundles a fresh, isolated VM with its worker and session store.
type testEnv struct {
	Worker   *VMWorker
	Sessions *SessionStore
}

// newIsolatedEnv creates a brand-new worker and store, torn down with t.
func newIsolatedEnv(t *testing.T) *testEnv {
	t.Helper()
	e := &testEnv{
		Worker:   NewVMWorker(newQuietVM()),
		Sessions: NewSessionStore(newQuietVM),
	}
	t.Cleanup(func() {
		e.Sessions.DestroyAll()
		shutdown(e.Worker)
	})
	return e
}

// ---------------------------------------------------------------------------
// Request builder helpers
// ---------------------------------------------------------------------------

func connectReq[T any](msg *T) *connect.Request[T] {
	return connect.NewRequest(msg)
}

func bg() context.Context {
	return context.Background()
}
