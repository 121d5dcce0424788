package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/chazu/squirrel/compiler"
	"github.com/chazu/squirrel/vm"
)

// Connect procedure paths.
const (
	EvaluateProcedure    = "/squirrel.v1.EvalService/Evaluate"
	CheckSyntaxProcedure = "/squirrel.v1.EvalService/CheckSyntax"
)

// SessionHeader selects the session a request runs in. Requests without
// it use the server's shared VM.
const SessionHeader = "Squirrel-Session"

// EvalService evaluates source text in a VM.
type EvalService struct {
	worker   *VMWorker
	sessions *SessionStore
}

// NewEvalService creates an EvalService. worker runs requests that name
// no session.
func NewEvalService(worker *VMWorker, sessions *SessionStore) *EvalService {
	return &EvalService{
		worker:   worker,
		sessions: sessions,
	}
}

// evalResult is the outcome of one evaluation, built on the worker.
type evalResult struct {
	value string
	typ   string
	err   string
}

// Evaluate compiles and runs the source. An expression yields its value;
// statements yield null. Script errors are reported in the "error" field
// of a successful response.
func (s *EvalService) Evaluate(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[structpb.Struct], error) {
	source := req.Msg.GetValue()
	if strings.TrimSpace(source) == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}

	worker, err := s.workerFor(req.Header().Get(SessionHeader))
	if err != nil {
		return nil, err
	}

	result, err := worker.DoContext(ctx, func(v *vm.VM) interface{} {
		return evaluate(ctx, v, source)
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	r := result.(evalResult)

	msg, err := structpb.NewStruct(map[string]interface{}{
		"value": r.value,
		"type":  r.typ,
		"error": r.err,
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// evaluate runs source on v. Must be called on the VM worker goroutine.
func evaluate(ctx context.Context, v *vm.VM, source string) evalResult {
	res, err := v.Eval(ctx, source, "eval")
	if err != nil {
		return evalResult{typ: "null", value: "null", err: err.Error()}
	}
	str, err := v.ToString(res)
	if err != nil {
		return evalResult{typ: v.TypeOf(res), err: err.Error()}
	}
	return evalResult{value: str, typ: v.TypeOf(res)}
}

// CheckSyntax compiles the source without running it. The response has
// "valid" and, for invalid source, "error", "line" and "column".
func (s *EvalService) CheckSyntax(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[structpb.Struct], error) {
	fields := map[string]interface{}{"valid": true}

	_, err := compiler.Compile(req.Msg.GetValue(), "check")
	if err != nil {
		fields["valid"] = false
		fields["error"] = err.Error()
		var ce *compiler.Error
		if errors.As(err, &ce) {
			fields["error"] = ce.Msg
			fields["line"] = ce.Pos.Line
			fields["column"] = ce.Pos.Column
		}
	}

	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// workerFor returns the worker for a session ID, or the shared worker
// when id is empty.
func (s *EvalService) workerFor(id string) (*VMWorker, error) {
	if id == "" {
		return s.worker, nil
	}
	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
	}
	return session.Worker, nil
}

// Handlers returns the connect handlers keyed by procedure path.
func (s *EvalService) Handlers(opts ...connect.HandlerOption) map[string]*connect.Handler {
	return map[string]*connect.Handler{
		EvaluateProcedure:    connect.NewUnaryHandler(EvaluateProcedure, s.Evaluate, opts...),
		CheckSyntaxProcedure: connect.NewUnaryHandler(CheckSyntaxProcedure, s.CheckSyntax, opts...),
	}
}
