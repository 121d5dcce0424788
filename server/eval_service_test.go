package server

import (
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func evalReq(src string) *connect.Request[wrapperspb.StringValue] {
	return connectReq(wrapperspb.String(src))
}

// ---------------------------------------------------------------------------
// Evaluate: happy paths
// ---------------------------------------------------------------------------

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name, src, value, typ string
	}{
		{"integer", "42", "42", "integer"},
		{"arithmetic", "3 + 4", "7", "integer"},
		{"float", "1.5 * 2", "3", "float"},
		{"string", `"hello"`, "hello", "string"},
		{"bool", "1 < 2", "true", "bool"},
		{"null", "null", "null", "null"},
		{"array", "[1, 2].len()", "2", "integer"},
		{"stdlib", `string.format("%d-%s", 7, "x")`, "7-x", "string"},
		{"statements", "local x = 1; x += 1", "null", "null"},
	}
	svc := newTestEvalService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := svc.Evaluate(bg(), evalReq(tt.src))
			require.NoError(t, err)
			f := resp.Msg.GetFields()
			assert.Empty(t, f["error"].GetStringValue())
			assert.Equal(t, tt.value, f["value"].GetStringValue())
			assert.Equal(t, tt.typ, f["type"].GetStringValue())
		})
	}
}

func TestEvaluateFunctionType(t *testing.T) {
	resp, err := newTestEvalService().Evaluate(bg(), evalReq("print"))
	require.NoError(t, err)
	assert.Equal(t, "function", resp.Msg.GetFields()["type"].GetStringValue())
}

// ---------------------------------------------------------------------------
// Evaluate: errors
// ---------------------------------------------------------------------------

func TestEvaluateEmptySource(t *testing.T) {
	_, err := newTestEvalService().Evaluate(bg(), evalReq("   "))
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestEvaluateScriptErrorIsReported(t *testing.T) {
	tests := []struct {
		name, src, contains string
	}{
		{"runtime", `throw "bad thing"`, "bad thing"},
		{"type", `"x" - 1`, "TypeError"},
		{"compile", "local = ", "CompileError"},
	}
	svc := newTestEvalService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := svc.Evaluate(bg(), evalReq(tt.src))
			require.NoError(t, err, "script errors are part of the response")
			assert.Contains(t, resp.Msg.GetFields()["error"].GetStringValue(), tt.contains)
		})
	}
}

func TestEvaluateUnknownSession(t *testing.T) {
	req := evalReq("1")
	req.Header().Set(SessionHeader, "no-such-session")
	_, err := newTestEvalService().Evaluate(bg(), req)
	require.Error(t, err)
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
}

// ---------------------------------------------------------------------------
// Evaluate: sessions
// ---------------------------------------------------------------------------

func TestEvaluateInSession(t *testing.T) {
	env := newIsolatedEnv(t)
	svc := NewEvalService(env.Worker, env.Sessions)
	session := env.Sessions.Create("work")

	inSession := func(src string) *connect.Request[wrapperspb.StringValue] {
		req := evalReq(src)
		req.Header().Set(SessionHeader, session.ID)
		return req
	}

	_, err := svc.Evaluate(bg(), inSession("total <- 40"))
	require.NoError(t, err)

	resp, err := svc.Evaluate(bg(), inSession("total + 2"))
	require.NoError(t, err)
	assert.Equal(t, "42", resp.Msg.GetFields()["value"].GetStringValue())

	resp, err = svc.Evaluate(bg(), evalReq("total"))
	require.NoError(t, err)
	assert.Contains(t, resp.Msg.GetFields()["error"].GetStringValue(), "KeyError",
		"session globals are not visible to the shared VM")
}

// ---------------------------------------------------------------------------
// CheckSyntax
// ---------------------------------------------------------------------------

func TestCheckSyntaxValid(t *testing.T) {
	resp, err := newTestEvalService().CheckSyntax(bg(), evalReq("function f(a) { return a + 1 }"))
	require.NoError(t, err)
	f := resp.Msg.GetFields()
	assert.True(t, f["valid"].GetBoolValue())
	assert.NotContains(t, f, "error")
}

func TestCheckSyntaxInvalid(t *testing.T) {
	resp, err := newTestEvalService().CheckSyntax(bg(), evalReq("local x = 1\nlocal y = (2 +"))
	require.NoError(t, err)
	f := resp.Msg.GetFields()
	assert.False(t, f["valid"].GetBoolValue())
	assert.NotEmpty(t, f["error"].GetStringValue())
	assert.Equal(t, float64(2), f["line"].GetNumberValue())
	assert.Positive(t, f["column"].GetNumberValue())
}

func TestCheckSyntaxDoesNotRun(t *testing.T) {
	env := newIsolatedEnv(t)
	svc := NewEvalService(env.Worker, env.Sessions)

	_, err := svc.CheckSyntax(bg(), evalReq("ran <- true"))
	require.NoError(t, err)

	resp, err := svc.Evaluate(bg(), evalReq("ran"))
	require.NoError(t, err)
	assert.Contains(t, resp.Msg.GetFields()["error"].GetStringValue(), "KeyError")
}
