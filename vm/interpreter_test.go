package vm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/squirrel/compiler"
)

// newTestVM creates a VM whose print output is captured and whose error
// reports are discarded.
func newTestVM(t *testing.T, opts ...Option) (*VM, *strings.Builder) {
	t.Helper()
	out := &strings.Builder{}
	base := []Option{
		WithPrintHandler(func(s string) { out.WriteString(s) }),
		WithErrorHandler(func(string) {}),
	}
	vm := New(append(base, opts...)...)
	t.Cleanup(vm.Destroy)
	return vm, out
}

func run(t *testing.T, vm *VM, src string) Value {
	t.Helper()
	res, err := vm.LoadAndRun([]byte(src))
	require.NoError(t, err, "script:\n%s", src)
	return res
}

func assertValue(t *testing.T, want, got Value) {
	t.Helper()
	assert.Equal(t, want.Kind(), got.Kind(), "want %s, got %s", want, got)
	assert.True(t, Equal(want, got), "want %s, got %s", want, got)
}

type scriptCase struct {
	name string
	src  string
	want Value
}

func runCases(t *testing.T, cases []scriptCase) {
	t.Helper()
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			vm, _ := newTestVM(t)
			assertValue(t, tt.want, run(t, vm, tt.src))
		})
	}
}

// ---------------------------------------------------------------------------
// Expressions and statements
// ---------------------------------------------------------------------------

func TestExpressions(t *testing.T) {
	runCases(t, []scriptCase{
		{"integer division", "return 7 / 2", Int(3)},
		{"float division", "return 7.0 / 2", Float(3.5)},
		{"numeric string", `return 1 + "2"`, Int(3)},
		{"concat", `return "a" + "b"`, String("ab")},
		{"precedence", "return 2 + 3 * 4 - 1", Int(13)},
		{"modulo", "return -7 % 3", Int(-1)},
		{"comparison", "return 1 < 2.5", True},
		{"three-way compare", `return "b" <=> "a"`, Int(1)},
		{"equality across kinds", "return 1 == 1.0", True},
		{"logical and short-circuits", "return false && undefinedName", False},
		{"logical or yields operand", "return null || 5", Int(5)},
		{"ternary", "return 3 > 2 ? \"yes\" : \"no\"", String("yes")},
		{"bitwise", "return (6 & 3) | (1 << 4)", Int(18)},
		{"unary", "return -(3) + ~0", Int(-4)},
		{"not", "return !null", True},
		{"typeof array", "return typeof []", String("array")},
		{"typeof native", "return typeof print", String("function")},
		{"string index", `return "abc"[1]`, Int(98)},
	})
}

func TestStatements(t *testing.T) {
	runCases(t, []scriptCase{
		{"for loop", "local s = 0; for (local i = 0; i < 10; i++) s += i; return s", Int(45)},
		{"while with break", "local i = 0; while (true) { i++; if (i == 5) break } return i", Int(5)},
		{"continue", "local s = 0; for (local i = 0; i < 6; i++) { if (i % 2 == 1) continue; s += i } return s", Int(6)},
		{"do while", "local i = 10; do { i++ } while (i < 5); return i", Int(11)},
		{"if else", "local x = 3; if (x > 5) return 1; else if (x > 2) return 2; else return 3", Int(2)},
		{"root slot", "::g <- 5; ::g += 1; return ::g", Int(6)},
		{"global new slot", "counter <- 1; counter = counter + 1; return counter", Int(2)},
		{"prefix and postfix", "local a = 1; local b = a++; local c = ++a; return b * 10 + c", Int(13)},
	})
}

// ---------------------------------------------------------------------------
// Tables and arrays
// ---------------------------------------------------------------------------

func TestContainers(t *testing.T) {
	runCases(t, []scriptCase{
		{"table literal", "local t = {a = 1, b = 2}; t.c <- 3; return t.a + t.b + t.c", Int(6)},
		{"string keys", `local t = {"x y": 4}; return t["x y"]`, Int(4)},
		{"computed keys", "local k = \"z\"; local t = {[k] = 9}; return t.z", Int(9)},
		{"in operator", `local t = {a = 1}; return "a" in t`, True},
		{"delete", `local t = {a = 1}; delete t.a; return "a" in t`, False},
		{"int and float keys differ", "local t = {}; t[1] <- \"i\"; t[1.0] <- \"f\"; return t[1]", String("i")},
		{"array literal", "local a = [1, 2, 3]; a[1] = 5; return a[0] + a[1] + a[2]", Int(9)},
		{"nested", "local t = {list = [10, {v = 20}]}; return t.list[1].v", Int(20)},
		{"clone is shallow", "local a = {x = 1}; local b = clone a; b.x = 2; return a.x", Int(1)},
		{"null-safe field", "local t = null; return t?.x", Null},
		{"null-safe missing key", "local t = {}; return t?.missing", Null},
		{"null-safe index", "local a = null; return a?[0]", Null},
	})
}

func TestForeach(t *testing.T) {
	runCases(t, []scriptCase{
		{"array index and value", "local s = 0; foreach (i, v in [10, 20, 30]) s += i * v; return s", Int(80)},
		{"value only", "local s = 0; foreach (v in [1, 2, 3]) s += v; return s", Int(6)},
		{"table insertion order", `local t = {}; t.x <- 1; t.y <- 2; t.z <- 3
			local ks = ""; foreach (k, v in t) ks += k; return ks`, String("xyz")},
		{"string bytes", `local n = 0; foreach (c in "abc") n += c; return n`, Int(294)},
		{"generator", "function g() { yield 1; yield 2; yield 3 } local s = 0; foreach (v in g()) s += v; return s", Int(6)},
		{"break", "local last = 0; foreach (v in [1, 2, 3, 4]) { if (v > 2) break; last = v } return last", Int(2)},
	})
}

// ---------------------------------------------------------------------------
// Functions and closures
// ---------------------------------------------------------------------------

func TestFunctions(t *testing.T) {
	runCases(t, []scriptCase{
		{"recursion", "function fib(n) { return n < 2 ? n : fib(n - 1) + fib(n - 2) } return fib(15)", Int(610)},
		{"counter closure", `function counter() { local n = 0; return function() { n++; return n } }
			local c = counter(); c(); c(); return c()`, Int(3)},
		{"shared upvalue", `function pair() { local n = 0
				return [function() { n += 10 }, function() { return n }] }
			local p = pair(); p[0](); p[0](); return p[1]()`, Int(20)},
		{"loop captures distinct locals", `local fs = []
			for (local i = 0; i < 3; i++) { local j = i; fs.append(function() { return j }) }
			return fs[0]() + fs[1]() * 10 + fs[2]() * 100`, Int(210)},
		{"missing args are null", "function f(a, b) { return b } return f(1)", Null},
		{"varargs", "function f(a, ...) { return a + vargv.len() } return f(10, 1, 2, 3)", Int(13)},
		{"function expression", "local sq = function(x) { return x * x }; return sq(7)", Int(49)},
		{"explicit this", "function f() { return this.v } return f.call({v = 9})", Int(9)},
		{"method this", "local t = {v = 4, get = function() { return v }}; return t.get()", Int(4)},
		{"main vargv", "return vargv.len()", Int(0)},
	})
}

// ---------------------------------------------------------------------------
// Classes
// ---------------------------------------------------------------------------

func TestClasses(t *testing.T) {
	runCases(t, []scriptCase{
		{"inheritance and base calls", `
			class Animal {
				name = null
				constructor(n) { name = n }
				function speak() { return name + " makes a sound" }
			}
			class Dog extends Animal {
				function speak() { return base.speak() + " (woof)" }
			}
			return Dog("rex").speak()`, String("rex makes a sound (woof)")},
		{"instanceof", `class A {} class B extends A {} local b = B()
			return (b instanceof A) && (b instanceof B) && !(A() instanceof B)`, True},
		{"fields are per instance", `class P { x = 0 } local a = P(); local b = P(); a.x = 5; return b.x`, Int(0)},
		{"static members", "class C { static count = 10 } return C.count", Int(10)},
		{"class members added later", "class C {} C.extra <- function() { return 3 }; return C().extra()", Int(3)},
		{"getclass", "class A {} local a = A(); return a.getclass() == A", True},
		{"typeof instance", "class A {} return typeof A()", String("instance")},
	})
}

// ---------------------------------------------------------------------------
// Exceptions
// ---------------------------------------------------------------------------

func TestExceptions(t *testing.T) {
	runCases(t, []scriptCase{
		{"throw string", `try { throw "boom" } catch (e) { return e }`, String("boom")},
		{"throw table", "try { throw {code = 7} } catch (e) { return e.code }", Int(7)},
		{"vm fault message", "try { local x = {}; return x.missing } catch (e) { return e }",
			String("the index 'missing' does not exist")},
		{"unwinds frames", `function f() { throw "x" } try { f() } catch (e) { return e + "!" }`, String("x!")},
		{"nested try", `local log = ""
			try { try { throw "inner" } catch (e) { log += e; throw "outer" } } catch (e) { log += "," + e }
			return log`, String("inner,outer")},
		{"native error is catchable", `try { string.upper(5) } catch (e) { return "caught" }`, String("caught")},
		{"execution continues after catch", `local n = 0; try { throw 1 } catch (e) { n = e } return n + 1`, Int(2)},
	})
}

func TestScriptErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"call a number", "local x = 5; x()", ErrNotCallable},
		{"table plus int", "return {} + 1", ErrTypeError},
		{"string plus int", `return "x" + 1`, ErrTypeError},
		{"integer division by zero", "return 1 / 0", ErrTypeError},
		{"index null", "local n = null; return n.x", ErrTypeError},
		{"array out of range", "local a = [1]; return a[5]", ErrIndexError},
		{"missing key", "local t = {}; return t.nope", ErrKeyError},
		{"assign undeclared", "undefinedVar = 1", ErrKeyError},
		{"read undeclared", "return undefinedVar", ErrKeyError},
		{"too many args", "function f(a) {} f(1, 2)", ErrArgumentError},
		{"native signature", "string.upper(5)", ErrArgumentError},
		{"constructorless class with args", "class A {} A(1)", ErrArgumentError},
		{"stack overflow", "function f() { return f() } f()", ErrRuntimeFault},
		{"uncaught throw", `throw "x"`, ErrRuntimeFault},
		{"resume dead generator", "function g() { yield 1 } local x = g(); resume x; resume x; resume x", ErrRuntimeFault},
		{"null key", "local t = {}; t[null] <- 1", ErrTypeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm, _ := newTestVM(t)
			_, err := vm.LoadAndRun([]byte(tt.src))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestScriptErrorTrace(t *testing.T) {
	vm, _ := newTestVM(t)
	_, err := vm.RunContext(context.Background(), []byte("function inner() { throw \"deep\" }\nfunction outer() { inner() }\nouter()"), "trace.nut")

	var se *ScriptError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "deep", se.Message)
	require.GreaterOrEqual(t, len(se.Trace), 3)
	assert.Equal(t, "inner", se.Trace[0].Function)
	assert.Equal(t, "outer", se.Trace[1].Function)
	assert.Equal(t, "trace.nut", se.Trace[0].Source)
	assert.Contains(t, se.FormatTrace(), "inner [trace.nut:1]")
}

func TestCompileError(t *testing.T) {
	vm, _ := newTestVM(t)
	_, err := vm.LoadAndRun([]byte("local = 5"))
	require.ErrorIs(t, err, ErrCompileError)

	var ce *compiler.Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 1, ce.Pos.Line)
}

// ---------------------------------------------------------------------------
// Generators
// ---------------------------------------------------------------------------

func TestGenerators(t *testing.T) {
	runCases(t, []scriptCase{
		{"resume yields values", `function g() { yield 1; yield 2 } local x = g()
			return (resume x) * 10 + (resume x)`, Int(12)},
		{"locals survive yields", `function g() { local n = 0; while (true) { n += 5; yield n } }
			local x = g(); resume x; resume x; return resume x`, Int(15)},
		{"status", `function g() { yield 1 } local x = g(); local s1 = x.status()
			resume x; resume x; return s1 + "," + x.status()`, String("suspended,dead")},
		{"return value ends generator", `function g() { yield 1; return 9 } local x = g(); resume x; return resume x`, Int(9)},
		{"upvalues closed on yield", `function g() { local n = 1; yield function() { return n } }
			local x = g(); local f = resume x; return f()`, Int(1)},
	})
}

// ---------------------------------------------------------------------------
// Cancellation and limits
// ---------------------------------------------------------------------------

func TestAbortByContext(t *testing.T) {
	vm, _ := newTestVM(t, WithCheckInterval(10))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := vm.RunContext(ctx, []byte("while (true) {}"), "loop")
	var se *ScriptError
	require.True(t, errors.As(err, &se))
	assert.True(t, se.Aborted())
	assert.ErrorIs(t, err, context.Canceled)

	// The VM stays usable.
	assertValue(t, Int(2), run(t, vm, "return 1 + 1"))
}

func TestAbortIsUncatchable(t *testing.T) {
	vm, _ := newTestVM(t, WithCheckInterval(10))
	_, err := vm.RunTimeout(20*time.Millisecond, []byte("try { while (true) {} } catch (e) { return 1 }"), "loop")
	var se *ScriptError
	require.True(t, errors.As(err, &se))
	assert.True(t, se.Aborted())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAbortFromAnotherGoroutine(t *testing.T) {
	vm, _ := newTestVM(t)
	timer := time.AfterFunc(20*time.Millisecond, vm.Abort)
	defer timer.Stop()

	_, err := vm.LoadAndRun([]byte("local i = 0; while (true) { i++ }"))
	var se *ScriptError
	require.True(t, errors.As(err, &se))
	assert.True(t, se.Aborted())
}

func TestMaxCallDepth(t *testing.T) {
	vm, _ := newTestVM(t, WithMaxCallDepth(16))
	assertValue(t, Int(10), run(t, vm, "function f(n) { return n == 0 ? 0 : 1 + f(n - 1) } return f(10)"))

	_, err := vm.LoadAndRun([]byte("function f(n) { return n == 0 ? 0 : 1 + f(n - 1) } return f(100)"))
	assert.ErrorIs(t, err, ErrRuntimeFault)
}

func TestHeapLimitOutOfMemory(t *testing.T) {
	vm, _ := newTestVM(t, WithHeapLimit(256*1024))
	_, err := vm.LoadAndRun([]byte(`local a = []; while (true) a.append("xxxxxxxxxxxxxxxx")`))
	assert.ErrorIs(t, err, ErrOutOfMemory)

	// Memory is recovered once the array is unreachable.
	vm.CollectGarbage()
	assertValue(t, Int(3), run(t, vm, "return [1, 2, 3].len()"))
}

func TestLargeNativeBuffersRespectHeapLimit(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"blob.create", "return blob.create(1 << 42)"},
		{"blob.create over limit", "return blob.create(2 << 20)"},
		{"string.repeat", `return string.repeat("ab", 1 << 40)`},
		{"string.repeat overflow", `return string.repeat("abcd", 0x7fffffffffffffff)`},
		{"array", "return array(1 << 40)"},
		{"array with fill", `return array(1 << 20, "xxxxxxxx")`},
		{"array.resize", "return [].resize(1 << 40)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm, _ := newTestVM(t, WithHeapLimit(1<<20))
			_, err := vm.LoadAndRun([]byte(tt.src))
			assert.ErrorIs(t, err, ErrOutOfMemory)

			// The VM stays usable.
			assertValue(t, Int(4), run(t, vm, `return string.repeat("ab", 2).len()`))
		})
	}
}

func TestLargeNativeBuffersWithoutHeapLimit(t *testing.T) {
	vm, _ := newTestVM(t)
	for _, src := range []string{
		"return blob.create(1 << 42)",
		`return string.repeat("ab", 1 << 40)`,
		"return array(1 << 40)",
		"return [].resize(1 << 40)",
	} {
		_, err := vm.LoadAndRun([]byte(src))
		assert.ErrorIs(t, err, ErrOutOfMemory, src)
	}
	assertValue(t, Int(16), run(t, vm, "return blob.create(16).len()"))
}
