package integration_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/squirrel/pkg/bytecode"
	"github.com/chazu/squirrel/vm"
)

// ---------------------------------------------------------------------------
// Integration test helpers
// ---------------------------------------------------------------------------

// newVM creates a VM with print output captured and uncaught error reports
// collected.
func newVM(t *testing.T, opts ...vm.Option) (*vm.VM, *strings.Builder, *[]string) {
	t.Helper()
	out := &strings.Builder{}
	var reports []string
	base := []vm.Option{
		vm.WithPrintHandler(func(s string) { out.WriteString(s) }),
		vm.WithErrorHandler(func(s string) { reports = append(reports, s) }),
	}
	v := vm.New(append(base, opts...)...)
	t.Cleanup(v.Destroy)
	return v, out, &reports
}

// runScript compiles and runs source as a whole script.
func runScript(t *testing.T, v *vm.VM, source string) vm.Value {
	t.Helper()
	res, err := v.RunContext(context.Background(), []byte(source), "test.nut")
	require.NoError(t, err, "script:\n%s", source)
	return res
}

func requireInt(t *testing.T, want int64, got vm.Value) {
	t.Helper()
	require.Equal(t, vm.KindInteger, got.Kind(), "got %s", got)
	assert.Equal(t, want, got.AsInt())
}

func requireString(t *testing.T, v *vm.VM, want string, got vm.Value) {
	t.Helper()
	s, err := v.ToString(got)
	require.NoError(t, err)
	assert.Equal(t, want, s)
}

// ---------------------------------------------------------------------------
// 1. Arithmetic: Factorial
// ---------------------------------------------------------------------------

func TestFactorial(t *testing.T) {
	v, _, _ := newVM(t)
	runScript(t, v, `
		function fact(n) {
			if (n <= 1) return 1
			return n * fact(n - 1)
		}`)

	tests := []struct {
		n    int
		want int64
	}{
		{0, 1},
		{1, 1},
		{5, 120},
		{10, 3628800},
		{20, 2432902008176640000},
	}
	for _, tt := range tests {
		got, err := v.Eval(context.Background(), "fact("+itoa(tt.n)+")", "eval")
		require.NoError(t, err)
		requireInt(t, tt.want, got)
	}
}

// ---------------------------------------------------------------------------
// 2. Recursion: Fibonacci
// ---------------------------------------------------------------------------

func TestFibonacci(t *testing.T) {
	v, _, _ := newVM(t)
	got := runScript(t, v, `
		function fib(n) { return n < 2 ? n : fib(n - 1) + fib(n - 2) }
		local out = ""
		for (local i = 0; i < 10; i++) out += fib(i).tostring() + " "
		return out`)
	requireString(t, v, "0 1 1 2 3 5 8 13 21 34 ", got)
}

// ---------------------------------------------------------------------------
// 3. Classes: Counter with fields and methods
// ---------------------------------------------------------------------------

func TestClassCounter(t *testing.T) {
	v, _, _ := newVM(t)
	got := runScript(t, v, `
		class Counter {
			count = 0
			constructor(start) { count = start }
			function increment() { count++; return this }
			function value() { return count }
		}
		local c = Counter(10)
		c.increment().increment().increment()
		return c.value()`)
	requireInt(t, 13, got)
}

// ---------------------------------------------------------------------------
// 4. Inheritance: base calls and instanceof
// ---------------------------------------------------------------------------

func TestInheritance(t *testing.T) {
	v, _, _ := newVM(t)
	runScript(t, v, `
		class Animal {
			name = null
			constructor(n) { name = n }
			function sound() { return "..." }
			function speak() { return name + " says " + this.sound() }
		}
		class Dog extends Animal {
			function sound() { return "woof" }
		}
		class Puppy extends Dog {
			function sound() { return base.sound() + " (squeaky)" }
		}
		rex <- Dog("rex")
		bit <- Puppy("bit")`)

	tests := []struct {
		expr string
		want string
	}{
		{"rex.speak()", "rex says woof"},
		{"bit.speak()", "bit says woof (squeaky)"},
		{"(bit instanceof Animal).tostring()", "true"},
		{"(rex instanceof Puppy).tostring()", "false"},
		{"typeof bit", "instance"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := v.Eval(context.Background(), tt.expr, "eval")
			require.NoError(t, err)
			requireString(t, v, tt.want, got)
		})
	}
}

// ---------------------------------------------------------------------------
// 5. Closures: captured state outlives the defining call
// ---------------------------------------------------------------------------

func TestClosures(t *testing.T) {
	v, _, _ := newVM(t)
	got := runScript(t, v, `
		function makeAdder(n) { return function(x) { return x + n } }
		function makeAccount(balance) {
			return {
				deposit = function(x) { balance += x; return balance },
				withdraw = function(x) { balance -= x; return balance }
			}
		}
		local add5 = makeAdder(5)
		local acct = makeAccount(100)
		acct.deposit(50)
		acct.withdraw(30)
		return add5(acct.deposit(0))`)
	requireInt(t, 125, got)
}

// ---------------------------------------------------------------------------
// 6. Generators: lazy pipelines
// ---------------------------------------------------------------------------

func TestGeneratorPipeline(t *testing.T) {
	v, _, _ := newVM(t)
	got := runScript(t, v, `
		function naturals() { local n = 0; while (true) yield n++ }
		function evens(g) { foreach (x in g) if (x % 2 == 0) yield x }
		local sum = 0
		foreach (x in evens(naturals())) {
			if (x > 10) break
			sum += x
		}
		return sum`)
	requireInt(t, 30, got)
}

// ---------------------------------------------------------------------------
// 7. Strings: delegates and formatting
// ---------------------------------------------------------------------------

func TestStrings(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"upper", `return "hello".toupper()`, "HELLO"},
		{"slice", `return "squirrel".slice(1, 4)`, "qui"},
		{"tochar", `local s = ""; for (local c = 97; c < 100; c++) s = c.tochar() + s; return s`, "cba"},
		{"format", `return string.format("%s=%05.1f", "pi", math.PI)`, "pi=003.1"},
		{"tostring of int", `return (40 + 2).tostring()`, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _, _ := newVM(t)
			requireString(t, v, tt.want, runScript(t, v, tt.src))
		})
	}
}

// ---------------------------------------------------------------------------
// 8. Tables: word frequency
// ---------------------------------------------------------------------------

func TestWordFrequency(t *testing.T) {
	v, _, _ := newVM(t)
	got := runScript(t, v, `
		local counts = {}
		foreach (w in ["a", "b", "a", "c", "a", "b"]) {
			if (w in counts) counts[w]++
			else counts[w] <- 1
		}
		return counts`)

	n, err := v.TableLen(got)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	for key, want := range map[string]int64{"a": 3, "b": 2, "c": 1} {
		n, err := v.TableGet(got, vm.String(key))
		require.NoError(t, err)
		requireInt(t, want, n)
	}
	_, err = v.TableGet(got, vm.String("d"))
	assert.ErrorIs(t, err, vm.ErrKeyError)
}

// ---------------------------------------------------------------------------
// 9. Algorithms: GCD and mutual recursion
// ---------------------------------------------------------------------------

func TestAlgorithms(t *testing.T) {
	v, _, _ := newVM(t)
	runScript(t, v, `
		function gcd(a, b) { while (b != 0) { local t = b; b = a % b; a = t } return a }
		function isEven(n) { return n == 0 ? true : isOdd(n - 1) }
		function isOdd(n) { return n == 0 ? false : isEven(n - 1) }`)

	tests := []struct {
		expr string
		want string
	}{
		{"gcd(48, 18)", "6"},
		{"gcd(17, 5)", "1"},
		{"isEven(10)", "true"},
		{"isOdd(7)", "true"},
		{"isEven(7)", "false"},
	}
	for _, tt := range tests {
		got, err := v.Eval(context.Background(), tt.expr, "eval")
		require.NoError(t, err)
		requireString(t, v, tt.want, got)
	}
}

// ---------------------------------------------------------------------------
// 10. Data structures: linked list
// ---------------------------------------------------------------------------

func TestLinkedList(t *testing.T) {
	v, _, _ := newVM(t)
	got := runScript(t, v, `
		class Node {
			value = null
			next = null
			constructor(v, n) { value = v; next = n }
		}
		local head = null
		for (local i = 1; i <= 5; i++) head = Node(i, head)
		local sum = 0
		local len = 0
		for (local n = head; n != null; n = n.next) { sum += n.value; len++ }
		return sum * 100 + len`)
	requireInt(t, 1505, got)
}

// ---------------------------------------------------------------------------
// 11. Sessions: globals persist across evaluations
// ---------------------------------------------------------------------------

func TestEvalPersistence(t *testing.T) {
	v, out, _ := newVM(t)
	ctx := context.Background()

	_, err := v.Eval(ctx, "total <- 0", "eval")
	require.NoError(t, err)
	for i := 1; i <= 4; i++ {
		_, err := v.Eval(ctx, "total += "+itoa(i), "eval")
		require.NoError(t, err)
	}
	_, err = v.Eval(ctx, "print(total)", "eval")
	require.NoError(t, err)
	assert.Equal(t, "10", out.String())
}

// ---------------------------------------------------------------------------
// 12. Errors: uncaught errors are reported, caught ones are not
// ---------------------------------------------------------------------------

func TestErrorReporting(t *testing.T) {
	v, _, reports := newVM(t)

	res := runScript(t, v, `try { throw "handled" } catch (e) { return e }`)
	requireString(t, v, "handled", res)
	assert.Empty(t, *reports)

	_, err := v.RunContext(context.Background(), []byte(`local t = {}; return t.nope`), "bad.nut")
	require.ErrorIs(t, err, vm.ErrKeyError)
	require.Len(t, *reports, 1)
	assert.Contains(t, (*reports)[0], "AN ERROR HAS OCCURRED [the index 'nope' does not exist]")
}

// ---------------------------------------------------------------------------
// 13. Bytecode: serialized chunks run like source
// ---------------------------------------------------------------------------

func TestBytecodeRoundTrip(t *testing.T) {
	sources := map[string]string{
		"sum": `local s = 0; foreach (x in [1, 2, 3, 4]) s += x; print(s); return s`,
		"closures": `function adder(n) { return function(x) { return x + n } }
			print(adder(40)(2)); return adder(1)(1)`,
		"classes": `class P {
				x = 0
				constructor(v) { x = v }
				function get() { return x * 2 }
			}
			print(P(21).get()); return P(3).get()`,
	}
	scripts, err := filepath.Glob(filepath.Join("..", "..", "examples", "*.nut"))
	require.NoError(t, err)
	for _, script := range scripts {
		sources[filepath.Base(script)] = mustRead(t, script)
	}

	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			direct, directOut, _ := newVM(t)
			want, err := direct.LoadAndRun([]byte(src))
			require.NoError(t, err)
			wantText, err := direct.ToString(want)
			require.NoError(t, err)

			chunk, err := direct.Compile([]byte(src), name)
			require.NoError(t, err)
			data, err := chunk.Serialize()
			require.NoError(t, err)
			require.True(t, bytecode.IsBytecode(data))

			loaded, loadedOut, _ := newVM(t)
			got, err := loaded.LoadAndRun(data)
			require.NoError(t, err)
			assert.Equal(t, directOut.String(), loadedOut.String())
			assert.Equal(t, want.Kind(), got.Kind())
			requireString(t, loaded, wantText, got)

			// Deserialize is the same path taken explicitly.
			parsed, err := bytecode.Deserialize(data)
			require.NoError(t, err)
			again, againOut, _ := newVM(t)
			_, err = again.RunChunkContext(context.Background(), parsed)
			require.NoError(t, err)
			assert.Equal(t, directOut.String(), againOut.String())
		})
	}
}

// ---------------------------------------------------------------------------
// 14. Memory: cyclic garbage is collected
// ---------------------------------------------------------------------------

func TestCyclesCollected(t *testing.T) {
	v, _, _ := newVM(t)
	runScript(t, v, `
		for (local i = 0; i < 100; i++) {
			local a = {}
			local b = { other = a }
			a.other <- b
		}`)
	stats := v.CollectGarbage()
	assert.GreaterOrEqual(t, stats.Collected, 200)
}

// ---------------------------------------------------------------------------
// 15. Example scripts
// ---------------------------------------------------------------------------

func TestExampleScripts(t *testing.T) {
	scripts, err := filepath.Glob(filepath.Join("..", "..", "examples", "*.nut"))
	require.NoError(t, err)
	require.NotEmpty(t, scripts)

	for _, script := range scripts {
		name := strings.TrimSuffix(filepath.Base(script), ".nut")
		t.Run(name, func(t *testing.T) {
			want, err := os.ReadFile(strings.TrimSuffix(script, ".nut") + ".out")
			require.NoError(t, err)

			v, out, reports := newVM(t)
			_, err = v.LoadAndRun([]byte(mustRead(t, script)))
			require.NoError(t, err)
			assert.Empty(t, *reports)
			assert.Equal(t, string(want), out.String())
		})
	}
}

func mustRead(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func itoa(n int) string {
	return vm.Int(int64(n)).String()
}
