package vm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/squirrel"
)

// ---------------------------------------------------------------------------
// Base library
// ---------------------------------------------------------------------------

func TestBaseLibrary(t *testing.T) {
	runCases(t, []scriptCase{
		{"tointeger string", `return tointeger("42")`, Int(42)},
		{"tointeger float", "return tointeger(3.9)", Int(3)},
		{"tofloat", `return tofloat("1.5")`, Float(1.5)},
		{"tostring float", "return tostring(2.0)", String("2")},
		{"tostring bool", "return tostring(true)", String("true")},
		{"len array", "return len([1, 2])", Int(2)},
		{"len string", `return len("abc")`, Int(3)},
		{"len table", "return len({a = 1})", Int(1)},
		{"type", "return type(1.5)", String("float")},
		{"array fill", `local a = array(3, "x"); return a.len() + a[2].len()`, Int(4)},
		{"getroottable", "::k <- 1; return getroottable().k", Int(1)},
		{"compilestring", `local f = compilestring("return 40 + 2"); return f()`, Int(42)},
		{"compilestring vargv", `local f = compilestring("return vargv[0] * 2"); return f(21)`, Int(42)},
		{"assert passes", "assert(1 == 1); return 1", Int(1)},
		{"geterrorhandler default", "return geterrorhandler()", Null},
		{"version", "return _version_", String(squirrel.VersionString)},
		{"version number", "return _versionnumber_", Int(squirrel.VersionNumber)},
	})
}

func TestAssertFailure(t *testing.T) {
	vm, _ := newTestVM(t)
	_, err := vm.LoadAndRun([]byte(`assert(false, "custom message")`))
	require.ErrorIs(t, err, ErrRuntimeFault)
	assert.Contains(t, err.Error(), "custom message")
}

func TestTointegerRejectsGarbage(t *testing.T) {
	vm, _ := newTestVM(t)
	_, err := vm.LoadAndRun([]byte(`return tointeger("12abc")`))
	assert.Error(t, err)
}

func TestDofileUsesSearchPaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib.nut"), []byte("helper <- function(x) { return x + 1 }\nreturn 10"), 0o644))

	vm, _ := newTestVM(t, WithSearchPaths(dir))
	assertValue(t, Int(11), run(t, vm, `local n = dofile("lib.nut"); return helper(n)`))

	_, err := vm.LoadAndRun([]byte(`dofile("missing.nut")`))
	assert.ErrorIs(t, err, ErrIOError)
}

func TestLoadfileDoesNotRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "side.nut")
	require.NoError(t, os.WriteFile(path, []byte("ran <- true"), 0o644))

	vm, _ := newTestVM(t)
	res, err := vm.RunContext(context.Background(), []byte(`local f = loadfile(vargv[0]); return "ran" in getroottable()`), "load", String(path))
	require.NoError(t, err)
	assertValue(t, False, res)
}

func TestLibrarySelection(t *testing.T) {
	vm, _ := newTestVM(t, WithLibraries("base", "math"))
	assertValue(t, Int(2), run(t, vm, "return math.abs(-2)"))
	_, err := vm.LoadAndRun([]byte(`return string.upper("x")`))
	assert.ErrorIs(t, err, ErrKeyError)

	require.NoError(t, vm.OpenLibrary("string"))
	assertValue(t, String("X"), run(t, vm, `return string.upper("x")`))
	assert.Error(t, vm.OpenLibrary("nope"))
}

// ---------------------------------------------------------------------------
// String library
// ---------------------------------------------------------------------------

func TestStringLibrary(t *testing.T) {
	runCases(t, []scriptCase{
		{"upper unicode", `return string.upper("héllo")`, String("HÉLLO")},
		{"lower", `return string.lower("MiXeD")`, String("mixed")},
		{"strip", `return string.strip("  x y \n")`, String("x y")},
		{"lstrip", `return string.lstrip("  x ")`, String("x ")},
		{"rstrip", `return string.rstrip("  x ")`, String("  x")},
		{"split drops empty fields", `return string.split("a,b,,c", ",").len()`, Int(3)},
		{"split on any separator", `return string.split("a b;c", " ;")[2]`, String("c")},
		{"find", `return string.find("hello", "l")`, Int(2)},
		{"find from start", `return string.find("hello", "l", 3)`, Int(3)},
		{"find missing", `return string.find("hello", "z")`, Null},
		{"slice negative end", `return string.slice("hello", 1, -1)`, String("ell")},
		{"slice to end", `return string.slice("hello", 3)`, String("lo")},
		{"replace", `return string.replace("a-b-c", "-", "+")`, String("a+b+c")},
		{"startswith", `return string.startswith("prefix", "pre")`, True},
		{"endswith", `return string.endswith("prefix", "pre")`, False},
		{"join", `return string.join(["a", 1, true], ",")`, String("a,1,true")},
		{"format", `return string.format("%d-%s-%.2f-%x-%%", 7, "x", 1.5, 255)`, String("7-x-1.50-ff-%")},
		{"format char", `return string.format("%c%c", 72, 105)`, String("Hi")},
		{"repeat", `return string.repeat("ab", 3)`, String("ababab")},
		{"match", `return string.match("key=value", "(\\w+)=(\\w+)")[2]`, String("value")},
		{"no match", `return string.match("nothing", "\\d+")`, Null},
		{"len", `return string.len("four")`, Int(4)},
	})
}

func TestStringLibraryErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"format missing argument", `string.format("%d")`, ErrArgumentError},
		{"format type mismatch", `string.format("%d", "x")`, ErrArgumentError},
		{"bad pattern", `string.match("x", "(")`, ErrArgumentError},
		{"slice out of range", `string.slice("abc", 5)`, ErrIndexError},
		{"negative repeat", `string.repeat("a", -1)`, ErrArgumentError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm, _ := newTestVM(t)
			_, err := vm.LoadAndRun([]byte(tt.src))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStringDelegate(t *testing.T) {
	runCases(t, []scriptCase{
		{"toupper", `return "Hello".toupper()`, String("HELLO")},
		{"tolower", `return "Hello".tolower()`, String("hello")},
		{"len", `return "Hello".len()`, Int(5)},
		{"slice", `return "Hello".slice(1, 3)`, String("el")},
		{"find", `return "Hello".find("l")`, Int(2)},
		{"tointeger", `return "0x10".tointeger()`, Int(16)},
		{"tofloat", `return "2.5".tofloat()`, Float(2.5)},
	})
}

// ---------------------------------------------------------------------------
// Math library
// ---------------------------------------------------------------------------

func TestMathLibrary(t *testing.T) {
	runCases(t, []scriptCase{
		{"abs int", "return math.abs(-3)", Int(3)},
		{"abs float", "return math.abs(-2.5)", Float(2.5)},
		{"floor", "return math.floor(2.7)", Float(2)},
		{"ceil", "return math.ceil(2.1)", Float(3)},
		{"sqrt", "return math.sqrt(16)", Float(4)},
		{"pow", "return math.pow(2, 10)", Float(1024)},
		{"max keeps kind", "return math.max(1, 5.5, 3)", Float(5.5)},
		{"min", "return math.min(4, -1, 3)", Int(-1)},
		{"pi", "return math.PI > 3.14 && math.PI < 3.15", True},
		{"rand in range", "for (local i = 0; i < 100; i++) { local r = math.rand(); if (r < 0 || r > math.RAND_MAX) return false } return true", True},
		{"srand is deterministic", `math.srand(7); local a = math.rand(); math.srand(7); return a == math.rand()`, True},
	})
}

func TestNumberDelegate(t *testing.T) {
	runCases(t, []scriptCase{
		{"int tostring", "return (5).tostring()", String("5")},
		{"float tointeger", "return (2.9).tointeger()", Int(2)},
		{"int tofloat", "return (2).tofloat()", Float(2)},
		{"tochar", "return (65).tochar()", String("A")},
		{"bool tointeger", "return true.tointeger()", Int(1)},
	})
}

// ---------------------------------------------------------------------------
// Array, table and closure delegates
// ---------------------------------------------------------------------------

func TestArrayDelegate(t *testing.T) {
	runCases(t, []scriptCase{
		{"sort natural", "local a = [3, 1, 2]; a.sort(); return a[0] * 100 + a[1] * 10 + a[2]", Int(123)},
		{"sort comparator", "local a = [1, 3, 2]; a.sort(function(x, y) { return y <=> x }); return a[0]", Int(3)},
		{"map and reduce", "return [1, 2, 3].map(function(x) { return x * 2 }).reduce(function(a, b) { return a + b })", Int(12)},
		{"reduce with initial", "return [].reduce(function(a, b) { return a + b }, 10)", Int(10)},
		{"reduce empty", "return [].reduce(function(a, b) { return a + b })", Null},
		{"filter gets index and value", "return [5, 6, 7, 8].filter(function(i, v) { return i % 2 == 0 }).len()", Int(2)},
		{"push pop", "local a = []; a.push(1); a.push(2); return a.pop() * 10 + a.len()", Int(21)},
		{"top", "return [1, 2, 9].top()", Int(9)},
		{"insert remove", "local a = [1, 3]; a.insert(1, 2); local r = a.remove(0); return r * 100 + a[0] * 10 + a[1]", Int(123)},
		{"resize", "local a = [1]; a.resize(3, 0); return a.len() + a[2]", Int(3)},
		{"reverse", "local a = [1, 2, 3]; a.reverse(); return a[0]", Int(3)},
		{"slice", "return [1, 2, 3, 4].slice(1, -1).len()", Int(2)},
		{"find", "return [\"a\", \"b\"].find(\"b\")", Int(1)},
		{"find missing", "return [1].find(2)", Null},
		{"clear", "local a = [1, 2]; a.clear(); return a.len()", Int(0)},
		{"append chains", "return [].append(1).append(2).len()", Int(2)},
	})
}

func TestArrayDelegateErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"pop empty", "[].pop()", ErrIndexError},
		{"top empty", "[].top()", ErrIndexError},
		{"remove out of range", "[1].remove(4)", ErrIndexError},
		{"insert out of range", "[1].insert(5, 0)", ErrIndexError},
		{"sort mixed", `[1, "a"].sort()`, ErrTypeError},
		{"comparator result", `[1, 2].sort(function(a, b) { return "x" })`, ErrTypeError},
		{"callback error propagates", `[1].map(function(x) { throw "no" })`, ErrRuntimeFault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm, _ := newTestVM(t)
			_, err := vm.LoadAndRun([]byte(tt.src))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTableDelegate(t *testing.T) {
	runCases(t, []scriptCase{
		{"len", "return {a = 1, b = 2}.len()", Int(2)},
		{"keys", "return {a = 1, b = 2}.keys().len()", Int(2)},
		{"values", "local s = 0; foreach (v in {a = 1, b = 2}.values()) s += v; return s", Int(3)},
		{"rawin", `return {a = 1}.rawin("a")`, True},
		{"rawget", `return {a = 7}.rawget("a")`, Int(7)},
		{"rawset creates", `local t = {}; t.rawset("n", 3); return t.n`, Int(3)},
		{"rawdelete returns old", `local t = {a = 5}; local v = t.rawdelete("a"); return v * 10 + t.len()`, Int(50)},
		{"clear", "local t = {a = 1}; t.clear(); return t.len()", Int(0)},
		{"slot shadows delegate", "local t = {len = function() { return 99 }}; return t.len()", Int(99)},
	})
}

func TestClosureDelegate(t *testing.T) {
	runCases(t, []scriptCase{
		{"acall", "function f(a, b) { return this.off + a + b } return f.acall([{off = 100}, 1, 2])", Int(103)},
		{"getinfos name", "function named(a, b) {} return named.getinfos().name", String("named")},
		{"getinfos parameters", "function named(a, b) {} return named.getinfos().parameters.len()", Int(3)},
		{"native getinfos", "return print.getinfos().native", True},
		{"weakref delegate", "local t = {}; return weakref(t).ref() == t", True},
		{"class getbase", "class A {} class B extends A {} return B.getbase() == A", True},
		{"class instance skips constructor", `class A { x = 1; constructor() { x = 2 } } return A.instance().x`, Int(1)},
	})
}

// ---------------------------------------------------------------------------
// Blob library
// ---------------------------------------------------------------------------

func TestBlobLibrary(t *testing.T) {
	runCases(t, []scriptCase{
		{"create", "return blob.create(4).len()", Int(4)},
		{"fromstring", `local b = blob.fromstring("hi"); return b.get(0) * 1000 + b.tostring().len()`, Int(104002)},
		{"set get", "local b = blob.create(2); b.set(1, 200); return b.get(1)", Int(200)},
		{"writen readn", `local b = blob.create(0); b.writen(258, "w"); b.writen(-2, "i"); b.writen(1.5, "d")
			b.seek(0); return b.readn("w") + b.readn("i") + b.readn("d")`, Float(257.5)},
		{"signed bytes", `local b = blob.create(0); b.writen(255, "b"); b.seek(0); return b.readn("c")`, Int(-1)},
		{"tell and eos", `local b = blob.create(3); b.seek(1, "c"); b.seek(-1, "e"); local p = b.tell(); b.readn("b"); return p * 10 + (b.eos() ? 1 : 0)`, Int(21)},
		{"resize", "local b = blob.create(1); b.resize(5); return b.len()", Int(5)},
		{"swap2", "return blob.swap2(0x0102)", Int(0x0201)},
		{"swap4", "return blob.swap4(0x01020304)", Int(0x04030201)},
		{"encode decode", `local v = blob.decode(blob.encode({a = [1, 2, "x"], b = true, c = 1.5}))
			return v.a[0] + v.a[1] + v.c`, Float(4.5)},
		{"decode string", `return blob.decode(blob.encode({a = [1, 2, "x"]})).a[2]`, String("x")},
		{"typeof blob", "return typeof blob.create(0)", String("userdata")},
	})
}

func TestBlobErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"read past end", `blob.create(1).readn("i")`, ErrIOError},
		{"bad format", `blob.create(1).readn("q")`, ErrArgumentError},
		{"get out of range", "blob.create(1).get(1)", ErrIndexError},
		{"seek out of range", "blob.create(1).seek(2)", ErrIndexError},
		{"encode function", "blob.encode(print)", ErrTypeError},
		{"encode cycle", "local t = {}; t.self <- t; blob.encode(t)", ErrTypeError},
		{"decode garbage", "blob.decode(blob.create(0))", ErrIOError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm, _ := newTestVM(t)
			_, err := vm.LoadAndRun([]byte(tt.src))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// ---------------------------------------------------------------------------
// IO library
// ---------------------------------------------------------------------------

func runWithPath(t *testing.T, vm *VM, src, path string) Value {
	t.Helper()
	res, err := vm.RunContext(context.Background(), []byte(src), "io", String(path))
	require.NoError(t, err)
	return res
}

func TestIOReadWrite(t *testing.T) {
	vm, _ := newTestVM(t)
	path := filepath.Join(t.TempDir(), "data.txt")

	res := runWithPath(t, vm, `
		io.writefile(vargv[0], "line1\nline2\n")
		local f = io.open(vargv[0], "r")
		local a = f.readline()
		local b = f.readline()
		local c = f.readline()
		f.close()
		return a + "|" + b + "|" + (c == null ? "eof" : c)`, path)
	assertValue(t, String("line1|line2|eof"), res)

	res = runWithPath(t, vm, `
		local f = io.open(vargv[0], "a+")
		f.write("line3")
		f.seek(0)
		local all = f.read()
		local n = f.len()
		f.close()
		return all.len() == n`, path)
	assertValue(t, True, res)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2\nline3", string(data))
}

func TestIOSeekTellEOS(t *testing.T) {
	vm, _ := newTestVM(t)
	path := filepath.Join(t.TempDir(), "seek.bin")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	res := runWithPath(t, vm, `
		local f = io.open(vargv[0], "r+")
		local head = f.read(3)
		local pos = f.tell()
		f.seek(-2, "e")
		local tail = f.read()
		local eos = f.eos()
		f.seek(0)
		f.write("ab")
		f.close()
		return head + pos.tostring() + tail + eos.tostring()`, path)
	assertValue(t, String("012389true"), res)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ab23456789", string(data))
}

func TestIOFileHelpers(t *testing.T) {
	vm, _ := newTestVM(t)
	path := filepath.Join(t.TempDir(), "tmp.txt")

	assertValue(t, False, runWithPath(t, vm, "return io.exists(vargv[0])", path))
	runWithPath(t, vm, `io.writefile(vargv[0], "x")`, path)
	assertValue(t, True, runWithPath(t, vm, "return io.exists(vargv[0])", path))
	assertValue(t, String("x"), runWithPath(t, vm, "return io.readfile(vargv[0])", path))
	runWithPath(t, vm, "io.remove(vargv[0])", path)
	assertValue(t, False, runWithPath(t, vm, "return io.exists(vargv[0])", path))
}

func TestIOErrorsCarryErrno(t *testing.T) {
	vm, _ := newTestVM(t)
	_, err := vm.RunContext(context.Background(), []byte("io.open(vargv[0])"), "io",
		String(filepath.Join(t.TempDir(), "missing")))

	var se *ScriptError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, IOError, se.Kind)
	assert.Equal(t, int(syscall.ENOENT), se.Code)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestIOClosedFile(t *testing.T) {
	vm, _ := newTestVM(t)
	path := filepath.Join(t.TempDir(), "closed.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := vm.RunContext(context.Background(), []byte(`local f = io.open(vargv[0]); f.close(); f.close(); f.read()`), "io", String(path))
	assert.ErrorIs(t, err, ErrIOError)

	_, err = vm.LoadAndRun([]byte(`io.open("x", "rw")`))
	assert.ErrorIs(t, err, ErrArgumentError)
}

func TestIOFileClosedOnCollect(t *testing.T) {
	vm, _ := newTestVM(t)
	path := filepath.Join(t.TempDir(), "leak.txt")
	runWithPath(t, vm, `local f = io.open(vargv[0], "w"); f.write("buffered")`, path)
	run(t, vm, "collectgarbage()")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "buffered", string(data))
}

// ---------------------------------------------------------------------------
// System library
// ---------------------------------------------------------------------------

func TestSystemLibrary(t *testing.T) {
	t.Setenv("SQ_TEST_VAR", "hello")
	runCases(t, []scriptCase{
		{"getenv", `return system.getenv("SQ_TEST_VAR")`, String("hello")},
		{"getenv unset", `return system.getenv("SQ_TEST_VAR_UNSET_1234")`, Null},
		{"uuid", "return system.uuid().len()", Int(36)},
		{"date utc", `local d = system.date(0, "u"); return d.year * 100 + d.month`, Int(197000)},
		{"date fields", `local d = system.date(86400 * 31 + 3661, "u"); return [d.day, d.hour, d.min, d.sec, d.yday, d.wday].len()`, Int(6)},
		{"time", "return system.time() > 1600000000", True},
		{"clock", "return system.clock() >= 0", True},
	})
}

func TestSystemDateFields(t *testing.T) {
	vm, _ := newTestVM(t)
	// 1970-02-01 01:01:01 UTC, a Sunday
	res := vm.Copy(run(t, vm, `return system.date(86400 * 31 + 3661, "u")`))
	defer vm.Release(res)
	want := map[string]int64{"sec": 1, "min": 1, "hour": 1, "day": 1, "month": 1, "year": 1970, "wday": 0, "yday": 31}
	for k, w := range want {
		v, err := vm.TableGet(res, String(k))
		require.NoError(t, err)
		assert.Equal(t, w, v.AsInt(), k)
	}
}

func TestSystemExec(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	vm, out := newTestVM(t)
	assertValue(t, Int(0), run(t, vm, `return system.exec("echo hi")`))
	assert.Equal(t, "hi\n", out.String())
	assertValue(t, Int(3), run(t, vm, `return system.exec("exit 3")`))
}

func TestSystemFiles(t *testing.T) {
	vm, _ := newTestVM(t)
	dir := t.TempDir()
	from := filepath.Join(dir, "a")
	require.NoError(t, os.WriteFile(from, nil, 0o644))

	_, err := vm.RunContext(context.Background(), []byte(`system.rename(vargv[0], vargv[1]); system.remove(vargv[1])`),
		"sys", String(from), String(filepath.Join(dir, "b")))
	require.NoError(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = vm.LoadAndRun([]byte(`system.date(0, "z")`))
	assert.ErrorIs(t, err, ErrArgumentError)
}
