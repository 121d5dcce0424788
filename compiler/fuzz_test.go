package compiler

import (
	"testing"
)

var fuzzSeeds = []string{
	// Tokens
	`( ) [ ] { } , ; . : :: ? ?. ?[ ... = <- += -= *= /= %=`,
	`42`, `0xFF`, `3.14`, `1e10`, `2.5E-3`, `'a'`, `'\n'`,
	`"hello"`, `"esc\t\x41"`, `@"verbatim ""quoted"""`,
	// Statements
	`local x = 1, y`,
	`function f(a, b, ...) { return a + b + vargv.len() }`,
	`local function fact(n) { return n < 2 ? 1 : n * fact(n - 1) }`,
	`class A extends B { x = 1; static y = 2; constructor(v) { x = v } }`,
	`foreach (k, v in { a = 1, b = 2 }) print(k + v)`,
	`for (local i = 0; i < 10; i++) { if (i % 2) continue; else break }`,
	`try { throw "boom" } catch (e) { ::print(e) }`,
	`function gen() { yield 1; yield 2 }`,
	"local t = {\n a = 1\n b = [1, 2]\n}",
	`delete t.a; t.b <- 3; typeof t; clone t`,
	// Edge cases
	``, `(`, `)`, `{`, `}`, `[`, `?.`, `/*`, `"open`, `@"`, `'`, `0x`, `1e`,
	`local`, `function`, `class`, `yield`, `break`, `a b`, `1 = 2`,
	// Unicode
	`"こんにちは"`, `café <- 1`,
	`+-*/\~<>=@%|&?!,`,
}

// FuzzLexer checks that the lexer terminates on arbitrary input.
func FuzzLexer(f *testing.F) {
	for _, s := range fuzzSeeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		l := NewLexer(data)
		for i := 0; i < len(data)+100; i++ {
			tok := l.NextToken()
			if tok.Type == TokenEOF || tok.Type == TokenError {
				return
			}
		}
		t.Fatalf("lexer did not reach end of input %q", data)
	})
}

// FuzzParse checks that parsing reports errors instead of panicking.
func FuzzParse(f *testing.F) {
	for _, s := range fuzzSeeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("parser panicked on input %q: %v", data, r)
			}
		}()

		if prog, err := Parse(data, "fuzz.nut"); err == nil {
			_ = Analyze(prog, nil)
		}
		_, _ = NewParser(data, "fuzz.nut").ParseExpression()
	})
}

// FuzzCompile feeds arbitrary scripts through parse and codegen. Every
// chunk that compiles must pass verification.
func FuzzCompile(f *testing.F) {
	for _, s := range fuzzSeeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("compiler panicked on input %q: %v", data, r)
			}
		}()

		chunk, err := Compile(data, "fuzz.nut")
		if err != nil {
			return
		}
		if err := chunk.Verify(); err != nil {
			t.Fatalf("compiled chunk failed verification for %q: %v", data, err)
		}
	})
}
