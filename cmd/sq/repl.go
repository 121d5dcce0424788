package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peterh/liner"

	"github.com/chazu/squirrel"
	"github.com/chazu/squirrel/compiler"
	"github.com/chazu/squirrel/vm"
)

const historyFile = ".squirrel_history"

// lineReader is the part of liner the REPL uses; tests substitute a
// plain reader.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// runREPL starts an interactive read-eval-print loop. A terminal gets
// line editing, history and completion; any other stdin is read plainly.
func runREPL(v *vm.VM, stdin io.Reader, stdout, stderr io.Writer) int {
	if f, ok := stdin.(*os.File); ok && f == os.Stdin && liner.TerminalSupported() {
		line := liner.NewLiner()
		defer line.Close()
		line.SetCtrlCAborts(true)
		line.SetCompleter(func(s string) []string { return completeGlobals(v, s) })

		histPath := ""
		if home, err := os.UserHomeDir(); err == nil {
			histPath = filepath.Join(home, historyFile)
			if f, err := os.Open(histPath); err == nil {
				line.ReadHistory(f)
				f.Close()
			}
		}
		defer func() {
			if histPath == "" {
				return
			}
			if f, err := os.Create(histPath); err == nil {
				line.WriteHistory(f)
				f.Close()
			}
		}()
		return repl(v, line, stdout, stderr)
	}
	return repl(v, newPlainReader(stdin, stdout), stdout, stderr)
}

func repl(v *vm.VM, in lineReader, stdout, stderr io.Writer) int {
	fmt.Fprintf(stdout, "%s (type 'quit' to exit, ':help' for commands)\n", squirrel.VersionString)

	var buf strings.Builder
	for {
		prompt := "sq> "
		if buf.Len() > 0 {
			prompt = "... "
		}
		line, err := in.Prompt(prompt)
		if errors.Is(err, liner.ErrPromptAborted) {
			buf.Reset()
			continue
		}
		if err != nil {
			break
		}

		if buf.Len() == 0 {
			trimmed := strings.TrimSpace(line)
			if trimmed == "quit" || trimmed == "exit" {
				break
			}
			if strings.HasPrefix(trimmed, ":") {
				handleREPLCommand(v, trimmed, stdout)
				continue
			}
		}

		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(line)

		// Keep reading while brackets are open.
		if bracketDepth(buf.String()) > 0 {
			continue
		}
		input := strings.TrimSpace(buf.String())
		buf.Reset()
		if input == "" {
			continue
		}
		in.AppendHistory(input)
		evalAndPrint(v, input, stdout, stderr)
	}

	fmt.Fprintln(stdout)
	return 0
}

// handleREPLCommand handles REPL meta-commands
func handleREPLCommand(v *vm.VM, cmd string, stdout io.Writer) {
	switch cmd {
	case ":help", ":h", ":?":
		fmt.Fprintln(stdout, "REPL Commands:")
		fmt.Fprintln(stdout, "  :help, :h, :?     Show this help")
		fmt.Fprintln(stdout, "  :gc               Run a full garbage collection")
		fmt.Fprintln(stdout, "  :heap             Show heap statistics")
		fmt.Fprintln(stdout, "  quit, exit        Exit REPL")
	case ":gc":
		st := v.CollectGarbage()
		fmt.Fprintf(stdout, "reclaimed %d, collected %d cyclic, freed %d bytes in %s\n",
			st.Reclaimed, st.Collected, st.FreedBytes, st.Duration)
	case ":heap":
		st := v.HeapStats()
		fmt.Fprintf(stdout, "%d objects, %d bytes", st.Objects, st.Bytes)
		if st.Limit > 0 {
			fmt.Fprintf(stdout, " of %d", st.Limit)
		}
		fmt.Fprintln(stdout)
	default:
		fmt.Fprintf(stdout, "Unknown command: %s (type :help for commands)\n", cmd)
	}
}

// evalAndPrint runs one input, printing a non-null result. Ctrl-C aborts
// a running script.
func evalAndPrint(v *vm.VM, input string, stdout, stderr io.Writer) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := v.Eval(ctx, input, "repl")
	if err != nil {
		// Uncaught runtime errors were reported by the VM.
		if errors.Is(err, vm.ErrCompileError) || errors.Is(err, context.Canceled) {
			fmt.Fprintf(stderr, "%v\n", err)
		}
		return
	}
	if res.Kind() == vm.KindNull {
		return
	}
	s, err := v.ToString(res)
	if err != nil {
		return
	}
	if res.Kind() == vm.KindString {
		s = fmt.Sprintf("%q", s)
	}
	fmt.Fprintf(stdout, "= %s\n", s)
}

// bracketDepth returns how many (, [ and { are still open in src.
func bracketDepth(src string) int {
	depth := 0
	for _, tok := range compiler.Tokenize(src) {
		switch tok.Type {
		case compiler.TokenLParen, compiler.TokenLBracket, compiler.TokenLBrace:
			depth++
		case compiler.TokenRParen, compiler.TokenRBracket, compiler.TokenRBrace:
			depth--
		}
	}
	return depth
}

// completeGlobals completes the identifier at the end of line against
// root table slots.
func completeGlobals(v *vm.VM, line string) []string {
	start := len(line)
	for start > 0 {
		c := line[start-1]
		if c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			start--
			continue
		}
		break
	}
	head, prefix := line[:start], line[start:]
	if prefix == "" {
		return nil
	}

	var out []string
	_ = v.TableEach(v.RootTable(), func(key, _ vm.Value) bool {
		if key.Kind() == vm.KindString && strings.HasPrefix(key.String(), prefix) {
			out = append(out, head+key.String())
		}
		return true
	})
	sort.Strings(out)
	return out
}

// plainReader reads lines from a non-terminal stdin.
type plainReader struct {
	scanner *bufio.Scanner
	stdout  io.Writer
}

func newPlainReader(r io.Reader, stdout io.Writer) *plainReader {
	return &plainReader{scanner: bufio.NewScanner(r), stdout: stdout}
}

func (p *plainReader) Prompt(prompt string) (string, error) {
	io.WriteString(p.stdout, prompt)
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return p.scanner.Text(), nil
}

func (p *plainReader) AppendHistory(string) {}
