// sq - the command line front end for running Squirrel scripts
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/squirrel"
	"github.com/chazu/squirrel/manifest"
	"github.com/chazu/squirrel/pkg/bytecode"
	"github.com/chazu/squirrel/server"
	"github.com/chazu/squirrel/store"
	"github.com/chazu/squirrel/vm"
)

var log = commonlog.GetLogger("squirrel.cli")

// options holds the parsed command line.
type options struct {
	compileOut  string
	disassemble bool
	eval        string
	interactive bool
	serve       string
	lsp         bool
	configPath  string
	heapLimit   int64
	noCache     bool
	verbose     int
	version     bool

	script string
	args   []string

	heapLimitSet bool
	serveSet     bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	o := &options{}
	fs := pflag.NewFlagSet("sq", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false)

	fs.StringVarP(&o.compileOut, "compile", "c", "", "Compile the script to a bytecode file")
	fs.BoolVarP(&o.disassemble, "disassemble", "d", false, "Print the bytecode listing of the script")
	fs.StringVarP(&o.eval, "eval", "e", "", "Evaluate an expression and print its value")
	fs.BoolVarP(&o.interactive, "interactive", "i", false, "Start the interactive REPL")
	fs.StringVar(&o.serve, "serve", "", "Serve the Connect evaluation API on `addr`")
	fs.Lookup("serve").NoOptDefVal = "config"
	fs.BoolVar(&o.lsp, "lsp", false, "Run the language server on stdio")
	fs.StringVar(&o.configPath, "config", "", "Path to squirrel.toml (default: search upward from the working directory)")
	fs.Int64Var(&o.heapLimit, "heap-limit", 0, "Heap limit in bytes (0 is unlimited)")
	fs.BoolVar(&o.noCache, "no-cache", false, "Bypass the compiled chunk cache")
	fs.CountVarP(&o.verbose, "verbose", "v", "Increase log verbosity (repeatable)")
	fs.BoolVar(&o.version, "version", false, "Print the version and exit")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: sq [options] [script.nut [args...]]\n\n")
		fmt.Fprintf(stderr, "Runs a Squirrel script, or starts the REPL when no script is given.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  sq hello.nut a b          # Run hello.nut with vargv = [\"a\", \"b\"]\n")
		fmt.Fprintf(stderr, "  sq -c hello.sqbc hello.nut # Compile to bytecode\n")
		fmt.Fprintf(stderr, "  sq -d hello.nut           # Disassemble\n")
		fmt.Fprintf(stderr, "  sq -e '1 + 2'             # Evaluate an expression\n")
		fmt.Fprintf(stderr, "  sq --serve :7330          # Serve the evaluation API\n")
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	rest := fs.Args()
	if len(rest) > 0 {
		o.script, o.args = rest[0], rest[1:]
	}
	o.heapLimitSet = fs.Changed("heap-limit")
	o.serveSet = fs.Changed("serve")
	return o, nil
}

// loadConfig reads the manifest named by path, or searches upward from
// the working directory. Without one, defaults apply.
func loadConfig(path string) (*manifest.Manifest, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		m, err := manifest.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if m.Dir, err = filepath.Abs(filepath.Dir(path)); err != nil {
			return nil, err
		}
		return m, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	m, err := manifest.FindAndLoad(wd)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
	}
	return m, nil
}

func configureLogging(m *manifest.Manifest, verbose int) {
	verbosity := m.Log.Verbosity
	if verbose > 0 {
		verbosity = verbose
	}
	var path *string
	if m.Log.File != "" {
		path = &m.Log.File
	}
	commonlog.Configure(verbosity, path)
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	o, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if o.version {
		fmt.Fprintln(stdout, squirrel.VersionString)
		return 0
	}

	m, err := loadConfig(o.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	configureLogging(m, o.verbose)

	vmOpts := []vm.Option{
		vm.WithConfig(m),
		vm.WithPrintHandler(func(s string) { io.WriteString(stdout, s) }),
		vm.WithErrorHandler(func(s string) { io.WriteString(stderr, s) }),
	}
	if o.heapLimitSet {
		vmOpts = append(vmOpts, vm.WithHeapLimit(o.heapLimit))
	}
	if len(m.Dependencies) > 0 {
		deps, err := manifest.NewResolver(m).Resolve()
		if err != nil {
			fmt.Fprintf(stderr, "Error: resolving dependencies: %v\n", err)
			return 1
		}
		vmOpts = append(vmOpts, vm.WithSearchPaths(m.SearchPaths(deps)...))
	}
	if m.Cache.Enabled && !o.noCache {
		cache, err := store.Open(m.CachePath())
		if err != nil {
			log.Warningf("chunk cache disabled: %v", err)
		} else {
			defer cache.Close()
			vmOpts = append(vmOpts, vm.WithChunkCache(cache))
		}
	}
	newVM := func() *vm.VM { return vm.New(vmOpts...) }

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch {
	case o.lsp:
		return report(stderr, server.NewLSP(newVM()).Run())
	case o.serveSet:
		addr := o.serve
		if addr == "config" {
			addr = m.Server.Address
		}
		return report(stderr, serve(ctx, newVM, addr))
	case o.compileOut != "" || o.disassemble:
		return report(stderr, compileScript(newVM(), o, stdout))
	case o.eval != "":
		v := newVM()
		defer v.Destroy()
		return evalExpression(ctx, v, o.eval, stdout, stderr)
	case o.script != "":
		v := newVM()
		defer v.Destroy()
		code := runScript(ctx, v, o.script, o.args, stderr)
		if o.interactive && code == 0 {
			return runREPL(v, stdin, stdout, stderr)
		}
		return code
	default:
		v := newVM()
		defer v.Destroy()
		return runREPL(v, stdin, stdout, stderr)
	}
}

func report(stderr io.Writer, err error) int {
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// serve runs the evaluation server until ctx is done.
func serve(ctx context.Context, newVM func() *vm.VM, addr string) error {
	srv := server.New(newVM)
	defer srv.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx, addr)
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		return nil
	})
	return g.Wait()
}

// runScript executes a script file; an integer result becomes the exit
// code. Uncaught runtime errors are already reported by the VM.
func runScript(ctx context.Context, v *vm.VM, path string, args []string, stderr io.Writer) int {
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	vargs := make([]vm.Value, len(args))
	for i, a := range args {
		vargs[i] = vm.String(a)
	}

	res, err := v.RunContext(ctx, src, path, vargs...)
	if err != nil {
		if errors.Is(err, vm.ErrCompileError) || errors.Is(err, context.Canceled) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	if res.Kind() == vm.KindInteger {
		return int(res.AsInt())
	}
	return 0
}

// compileScript writes the bytecode of o.script to o.compileOut and/or
// prints its listing.
func compileScript(v *vm.VM, o *options, stdout io.Writer) error {
	defer v.Destroy()
	if o.script == "" {
		return errors.New("no script given")
	}
	src, err := os.ReadFile(o.script)
	if err != nil {
		return err
	}
	chunk, err := v.Compile(src, o.script)
	if err != nil {
		return err
	}

	if o.disassemble {
		io.WriteString(stdout, chunk.Disassemble())
	}
	if o.compileOut != "" {
		data, err := chunk.Serialize()
		if err != nil {
			return err
		}
		if err := os.WriteFile(o.compileOut, data, 0o644); err != nil {
			return err
		}
		log.Infof("wrote %s (%d bytes, format v%d)", o.compileOut, len(data), bytecode.BytecodeVersion)
	}
	return nil
}

func evalExpression(ctx context.Context, v *vm.VM, src string, stdout, stderr io.Writer) int {
	res, err := v.Eval(ctx, src, "eval")
	if err != nil {
		if errors.Is(err, vm.ErrCompileError) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	if res.Kind() != vm.KindNull {
		s, err := v.ToString(res)
		if err != nil {
			return 1
		}
		fmt.Fprintln(stdout, s)
	}
	return 0
}
