package vm

import (
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// System library
// ---------------------------------------------------------------------------

func (vm *VM) registerSystemPrimitives() error {
	started := time.Now()

	defs := map[string]NativeDef{
		// getenv - value of an environment variable, or null when unset
		"getenv": {". s", func(_ *VM, _ Value, args []Value) (Value, error) {
			if v, ok := os.LookupEnv(args[0].str); ok {
				return String(v), nil
			}
			return Null, nil
		}},

		"setenv": {". s s", func(_ *VM, _ Value, args []Value) (Value, error) {
			if err := os.Setenv(args[0].str, args[1].str); err != nil {
				return Null, hostError(SystemError, err, "setenv %s", args[0].str)
			}
			return Null, nil
		}},

		// exec - run a shell command, sending its output to the print
		// handler; returns the exit status
		"exec": {". s", func(vm *VM, _ Value, args []Value) (Value, error) {
			cmd := exec.CommandContext(vm.ctx, "/bin/sh", "-c", args[0].str)
			out, err := cmd.CombinedOutput()
			if len(out) > 0 {
				vm.opts.Print(string(out))
			}
			var exit *exec.ExitError
			switch {
			case errors.As(err, &exit):
				return Int(int64(exit.ExitCode())), nil
			case err != nil:
				return Null, hostError(SystemError, err, "exec")
			}
			return Int(0), nil
		}},

		// clock - seconds since the library was opened
		"clock": {".", func(_ *VM, _ Value, _ []Value) (Value, error) {
			return Float(time.Since(started).Seconds()), nil
		}},

		"time": {".", func(_ *VM, _ Value, _ []Value) (Value, error) {
			return Int(time.Now().Unix()), nil
		}},

		// date - calendar fields of a unix time; 'u' for UTC, 'l' (default) local
		"date": {". ?i ?s", func(vm *VM, _ Value, args []Value) (Value, error) {
			t := time.Now()
			if len(args) > 0 {
				t = time.Unix(args[0].AsInt(), 0)
			}
			zone := "l"
			if len(args) > 1 {
				zone = args[1].str
			}
			switch zone {
			case "u":
				t = t.UTC()
			case "l":
				t = t.Local()
			default:
				return Null, newError(ArgumentError, "invalid date zone '%s'", zone)
			}
			return vm.dateTable(t)
		}},

		"remove": {". s", func(_ *VM, _ Value, args []Value) (Value, error) {
			if err := os.Remove(args[0].str); err != nil {
				return Null, hostError(SystemError, err, "remove '%s'", args[0].str)
			}
			return Null, nil
		}},

		"rename": {". s s", func(_ *VM, _ Value, args []Value) (Value, error) {
			if err := os.Rename(args[0].str, args[1].str); err != nil {
				return Null, hostError(SystemError, err, "rename '%s'", args[0].str)
			}
			return Null, nil
		}},

		"uuid": {".", func(_ *VM, _ Value, _ []Value) (Value, error) {
			return String(uuid.NewString()), nil
		}},

		"hostname": {".", func(_ *VM, _ Value, _ []Value) (Value, error) {
			h, err := os.Hostname()
			if err != nil {
				return Null, hostError(SystemError, err, "hostname")
			}
			return String(h), nil
		}},
	}
	_, err := vm.RegisterModule("system", defs, nil)
	return err
}

func (vm *VM) dateTable(t time.Time) (Value, error) {
	tv, err := vm.newTable(8)
	if err != nil {
		return Null, err
	}
	fields := []struct {
		name string
		val  int
	}{
		{"sec", t.Second()},
		{"min", t.Minute()},
		{"hour", t.Hour()},
		{"day", t.Day()},
		{"month", int(t.Month()) - 1},
		{"year", t.Year()},
		{"wday", int(t.Weekday())},
		{"yday", t.YearDay() - 1},
	}
	for _, f := range fields {
		if err := vm.TableSet(tv, String(f.name), Int(int64(f.val))); err != nil {
			return Null, err
		}
	}
	return tv, nil
}
