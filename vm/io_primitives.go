package vm

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
)

// ---------------------------------------------------------------------------
// IO library: files as user data
// ---------------------------------------------------------------------------

const fileTag = "file"

// scriptFile is an open file. Reads go through a buffer; writes and seeks
// first give back whatever the buffer read ahead.
type scriptFile struct {
	path string
	f    *os.File
	r    *bufio.Reader
}

func (sf *scriptFile) reader() (*bufio.Reader, error) {
	if sf.f == nil {
		return nil, os.ErrClosed
	}
	if sf.r == nil {
		sf.r = bufio.NewReader(sf.f)
	}
	return sf.r, nil
}

// sync drops read-ahead so the OS offset matches the logical position.
func (sf *scriptFile) sync() error {
	if sf.f == nil {
		return os.ErrClosed
	}
	if sf.r != nil && sf.r.Buffered() > 0 {
		if _, err := sf.f.Seek(int64(-sf.r.Buffered()), io.SeekCurrent); err != nil {
			return err
		}
	}
	sf.r = nil
	return nil
}

func (sf *scriptFile) close() error {
	if sf.f == nil {
		return nil
	}
	err := sf.f.Close()
	sf.f, sf.r = nil, nil
	return err
}

func fileFlags(mode string) (int, bool) {
	switch strings.ReplaceAll(mode, "b", "") {
	case "r":
		return os.O_RDONLY, true
	case "r+":
		return os.O_RDWR, true
	case "w":
		return os.O_WRONLY | os.O_CREATE | os.O_TRUNC, true
	case "w+":
		return os.O_RDWR | os.O_CREATE | os.O_TRUNC, true
	case "a":
		return os.O_WRONLY | os.O_CREATE | os.O_APPEND, true
	case "a+":
		return os.O_RDWR | os.O_CREATE | os.O_APPEND, true
	}
	return 0, false
}

func seekWhence(origin string) (int, bool) {
	switch origin {
	case "b":
		return io.SeekStart, true
	case "c":
		return io.SeekCurrent, true
	case "e":
		return io.SeekEnd, true
	}
	return 0, false
}

func fileArg(vm *VM, this Value) (*scriptFile, error) {
	return userDataArg[*scriptFile](vm, this, fileTag)
}

var fileType = UserDataType{
	Tag: fileTag,
	Methods: map[string]NativeDef{
		// read - up to n bytes, or the rest of the file
		"read": {"u ?i", func(vm *VM, this Value, args []Value) (Value, error) {
			sf, err := fileArg(vm, this)
			if err != nil {
				return Null, err
			}
			r, err := sf.reader()
			if err != nil {
				return Null, hostError(IOError, err, "read %s", sf.path)
			}
			var data []byte
			if len(args) > 0 {
				data = make([]byte, args[0].AsInt())
				n, err := io.ReadFull(r, data)
				if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
					return Null, hostError(IOError, err, "read %s", sf.path)
				}
				data = data[:n]
			} else if data, err = io.ReadAll(r); err != nil {
				return Null, hostError(IOError, err, "read %s", sf.path)
			}
			return String(string(data)), nil
		}},

		// readline - next line without its terminator, or null at end of file
		"readline": {"u", func(vm *VM, this Value, _ []Value) (Value, error) {
			sf, err := fileArg(vm, this)
			if err != nil {
				return Null, err
			}
			r, err := sf.reader()
			if err != nil {
				return Null, hostError(IOError, err, "read %s", sf.path)
			}
			line, err := r.ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return Null, hostError(IOError, err, "read %s", sf.path)
			}
			if line == "" && err != nil {
				return Null, nil
			}
			line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
			return String(line), nil
		}},

		"write": {"u s", func(vm *VM, this Value, args []Value) (Value, error) {
			sf, err := fileArg(vm, this)
			if err != nil {
				return Null, err
			}
			if err := sf.sync(); err != nil {
				return Null, hostError(IOError, err, "write %s", sf.path)
			}
			n, err := sf.f.WriteString(args[0].str)
			if err != nil {
				return Null, hostError(IOError, err, "write %s", sf.path)
			}
			return Int(int64(n)), nil
		}},

		"close": {"u", func(vm *VM, this Value, _ []Value) (Value, error) {
			sf, err := fileArg(vm, this)
			if err != nil {
				return Null, err
			}
			if err := sf.close(); err != nil {
				return Null, hostError(IOError, err, "close %s", sf.path)
			}
			return Null, nil
		}},

		"tell": {"u", func(vm *VM, this Value, _ []Value) (Value, error) {
			sf, err := fileArg(vm, this)
			if err != nil {
				return Null, err
			}
			if err := sf.sync(); err != nil {
				return Null, hostError(IOError, err, "tell %s", sf.path)
			}
			pos, err := sf.f.Seek(0, io.SeekCurrent)
			if err != nil {
				return Null, hostError(IOError, err, "tell %s", sf.path)
			}
			return Int(pos), nil
		}},

		// seek - move to offset from 'b'egin, 'c'urrent or 'e'nd
		"seek": {"u i ?s", func(vm *VM, this Value, args []Value) (Value, error) {
			sf, err := fileArg(vm, this)
			if err != nil {
				return Null, err
			}
			origin := "b"
			if len(args) > 1 {
				origin = args[1].str
			}
			whence, ok := seekWhence(origin)
			if !ok {
				return Null, newError(ArgumentError, "invalid seek origin '%s'", origin)
			}
			if err := sf.sync(); err != nil {
				return Null, hostError(IOError, err, "seek %s", sf.path)
			}
			pos, err := sf.f.Seek(args[0].AsInt(), whence)
			if err != nil {
				return Null, hostError(IOError, err, "seek %s", sf.path)
			}
			return Int(pos), nil
		}},

		"eos": {"u", func(vm *VM, this Value, _ []Value) (Value, error) {
			sf, err := fileArg(vm, this)
			if err != nil {
				return Null, err
			}
			r, err := sf.reader()
			if err != nil {
				return Null, hostError(IOError, err, "eos %s", sf.path)
			}
			_, err = r.Peek(1)
			return Bool(errors.Is(err, io.EOF)), nil
		}},

		"len": {"u", func(vm *VM, this Value, _ []Value) (Value, error) {
			sf, err := fileArg(vm, this)
			if err != nil {
				return Null, err
			}
			if sf.f == nil {
				return Null, hostError(IOError, os.ErrClosed, "len %s", sf.path)
			}
			info, err := sf.f.Stat()
			if err != nil {
				return Null, hostError(IOError, err, "len %s", sf.path)
			}
			return Int(info.Size()), nil
		}},
	},
}

func (vm *VM) registerIOPrimitives() error {
	defs := map[string]NativeDef{
		// open - open path with a C-style mode: r, w, a, optionally + and b
		"open": {". s ?s", func(vm *VM, _ Value, args []Value) (Value, error) {
			path, mode := args[0].str, "r"
			if len(args) > 1 {
				mode = args[1].str
			}
			flags, ok := fileFlags(mode)
			if !ok {
				return Null, newError(ArgumentError, "invalid file mode '%s'", mode)
			}
			f, err := os.OpenFile(path, flags, 0o644)
			if err != nil {
				return Null, hostError(IOError, err, "cannot open '%s'", path)
			}
			sf := &scriptFile{path: path, f: f}
			return vm.NewUserData(fileType, sf, func() { sf.close() })
		}},

		"readfile": {". s", func(_ *VM, _ Value, args []Value) (Value, error) {
			data, err := os.ReadFile(args[0].str)
			if err != nil {
				return Null, hostError(IOError, err, "cannot read '%s'", args[0].str)
			}
			return String(string(data)), nil
		}},

		"writefile": {". s s", func(_ *VM, _ Value, args []Value) (Value, error) {
			if err := os.WriteFile(args[0].str, []byte(args[1].str), 0o644); err != nil {
				return Null, hostError(IOError, err, "cannot write '%s'", args[0].str)
			}
			return Null, nil
		}},

		"exists": {". s", func(_ *VM, _ Value, args []Value) (Value, error) {
			_, err := os.Stat(args[0].str)
			if err != nil && !errNotFound(err) {
				return Null, hostError(IOError, err, "cannot stat '%s'", args[0].str)
			}
			return Bool(err == nil), nil
		}},

		"remove": {". s", func(_ *VM, _ Value, args []Value) (Value, error) {
			if err := os.Remove(args[0].str); err != nil {
				return Null, hostError(IOError, err, "cannot remove '%s'", args[0].str)
			}
			return Null, nil
		}},
	}
	_, err := vm.RegisterModule("io", defs, nil)
	return err
}
