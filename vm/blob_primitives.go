package vm

import (
	"encoding/binary"
	"math"
	"math/bits"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Blob library: byte buffers as user data
// ---------------------------------------------------------------------------

const blobTag = "blob"

// maxEncodeDepth bounds blob.encode on nested or cyclic containers.
const maxEncodeDepth = 64

type blob struct {
	data []byte
	pos  int
}

func blobArg(vm *VM, this Value) (*blob, error) {
	return userDataArg[*blob](vm, this, blobTag)
}

func (vm *VM) newBlob(data []byte) (Value, error) {
	return vm.NewUserData(blobType, &blob{data: data}, nil)
}

// blob element formats for readn and writen, as in the C library.
func elementSize(t string) int {
	switch t {
	case "c", "b":
		return 1
	case "s", "w":
		return 2
	case "i", "f":
		return 4
	case "l", "d":
		return 8
	}
	return 0
}

var blobType = UserDataType{
	Tag: blobTag,
	Methods: map[string]NativeDef{
		"len": {"u", func(vm *VM, this Value, _ []Value) (Value, error) {
			b, err := blobArg(vm, this)
			if err != nil {
				return Null, err
			}
			return Int(int64(len(b.data))), nil
		}},

		"get": {"u i", func(vm *VM, this Value, args []Value) (Value, error) {
			b, err := blobArg(vm, this)
			if err != nil {
				return Null, err
			}
			i, err := arrayIndex(args[0], len(b.data))
			if err != nil {
				return Null, err
			}
			return Int(int64(b.data[i])), nil
		}},

		"set": {"u i i", func(vm *VM, this Value, args []Value) (Value, error) {
			b, err := blobArg(vm, this)
			if err != nil {
				return Null, err
			}
			i, err := arrayIndex(args[0], len(b.data))
			if err != nil {
				return Null, err
			}
			b.data[i] = byte(args[1].AsInt())
			return Null, nil
		}},

		// readn - read one element of the given format at the cursor
		"readn": {"u s", func(vm *VM, this Value, args []Value) (Value, error) {
			b, err := blobArg(vm, this)
			if err != nil {
				return Null, err
			}
			t := args[0].str
			n := elementSize(t)
			if n == 0 {
				return Null, newError(ArgumentError, "invalid element format '%s'", t)
			}
			if b.pos+n > len(b.data) {
				return Null, newError(IOError, "read past the end of the blob")
			}
			p := b.data[b.pos : b.pos+n]
			b.pos += n
			switch t {
			case "c":
				return Int(int64(int8(p[0]))), nil
			case "b":
				return Int(int64(p[0])), nil
			case "s":
				return Int(int64(int16(binary.LittleEndian.Uint16(p)))), nil
			case "w":
				return Int(int64(binary.LittleEndian.Uint16(p))), nil
			case "i":
				return Int(int64(int32(binary.LittleEndian.Uint32(p)))), nil
			case "l":
				return Int(int64(binary.LittleEndian.Uint64(p))), nil
			case "f":
				return Float(float64(math.Float32frombits(binary.LittleEndian.Uint32(p)))), nil
			}
			return Float(math.Float64frombits(binary.LittleEndian.Uint64(p))), nil
		}},

		// writen - write one element of the given format at the cursor,
		// growing the blob as needed
		"writen": {"u n s", func(vm *VM, this Value, args []Value) (Value, error) {
			b, err := blobArg(vm, this)
			if err != nil {
				return Null, err
			}
			v, t := args[0], args[1].str
			n := elementSize(t)
			if n == 0 {
				return Null, newError(ArgumentError, "invalid element format '%s'", t)
			}
			var p [8]byte
			switch t {
			case "c", "b":
				p[0] = byte(v.AsInt())
			case "s", "w":
				binary.LittleEndian.PutUint16(p[:], uint16(v.AsInt()))
			case "i":
				binary.LittleEndian.PutUint32(p[:], uint32(v.AsInt()))
			case "l":
				binary.LittleEndian.PutUint64(p[:], uint64(v.AsInt()))
			case "f":
				binary.LittleEndian.PutUint32(p[:], math.Float32bits(float32(v.AsFloat())))
			case "d":
				binary.LittleEndian.PutUint64(p[:], math.Float64bits(v.AsFloat()))
			}
			if end := b.pos + n; end > len(b.data) {
				if err := vm.charge(this, int64(end-len(b.data))); err != nil {
					return Null, err
				}
				b.data = append(b.data, make([]byte, end-len(b.data))...)
			}
			copy(b.data[b.pos:], p[:n])
			b.pos += n
			return Null, nil
		}},

		"tell": {"u", func(vm *VM, this Value, _ []Value) (Value, error) {
			b, err := blobArg(vm, this)
			if err != nil {
				return Null, err
			}
			return Int(int64(b.pos)), nil
		}},

		"seek": {"u i ?s", func(vm *VM, this Value, args []Value) (Value, error) {
			b, err := blobArg(vm, this)
			if err != nil {
				return Null, err
			}
			origin := "b"
			if len(args) > 1 {
				origin = args[1].str
			}
			pos := int(args[0].AsInt())
			switch origin {
			case "b":
			case "c":
				pos += b.pos
			case "e":
				pos += len(b.data)
			default:
				return Null, newError(ArgumentError, "invalid seek origin '%s'", origin)
			}
			if pos < 0 || pos > len(b.data) {
				return Null, newError(IndexError, "seek position %d out of range [0, %d]", pos, len(b.data))
			}
			b.pos = pos
			return Int(int64(pos)), nil
		}},

		"eos": {"u", func(vm *VM, this Value, _ []Value) (Value, error) {
			b, err := blobArg(vm, this)
			if err != nil {
				return Null, err
			}
			return Bool(b.pos >= len(b.data)), nil
		}},

		"resize": {"u i", func(vm *VM, this Value, args []Value) (Value, error) {
			b, err := blobArg(vm, this)
			if err != nil {
				return Null, err
			}
			n := int(args[0].AsInt())
			if n < 0 {
				return Null, newError(ArgumentError, "negative blob size %d", n)
			}
			if err := vm.charge(this, int64(n-len(b.data))); err != nil {
				return Null, err
			}
			if n > len(b.data) {
				b.data = append(b.data, make([]byte, n-len(b.data))...)
			} else {
				b.data = b.data[:n]
			}
			b.pos = min(b.pos, n)
			return Null, nil
		}},

		"tostring": {"u", func(vm *VM, this Value, _ []Value) (Value, error) {
			b, err := blobArg(vm, this)
			if err != nil {
				return Null, err
			}
			return String(string(b.data)), nil
		}},
	},
}

func (vm *VM) registerBlobPrimitives() error {
	defs := map[string]NativeDef{
		"create": {". i", func(vm *VM, _ Value, args []Value) (Value, error) {
			n := args[0].AsInt()
			if n < 0 {
				return Null, newError(ArgumentError, "negative blob size %d", n)
			}
			if err := vm.reserve(n); err != nil {
				return Null, err
			}
			b, err := vm.newBlob(make([]byte, n))
			if err != nil {
				return Null, err
			}
			return b, vm.charge(b, n)
		}},

		"fromstring": {". s", func(vm *VM, _ Value, args []Value) (Value, error) {
			b, err := vm.newBlob([]byte(args[0].str))
			if err != nil {
				return Null, err
			}
			return b, vm.charge(b, int64(len(args[0].str)))
		}},

		// encode - serialize a value tree of scalars, arrays and tables as CBOR
		"encode": {". .", func(vm *VM, _ Value, args []Value) (Value, error) {
			tree, err := vm.toTree(args[0], 0)
			if err != nil {
				return Null, err
			}
			data, err := cbor.Marshal(tree)
			if err != nil {
				return Null, newError(TypeError, "cannot encode: %v", err)
			}
			b, err := vm.newBlob(data)
			if err != nil {
				return Null, err
			}
			return b, vm.charge(b, int64(len(data)))
		}},

		"decode": {". u", func(vm *VM, _ Value, args []Value) (Value, error) {
			b, err := blobArg(vm, args[0])
			if err != nil {
				return Null, err
			}
			var tree interface{}
			if err := cbor.Unmarshal(b.data, &tree); err != nil {
				return Null, newError(IOError, "cannot decode blob: %v", err)
			}
			return vm.fromTree(tree)
		}},

		"swap2": {". i", func(_ *VM, _ Value, args []Value) (Value, error) {
			return Int(int64(int16(bits.ReverseBytes16(uint16(args[0].AsInt()))))), nil
		}},
		"swap4": {". i", func(_ *VM, _ Value, args []Value) (Value, error) {
			return Int(int64(int32(bits.ReverseBytes32(uint32(args[0].AsInt()))))), nil
		}},
	}
	_, err := vm.RegisterModule("blob", defs, nil)
	return err
}

// toTree converts a value to plain Go data for CBOR.
func (vm *VM) toTree(v Value, depth int) (interface{}, error) {
	if depth > maxEncodeDepth {
		return nil, newError(TypeError, "cannot encode: nesting deeper than %d", maxEncodeDepth)
	}
	switch o := vm.heap.get(v).(type) {
	case nil:
		switch v.kind {
		case KindNull:
			return nil, nil
		case KindBool:
			return v.AsBool(), nil
		case KindInteger:
			return v.AsInt(), nil
		case KindFloat:
			return v.AsFloat(), nil
		case KindString:
			return v.str, nil
		}
	case *arrayObject:
		out := make([]interface{}, len(o.items))
		for i, it := range o.items {
			t, err := vm.toTree(it, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = t
		}
		return out, nil
	case *tableObject:
		out := make(map[interface{}]interface{}, o.len())
		for _, e := range o.entries {
			if !e.live {
				continue
			}
			if e.key.IsHeap() {
				return nil, newError(TypeError, "cannot encode a table key of type '%s'", e.key.TypeName())
			}
			k, err := vm.toTree(e.key, depth+1)
			if err != nil {
				return nil, err
			}
			val, err := vm.toTree(e.val, depth+1)
			if err != nil {
				return nil, err
			}
			out[k] = val
		}
		return out, nil
	}
	return nil, newError(TypeError, "cannot encode a '%s'", v.TypeName())
}

// fromTree converts decoded CBOR data back to script values.
func (vm *VM) fromTree(t interface{}) (Value, error) {
	switch x := t.(type) {
	case nil:
		return Null, nil
	case bool:
		return Bool(x), nil
	case int64:
		return Int(x), nil
	case uint64:
		return Int(int64(x)), nil
	case float64:
		return Float(x), nil
	case float32:
		return Float(float64(x)), nil
	case string:
		return String(x), nil
	case []byte:
		return String(string(x)), nil
	case []interface{}:
		items := make([]Value, len(x))
		for i, e := range x {
			v, err := vm.fromTree(e)
			if err != nil {
				return Null, err
			}
			items[i] = v
		}
		return vm.newArray(items)
	case map[interface{}]interface{}:
		tv, err := vm.newTable(len(x))
		if err != nil {
			return Null, err
		}
		tbl := vm.heap.get(tv).(*tableObject)
		for k, e := range x {
			kv, err := vm.fromTree(k)
			if err != nil {
				return Null, err
			}
			if err := validKey(kv); err != nil {
				return Null, err
			}
			ev, err := vm.fromTree(e)
			if err != nil {
				return Null, err
			}
			if err := vm.tableStore(tv, tbl, kv, ev); err != nil {
				return Null, err
			}
		}
		return tv, nil
	}
	return Null, newError(TypeError, "cannot decode a %T", t)
}
