package vm

import (
	"math"

	"github.com/chazu/squirrel/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Object construction
// ---------------------------------------------------------------------------

func (vm *VM) newTable(capacity int) (Value, error) {
	return vm.alloc(newTableObject(capacity))
}

// newArray takes ownership of items and retains each element.
func (vm *VM) newArray(items []Value) (Value, error) {
	v, err := vm.alloc(&arrayObject{items: items})
	if err != nil {
		return Null, err
	}
	for _, it := range items {
		vm.heap.retain(it)
	}
	return v, nil
}

func (vm *VM) newClosure(proto *bytecode.Chunk, upvals []*upvalue) (Value, error) {
	v, err := vm.alloc(&closureObject{proto: proto, consts: vm.constants(proto), upvals: upvals})
	if err != nil {
		return Null, err
	}
	for _, uv := range upvals {
		uv.refs++
	}
	return v, nil
}

// newClass creates a class. A derived class starts with copies of its
// base's members.
func (vm *VM) newClass(name string, base Value) (Value, error) {
	cls := &classObject{name: name, base: base, members: newTableObject(0), static: make(map[Value]bool)}
	if b, ok := vm.heap.get(base).(*classObject); ok {
		for _, e := range b.members.entries {
			if e.live {
				cls.members.set(e.key, e.val)
			}
		}
		for k, s := range b.static {
			cls.static[k] = s
		}
	}
	v, err := vm.alloc(cls)
	if err != nil {
		return Null, err
	}
	vm.heap.retain(base)
	cls.members.trace(vm.heap.retain)
	return v, nil
}

// newInstance creates an instance whose fields are the class's
// non-static, non-function members.
func (vm *VM) newInstance(classV Value, cls *classObject) (Value, error) {
	fields := newTableObject(cls.members.len())
	for _, e := range cls.members.entries {
		if !e.live || cls.static[e.key] || isFunction(e.val) {
			continue
		}
		fields.set(e.key, e.val)
	}
	v, err := vm.alloc(&instanceObject{class: classV, fields: fields})
	if err != nil {
		return Null, err
	}
	vm.heap.retain(classV)
	fields.trace(vm.heap.retain)
	cls.locked = true
	return v, nil
}

// addMember installs a class member. A function member remembers the
// class it was first installed in, which is where base resolves from.
func (vm *VM) addMember(classV, key, val Value, static bool) error {
	cls, ok := vm.heap.get(classV).(*classObject)
	if !ok {
		return newError(TypeError, "cannot add a member to a '%s'", classV.TypeName())
	}
	if err := validKey(key); err != nil {
		return err
	}
	if _, exists := cls.members.get(key); !exists && cls.locked {
		return newError(RuntimeFault, "class '%s' has been instantiated and cannot gain members", cls.name)
	}
	if c, ok := vm.heap.get(val).(*closureObject); ok && c.owner.IsNull() {
		c.owner = classV
		vm.heap.retain(classV)
	}
	if err := vm.tableStore(classV, cls.members, key, val); err != nil {
		return err
	}
	if static {
		cls.static[key] = true
	} else {
		delete(cls.static, key)
	}
	return nil
}

func isFunction(v Value) bool {
	return v.kind == KindClosure || v.kind == KindNative
}

// ---------------------------------------------------------------------------
// Raw table storage with reference and size accounting
// ---------------------------------------------------------------------------

// tableStore creates or assigns t[key] for the object owner.
func (vm *VM) tableStore(owner Value, t *tableObject, key, val Value) error {
	old, existed := t.get(key)
	delta := entryBytes(key, val)
	if existed {
		delta = int64(len(val.str) - len(old.str))
	}
	if err := vm.charge(owner, delta); err != nil {
		return err
	}
	t.set(key, val)
	vm.heap.retain(val)
	if existed {
		vm.heap.release(old)
	} else {
		vm.heap.retain(key)
	}
	return nil
}

// tableRemove deletes t[key] and returns the removed value.
func (vm *VM) tableRemove(owner Value, t *tableObject, key Value) (Value, bool) {
	old, ok := t.remove(key)
	if !ok {
		return Null, false
	}
	vm.charge(owner, -entryBytes(key, old))
	vm.heap.release(key)
	vm.heap.release(old)
	return old, true
}

func (vm *VM) tableClear(owner Value, t *tableObject) {
	for _, e := range t.entries {
		if e.live {
			vm.charge(owner, -entryBytes(e.key, e.val))
			vm.heap.release(e.key)
			vm.heap.release(e.val)
		}
	}
	t.clear()
}

// tableOf returns the slot table behind a table, instance or class.
func (vm *VM) tableOf(v Value) *tableObject {
	switch obj := vm.heap.get(v).(type) {
	case *tableObject:
		return obj
	case *instanceObject:
		return obj.fields
	case *classObject:
		return obj.members
	}
	return nil
}

func (vm *VM) rootTable() *tableObject {
	return vm.heap.get(vm.root).(*tableObject)
}

func validKey(key Value) error {
	switch {
	case key.IsNull():
		return newError(TypeError, "null cannot be used as index")
	case key.IsFloat() && math.IsNaN(key.AsFloat()):
		return newError(TypeError, "nan cannot be used as index")
	}
	return nil
}

func missingKey(key Value) error {
	return newError(KeyError, "the index '%s' does not exist", key.String())
}

// arrayIndex converts a numeric key to an index into n elements.
func arrayIndex(key Value, n int) (int, error) {
	var i int64
	switch key.kind {
	case KindInteger:
		i = key.AsInt()
	case KindFloat:
		i = int64(key.AsFloat())
	default:
		return 0, newError(TypeError, "invalid index type '%s' for array", key.TypeName())
	}
	if i < 0 || i >= int64(n) {
		return 0, newError(IndexError, "index %d out of range [0, %d)", i, n)
	}
	return int(i), nil
}

// ---------------------------------------------------------------------------
// Indexing
// ---------------------------------------------------------------------------

// get implements obj[key]. Tables, instances and classes consult their
// own slots first; every kind then falls back to its delegate table.
func (vm *VM) get(obj, key Value) (Value, error) {
	switch o := vm.heap.get(obj).(type) {
	case *tableObject:
		if v, ok := o.get(key); ok {
			return v, nil
		}
	case *arrayObject:
		if key.IsNumber() {
			i, err := arrayIndex(key, len(o.items))
			if err != nil {
				return Null, err
			}
			return o.items[i], nil
		}
	case *instanceObject:
		if v, ok := o.fields.get(key); ok {
			return v, nil
		}
		if cls, ok := vm.heap.get(o.class).(*classObject); ok {
			if v, ok := cls.members.get(key); ok {
				return v, nil
			}
		}
	case *classObject:
		if v, ok := o.members.get(key); ok {
			return v, nil
		}
	case *userDataObject:
		if d, ok := vm.heap.get(o.delegate).(*tableObject); ok {
			if v, ok := d.get(key); ok {
				return v, nil
			}
		}
		return Null, missingKey(key)
	case nil:
		if obj.kind != KindString {
			if v, ok := vm.delegateGet(obj.kind, key); ok && !obj.IsNull() {
				return v, nil
			}
			return Null, newError(TypeError, "cannot index a '%s' value", obj.TypeName())
		}
		if key.IsNumber() {
			i, err := arrayIndex(key, len(obj.str))
			if err != nil {
				return Null, err
			}
			return Int(int64(obj.str[i])), nil
		}
	}
	if v, ok := vm.delegateGet(obj.kind, key); ok {
		return v, nil
	}
	return Null, missingKey(key)
}

// getOrNull implements obj?.key: every failed lookup yields null.
func (vm *VM) getOrNull(obj, key Value) Value {
	if obj.IsNull() {
		return Null
	}
	v, err := vm.get(obj, key)
	if err != nil {
		return Null
	}
	return v
}

func (vm *VM) delegateGet(kind Kind, key Value) (Value, bool) {
	if kind == KindNative {
		kind = KindClosure
	}
	d, ok := vm.delegates[kind]
	if !ok {
		return Null, false
	}
	return vm.heap.get(d).(*tableObject).get(key)
}

// set implements obj[key] = val; the slot must already exist.
func (vm *VM) set(obj, key, val Value) error {
	switch o := vm.heap.get(obj).(type) {
	case *tableObject:
		if _, ok := o.get(key); !ok {
			return missingKey(key)
		}
		return vm.tableStore(obj, o, key, val)
	case *arrayObject:
		i, err := arrayIndex(key, len(o.items))
		if err != nil {
			return err
		}
		if err := vm.charge(obj, int64(len(val.str)-len(o.items[i].str))); err != nil {
			return err
		}
		vm.heap.retain(val)
		vm.heap.release(o.items[i])
		o.items[i] = val
		return nil
	case *instanceObject:
		if _, ok := o.fields.get(key); !ok {
			return missingKey(key)
		}
		return vm.tableStore(obj, o.fields, key, val)
	case *classObject:
		if _, ok := o.members.get(key); !ok {
			return missingKey(key)
		}
		return vm.tableStore(obj, o.members, key, val)
	}
	return newError(TypeError, "cannot assign an index of a '%s' value", obj.TypeName())
}

// newSlot implements obj[key] <- val.
func (vm *VM) newSlot(obj, key, val Value) error {
	switch o := vm.heap.get(obj).(type) {
	case *tableObject:
		if err := validKey(key); err != nil {
			return err
		}
		return vm.tableStore(obj, o, key, val)
	case *classObject:
		return vm.addMember(obj, key, val, false)
	}
	return newError(TypeError, "cannot create a new slot in a '%s' value", obj.TypeName())
}

// delete implements delete obj[key] and returns the removed value.
func (vm *VM) delete(obj, key Value) (Value, error) {
	switch o := vm.heap.get(obj).(type) {
	case *tableObject:
		if v, ok := vm.tableRemove(obj, o, key); ok {
			return v, nil
		}
		return Null, missingKey(key)
	case *classObject:
		if o.locked {
			return Null, newError(RuntimeFault, "class '%s' has been instantiated and cannot lose members", o.name)
		}
		if v, ok := vm.tableRemove(obj, o.members, key); ok {
			delete(o.static, key)
			return v, nil
		}
		return Null, missingKey(key)
	}
	return Null, newError(TypeError, "cannot delete a slot of a '%s' value", obj.TypeName())
}

// in implements key in obj.
func (vm *VM) in(obj, key Value) (bool, error) {
	switch o := vm.heap.get(obj).(type) {
	case *tableObject:
		_, ok := o.get(key)
		return ok, nil
	case *arrayObject:
		if !key.IsNumber() {
			return false, nil
		}
		_, err := arrayIndex(key, len(o.items))
		return err == nil, nil
	case *instanceObject:
		if _, ok := o.fields.get(key); ok {
			return true, nil
		}
		cls, _ := vm.heap.get(o.class).(*classObject)
		_, ok := cls.members.get(key)
		return ok, nil
	case *classObject:
		_, ok := o.members.get(key)
		return ok, nil
	case *userDataObject:
		d, ok := vm.heap.get(o.delegate).(*tableObject)
		if !ok {
			return false, nil
		}
		_, ok = d.get(key)
		return ok, nil
	}
	return false, newError(TypeError, "'in' expects a container, got '%s'", obj.TypeName())
}

// ---------------------------------------------------------------------------
// Names: bare identifiers resolve in this, then in the root table
// ---------------------------------------------------------------------------

func (vm *VM) lookupSlot(obj, key Value) (Value, bool) {
	switch o := vm.heap.get(obj).(type) {
	case *tableObject:
		return o.get(key)
	case *instanceObject:
		if v, ok := o.fields.get(key); ok {
			return v, true
		}
		if cls, ok := vm.heap.get(o.class).(*classObject); ok {
			return cls.members.get(key)
		}
	case *classObject:
		return o.members.get(key)
	}
	return Null, false
}

func (vm *VM) getName(this, key Value) (Value, error) {
	if v, ok := vm.lookupSlot(this, key); ok {
		return v, nil
	}
	if v, ok := vm.rootTable().get(key); ok {
		return v, nil
	}
	return Null, missingKey(key)
}

func (vm *VM) setName(this, key, val Value) error {
	if _, ok := vm.lookupSlot(this, key); ok {
		return vm.set(this, key, val)
	}
	root := vm.rootTable()
	if _, ok := root.get(key); ok {
		return vm.tableStore(vm.root, root, key, val)
	}
	return missingKey(key)
}

// newSlotName creates a slot in this when this is a table or class, and
// in the root table otherwise.
func (vm *VM) newSlotName(this, key, val Value) error {
	switch this.kind {
	case KindTable, KindClass:
		return vm.newSlot(this, key, val)
	}
	return vm.newSlot(vm.root, key, val)
}

// ---------------------------------------------------------------------------
// Classes, types and cloning
// ---------------------------------------------------------------------------

// baseOf returns the base class of the class a method was installed in.
func (vm *VM) baseOf(c *closureObject) Value {
	if cls, ok := vm.heap.get(c.owner).(*classObject); ok {
		return cls.base
	}
	return Null
}

func (vm *VM) instanceOf(inst, class Value) (bool, error) {
	if class.kind != KindClass {
		return false, newError(TypeError, "instanceof expects a class, got '%s'", class.TypeName())
	}
	obj, ok := vm.heap.get(inst).(*instanceObject)
	if !ok {
		return false, nil
	}
	for c := obj.class; !c.IsNull(); {
		if c == class {
			return true, nil
		}
		cls, ok := vm.heap.get(c).(*classObject)
		if !ok {
			break
		}
		c = cls.base
	}
	return false, nil
}

// typeOf is the name the typeof operator reports.
func typeOf(v Value) string {
	if v.kind == KindNative {
		return KindClosure.String()
	}
	return v.TypeName()
}

// clone makes a shallow copy of a table, array or instance. Scalars are
// returned as they are.
func (vm *VM) clone(v Value) (Value, error) {
	switch o := vm.heap.get(v).(type) {
	case nil:
		if v.IsHeap() {
			return Null, newError(RuntimeFault, "stale reference")
		}
		return v, nil
	case *tableObject:
		out, err := vm.newTable(o.len())
		if err != nil {
			return Null, err
		}
		t := vm.heap.get(out).(*tableObject)
		for _, e := range o.entries {
			if e.live {
				if err := vm.tableStore(out, t, e.key, e.val); err != nil {
					return Null, err
				}
			}
		}
		return out, nil
	case *arrayObject:
		items := make([]Value, len(o.items))
		copy(items, o.items)
		return vm.newArray(items)
	case *instanceObject:
		cls := vm.heap.get(o.class).(*classObject)
		out, err := vm.newInstance(o.class, cls)
		if err != nil {
			return Null, err
		}
		fields := vm.heap.get(out).(*instanceObject).fields
		for _, e := range o.fields.entries {
			if e.live {
				if err := vm.tableStore(out, fields, e.key, e.val); err != nil {
					return Null, err
				}
			}
		}
		return out, nil
	}
	return Null, newError(TypeError, "cannot clone a '%s'", v.TypeName())
}
