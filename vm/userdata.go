package vm

// ---------------------------------------------------------------------------
// User data: host values with script-visible methods
// ---------------------------------------------------------------------------

// UserDataType describes a kind of user data: its tag, shared by every
// value of the type, and the natives scripts call on it.
type UserDataType struct {
	Tag     string
	Methods map[string]NativeDef
}

// RegisterUserDataType builds the method table for t once per VM. It is
// kept in the registry under the tag.
func (vm *VM) RegisterUserDataType(t UserDataType) (Value, error) {
	key := String("userdata:" + t.Tag)
	reg := vm.heap.get(vm.registry).(*tableObject)
	if d, ok := reg.get(key); ok {
		return d, nil
	}
	d, err := vm.buildTable(t.Tag, t.Methods, nil)
	if err != nil {
		return Null, err
	}
	if err := vm.TableSet(vm.registry, key, d); err != nil {
		return Null, err
	}
	return d, nil
}

// NewUserData wraps data in a script value of the registered type. onFree
// runs once when the value is reclaimed or the VM is destroyed.
func (vm *VM) NewUserData(t UserDataType, data interface{}, onFree func()) (Value, error) {
	d, err := vm.RegisterUserDataType(t)
	if err != nil {
		return Null, err
	}
	v, err := vm.alloc(&userDataObject{typeTag: t.Tag, data: data, delegate: d, onFree: onFree})
	if err != nil {
		if onFree != nil {
			onFree()
		}
		return Null, err
	}
	vm.heap.retain(d)
	return v, nil
}

// UserData returns the host data of v if v is user data of the given tag.
func (vm *VM) UserData(v Value, tag string) (interface{}, bool) {
	u, ok := vm.heap.get(v).(*userDataObject)
	if !ok || u.typeTag != tag {
		return nil, false
	}
	return u.data, true
}

// userDataArg fetches the host data of this for a userdata method.
func userDataArg[T any](vm *VM, this Value, tag string) (T, error) {
	var zero T
	data, ok := vm.UserData(this, tag)
	if !ok {
		return zero, newError(TypeError, "expected a %s, got '%s'", tag, this.TypeName())
	}
	t, ok := data.(T)
	if !ok {
		return zero, newError(TypeError, "corrupt %s user data", tag)
	}
	return t, nil
}
