package vm

import (
	"errors"
)

// ---------------------------------------------------------------------------
// Heap: Arena of handle-addressed objects with deferred reference counting
// ---------------------------------------------------------------------------

// errHeapLimit is returned by the heap when an allocation or growth would
// exceed the configured ceiling. The VM turns it into OutOfMemory after
// one collection and retry.
var errHeapLimit = errors.New("heap limit exceeded")

type heapSlot struct {
	gen    uint32
	obj    heapObject
	rc     int32
	bytes  int64
	inZCT  bool
	marked bool
}

// HeapStats summarizes heap occupancy.
type HeapStats struct {
	Objects int   // live objects
	Bytes   int64 // bytes charged to live objects
	Limit   int64 // 0 means unlimited
	ZCT     int   // zero-count table entries awaiting reclaim
}

// Heap owns every table, array, closure, class, instance, generator,
// native function, user data and weak reference of one VM.
//
// Reference counts track references held by other heap objects and by the
// host. References from the value stack are not counted: an object whose
// count reaches zero is entered in the zero-count table (ZCT) and freed at
// the next reclaim unless it is still found on a root.
type Heap struct {
	slots      []heapSlot
	free       []uint32
	live       int
	bytes      int64
	limit      int64
	zct        []Handle
	hostRefs   map[Handle]int32
	finalizers map[Handle]func(Value)
}

// NewHeap creates an empty heap. A limit of zero disables the ceiling.
func NewHeap(limit int64) *Heap {
	return &Heap{
		slots:      make([]heapSlot, 1, 64), // slot 0 is never used
		limit:      limit,
		hostRefs:   make(map[Handle]int32),
		finalizers: make(map[Handle]func(Value)),
	}
}

// Stats returns current occupancy.
func (h *Heap) Stats() HeapStats {
	return HeapStats{Objects: h.live, Bytes: h.bytes, Limit: h.limit, ZCT: len(h.zct)}
}

// Allocate stores obj and returns its handle. The new object has a zero
// reference count and starts in the ZCT.
func (h *Heap) Allocate(obj heapObject) (Handle, error) {
	n := obj.size()
	if h.limit > 0 && h.bytes+n > h.limit {
		return 0, errHeapLimit
	}

	var idx uint32
	if k := len(h.free); k > 0 {
		idx = h.free[k-1]
		h.free = h.free[:k-1]
	} else {
		h.slots = append(h.slots, heapSlot{})
		idx = uint32(len(h.slots) - 1)
	}
	s := &h.slots[idx]
	s.gen++
	s.obj = obj
	s.rc = 0
	s.bytes = n
	s.marked = false
	h.live++
	h.bytes += n

	handle := makeHandle(idx, s.gen)
	s.inZCT = true
	h.zct = append(h.zct, handle)
	return handle, nil
}

func (h *Heap) slot(handle Handle) *heapSlot {
	idx := handle.index()
	if idx == 0 || int(idx) >= len(h.slots) {
		return nil
	}
	s := &h.slots[idx]
	if s.gen != handle.gen() || s.obj == nil {
		return nil
	}
	return s
}

// Valid reports whether the handle refers to a live object.
func (h *Heap) Valid(handle Handle) bool {
	return h.slot(handle) != nil
}

// get returns the object for a heap value, or nil if it is stale.
func (h *Heap) get(v Value) heapObject {
	if !v.IsHeap() {
		return nil
	}
	if s := h.slot(v.Handle()); s != nil {
		return s.obj
	}
	return nil
}

// RefCount returns the counted references to v. Scalars report zero.
func (h *Heap) RefCount(v Value) int {
	if !v.IsHeap() {
		return 0
	}
	if s := h.slot(v.Handle()); s != nil {
		return int(s.rc)
	}
	return 0
}

// retain counts a reference from another heap object.
func (h *Heap) retain(v Value) {
	if !v.IsHeap() {
		return
	}
	if s := h.slot(v.Handle()); s != nil {
		s.rc++
	}
}

// release drops a counted reference; objects reaching zero enter the ZCT.
func (h *Heap) release(v Value) {
	if !v.IsHeap() {
		return
	}
	handle := v.Handle()
	s := h.slot(handle)
	if s == nil {
		return
	}
	if s.rc > 0 {
		s.rc--
	}
	if s.rc == 0 && !s.inZCT {
		s.inZCT = true
		h.zct = append(h.zct, handle)
	}
}

// hostRetain counts a reference held by the embedding host. Host
// references are also roots for cycle collection.
func (h *Heap) hostRetain(v Value) {
	if !v.IsHeap() || !h.Valid(v.Handle()) {
		return
	}
	h.hostRefs[v.Handle()]++
	h.retain(v)
}

// hostRelease drops a host reference. Releasing a value the host does not
// hold is ignored.
func (h *Heap) hostRelease(v Value) {
	if !v.IsHeap() {
		return
	}
	handle := v.Handle()
	n, ok := h.hostRefs[handle]
	if !ok {
		return
	}
	if n <= 1 {
		delete(h.hostRefs, handle)
	} else {
		h.hostRefs[handle] = n - 1
	}
	h.release(v)
}

// grow charges delta bytes to an existing object.
func (h *Heap) grow(handle Handle, delta int64) error {
	s := h.slot(handle)
	if s == nil {
		return nil
	}
	if delta > 0 && h.limit > 0 && h.bytes+delta > h.limit {
		return errHeapLimit
	}
	s.bytes += delta
	h.bytes += delta
	return nil
}

// SetFinalizer registers fn to run once when the object is reclaimed.
func (h *Heap) SetFinalizer(v Value, fn func(Value)) {
	if v.IsHeap() && h.Valid(v.Handle()) {
		h.finalizers[v.Handle()] = fn
	}
}

// freeSlot removes the object without releasing its references.
func (h *Heap) freeSlot(handle Handle) {
	s := h.slot(handle)
	if s == nil {
		return
	}
	obj := s.obj
	if f, ok := obj.(finalizable); ok {
		f.finalize()
	}
	if fn, ok := h.finalizers[handle]; ok {
		delete(h.finalizers, handle)
		fn(fromHandle(obj.kind(), handle))
	}
	delete(h.hostRefs, handle)

	h.bytes -= s.bytes
	h.live--
	s.obj = nil
	s.rc = 0
	s.bytes = 0
	s.inZCT = false
	s.marked = false
	h.free = append(h.free, handle.index())
}

// Reclaim frees ZCT entries that are not rooted. rooted enumerates the
// uncounted roots (value stack, temporaries). Releasing the freed objects'
// references may cascade more objects into the ZCT; those are processed in
// the same pass. Returns the number of objects freed.
func (h *Heap) Reclaim(rooted func(visit func(Value))) int {
	if len(h.zct) == 0 {
		return 0
	}
	roots := make(map[Handle]struct{})
	rooted(func(v Value) {
		if v.IsHeap() {
			roots[v.Handle()] = struct{}{}
		}
	})

	var keep []Handle
	freed := 0
	for len(h.zct) > 0 {
		handle := h.zct[len(h.zct)-1]
		h.zct = h.zct[:len(h.zct)-1]
		s := h.slot(handle)
		if s == nil {
			continue
		}
		s.inZCT = false
		if s.rc > 0 {
			continue
		}
		if _, ok := roots[handle]; ok {
			keep = append(keep, handle)
			continue
		}
		s.obj.release(h.release)
		h.freeSlot(handle)
		freed++
	}
	for _, handle := range keep {
		if s := h.slot(handle); s != nil {
			s.inZCT = true
			h.zct = append(h.zct, handle)
		}
	}
	return freed
}
