package vm

import (
	"time"
)

// ---------------------------------------------------------------------------
// Cycle collection: mark-sweep over the handle graph
// ---------------------------------------------------------------------------

// GCStats holds statistics from a single collection.
type GCStats struct {
	Reclaimed  int           // objects freed from the ZCT
	Collected  int           // objects freed by the cycle pass
	FreedBytes int64         // bytes released by both passes
	Duration   time.Duration // wall time of the collection
	Timestamp  time.Time
}

// CollectCycles marks every object reachable from the roots and the host
// references, then sweeps the rest. Reference counting alone cannot free
// cyclic garbage; this pass does.
//
// Surviving objects referenced from swept ones lose those references and
// may enter the ZCT.
func (h *Heap) CollectCycles(roots func(visit func(Value))) (collected int, freedBytes int64) {
	var work []Handle
	mark := func(v Value) {
		if !v.IsHeap() {
			return
		}
		s := h.slot(v.Handle())
		if s == nil || s.marked {
			return
		}
		s.marked = true
		work = append(work, v.Handle())
	}

	roots(mark)
	for handle := range h.hostRefs {
		if s := h.slot(handle); s != nil && !s.marked {
			s.marked = true
			work = append(work, handle)
		}
	}
	for len(work) > 0 {
		handle := work[len(work)-1]
		work = work[:len(work)-1]
		if s := h.slot(handle); s != nil {
			s.obj.trace(mark)
		}
	}

	var garbage []Handle
	for idx := 1; idx < len(h.slots); idx++ {
		s := &h.slots[idx]
		if s.obj == nil {
			continue
		}
		if s.marked {
			s.marked = false
			continue
		}
		garbage = append(garbage, makeHandle(uint32(idx), s.gen))
	}

	// Drop references from garbage into survivors before freeing anything,
	// so every handle is still resolvable while counts are adjusted.
	inGarbage := make(map[Handle]struct{}, len(garbage))
	for _, handle := range garbage {
		inGarbage[handle] = struct{}{}
	}
	for _, handle := range garbage {
		h.slot(handle).obj.release(func(v Value) {
			if !v.IsHeap() {
				return
			}
			if _, dead := inGarbage[v.Handle()]; dead {
				return
			}
			h.release(v)
		})
	}

	before := h.bytes
	for _, handle := range garbage {
		h.freeSlot(handle)
	}
	return len(garbage), before - h.bytes
}
