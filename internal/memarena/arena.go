// Copyright © 2018-2020 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package memarena

import (
	"fmt"
	"sync"
)

// Slot names a per-bin sub-allocation inside the sort arena (spec.md
// §4.1's "seven named slices").
type Slot int

const (
	SlotInputFile Slot = iota
	SlotKmerArray
	SlotTmpArray
	SlotSuffixOut
	SlotLUT
	SlotKXmerCounter
	numSlots
)

// BinSpan is one bin's reservation: the named sub-slices carved out of the
// arena's backing region.
type BinSpan struct {
	BinID int
	slots [numSlots][]byte
}

// Slot returns the named sub-slice, or nil if it was never requested.
func (s *BinSpan) Slot(name Slot) []byte { return s.slots[name] }

// SetSlot installs (or replaces) a named sub-slice within the span.
func (s *BinSpan) SetSlot(name Slot, buf []byte) { s.slots[name] = buf }

// Arena is the per-bin sliding sub-allocator used during sorting. It owns
// one backing region; Init reserves a span of `required` bytes for a bin,
// blocking if there isn't enough free space, Extend grows (or, outside
// strict mode, reallocates) a span, and Free releases it.
type Arena struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	used     int
	strict   bool
	spans    map[int]*BinSpan
	sizes    map[int]int
}

// NewArena creates an arena with the given total byte capacity. strict
// disables the reallocate-whole-region growth path (spec.md §4.1/§4.12):
// in strict mode a bin that can't fit is rejected outright rather than
// growing the arena, so it can be diverted to the strict-memory
// sub-pipeline.
func NewArena(capacity int, strict bool) *Arena {
	a := &Arena{capacity: capacity, strict: strict, spans: map[int]*BinSpan{}, sizes: map[int]int{}}
	a.cond = sync.NewCond(&a.mu)
	return a
}

// Init reserves a span of `required` bytes for binID, blocking until
// enough space has been freed by other bins. It never blocks forever on a
// request that can never be satisfied: required > capacity returns an
// error immediately.
func (a *Arena) Init(binID, required int) (*BinSpan, error) {
	if required > a.capacity {
		return nil, fmt.Errorf("memarena: bin %d requires %d bytes, arena capacity is %d", binID, required, a.capacity)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for a.used+required > a.capacity {
		a.cond.Wait()
	}
	a.used += required
	a.sizes[binID] = required
	span := &BinSpan{BinID: binID}
	a.spans[binID] = span
	return span, nil
}

// Extend grows binID's reservation to newRequired bytes. In non-strict
// mode it blocks (like Init) until the extra space is available; in
// strict mode it fails fast instead of growing, so the caller can divert
// the bin to the strict-memory sub-pipeline.
func (a *Arena) Extend(binID, newRequired int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	cur, ok := a.sizes[binID]
	if !ok {
		return fmt.Errorf("memarena: Extend on unknown bin %d", binID)
	}
	delta := newRequired - cur
	if delta <= 0 {
		return nil
	}
	if a.strict {
		return fmt.Errorf("memarena: bin %d cannot grow in strict-memory mode", binID)
	}
	for a.used+delta > a.capacity {
		a.cond.Wait()
	}
	a.used += delta
	a.sizes[binID] = newRequired
	return nil
}

// Free releases binID's whole span and wakes waiters.
func (a *Arena) Free(binID int) {
	a.mu.Lock()
	size, ok := a.sizes[binID]
	if ok {
		a.used -= size
		delete(a.sizes, binID)
		delete(a.spans, binID)
	}
	a.mu.Unlock()
	a.cond.Broadcast()
}

// Used returns the arena's currently-reserved byte count.
func (a *Arena) Used() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

// Capacity returns the arena's total byte budget.
func (a *Arena) Capacity() int { return a.capacity }
