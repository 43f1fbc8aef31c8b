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

// Package memarena implements the two memory-pool shapes the pipeline
// shares resources through: a fixed-block pool of equal-sized buffers for
// the reader/splitter/storer stages, and a per-bin sliding arena for the
// sort stage. Both block the caller rather than fail when momentarily out
// of space, mirroring spec.md §4.1's reserve/free and init/extend/free
// contracts.
package memarena

import (
	"fmt"
	"sync"
)

// BlockPool is a fixed-capacity pool of N equal-sized buffers with
// blocking Reserve/Free, the "fixed-block pool" of spec.md §4.1.
type BlockPool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	blockLen int
	free     [][]byte
	closed   bool
}

// NewBlockPool allocates n blocks of blockLen bytes up front.
func NewBlockPool(n, blockLen int) *BlockPool {
	p := &BlockPool{blockLen: blockLen, free: make([][]byte, 0, n)}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < n; i++ {
		p.free = append(p.free, make([]byte, blockLen))
	}
	return p
}

// Reserve blocks until a block is available and returns it. Returns
// ok=false if the pool has been Closed (the "ignore rest" shutdown path).
func (p *BlockPool) Reserve() (buf []byte, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.free) == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.closed && len(p.free) == 0 {
		return nil, false
	}
	n := len(p.free) - 1
	buf = p.free[n]
	p.free = p.free[:n]
	return buf, true
}

// Free returns buf to the pool and wakes one waiter.
func (p *BlockPool) Free(buf []byte) {
	if len(buf) != p.blockLen {
		panic(fmt.Sprintf("memarena: returned block has length %d, want %d", len(buf), p.blockLen))
	}
	p.mu.Lock()
	p.free = append(p.free, buf[:p.blockLen])
	p.mu.Unlock()
	p.cond.Signal()
}

// Close marks the pool as shutting down; blocked and future Reserve calls
// that find no free block return ok=false instead of waiting forever.
func (p *BlockPool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
}

// Available reports the current free-block count, for diagnostics only.
func (p *BlockPool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
