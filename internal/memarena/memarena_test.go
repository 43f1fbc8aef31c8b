package memarena

import (
	"sync"
	"testing"
	"time"
)

func TestBlockPoolReserveFree(t *testing.T) {
	p := NewBlockPool(2, 16)
	b1, ok := p.Reserve()
	if !ok || len(b1) != 16 {
		t.Fatalf("Reserve() = (%v, %v)", b1, ok)
	}
	b2, ok := p.Reserve()
	if !ok {
		t.Fatal("expected second Reserve to succeed")
	}
	if p.Available() != 0 {
		t.Fatalf("Available() = %d, want 0", p.Available())
	}

	done := make(chan struct{})
	go func() {
		b3, ok := p.Reserve()
		if !ok || len(b3) != 16 {
			t.Errorf("blocked Reserve() = (%v, %v)", b3, ok)
		}
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	p.Free(b1)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("blocked Reserve never woke up after Free")
	}
	p.Free(b2)
}

func TestBlockPoolClose(t *testing.T) {
	p := NewBlockPool(1, 8)
	p.Reserve()
	p.Close()
	if _, ok := p.Reserve(); ok {
		t.Error("expected Reserve to fail after Close with no free blocks")
	}
}

func TestArenaInitFreeExtend(t *testing.T) {
	a := NewArena(100, false)
	span, err := a.Init(1, 40)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	span.SetSlot(SlotInputFile, make([]byte, 40))
	if a.Used() != 40 {
		t.Errorf("Used() = %d, want 40", a.Used())
	}
	if err := a.Extend(1, 60); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if a.Used() != 60 {
		t.Errorf("Used() after Extend = %d, want 60", a.Used())
	}
	a.Free(1)
	if a.Used() != 0 {
		t.Errorf("Used() after Free = %d, want 0", a.Used())
	}
}

func TestArenaInitTooLarge(t *testing.T) {
	a := NewArena(10, false)
	if _, err := a.Init(1, 20); err == nil {
		t.Error("expected error reserving more than capacity")
	}
}

func TestArenaStrictModeRejectsExtend(t *testing.T) {
	a := NewArena(100, true)
	if _, err := a.Init(1, 50); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := a.Extend(1, 60); err == nil {
		t.Error("expected strict-mode Extend to fail")
	}
}

func TestArenaBlocksUntilSpaceFreed(t *testing.T) {
	a := NewArena(50, false)
	if _, err := a.Init(1, 50); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	done := make(chan struct{})
	go func() {
		defer wg.Done()
		if _, err := a.Init(2, 10); err != nil {
			t.Errorf("Init(2): %v", err)
		}
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	a.Free(1)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Init(2) never unblocked after Free(1)")
	}
	wg.Wait()
}
