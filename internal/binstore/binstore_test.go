package binstore

import (
	"io"
	"os"
	"testing"

	"github.com/kmerbin/kmerbin"
)

func mustSuperKmer(t *testing.T, bases string, k int) kmerbin.SuperKmer {
	t.Helper()
	sk, err := kmerbin.NewSuperKmer([]byte(bases), k)
	if err != nil {
		t.Fatalf("NewSuperKmer(%s, %d): %v", bases, k, err)
	}
	return sk
}

func TestCollectorFlushesOnFull(t *testing.T) {
	out := make(chan BinPart, 8)
	k := 8
	sk := mustSuperKmer(t, "ACGTACGTAC", k) // 10 bases -> header 2, 3 packed bytes, 4-byte record
	capacity := 7                           // only room for one record

	c := NewCollector(3, capacity, 4, false, out)
	if err := c.Add(sk); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := c.Add(sk); err != nil {
		t.Fatalf("Add: %v", err)
	}
	c.Flush()
	close(out)

	var parts []BinPart
	for p := range out {
		parts = append(parts, p)
	}
	if len(parts) != 2 {
		t.Fatalf("expected 2 flushed parts (one auto, one explicit), got %d", len(parts))
	}
	for _, p := range parts {
		if p.BinID != 3 {
			t.Errorf("BinID = %d, want 3", p.BinID)
		}
		if len(p.Expander) != 1 {
			t.Errorf("expected 1 expander part per flush, got %d", len(p.Expander))
		}
	}
}

func TestCollectorRejectsOversizedRecord(t *testing.T) {
	out := make(chan BinPart, 1)
	sk := mustSuperKmer(t, "ACGTACGTACGTACGT", 8)
	c := NewCollector(0, 2, 4, false, out)
	if err := c.Add(sk); err == nil {
		t.Fatal("expected an error for a record larger than bin_part_size")
	}
}

func TestNPlusXRecsSingleStrand(t *testing.T) {
	k := 8
	sk := mustSuperKmer(t, "ACGTACGTACGTA", k) // L=13, extra=5
	got := NPlusXRecs(sk, 2, false)
	want := uint64(1 + 5/(2+1))
	if got != want {
		t.Errorf("NPlusXRecs = %d, want %d", got, want)
	}
}

func TestNPlusXRecsAtLeastOne(t *testing.T) {
	k := 8
	sk := mustSuperKmer(t, "ACGTACGT", k) // L=k, extra=0
	got := NPlusXRecs(sk, 4, false)
	if got != 1 {
		t.Errorf("NPlusXRecs = %d, want 1", got)
	}
	got = NPlusXRecs(sk, 4, true)
	if got != 1 {
		t.Errorf("NPlusXRecs (both strands) = %d, want 1", got)
	}
}

func TestStorerWritesAndAccumulates(t *testing.T) {
	dir := t.TempDir()
	s := NewStorer(dir, false)
	parts := make(chan BinPart, 4)
	done := make(chan error, 1)
	go func() { done <- s.Run(parts) }()

	parts <- BinPart{BinID: 1, Buffer: []byte{1, 2, 3}, TotalRecs: 2}
	parts <- BinPart{BinID: 1, Buffer: []byte{4, 5}, TotalRecs: 3}
	close(parts)
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := s.Size(1); got != 5 {
		t.Errorf("Size(1) = %d, want 5", got)
	}
	if got := s.Records(1); got != 5 {
		t.Errorf("Records(1) = %d, want 5", got)
	}

	rc, err := OpenBinFile(dir, 1)
	if err != nil {
		t.Fatalf("OpenBinFile: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading decompressed bin file: %v", err)
	}
	if string(data) != "\x01\x02\x03\x04\x05" {
		t.Errorf("file contents = %v, want 1,2,3,4,5", data)
	}
}

func TestStorerRAMOnlyNeverTouchesDisk(t *testing.T) {
	dir := t.TempDir()
	s := NewStorer(dir, true)
	parts := make(chan BinPart, 4)
	done := make(chan error, 1)
	go func() { done <- s.Run(parts) }()

	parts <- BinPart{BinID: 7, Buffer: []byte{9, 8, 7}, TotalRecs: 1}
	close(parts)
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("ramOnly Storer created %d files on disk, want 0", len(entries))
	}

	rc, err := s.OpenBin(7)
	if err != nil {
		t.Fatalf("OpenBin: %v", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("reading decompressed bin: %v", err)
	}
	if string(data) != "\x09\x08\x07" {
		t.Errorf("bin contents = %v, want 9,8,7", data)
	}

	if err := s.RemoveBin(7); err != nil {
		t.Fatalf("RemoveBin: %v", err)
	}
	if _, err := s.OpenBin(7); err == nil {
		t.Error("expected OpenBin to fail after RemoveBin")
	}
}
