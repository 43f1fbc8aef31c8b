package dbfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sfPath := filepath.Join(dir, "test.kmcs")
	pfPath := filepath.Join(dir, "test.kmcp")

	k, lpl, sigLen := 8, 2, 5
	w, err := NewWriter(sfPath, k, lpl, sigLen, 4, 1, 1<<30, 1<<30, true)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	records := []struct {
		code  uint64
		count uint64
	}{
		{0, 3},
		{1, 7},
		{1<<uint((k-lpl)*2) + 5, 1},
	}
	for _, r := range records {
		if err := w.WriteRecord(r.code, r.count); err != nil {
			t.Fatalf("WriteRecord: %v", err)
		}
	}
	hdr, err := w.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	lut := w.LUT()

	sigToBin := make([]uint32, (1<<uint(sigLen*2))+1)
	if err := WritePrefixFile(pfPath, lut, sigToBin, hdr); err != nil {
		t.Fatalf("WritePrefixFile: %v", err)
	}

	r, err := Open(sfPath, pfPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if r.K != uint32(k) {
		t.Errorf("K = %d, want %d", r.K, k)
	}
	if r.CountedUnique != uint64(len(records)) {
		t.Errorf("CountedUnique = %d, want %d", r.CountedUnique, len(records))
	}
	if len(r.LUT()) != 1<<uint(lpl*2) {
		t.Errorf("LUT len = %d, want %d", len(r.LUT()), 1<<uint(lpl*2))
	}
}

func TestLutPrefixLen(t *testing.T) {
	lpl := LutPrefixLen(20, 1_000_000, 256)
	if lpl < 2 || lpl > 20 || lpl%2 != 0 {
		t.Errorf("LutPrefixLen returned %d, expected an even value in [2,20]", lpl)
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.kmcp")
	if err := os.WriteFile(bad, []byte("not a db"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(filepath.Join(dir, "missing.kmcs"), bad); err == nil {
		t.Error("expected error opening malformed prefix file")
	}
}
