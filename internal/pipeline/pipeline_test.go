package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kmerbin/kmerbin"
	"github.com/kmerbin/kmerbin/internal/config"
	"github.com/kmerbin/kmerbin/internal/dbfile"
)

func writeFasta(t *testing.T, dir, name, seq string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := ">seq1\n" + seq + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

// readAllRecords drains a database through its prefix LUT, the same walk
// cmd/kmerbin's dump command performs, and returns a kmer-string -> count
// map for easy comparison against expected output.
func readAllRecords(t *testing.T, r *dbfile.Reader) map[string]uint64 {
	t.Helper()
	out := make(map[string]uint64)
	lut := r.LUT()
	k := int(r.K)
	var prev uint64
	for prefix, cum := range lut {
		n := cum - prev
		prev = cum
		for i := uint64(0); i < n; i++ {
			code, count, err := r.Next(uint64(prefix))
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			out[string(kmerbin.Decode(code, k))] = count
		}
	}
	return out
}

func TestRunSmallKProducesReadableDatabase(t *testing.T) {
	dir := t.TempDir()
	in := writeFasta(t, dir, "in.fa", "ACGTACGTACGTACGTACGTACGTACGT")
	out := filepath.Join(dir, "out")

	cfg := config.Default()
	cfg.K = 5
	cfg.Inputs = []string{in}
	cfg.OutBase = out
	cfg.TmpDir = dir

	stats, err := Run(cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.CountedUnique == 0 {
		t.Fatal("expected at least one counted unique k-mer")
	}

	r, err := dbfile.Open(out+".kmcs", out+".kmcp")
	if err != nil {
		t.Fatalf("dbfile.Open: %v", err)
	}
	defer r.Close()
}

func TestRunGeneralMultipleInputsWithConcurrentReaders(t *testing.T) {
	dir := t.TempDir()
	seq := ""
	for i := 0; i < 20; i++ {
		seq += "ACGTTGCAACGTTGCAACGTTGCAACGTTGCAACGTTGCA"
	}
	in1 := writeFasta(t, dir, "in1.fa", seq)
	in2 := writeFasta(t, dir, "in2.fa", seq)
	out := filepath.Join(dir, "out")

	cfg := config.Default()
	cfg.K = 21
	cfg.Inputs = []string{in1, in2}
	cfg.OutBase = out
	cfg.TmpDir = dir
	cfg.NumBins = 8
	cfg.Threads = 4
	cfg.ReaderThreads = 2

	stats, err := Run(cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.CountedUnique == 0 {
		t.Fatal("expected at least one counted unique k-mer")
	}

	r, err := dbfile.Open(out+".kmcs", out+".kmcp")
	if err != nil {
		t.Fatalf("dbfile.Open: %v", err)
	}
	defer r.Close()
}

// TestRunGeneralCanonicalMergesReverseComplement is a k=21 general-path
// (k > 13, so the small-k fast path is bypassed) regression test for the
// expander's canonical-orientation bug: three reads are each exactly one
// k-mer's worth of bases, and that k-mer's forward form is deliberately
// not its own canonical representation (its reverse complement sorts
// first), so a correct run must merge all three occurrences into one
// record keyed on the canonical code, not split them by orientation.
func TestRunGeneralCanonicalMergesReverseComplement(t *testing.T) {
	dir := t.TempDir()
	k := 21
	motif := "TCGATCGATCGATCGATCGAC" // forward != canonical: revcomp sorts first
	if len(motif) != k {
		t.Fatalf("test motif length %d != k %d", len(motif), k)
	}
	content := ">r1\n" + motif + "\n>r2\n" + motif + "\n>r3\n" + motif + "\n"
	in := filepath.Join(dir, "in.fa")
	if err := os.WriteFile(in, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", in, err)
	}
	out := filepath.Join(dir, "out")

	cfg := config.Default()
	cfg.K = k
	cfg.Inputs = []string{in}
	cfg.OutBase = out
	cfg.TmpDir = dir
	cfg.NumBins = 8
	cfg.Threads = 2

	stats, err := Run(cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.CountedUnique != 1 {
		t.Fatalf("CountedUnique = %d, want 1 (all three occurrences share a canonical k-mer)", stats.CountedUnique)
	}

	r, err := dbfile.Open(out+".kmcs", out+".kmcp")
	if err != nil {
		t.Fatalf("dbfile.Open: %v", err)
	}
	defer r.Close()

	forwardCode, err := kmerbin.Encode([]byte(motif))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	wantCode := kmerbin.Canonical(forwardCode, k)
	wantKmer := string(kmerbin.Decode(wantCode, k))
	if wantKmer == motif {
		t.Fatalf("test motif %q is already its own canonical form; pick one whose reverse complement sorts first", motif)
	}

	got := readAllRecords(t, r)
	if len(got) != 1 {
		t.Fatalf("got %d distinct records, want 1: %v", len(got), got)
	}
	if got[wantKmer] != 3 {
		t.Errorf("%s count = %d, want 3", wantKmer, got[wantKmer])
	}
}

func TestRunGeneralProducesReadableDatabase(t *testing.T) {
	dir := t.TempDir()
	// repeat a long-enough sequence so it has many overlapping 21-mers
	// across more than one signature bin.
	seq := ""
	for i := 0; i < 20; i++ {
		seq += "ACGTTGCAACGTTGCAACGTTGCAACGTTGCAACGTTGCA"
	}
	in := writeFasta(t, dir, "in.fa", seq)
	out := filepath.Join(dir, "out")

	cfg := config.Default()
	cfg.K = 21
	cfg.Inputs = []string{in}
	cfg.OutBase = out
	cfg.TmpDir = dir
	cfg.NumBins = 8
	cfg.Threads = 2

	stats, err := Run(cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.CountedUnique == 0 {
		t.Fatal("expected at least one counted unique k-mer")
	}

	r, err := dbfile.Open(out+".kmcs", out+".kmcp")
	if err != nil {
		t.Fatalf("dbfile.Open: %v", err)
	}
	defer r.Close()
}
