package kmerbin

import "testing"

func TestAllowedSignatureExclusions(t *testing.T) {
	cases := []struct {
		mer     string
		allowed bool
	}{
		{"AAACG", false}, // starts with AAA
		{"ACACG", false}, // starts with ACA
		{"TAACG", false}, // *AA prefix (pos 2,3 = AA)
		{"CGAAG", false}, // contains AA internally
		{"CGTTT", false}, // suffix TTT
		{"CGTGT", false}, // suffix TGT
		{"CGTGA", false}, // suffix TG* (TGA)
		{"ACGTC", true},
		{"CGTAC", true},
	}
	for _, c := range cases {
		code, err := Encode([]byte(c.mer))
		if err != nil {
			t.Fatalf("encode %s: %v", c.mer, err)
		}
		got := AllowedSignature(code, len(c.mer))
		if got != c.allowed {
			t.Errorf("AllowedSignature(%s) = %v, want %v", c.mer, got, c.allowed)
		}
	}
}

func TestMinimizerWindowTracksMinimum(t *testing.T) {
	w := NewMinimizerWindow(3, 4)
	mers := []string{"CGT", "ACG", "GTA", "TAC"}
	for i, m := range mers {
		code, _ := Encode([]byte(m))
		w.Push(code, i)
	}
	code, pos, ok := w.Min()
	if !ok {
		t.Fatal("expected a minimum")
	}
	want, _ := Encode([]byte("ACG"))
	if code != want || pos != 1 {
		t.Errorf("Min() = (%d, %d), want (%d, 1)", code, pos, want)
	}
}

func TestMinimizerWindowRescanAfterExpiry(t *testing.T) {
	w := NewMinimizerWindow(3, 4)
	mers := []string{"ACC", "CGT", "GTA", "TAC", "ACG"}
	for i, m := range mers {
		code, _ := Encode([]byte(m))
		w.Push(code, i)
	}
	// the original minimum (ACC at pos 0) has fallen out of a window
	// that now starts at position 2.
	if !w.Expired(2) {
		t.Fatal("expected the tracked minimum to be expired")
	}
	w.Rescan(2)
	code, pos, ok := w.Min()
	if !ok {
		t.Fatal("expected a minimum after rescan")
	}
	want, _ := Encode([]byte("ACG"))
	if code != want || pos != 4 {
		t.Errorf("Rescan result = (%d, %d), want (%d, 4)", code, pos, want)
	}
}

func TestNumSignatures(t *testing.T) {
	if NumSignatures(5) != 1<<10 {
		t.Errorf("NumSignatures(5) = %d, want %d", NumSignatures(5), uint64(1)<<10)
	}
}
