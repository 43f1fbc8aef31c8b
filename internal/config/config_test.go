package config

import (
	"testing"

	"github.com/kmerbin/kmerbin"
)

func validConfig() Config {
	c := Default()
	c.Inputs = []string{"reads.fq"}
	c.OutBase = "out"
	return c
}

func TestValidateFillsDefaults(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if c.SigLen < kmerbin.MinSigLen {
		t.Errorf("SigLen not filled in: %d", c.SigLen)
	}
	if c.NumBins == 0 {
		t.Error("NumBins not filled in")
	}
	if c.ReaderThreads == 0 || c.SplitterThreads == 0 || c.SorterThreads == 0 || c.OutputThreads == 0 {
		t.Error("per-stage thread counts not filled in")
	}
}

func TestValidateRejectsBadK(t *testing.T) {
	c := validConfig()
	c.K = 0
	if err := c.Validate(); err == nil {
		t.Error("expected error for k=0")
	}
	c.K = 33
	if err := c.Validate(); err == nil {
		t.Error("expected error for k=33")
	}
}

func TestValidateRejectsBadCutoffs(t *testing.T) {
	c := validConfig()
	c.CutoffMin = 10
	c.CutoffMax = 5
	if err := c.Validate(); err == nil {
		t.Error("expected error when cutoff-min > cutoff-max")
	}
}

func TestValidateRequiresInputsAndOutput(t *testing.T) {
	c := Default()
	if err := c.Validate(); err == nil {
		t.Error("expected error with no inputs")
	}
	c = Default()
	c.Inputs = []string{"reads.fq"}
	if err := c.Validate(); err == nil {
		t.Error("expected error with no output basename")
	}
}

func TestCounterSize(t *testing.T) {
	c := validConfig()
	c.CutoffMax = 255
	if c.CounterSize() != 4 {
		t.Errorf("CounterSize() = %d, want 4", c.CounterSize())
	}
	c.CutoffMax = 1 << 40
	if c.CounterSize() != 8 {
		t.Errorf("CounterSize() = %d, want 8", c.CounterSize())
	}
}

func TestSmallK(t *testing.T) {
	c := validConfig()
	c.K = 13
	if !c.SmallK() {
		t.Error("expected SmallK() true for k=13")
	}
	c.K = 14
	if c.SmallK() {
		t.Error("expected SmallK() false for k=14")
	}
}
