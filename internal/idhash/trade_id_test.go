package idhash

import (
	"testing"
)

func TestComputeTradeID(t *testing.T) {
	tests := []struct {
		name        string
		runID       string
		symbol      string
		mode        string
		entryTimeMs int64
		seq         int
		wantLen     int // hash length should be 64
	}{
		{
			name:        "causal trade",
			runID:       "5f0c1a6e-run",
			symbol:      "ES",
			mode:        "CAUSAL",
			entryTimeMs: 1704067234567,
			seq:         0,
			wantLen:     64,
		},
		{
			name:        "lookahead trade",
			runID:       "5f0c1a6e-run",
			symbol:      "NQ",
			mode:        "LOOKAHEAD_BIAS",
			entryTimeMs: 1704067300000,
			seq:         3,
			wantLen:     64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTradeID(tt.runID, tt.symbol, tt.mode, tt.entryTimeMs, tt.seq)

			if len(got) != tt.wantLen {
				t.Errorf("ComputeTradeID() length = %d, want %d", len(got), tt.wantLen)
			}

			// Verify determinism: same inputs should produce same output
			got2 := ComputeTradeID(tt.runID, tt.symbol, tt.mode, tt.entryTimeMs, tt.seq)
			if got != got2 {
				t.Errorf("ComputeTradeID() not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestComputeTradeID_DifferentInputs(t *testing.T) {
	base := ComputeTradeID("run", "ES", "CAUSAL", 1000, 0)

	variants := map[string]string{
		"run":    ComputeTradeID("other_run", "ES", "CAUSAL", 1000, 0),
		"symbol": ComputeTradeID("run", "NQ", "CAUSAL", 1000, 0),
		"mode":   ComputeTradeID("run", "ES", "LOOKAHEAD_BIAS", 1000, 0),
		"time":   ComputeTradeID("run", "ES", "CAUSAL", 2000, 0),
		"seq":    ComputeTradeID("run", "ES", "CAUSAL", 1000, 1),
	}
	for field, got := range variants {
		if got == base {
			t.Errorf("different %s should produce different hash", field)
		}
	}
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	if len(a) != 36 {
		t.Errorf("expected uuid string, got %q", a)
	}
	if a == b {
		t.Error("run IDs must differ")
	}
}
