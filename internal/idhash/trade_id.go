package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(run_id|symbol|mode|entry_time_ms|seq)
// seq is the position's open order within the run, which separates
// positions opened on the same tick.
// Returns hex-encoded hash (64 characters).
func ComputeTradeID(
	runID string,
	symbol string,
	mode string,
	entryTimeMs int64,
	seq int,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d|%d",
		runID,
		symbol,
		mode,
		entryTimeMs,
		seq,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// NewRunID returns a random run identifier. Trade IDs derived from it are
// deterministic within the run.
func NewRunID() string {
	return uuid.NewString()
}
