package ingestion

import "errors"

// ErrMalformedTick is returned for input that cannot be turned into a valid tick.
var ErrMalformedTick = errors.New("malformed tick")
