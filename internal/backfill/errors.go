package backfill

import "errors"

// Sentinel kinds for backfill errors.
var (
	// ErrRunInProgress is returned when a run is triggered while another
	// run holds the queue.
	ErrRunInProgress = errors.New("backfill run already in progress")
)
