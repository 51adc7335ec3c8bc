package domain

import "errors"

// Error taxonomy for the assessment pipeline. Only ErrModelUnavailable
// is fatal for the whole engine; everything else is contained to the
// claim or pattern it occurred on.
var (
	// ErrUnknownClaim marks an invalid or unknown claim identifier.
	// Reported per claim; never aborts the batch.
	ErrUnknownClaim = errors.New("unknown claim")

	// ErrDataIncomplete marks unresolved entity references. Recovered
	// locally via population baselines and a lowered confidence.
	ErrDataIncomplete = errors.New("incomplete entity data")

	// ErrModelUnavailable means the classifier artifact failed to
	// load at startup. The engine refuses to start.
	ErrModelUnavailable = errors.New("classifier model unavailable")

	// ErrGraphBudget means a pattern detector exceeded its traversal
	// budget. The pattern degrades to no-match; the batch continues.
	ErrGraphBudget = errors.New("graph traversal budget exceeded")

	// ErrAggregation marks an internal inconsistency between component
	// outputs. Fatal for the affected claim only.
	ErrAggregation = errors.New("aggregation inconsistency")
)
