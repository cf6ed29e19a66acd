package models

import "errors"

// Engine error taxonomy. Referential lookups fail closed — a completion
// event against an unknown section is an error, never a silent no-op.
var (
	// ErrUnknownSection means the section id is not in the catalog index.
	ErrUnknownSection = errors.New("unknown section")

	// ErrUnknownUser means a referential user lookup failed.
	ErrUnknownUser = errors.New("unknown user")

	// ErrInvalidAward means a non-positive point amount was submitted.
	// Corrections are separate negative-typed entries, not reversals.
	ErrInvalidAward = errors.New("invalid point award amount")

	// ErrConcurrentUpdate is the optimistic-concurrency retry signal on
	// the totals upsert. Callers retry, they do not drop the award.
	ErrConcurrentUpdate = errors.New("concurrent totals update")

	// ErrUnknownLeaderboard means the requested board slug is not defined.
	ErrUnknownLeaderboard = errors.New("unknown leaderboard")

	// ErrEvaluationInconsistency means the catalog snapshot changed while
	// a badge evaluation pass was reading it. The pass is retried against
	// a fresh snapshot rather than unlocking against a torn read.
	ErrEvaluationInconsistency = errors.New("catalog changed during evaluation")
)
