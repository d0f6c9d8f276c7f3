package controller

import "errors"

// errStageFailed is returned internally by drift remediation when a
// stage action reports a non-OK outcome; the caller only needs to know
// whether to keep polling, not the specific reason.
var errStageFailed = errors.New("stage action did not succeed")

// Outcome is the explicit result variant every pipeline stage and cleanup
// step returns instead of throwing, per the platform's error model.
type Outcome int

const (
	// OK means the stage's success criterion is met.
	OK Outcome = iota
	// Transient means retry with backoff; may still escalate to
	// FatalSystem once the attempt budget is exhausted.
	Transient
	// FatalUser means a bad spec or exhausted quota; no retry.
	FatalUser
	// FatalSystem means a permanent infrastructure failure surfaced to
	// the user; no retry.
	FatalSystem
)

// StageResult is what a pipeline stage action reports back to the
// reconciler.
type StageResult struct {
	Outcome Outcome
	Reason  string
	Message string
	// URL and AdminURL are set only by the storefront stage on success.
	URL      string
	AdminURL string
}

func ready(reason string) StageResult {
	return StageResult{Outcome: OK, Reason: reason}
}

func transient(reason, message string) StageResult {
	return StageResult{Outcome: Transient, Reason: reason, Message: message}
}

func fatalUser(reason, message string) StageResult {
	return StageResult{Outcome: FatalUser, Reason: reason, Message: message}
}

func fatalSystem(reason, message string) StageResult {
	return StageResult{Outcome: FatalSystem, Reason: reason, Message: message}
}
