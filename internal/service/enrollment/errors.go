package enrollment

import "errors"

// Sentinel errors for the enrollment service layer.
var (
	ErrNotFound           = errors.New("enrollment not found")
	ErrSequenceNotFound   = errors.New("sequence not found")
	ErrProspectNotFound   = errors.New("prospect not found")
	ErrSequenceNotActive  = errors.New("sequence is not active")
	ErrSequenceEmpty      = errors.New("sequence has no steps")
	ErrProspectSuppressed = errors.New("prospect identity is suppressed")
	ErrProspectOptedOut   = errors.New("prospect has opted out")
	ErrAlreadyEnrolled    = errors.New("prospect already has an open enrollment in this sequence")
	ErrInvalidTransition  = errors.New("invalid enrollment state transition")
	ErrEnrollmentTerminal = errors.New("enrollment is in a terminal state")

	// ErrClaimLost means the enrollment was stopped, paused or re-leased
	// while a worker held a claim on it. The worker's pending write was
	// dropped; whatever state landed in the meantime wins.
	ErrClaimLost = errors.New("enrollment claim lost")
)
