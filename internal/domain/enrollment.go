package domain

import "time"

// EnrollmentStatus enumerates the lifecycle states of an enrollment.
// completed and stopped are terminal.
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentPaused    EnrollmentStatus = "paused"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentStopped   EnrollmentStatus = "stopped"
)

// StopReason records why an enrollment was stopped.
type StopReason string

const (
	StopReplied   StopReason = "replied"
	StopOptedOut  StopReason = "opted_out"
	StopBounced   StopReason = "bounced"
	StopManual    StopReason = "manual"
	StopExhausted StopReason = "exhausted"
)

// Enrollment binds one prospect to one sequence definition and tracks the
// prospect's progress through its steps. Enrollments are never hard-deleted;
// terminal rows are retained for audit and analytics.
type Enrollment struct {
	ID             string           `json:"id" db:"id"`
	OrganizationID string           `json:"organization_id" db:"organization_id"`
	ProspectID     string           `json:"prospect_id" db:"prospect_id"`
	SequenceID     string           `json:"sequence_id" db:"sequence_id"`
	Status         EnrollmentStatus `json:"status" db:"status"`
	StopReason     *StopReason      `json:"stop_reason" db:"stop_reason"`
	CurrentStep    int              `json:"current_step" db:"current_step"`
	StepsSent      int              `json:"steps_sent" db:"steps_sent"`
	NextActionAt   *time.Time       `json:"next_action_at" db:"next_action_at"`
	EnrolledAt     time.Time        `json:"enrolled_at" db:"enrolled_at"`
	PausedAt       *time.Time       `json:"paused_at" db:"paused_at"`
	CompletedAt    *time.Time       `json:"completed_at" db:"completed_at"`

	// Dispatch lease. A worker that claims the enrollment writes its id and
	// a lease deadline; other workers skip leased rows until the deadline
	// passes, so a crashed worker's claim expires on its own.
	LeasedBy       *string    `json:"-" db:"leased_by"`
	LeaseExpiresAt *time.Time `json:"-" db:"lease_expires_at"`
}

// IsTerminal reports whether the enrollment can never dispatch again.
func (e *Enrollment) IsTerminal() bool {
	return e.Status == EnrollmentCompleted || e.Status == EnrollmentStopped
}
