package domain

import "time"

// SuppressionReason enumerates why an identity was suppressed.
type SuppressionReason string

const (
	ReasonOptOut     SuppressionReason = "opt_out"
	ReasonHardBounce SuppressionReason = "hard_bounce"
	ReasonComplaint  SuppressionReason = "complaint"
	ReasonManual     SuppressionReason = "manual"
	ReasonInvalid    SuppressionReason = "invalid_identity"
)

// SuppressionSource indicates where the suppression signal originated.
type SuppressionSource string

const (
	SourceWebhook  SuppressionSource = "provider_webhook"
	SourceDispatch SuppressionSource = "dispatch_failure"
	SourceManual   SuppressionSource = "manual"
	SourceImport   SuppressionSource = "import"
)

// SuppressionEntry marks one contact identity as never-contact-again for an
// organization. Entries are append-only; removal happens only through an
// explicit re-consent flow.
type SuppressionEntry struct {
	ID             string            `json:"id" db:"id"`
	OrganizationID string            `json:"organization_id" db:"organization_id"`
	Identity       string            `json:"identity" db:"identity"`
	Channel        Channel           `json:"channel" db:"channel"`
	Reason         SuppressionReason `json:"reason" db:"reason"`
	Source         SuppressionSource `json:"source" db:"source"`
	AddedAt        time.Time         `json:"added_at" db:"added_at"`
}
