package models

import "time"

type DeliveryResult string

const (
	ResultSent               DeliveryResult = "sent"
	ResultSkippedSuppressed  DeliveryResult = "skipped-suppressed"
	ResultSkippedRateLimited DeliveryResult = "skipped-rate-limited"
	ResultFailed             DeliveryResult = "failed"
)

// DeliveryOutcome is one immutable line in the send log. The sum of outcomes
// for a campaign is its audit trail.
type DeliveryOutcome struct {
	RecipientEmail string         `json:"recipient_email"`
	Domain         string         `json:"domain"`
	CampaignID     string         `json:"campaign_id"`
	RunID          string         `json:"run_id,omitempty"`
	AttemptedAt    time.Time      `json:"attempted_at"`
	Result         DeliveryResult `json:"result"`
	Detail         string         `json:"detail,omitempty"`
}
