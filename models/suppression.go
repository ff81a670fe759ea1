package models

import "time"

// ScopeGlobal marks a suppression entry that blocks every campaign. Any other
// scope value is a campaign ID and blocks exactly that campaign.
const ScopeGlobal = "global"

// SuppressionEntry is append-only in spirit: a later entry for the same email
// may strengthen its scope (campaign-scoped to global) but never removes an
// earlier one.
type SuppressionEntry struct {
	Email      string    `json:"email"`
	Scope      string    `json:"scope"`
	Reason     string    `json:"reason"`
	Source     string    `json:"source,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}
