package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

type SchedulingMode string

const (
	ModeImmediate   SchedulingMode = "immediate"
	ModeScheduleNow SchedulingMode = "schedule-now"
	ModeScheduled   SchedulingMode = "scheduled"
)

type CampaignStatus string

const (
	StatusQueued     CampaignStatus = "queued"
	StatusInProgress CampaignStatus = "in-progress"
	StatusCompleted  CampaignStatus = "completed"
	StatusSkipped    CampaignStatus = "skipped"
	StatusFailed     CampaignStatus = "failed"
)

// Campaign is one template + recipient-targeting unit. It is created at
// catalog-scan time and mutated by the executor until it reaches a terminal
// status (completed, skipped or failed).
type Campaign struct {
	ID            string
	Category      string
	TemplatePath  string
	TemplateName  string
	Subject       string
	Body          string
	Mode          SchedulingMode
	ScheduledDate time.Time
	Status        CampaignStatus
	TrackingID    string
	Err           string
	DiscoveredAt  time.Time
}

// NewCampaignID derives a campaign identity from its category, template path
// and a timestamp, so repeated scans of the same template never collide.
func NewCampaignID(category, templatePath string, at time.Time) string {
	stamp := at.Format("20060102_150405")
	sum := sha256.Sum256([]byte(category + "_" + templatePath + "_" + stamp))
	return fmt.Sprintf("%s_%s_%s", strings.ToUpper(category), hex.EncodeToString(sum[:4]), stamp)
}

// Terminal reports whether the campaign can no longer change status.
func (c *Campaign) Terminal() bool {
	switch c.Status {
	case StatusCompleted, StatusSkipped, StatusFailed:
		return true
	}
	return false
}

// CampaignResult sums the per-recipient outcomes of one campaign run.
type CampaignResult struct {
	CampaignID string `json:"campaign_id"`
	Total      int    `json:"total_recipients"`
	Sent       int    `json:"sent"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
}

// NothingToDo distinguishes "no eligible recipients" from "something went
// wrong": a campaign with zero sends and zero transport failures is skipped,
// not failed.
func (r CampaignResult) NothingToDo() bool {
	return r.Sent == 0 && r.Failed == 0
}
