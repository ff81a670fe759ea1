package models

import (
	"strings"
	"testing"
	"time"
)

func TestNewCampaignID(t *testing.T) {
	at := time.Date(2026, 9, 1, 10, 30, 45, 0, time.UTC)
	id := NewCampaignID("education", "/tmp/templates/education/welcome.txt", at)

	parts := strings.Split(id, "_")
	if len(parts) != 4 {
		t.Fatalf("ID %q has %d segments, want 4", id, len(parts))
	}
	if parts[0] != "EDUCATION" {
		t.Errorf("category segment = %q, want EDUCATION", parts[0])
	}
	if len(parts[1]) != 8 {
		t.Errorf("hash segment = %q, want 8 hex chars", parts[1])
	}
	if parts[2] != "20260901" || parts[3] != "103045" {
		t.Errorf("timestamp segments = %q_%q, want 20260901_103045", parts[2], parts[3])
	}

	// Same inputs give the same ID; a different template does not.
	if id != NewCampaignID("education", "/tmp/templates/education/welcome.txt", at) {
		t.Error("ID not deterministic for identical inputs")
	}
	other := NewCampaignID("education", "/tmp/templates/education/other.txt", at)
	if id == other {
		t.Error("different templates produced the same ID")
	}
}

func TestCampaignTerminal(t *testing.T) {
	tests := []struct {
		status CampaignStatus
		want   bool
	}{
		{StatusQueued, false},
		{StatusInProgress, false},
		{StatusCompleted, true},
		{StatusSkipped, true},
		{StatusFailed, true},
	}
	for _, tc := range tests {
		c := &Campaign{Status: tc.status}
		if got := c.Terminal(); got != tc.want {
			t.Errorf("Terminal() with %s = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestCampaignResultNothingToDo(t *testing.T) {
	tests := []struct {
		name string
		res  CampaignResult
		want bool
	}{
		{"empty run", CampaignResult{}, true},
		{"only skips", CampaignResult{Total: 3, Skipped: 3}, true},
		{"one sent", CampaignResult{Total: 3, Sent: 1, Skipped: 2}, false},
		{"only failures", CampaignResult{Total: 2, Failed: 2}, false},
	}
	for _, tc := range tests {
		if got := tc.res.NothingToDo(); got != tc.want {
			t.Errorf("%s: NothingToDo() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRecipientDomain(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"a@example.com", "example.com"},
		{"no-at-sign", "unknown"},
		{"trailing@", "unknown"},
		{"", "unknown"},
	}
	for _, tc := range tests {
		r := Recipient{Email: tc.email}
		if got := r.Domain(); got != tc.want {
			t.Errorf("Domain(%q) = %q, want %q", tc.email, got, tc.want)
		}
	}
}
