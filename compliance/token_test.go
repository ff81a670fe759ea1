package compliance

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const testSecret = "unit-test-secret-0123456789"

func TestTokenRoundTrip(t *testing.T) {
	m := NewTokenMinter(testSecret, 90*24*time.Hour)

	token, err := m.Mint("a@example.com", "EDU_abc123_20260901_100000")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	email, campaignID, err := m.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if email != "a@example.com" || campaignID != "EDU_abc123_20260901_100000" {
		t.Errorf("Verify = (%q, %q), want original claims", email, campaignID)
	}
}

func TestTokenExpires(t *testing.T) {
	m := NewTokenMinter(testSecret, 90*24*time.Hour)
	minted := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return minted }

	token, err := m.Mint("a@example.com", "CAMP_1")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	m.now = func() time.Time { return minted.Add(89 * 24 * time.Hour) }
	if _, _, err := m.Verify(token); err != nil {
		t.Errorf("token rejected before expiry: %v", err)
	}

	m.now = func() time.Time { return minted.Add(91 * 24 * time.Hour) }
	if _, _, err := m.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token: err = %v, want ErrInvalidToken", err)
	}
}

func TestTokenTampered(t *testing.T) {
	m := NewTokenMinter(testSecret, time.Hour)
	token, err := m.Mint("a@example.com", "CAMP_1")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %q", token)
	}
	forged := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, _, err := m.Verify(forged); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("forged signature: err = %v, want ErrInvalidToken", err)
	}

	if _, _, err := m.Verify("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage input: err = %v, want ErrInvalidToken", err)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	m := NewTokenMinter(testSecret, time.Hour)
	other := NewTokenMinter("a-completely-different-secret", time.Hour)

	token, err := m.Mint("a@example.com", "CAMP_1")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, _, err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("cross-secret verify: err = %v, want ErrInvalidToken", err)
	}
}
