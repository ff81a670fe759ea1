package store

import (
	"bufio"
	"encoding/json"
	"os"
	"sort"
	"strings"
	"time"

	"mailflow/models"
)

// suppressionRegistry is the wire format of the global list.
type suppressionRegistry struct {
	SuppressedEmails []string  `json:"suppressed_emails"`
	Count            int       `json:"count"`
	LastUpdated      time.Time `json:"last_updated"`
}

func (s *FileStore) loadSuppression() {
	var reg suppressionRegistry
	if s.readUnit(s.suppressionFile(), &reg) {
		for _, email := range reg.SuppressedEmails {
			email = strings.ToLower(strings.TrimSpace(email))
			s.global[email] = models.SuppressionEntry{Email: email, Scope: models.ScopeGlobal}
		}
	}

	// Campaign-scoped entries live in a separate structured log.
	f, err := os.Open(s.scopedSuppressionFile())
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.WithError(err).Warn("could not read scoped suppression log, treating as empty")
		}
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry models.SuppressionEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			s.log.WithError(err).Warn("skipping malformed scoped suppression entry")
			continue
		}
		s.rememberScoped(entry)
	}
}

func (s *FileStore) rememberScoped(entry models.SuppressionEntry) {
	entry.Email = strings.ToLower(strings.TrimSpace(entry.Email))
	byEmail, ok := s.scoped[entry.Scope]
	if !ok {
		byEmail = make(map[string]models.SuppressionEntry)
		s.scoped[entry.Scope] = byEmail
	}
	byEmail[entry.Email] = entry
}

// IsSuppressed reports whether email is blocked for the given campaign, and
// at which scope. A global entry blocks every campaign; a campaign-scoped
// entry blocks exactly that campaign.
func (s *FileStore) IsSuppressed(email, campaignID string) (bool, string) {
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.global[email]; ok {
		return true, models.ScopeGlobal
	}
	if byEmail, ok := s.scoped[campaignID]; ok {
		if _, ok := byEmail[email]; ok {
			return true, campaignID
		}
	}
	return false, ""
}

// AddSuppression records a suppression entry. Re-adding an identical
// (email, scope) pair is a no-op; a global entry strengthens any existing
// campaign-scoped one but an existing global entry is never weakened.
func (s *FileStore) AddSuppression(entry models.SuppressionEntry) (bool, error) {
	entry.Email = strings.ToLower(strings.TrimSpace(entry.Email))

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.Scope == models.ScopeGlobal {
		if _, ok := s.global[entry.Email]; ok {
			return false, nil
		}
		s.global[entry.Email] = entry
		if err := s.writeGlobalLocked(); err != nil {
			return false, err
		}
	} else {
		if byEmail, ok := s.scoped[entry.Scope]; ok {
			if _, ok := byEmail[entry.Email]; ok {
				return false, nil
			}
		}
		s.rememberScoped(entry)
		if err := s.appendLine(s.scopedSuppressionFile(), entry); err != nil {
			return false, err
		}
	}

	if err := s.appendLine(s.suppressionAuditFile(), entry); err != nil {
		s.log.WithError(err).Warn("could not append suppression audit entry")
	}
	return true, nil
}

func (s *FileStore) writeGlobalLocked() error {
	emails := make([]string, 0, len(s.global))
	for email := range s.global {
		emails = append(emails, email)
	}
	sort.Strings(emails)
	return s.writeUnit(s.suppressionFile(), suppressionRegistry{
		SuppressedEmails: emails,
		Count:            len(emails),
		LastUpdated:      time.Now(),
	})
}

// GlobalSuppressionCount is used for startup logging and run summaries.
func (s *FileStore) GlobalSuppressionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.global)
}
