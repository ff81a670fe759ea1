package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type manifestEntry struct {
	Category  string    `json:"category"`
	Template  string    `json:"template"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *FileStore) loadManifest() {
	m := make(map[string]manifestEntry)
	if s.readUnit(s.manifestFile(), &m) {
		s.manifest = m
	}
}

// AllocateTrackingID mints a tracking ID for one (category, template)
// combination and records it in the manifest, guaranteeing uniqueness across
// repeated runs of the same campaign.
func (s *FileStore) AllocateTrackingID(category, template string, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp := now.Format("20060102_150405")
	for i := 0; ; i++ {
		seed := fmt.Sprintf("%s_%s_%s_%d", category, template, stamp, i)
		sum := sha256.Sum256([]byte(seed))
		id := fmt.Sprintf("%s_%s_%s", strings.ToUpper(category), hex.EncodeToString(sum[:4]), stamp)
		if _, taken := s.manifest[id]; taken {
			continue
		}
		s.manifest[id] = manifestEntry{Category: category, Template: template, CreatedAt: now}
		if err := s.writeUnit(s.manifestFile(), s.manifest); err != nil {
			delete(s.manifest, id)
			return "", err
		}
		return id, nil
	}
}

// SaveCampaignSummary writes one campaign's tracking summary under
// trackingDir/<category>/campaigns/, creating directories as needed.
func (s *FileStore) SaveCampaignSummary(category, trackingID string, summary interface{}) error {
	dir := filepath.Join(s.trackingDir, category, "campaigns")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating tracking directory %s: %w", dir, err)
	}
	return s.writeUnit(filepath.Join(dir, trackingID+".json"), summary)
}
