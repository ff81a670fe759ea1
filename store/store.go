package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"mailflow/models"
)

// FileStore owns every durable unit of engine state: the rate-limit
// counters, the suppression registry, the tracking-ID manifest and the
// outcome log. Each unit lives in its own file and is rewritten
// independently, so corruption of one never takes down the others.
type FileStore struct {
	trackingDir string
	contactsDir string
	log         *logrus.Logger

	mu       sync.Mutex
	rate     *RateState
	global   map[string]models.SuppressionEntry
	scoped   map[string]map[string]models.SuppressionEntry
	manifest map[string]manifestEntry
}

func NewFileStore(trackingDir, contactsDir string, log *logrus.Logger) (*FileStore, error) {
	for _, dir := range []string{trackingDir, contactsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating state directory %s: %w", dir, err)
		}
	}

	s := &FileStore{
		trackingDir: trackingDir,
		contactsDir: contactsDir,
		log:         log,
		global:      make(map[string]models.SuppressionEntry),
		scoped:      make(map[string]map[string]models.SuppressionEntry),
		manifest:    make(map[string]manifestEntry),
	}
	s.loadSuppression()
	s.loadRateState()
	s.loadManifest()

	log.WithFields(logrus.Fields{
		"suppressed": len(s.global),
		"sent_today": s.rate.TotalSent,
	}).Info("state store initialized")
	return s, nil
}

// ArchiveDir is where consumed recipient sources are moved after a campaign.
func (s *FileStore) ArchiveDir() string {
	return filepath.Join(s.trackingDir, "archive")
}

func (s *FileStore) rateFile() string {
	return filepath.Join(s.trackingDir, "rate_limits.json")
}

func (s *FileStore) suppressionFile() string {
	return filepath.Join(s.contactsDir, "suppression_list.json")
}

func (s *FileStore) scopedSuppressionFile() string {
	return filepath.Join(s.contactsDir, "suppression_scoped.jsonl")
}

func (s *FileStore) suppressionAuditFile() string {
	return filepath.Join(s.contactsDir, "suppression_log.jsonl")
}

func (s *FileStore) manifestFile() string {
	return filepath.Join(s.trackingDir, "manifest.json")
}

func (s *FileStore) sendLogFile() string {
	return filepath.Join(s.trackingDir, "send_log.jsonl")
}

// readUnit loads one JSON state file into v. A missing, unreadable or
// corrupted file is treated as empty state: the run must never crash on a
// bad state file, only warn and rebuild it on the next write.
func (s *FileStore) readUnit(path string, v interface{}) bool {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false
	}
	if err != nil {
		s.log.WithError(err).Warnf("could not read %s, treating as empty", filepath.Base(path))
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.log.WithError(err).Warnf("corrupted state file %s, treating as empty", filepath.Base(path))
		return false
	}
	return true
}

// writeUnit rewrites one state file atomically: marshal, write to a temp
// file, rename over the original. A failed write is retried once before
// surfacing an error, which callers treat as fatal for the run.
func (s *FileStore) writeUnit(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	if err := replaceFile(path, data); err != nil {
		s.log.WithError(err).Warnf("write of %s failed, retrying once", filepath.Base(path))
		if err = replaceFile(path, data); err != nil {
			return fmt.Errorf("persisting %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

func replaceFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// appendLine appends one JSON document plus newline to a JSONL file.
func (s *FileStore) appendLine(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling log entry: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("appending to %s: %w", filepath.Base(path), err)
	}
	return nil
}
