package store

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"

	"mailflow/models"
)

// AppendOutcome appends one delivery outcome to the send log. The log is the
// engine's audit trail, so a failed append surfaces as an error rather than
// a warning.
func (s *FileStore) AppendOutcome(o models.DeliveryOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLine(s.sendLogFile(), o)
}

// Outcomes reads back the full send log, skipping malformed lines.
func (s *FileStore) Outcomes() ([]models.DeliveryOutcome, error) {
	f, err := os.Open(s.sendLogFile())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []models.DeliveryOutcome
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var o models.DeliveryOutcome
		if err := json.Unmarshal([]byte(line), &o); err != nil {
			s.log.WithError(err).Warn("skipping malformed send log entry")
			continue
		}
		out = append(out, o)
	}
	return out, scanner.Err()
}
