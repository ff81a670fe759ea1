package store

import (
	"time"
)

// RateState holds one calendar day's sending counters. The wire format is
// the rate_limits.json file, rewritten atomically after every recorded send.
type RateState struct {
	Date         string         `json:"date"`
	TotalSent    int            `json:"total_sent"`
	DomainCounts map[string]int `json:"domain_counts"`
	LastSend     *time.Time     `json:"last_send"`
}

func freshRateState(day string) *RateState {
	return &RateState{Date: day, DomainCounts: make(map[string]int)}
}

// rolledOver makes day rollover a pure function of (stored date, current
// date): a state from a previous day reads as a fresh one. No timers.
func rolledOver(st *RateState, today string) *RateState {
	if st == nil || st.Date != today {
		return freshRateState(today)
	}
	if st.DomainCounts == nil {
		st.DomainCounts = make(map[string]int)
	}
	return st
}

func dayOf(t time.Time) string {
	return t.Format("2006-01-02")
}

func (s *FileStore) loadRateState() {
	var st RateState
	if !s.readUnit(s.rateFile(), &st) {
		s.rate = freshRateState(dayOf(time.Now()))
		return
	}
	if st.DomainCounts == nil {
		st.DomainCounts = make(map[string]int)
	}
	s.rate = &st
}

// RateSnapshot returns a copy of the counters as of now, applying day
// rollover at read time.
func (s *FileStore) RateSnapshot(now time.Time) RateState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rate = rolledOver(s.rate, dayOf(now))
	snap := *s.rate
	snap.DomainCounts = make(map[string]int, len(s.rate.DomainCounts))
	for d, n := range s.rate.DomainCounts {
		snap.DomainCounts[d] = n
	}
	return snap
}

// RecordSend atomically increments the daily total and the per-domain count
// and stamps the last-send time, then rewrites the rate file. Callers invoke
// it only after a successful transport call: denied or failed sends never
// consume rate budget.
func (s *FileStore) RecordSend(domain string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rate = rolledOver(s.rate, dayOf(now))
	s.rate.TotalSent++
	s.rate.DomainCounts[domain]++
	t := now
	s.rate.LastSend = &t
	return s.writeUnit(s.rateFile(), s.rate)
}
