package models

import "strings"

// Recipient is one normalized contact row. Loaded fresh per campaign run and
// never mutated; the executor archives the source files once every recipient
// has a recorded outcome.
type Recipient struct {
	Email        string
	Name         string
	Organization string
	// Fields carries every source column (including email and name) for
	// template substitution, keyed by lower-cased column name.
	Fields map[string]string
}

// Domain returns the part of the email after the '@'.
func (r Recipient) Domain() string {
	at := strings.LastIndex(r.Email, "@")
	if at < 0 || at == len(r.Email)-1 {
		return "unknown"
	}
	return r.Email[at+1:]
}

// ValidationReport describes what the resolver saw across all sources.
type ValidationReport struct {
	TotalRows     int
	Valid         int
	Dropped       int
	Duplicates    int
	UniqueDomains int
	// Sources lists the files that were parsed (fully or partially) and are
	// therefore subject to archival after the run.
	Sources []string
	// SourceErrors records per-file parse failures; they are non-fatal.
	SourceErrors []string
}
