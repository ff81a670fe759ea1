package contacts

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/badoux/checkmail"
	"github.com/sirupsen/logrus"

	"mailflow/models"
)

// Resolver loads, normalizes, deduplicates and validates candidate
// recipients from the CSV sources under a contacts root.
type Resolver struct {
	root string
	log  *logrus.Logger
}

func NewResolver(root string, log *logrus.Logger) *Resolver {
	return &Resolver{root: root, log: log}
}

// SourceDir returns the per-category contacts directory when one exists,
// falling back to the flat contacts root.
func (r *Resolver) SourceDir(category string) string {
	dir := filepath.Join(r.root, category)
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir
	}
	return r.root
}

// Resolve merges every CSV source in dir into one deduplicated recipient
// list. One unreadable source is non-fatal: it is recorded in the report and
// the remaining sources are still processed. Zero valid recipients is not an
// error at this layer.
func (r *Resolver) Resolve(dir string) ([]models.Recipient, models.ValidationReport, error) {
	report := models.ValidationReport{}

	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, report, fmt.Errorf("listing contact sources in %s: %w", dir, err)
	}
	sort.Strings(matches)

	var recipients []models.Recipient
	seen := make(map[string]bool)
	domains := make(map[string]bool)

	for _, path := range matches {
		rows, err := r.parseFile(path)
		if err != nil {
			report.SourceErrors = append(report.SourceErrors, fmt.Sprintf("%s: %v", filepath.Base(path), err))
			r.log.WithError(err).WithField("source", filepath.Base(path)).Warn("skipping unreadable contact source")
			continue
		}
		report.Sources = append(report.Sources, path)

		for _, rec := range rows {
			report.TotalRows++
			if !validEmail(rec.Email) {
				report.Dropped++
				continue
			}
			if seen[rec.Email] {
				report.Duplicates++
				continue
			}
			seen[rec.Email] = true
			domains[rec.Domain()] = true
			recipients = append(recipients, rec)
			report.Valid++
		}
	}

	report.UniqueDomains = len(domains)
	r.log.WithFields(logrus.Fields{
		"sources":    len(report.Sources),
		"rows":       report.TotalRows,
		"valid":      report.Valid,
		"dropped":    report.Dropped,
		"duplicates": report.Duplicates,
		"domains":    report.UniqueDomains,
	}).Info("recipient resolution complete")
	return recipients, report, nil
}

func (r *Resolver) parseFile(path string) ([]models.Recipient, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	columns := make([]string, len(header))
	for i, col := range header {
		columns[i] = strings.ToLower(strings.TrimSpace(col))
	}

	var out []models.Recipient
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A malformed row is dropped, not fatal for the file.
			out = append(out, models.Recipient{})
			continue
		}

		fields := make(map[string]string, len(columns))
		for i, col := range columns {
			if col == "" || i >= len(row) {
				continue
			}
			fields[col] = strings.TrimSpace(row[i])
		}

		email := strings.ToLower(strings.TrimSpace(fields["email"]))
		fields["email"] = email
		out = append(out, models.Recipient{
			Email:        email,
			Name:         fields["name"],
			Organization: fields["organization"],
			Fields:       fields,
		})
	}
	return out, nil
}

// validEmail requires exactly one '@' with non-empty local and domain parts
// plus a checkmail format pass.
func validEmail(email string) bool {
	if strings.Count(email, "@") != 1 {
		return false
	}
	at := strings.Index(email, "@")
	if at == 0 || at == len(email)-1 {
		return false
	}
	return checkmail.ValidateFormat(email) == nil
}
