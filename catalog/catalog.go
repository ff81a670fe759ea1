package catalog

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"mailflow/models"
	"mailflow/utils"
)

// StalePolicy decides what happens to a scheduled campaign whose date has
// already passed without execution.
type StalePolicy string

const (
	// StaleCatchUp treats a past-due scheduled campaign as immediate.
	StaleCatchUp StalePolicy = "catchup"
	// StaleSkip marks a past-due scheduled campaign skipped.
	StaleSkip StalePolicy = "skip"
)

var templateExts = map[string]bool{".txt": true, ".html": true, ".md": true}

// descriptor is the optional sidecar file <template>.schedule.json.
type descriptor struct {
	Mode string `json:"mode"`
	Date string `json:"date"`
}

// DiscoveryReport lists everything the scan saw, including campaigns that
// never made it onto the queue.
type DiscoveryReport struct {
	Scanned int
	Queued  int
	Failed  []*models.Campaign
	Stale   []*models.Campaign
}

// Catalog scans a hierarchical template store whose immediate
// subdirectories are domain-categories.
type Catalog struct {
	root        string
	stalePolicy StalePolicy
	log         *logrus.Logger

	now func() time.Time
}

func New(root string, stalePolicy StalePolicy, log *logrus.Logger) *Catalog {
	return &Catalog{root: root, stalePolicy: stalePolicy, log: log, now: time.Now}
}

// Discover walks the template root and returns the ordered execution queue:
// immediate campaigns first, then schedule-now, then future-scheduled sorted
// by date ascending. Campaigns whose template fails structural validation
// are excluded from the queue but included in the report.
func (c *Catalog) Discover() ([]*models.Campaign, DiscoveryReport, error) {
	report := DiscoveryReport{}

	categories, err := os.ReadDir(c.root)
	if err != nil {
		return nil, report, fmt.Errorf("reading template root %s: %w", c.root, err)
	}

	var queue []*models.Campaign
	for _, entry := range categories {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		category := entry.Name()
		campaigns, err := c.scanCategory(category, filepath.Join(c.root, category))
		if err != nil {
			return nil, report, err
		}
		for _, cmp := range campaigns {
			report.Scanned++
			switch cmp.Status {
			case models.StatusFailed:
				report.Failed = append(report.Failed, cmp)
			case models.StatusSkipped:
				report.Stale = append(report.Stale, cmp)
			default:
				queue = append(queue, cmp)
			}
		}
	}

	orderQueue(queue)
	report.Queued = len(queue)

	c.log.WithFields(logrus.Fields{
		"scanned": report.Scanned,
		"queued":  report.Queued,
		"failed":  len(report.Failed),
		"stale":   len(report.Stale),
	}).Info("campaign discovery complete")
	return queue, report, nil
}

func (c *Catalog) scanCategory(category, dir string) ([]*models.Campaign, error) {
	var campaigns []*models.Campaign
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !templateExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		campaigns = append(campaigns, c.buildCampaign(category, dir, path))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning category %s: %w", category, err)
	}
	return campaigns, nil
}

func (c *Catalog) buildCampaign(category, categoryDir, path string) *models.Campaign {
	now := c.now()
	rel, err := filepath.Rel(categoryDir, path)
	if err != nil {
		rel = filepath.Base(path)
	}

	cmp := &models.Campaign{
		ID:           models.NewCampaignID(category, path, now),
		Category:     category,
		TemplatePath: path,
		TemplateName: filepath.ToSlash(rel),
		Mode:         models.ModeImmediate,
		Status:       models.StatusQueued,
		DiscoveredAt: now,
	}

	body, err := loadTemplate(path)
	if err != nil {
		cmp.Status = models.StatusFailed
		cmp.Err = err.Error()
		c.log.WithError(err).WithField("template", cmp.TemplateName).Warn("template failed validation")
		return cmp
	}
	cmp.Body = body
	cmp.Subject = utils.ExtractSubject(body)
	if cmp.Subject == "" {
		cmp.Subject = subjectFromName(cmp.TemplateName)
	}

	c.applyDescriptor(cmp, path)
	return cmp
}

func (c *Catalog) applyDescriptor(cmp *models.Campaign, templatePath string) {
	data, err := os.ReadFile(templatePath + ".schedule.json")
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		cmp.Status = models.StatusFailed
		cmp.Err = fmt.Sprintf("reading schedule descriptor: %v", err)
		return
	}

	var desc descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		cmp.Status = models.StatusFailed
		cmp.Err = fmt.Sprintf("malformed schedule descriptor: %v", err)
		return
	}

	switch models.SchedulingMode(desc.Mode) {
	case models.ModeImmediate, "":
		cmp.Mode = models.ModeImmediate
	case models.ModeScheduleNow:
		cmp.Mode = models.ModeScheduleNow
	case models.ModeScheduled:
		date, err := time.Parse("2006-01-02", desc.Date)
		if err != nil {
			cmp.Status = models.StatusFailed
			cmp.Err = fmt.Sprintf("invalid schedule date %q: %v", desc.Date, err)
			return
		}
		cmp.Mode = models.ModeScheduled
		cmp.ScheduledDate = date
		c.applyStalePolicy(cmp)
	default:
		cmp.Status = models.StatusFailed
		cmp.Err = fmt.Sprintf("unknown scheduling mode %q", desc.Mode)
	}
}

// applyStalePolicy handles a scheduled campaign whose date already passed:
// catch up as immediate, or skip as stale, per configuration.
func (c *Catalog) applyStalePolicy(cmp *models.Campaign) {
	today, _ := time.Parse("2006-01-02", c.now().Format("2006-01-02"))
	if !cmp.ScheduledDate.Before(today) {
		return
	}
	if c.stalePolicy == StaleSkip {
		cmp.Status = models.StatusSkipped
		cmp.Err = fmt.Sprintf("scheduled date %s already passed", cmp.ScheduledDate.Format("2006-01-02"))
		return
	}
	cmp.Mode = models.ModeImmediate
	cmp.ScheduledDate = time.Time{}
}

func loadTemplate(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading template: %w", err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("template is not valid UTF-8")
	}
	body := string(data)
	if strings.TrimSpace(body) == "" {
		return "", fmt.Errorf("template is empty")
	}
	return body, nil
}

func subjectFromName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return strings.TrimSpace(base)
}

func modeTier(m models.SchedulingMode) int {
	switch m {
	case models.ModeImmediate:
		return 0
	case models.ModeScheduleNow:
		return 1
	default:
		return 2
	}
}

// orderQueue sorts by tier, keeping discovery order within a tier and
// sorting future-scheduled campaigns by date ascending.
func orderQueue(queue []*models.Campaign) {
	sort.SliceStable(queue, func(i, j int) bool {
		ti, tj := modeTier(queue[i].Mode), modeTier(queue[j].Mode)
		if ti != tj {
			return ti < tj
		}
		if queue[i].Mode == models.ModeScheduled {
			return queue[i].ScheduledDate.Before(queue[j].ScheduledDate)
		}
		return false
	})
}
