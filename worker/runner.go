package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"mailflow/catalog"
	"mailflow/contacts"
	"mailflow/models"
	"mailflow/store"
	"mailflow/utils"
)

// campaignSummary is the tracking record saved per executed campaign.
type campaignSummary struct {
	TrackingID   string                  `json:"tracking_id"`
	CampaignID   string                  `json:"campaign_id"`
	Category     string                  `json:"category"`
	Template     string                  `json:"template"`
	Subject      string                  `json:"subject"`
	Mode         models.SchedulingMode   `json:"mode"`
	Status       models.CampaignStatus   `json:"status"`
	RunID        string                  `json:"run_id"`
	ExecutedAt   time.Time               `json:"executed_at"`
	Result       models.CampaignResult   `json:"result"`
	SourceRows   int                     `json:"source_rows"`
	ValidRows    int                     `json:"valid_rows"`
	DroppedRows  int                     `json:"dropped_rows"`
	Duplicates   int                     `json:"duplicates"`
	SourceErrors []string                `json:"source_errors,omitempty"`
	Error        string                  `json:"error,omitempty"`
}

// Runner orchestrates one full engine pass: discover campaigns, resolve
// recipients per campaign, execute sequentially, persist tracking
// summaries, then send the optional summary alert. Campaigns never run
// concurrently: rate-limit correctness requires a total order over sends.
type Runner struct {
	catalog  *catalog.Catalog
	resolver *contacts.Resolver
	executor *Executor
	store    *store.FileStore
	mailer   utils.Mailer
	log      *logrus.Logger

	runID       string
	alertsEmail string
	now         func() time.Time
}

func NewRunner(cat *catalog.Catalog, resolver *contacts.Resolver, executor *Executor,
	st *store.FileStore, mailer utils.Mailer, runID, alertsEmail string, log *logrus.Logger) *Runner {
	return &Runner{
		catalog:     cat,
		resolver:    resolver,
		executor:    executor,
		store:       st,
		mailer:      mailer,
		log:         log,
		runID:       runID,
		alertsEmail: alertsEmail,
		now:         time.Now,
	}
}

func (r *Runner) Run(ctx context.Context) error {
	queue, report, err := r.catalog.Discover()
	if err != nil {
		return fmt.Errorf("campaign discovery: %w", err)
	}
	for _, failed := range report.Failed {
		r.log.WithFields(logrus.Fields{
			"campaign": failed.TemplateName, "error": failed.Err,
		}).Warn("campaign excluded from queue")
	}

	var executed []campaignSummary
	for _, c := range queue {
		if err := ctx.Err(); err != nil {
			r.log.Info("run cancelled; remaining campaigns left queued")
			return err
		}
		if r.notYetDue(c) {
			r.log.WithFields(logrus.Fields{
				"campaign": c.ID, "date": c.ScheduledDate.Format("2006-01-02"),
			}).Info("scheduled campaign not yet due, leaving queued")
			continue
		}

		summary, err := r.runCampaign(ctx, c)
		if summary != nil {
			executed = append(executed, *summary)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			return fmt.Errorf("campaign %s: %w", c.ID, err)
		}
	}

	r.sendSummaryAlert(executed)
	return nil
}

// notYetDue keeps a future-scheduled campaign queued without touching its
// status; it will run on a later pass once its date arrives.
func (r *Runner) notYetDue(c *models.Campaign) bool {
	if c.Mode != models.ModeScheduled {
		return false
	}
	today, _ := time.Parse("2006-01-02", r.now().Format("2006-01-02"))
	return c.ScheduledDate.After(today)
}

func (r *Runner) runCampaign(ctx context.Context, c *models.Campaign) (*campaignSummary, error) {
	trackingID, err := r.store.AllocateTrackingID(c.Category, c.TemplateName, r.now())
	if err != nil {
		return nil, fmt.Errorf("allocating tracking ID: %w", err)
	}
	c.TrackingID = trackingID

	recipients, vreport, err := r.resolver.Resolve(r.resolver.SourceDir(c.Category))
	if err != nil {
		// Resolution-level failure is non-fatal for the run: mark this
		// campaign failed and move on.
		c.Status = models.StatusFailed
		c.Err = err.Error()
		summary := r.buildSummary(c, models.CampaignResult{CampaignID: c.ID}, vreport)
		r.saveSummary(c, summary)
		r.log.WithError(err).WithField("campaign", c.ID).Error("recipient resolution failed")
		return summary, nil
	}

	result, execErr := r.executor.Execute(ctx, c, recipients, vreport.Sources)
	summary := r.buildSummary(c, result, vreport)
	r.saveSummary(c, summary)
	return summary, execErr
}

func (r *Runner) buildSummary(c *models.Campaign, result models.CampaignResult, vreport models.ValidationReport) *campaignSummary {
	return &campaignSummary{
		TrackingID:   c.TrackingID,
		CampaignID:   c.ID,
		Category:     c.Category,
		Template:     c.TemplateName,
		Subject:      c.Subject,
		Mode:         c.Mode,
		Status:       c.Status,
		RunID:        r.runID,
		ExecutedAt:   r.now(),
		Result:       result,
		SourceRows:   vreport.TotalRows,
		ValidRows:    vreport.Valid,
		DroppedRows:  vreport.Dropped,
		Duplicates:   vreport.Duplicates,
		SourceErrors: vreport.SourceErrors,
		Error:        c.Err,
	}
}

func (r *Runner) saveSummary(c *models.Campaign, summary *campaignSummary) {
	if err := r.store.SaveCampaignSummary(c.Category, c.TrackingID, summary); err != nil {
		r.log.WithError(err).WithField("campaign", c.ID).Error("could not save campaign tracking summary")
	}
}

func (r *Runner) sendSummaryAlert(executed []campaignSummary) {
	if r.alertsEmail == "" || len(executed) == 0 {
		return
	}

	var sent, failed int
	var b strings.Builder
	b.WriteString("Campaign Execution Summary\n==========================\n\n")
	for _, s := range executed {
		sent += s.Result.Sent
		failed += s.Result.Failed
		fmt.Fprintf(&b, "- %s/%s [%s]: %d sent, %d skipped, %d failed (%s)\n",
			s.Category, s.Template, s.TrackingID,
			s.Result.Sent, s.Result.Skipped, s.Result.Failed, s.Status)
	}
	fmt.Fprintf(&b, "\nCampaigns: %d\nTotal sent: %d\nTotal failed: %d\nCompleted: %s\n",
		len(executed), sent, failed, r.now().Format(time.RFC3339))

	subject := fmt.Sprintf("Campaign summary: %d campaigns, %d sent", len(executed), sent)
	if err := r.mailer.Send(r.alertsEmail, subject, b.String()); err != nil {
		r.log.WithError(err).Warn("could not send summary alert")
	}
}
