package worker

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"mailflow/compliance"
	"mailflow/contacts"
	"mailflow/models"
	"mailflow/store"
	"mailflow/utils"
)

// Executor drives one campaign to completion: recipients in deterministic
// order, one compliance check immediately before each send, per-recipient
// outcomes appended to the send log, archival of consumed sources after the
// loop. A single recipient's failure never aborts the campaign.
type Executor struct {
	gate   *compliance.Gate
	tokens *compliance.TokenMinter
	store  *store.FileStore
	mailer utils.Mailer
	log    *logrus.Logger

	runID           string
	maxCooldownWait time.Duration
	optOutBaseURL   string
	fromName        string
	physicalAddress string

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewExecutor(gate *compliance.Gate, tokens *compliance.TokenMinter, st *store.FileStore,
	mailer utils.Mailer, runID string, maxCooldownWait time.Duration,
	optOutBaseURL, fromName, physicalAddress string, log *logrus.Logger) *Executor {
	return &Executor{
		gate:            gate,
		tokens:          tokens,
		store:           st,
		mailer:          mailer,
		log:             log,
		runID:           runID,
		maxCooldownWait: maxCooldownWait,
		optOutBaseURL:   optOutBaseURL,
		fromName:        fromName,
		physicalAddress: physicalAddress,
		now:             time.Now,
		sleep:           sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Execute runs the send loop for one campaign. It returns an error only for
// conditions fatal to the whole run: cancellation and unrecoverable
// persistence failures. The campaign's terminal status is set on c.
func (e *Executor) Execute(ctx context.Context, c *models.Campaign, recipients []models.Recipient, sources []string) (models.CampaignResult, error) {
	res := models.CampaignResult{CampaignID: c.ID, Total: len(recipients)}
	c.Status = models.StatusInProgress

	clog := e.log.WithFields(logrus.Fields{"campaign": c.ID, "category": c.Category})
	clog.WithField("recipients", len(recipients)).Info("executing campaign")

	for _, r := range recipients {
		// Cancellation is honored between recipients, never mid-send, so a
		// stopped run leaves only fully-recorded outcomes.
		if err := ctx.Err(); err != nil {
			c.Status = models.StatusSkipped
			return res, err
		}

		decision := e.gate.Check(r, c)
		if !decision.Allow && decision.Reason == compliance.ReasonCooldown && decision.RetryIn <= e.maxCooldownWait {
			clog.WithField("wait", decision.RetryIn.String()).Debug("waiting out cooldown")
			if err := e.sleep(ctx, decision.RetryIn); err != nil {
				c.Status = models.StatusSkipped
				return res, err
			}
			decision = e.gate.Check(r, c)
		}

		if !decision.Allow {
			res.Skipped++
			if err := e.appendOutcome(r, c, denyResult(decision), decision.Detail()); err != nil {
				return res, err
			}
			continue
		}

		body := e.renderMessage(c, r, clog)
		if err := e.mailer.Send(r.Email, c.Subject, body); err != nil {
			res.Failed++
			clog.WithError(err).WithField("recipient", r.Email).Warn("transport failure")
			if err := e.appendOutcome(r, c, models.ResultFailed, err.Error()); err != nil {
				return res, err
			}
			continue
		}

		res.Sent++
		if err := e.appendOutcome(r, c, models.ResultSent, ""); err != nil {
			return res, err
		}
		// Counters move only after a confirmed transport success; a lost
		// rate-limit write risks violating sending policy, so it is fatal.
		if err := e.gate.RecordSend(r); err != nil {
			return res, fmt.Errorf("recording send for %s: %w", r.Email, err)
		}
	}

	if err := e.archive(c, sources); err != nil {
		clog.WithError(err).Error("archival failed; sources may be re-sent next run")
	}

	if res.NothingToDo() {
		c.Status = models.StatusSkipped
	} else {
		c.Status = models.StatusCompleted
	}
	clog.WithFields(logrus.Fields{
		"sent": res.Sent, "skipped": res.Skipped, "failed": res.Failed, "status": c.Status,
	}).Info("campaign finished")
	return res, nil
}

func (e *Executor) renderMessage(c *models.Campaign, r models.Recipient, clog *logrus.Entry) string {
	body, missing := utils.RenderTemplate(c.Body, r.Fields)
	if len(missing) > 0 {
		clog.WithFields(logrus.Fields{
			"recipient": r.Email, "placeholders": missing,
		}).Warn("unresolved template placeholders left as literal text")
	}

	optOutURL := ""
	token, err := e.tokens.Mint(r.Email, c.ID)
	if err != nil {
		clog.WithError(err).Warn("could not mint opt-out token")
	} else {
		optOutURL = utils.BuildOptOutURL(e.optOutBaseURL, r.Email, c.ID, token)
	}
	return body + utils.ComplianceFooter(e.fromName, optOutURL, e.physicalAddress)
}

func (e *Executor) appendOutcome(r models.Recipient, c *models.Campaign, result models.DeliveryResult, detail string) error {
	return e.store.AppendOutcome(models.DeliveryOutcome{
		RecipientEmail: r.Email,
		Domain:         r.Domain(),
		CampaignID:     c.ID,
		RunID:          e.runID,
		AttemptedAt:    e.now(),
		Result:         result,
		Detail:         detail,
	})
}

func (e *Executor) archive(c *models.Campaign, sources []string) error {
	if len(sources) == 0 {
		return nil
	}
	dir := filepath.Join(e.store.ArchiveDir(),
		fmt.Sprintf("%s_%s", c.ID, e.now().Format("20060102_150405")))
	return contacts.Archive(sources, dir, e.log)
}

func denyResult(d compliance.Decision) models.DeliveryResult {
	if d.Reason == compliance.ReasonSuppressed {
		return models.ResultSkippedSuppressed
	}
	return models.ResultSkippedRateLimited
}
