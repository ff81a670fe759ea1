package compliance

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"mailflow/models"
	"mailflow/store"
)

type DenyReason string

const (
	ReasonSuppressed  DenyReason = "suppressed"
	ReasonDailyLimit  DenyReason = "daily-limit"
	ReasonDomainLimit DenyReason = "domain-limit"
	ReasonCooldown    DenyReason = "cooldown"
)

// Decision is the gate's answer for one (recipient, campaign) pair.
type Decision struct {
	Allow  bool
	Reason DenyReason
	// Domain names the offending domain on a domain-limit deny.
	Domain string
	// RetryIn is the remaining cooldown on a cooldown deny.
	RetryIn time.Duration
}

func (d Decision) Detail() string {
	switch d.Reason {
	case ReasonDomainLimit:
		return fmt.Sprintf("%s: %s", d.Reason, d.Domain)
	case ReasonCooldown:
		return fmt.Sprintf("%s: %ds remaining", d.Reason, int(d.RetryIn.Seconds()+0.5))
	default:
		return string(d.Reason)
	}
}

// Gate decides allow/deny per recipient immediately before each send, so
// that counters always reflect true send order.
type Gate struct {
	store          *store.FileStore
	dailyLimit     int
	perDomainLimit int
	minInterval    time.Duration
	log            *logrus.Logger

	now func() time.Time
}

func NewGate(st *store.FileStore, dailyLimit, perDomainLimit int, minInterval time.Duration, log *logrus.Logger) *Gate {
	return &Gate{
		store:          st,
		dailyLimit:     dailyLimit,
		perDomainLimit: perDomainLimit,
		minInterval:    minInterval,
		log:            log,
		now:            time.Now,
	}
}

// Check evaluates the policy chain in order, first match wins: global
// suppression, campaign suppression, daily cap, per-domain cap, cooldown.
func (g *Gate) Check(r models.Recipient, c *models.Campaign) Decision {
	email := strings.ToLower(strings.TrimSpace(r.Email))

	if blocked, _ := g.store.IsSuppressed(email, c.ID); blocked {
		return Decision{Reason: ReasonSuppressed}
	}

	now := g.now()
	rate := g.store.RateSnapshot(now)

	if rate.TotalSent >= g.dailyLimit {
		return Decision{Reason: ReasonDailyLimit}
	}

	domain := r.Domain()
	if rate.DomainCounts[domain] >= g.perDomainLimit {
		return Decision{Reason: ReasonDomainLimit, Domain: domain}
	}

	if rate.LastSend != nil {
		if elapsed := now.Sub(*rate.LastSend); elapsed < g.minInterval {
			return Decision{Reason: ReasonCooldown, RetryIn: g.minInterval - elapsed}
		}
	}

	return Decision{Allow: true}
}

// RecordSend is called once per successful transport call. Counters are
// never touched on a deny or a transport failure.
func (g *Gate) RecordSend(r models.Recipient) error {
	return g.store.RecordSend(r.Domain(), g.now())
}

// AddSuppression appends a suppression entry; idempotent per (email, scope).
func (g *Gate) AddSuppression(email, scope, reason, source string) error {
	added, err := g.store.AddSuppression(models.SuppressionEntry{
		Email:      email,
		Scope:      scope,
		Reason:     reason,
		Source:     source,
		RecordedAt: g.now(),
	})
	if err != nil {
		return fmt.Errorf("adding suppression for %s: %w", email, err)
	}
	if added {
		g.log.WithFields(logrus.Fields{
			"email":  email,
			"scope":  scope,
			"reason": reason,
		}).Info("added suppression entry")
	}
	return nil
}
