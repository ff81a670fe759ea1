package worker

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"

	"mailflow/compliance"
	"mailflow/models"
)

// Detection is one inbound unsubscribe signal, either produced by the IMAP
// poller or supplied by an external reader.
type Detection struct {
	Email           string
	DetectedAt      time.Time
	SourceMessageID string
}

var unsubscribeMarkers = []string{
	"unsubscribe", "opt out", "opt-out", "remove me", "stop emailing",
}

var tokenRe = regexp.MustCompile(`token=([A-Za-z0-9\-_.]+)`)

// UnsubscribeWorker periodically scans an IMAP inbox for replies that ask to
// stop receiving mail and turns each one into a suppression entry.
type UnsubscribeWorker struct {
	gate   *compliance.Gate
	tokens *compliance.TokenMinter
	log    *logrus.Logger

	host     string
	port     int
	username string
	password string
	mailbox  string
	interval time.Duration
}

func NewUnsubscribeWorker(gate *compliance.Gate, tokens *compliance.TokenMinter,
	host string, port int, username, password, mailbox string,
	interval time.Duration, log *logrus.Logger) *UnsubscribeWorker {
	return &UnsubscribeWorker{
		gate:     gate,
		tokens:   tokens,
		log:      log,
		host:     host,
		port:     port,
		username: username,
		password: password,
		mailbox:  mailbox,
		interval: interval,
	}
}

func (w *UnsubscribeWorker) Start(ctx context.Context) {
	w.log.Info("starting unsubscribe poller")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.poll(); err != nil {
				w.log.WithError(err).Warn("unsubscribe poll failed")
			}
		case <-ctx.Done():
			w.log.Info("stopping unsubscribe poller")
			return
		}
	}
}

func (w *UnsubscribeWorker) poll() error {
	addr := fmt.Sprintf("%s:%d", w.host, w.port)
	c, err := client.DialTLS(addr, &tls.Config{ServerName: w.host})
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer c.Logout()

	if err := c.Login(w.username, w.password); err != nil {
		return fmt.Errorf("imap login: %w", err)
	}
	if _, err := c.Select(w.mailbox, false); err != nil {
		return fmt.Errorf("selecting %s: %w", w.mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := c.Search(criteria)
	if err != nil {
		return fmt.Errorf("searching mailbox: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)
	section := &imap.BodySectionName{Peek: true}
	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}, messages)
	}()

	for msg := range messages {
		if err := w.processMessage(msg, section); err != nil {
			w.log.WithError(err).WithField("seq", msg.SeqNum).Warn("could not process inbound message")
		}
	}
	return <-done
}

func (w *UnsubscribeWorker) processMessage(msg *imap.Message, section *imap.BodySectionName) error {
	if msg.Envelope == nil || len(msg.Envelope.From) == 0 {
		return fmt.Errorf("message without sender envelope")
	}
	from := msg.Envelope.From[0]
	fromEmail := strings.ToLower(fmt.Sprintf("%s@%s", from.MailboxName, from.HostName))
	subject := msg.Envelope.Subject

	body := readPlainBody(msg.GetBody(section))

	// A verifiable opt-out token in the body beats keyword matching and
	// carries the campaign scope with it.
	if match := tokenRe.FindStringSubmatch(body); match != nil {
		if email, campaignID, err := w.tokens.Verify(match[1]); err == nil {
			scope := models.ScopeGlobal
			if campaignID != "" {
				scope = campaignID
			}
			return w.gate.AddSuppression(email, scope, "opt-out-token", msg.Envelope.MessageId)
		}
	}

	if !isUnsubscribeRequest(subject, body) {
		return nil
	}
	w.ProcessDetections([]Detection{{
		Email:           fromEmail,
		DetectedAt:      time.Now(),
		SourceMessageID: msg.Envelope.MessageId,
	}})
	return nil
}

// ProcessDetections records a suppression for each detected unsubscribe
// request. This is also the entry point for external inbound readers.
func (w *UnsubscribeWorker) ProcessDetections(detections []Detection) int {
	added := 0
	for _, d := range detections {
		if err := w.gate.AddSuppression(d.Email, models.ScopeGlobal, "reply-unsubscribe", d.SourceMessageID); err != nil {
			w.log.WithError(err).WithField("email", d.Email).Warn("could not record unsubscribe")
			continue
		}
		added++
	}
	return added
}

func readPlainBody(literal imap.Literal) string {
	if literal == nil {
		return ""
	}
	mr, err := mail.CreateReader(literal)
	if err != nil {
		return ""
	}
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ""
		}
		if h, ok := p.Header.(*mail.InlineHeader); ok {
			contentType, _, _ := h.ContentType()
			if strings.Contains(contentType, "text/plain") {
				b, err := io.ReadAll(p.Body)
				if err != nil {
					return ""
				}
				return string(b)
			}
		}
	}
	return ""
}

func isUnsubscribeRequest(subject, body string) bool {
	subject = strings.ToLower(subject)
	firstLines := strings.ToLower(firstN(body, 5))
	for _, marker := range unsubscribeMarkers {
		if strings.Contains(subject, marker) || strings.Contains(firstLines, marker) {
			return true
		}
	}
	return false
}

func firstN(text string, n int) string {
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}
