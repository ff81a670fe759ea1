package worker

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"mailflow/catalog"
	"mailflow/compliance"
	"mailflow/contacts"
	"mailflow/models"
	"mailflow/store"
)

type runnerFixture struct {
	runner       *Runner
	store        *store.FileStore
	mailer       *fakeMailer
	templatesDir string
	contactsDir  string
	trackingDir  string
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	base := t.TempDir()
	fx := &runnerFixture{
		mailer:       &fakeMailer{},
		templatesDir: filepath.Join(base, "campaign-templates"),
		contactsDir:  filepath.Join(base, "contacts"),
		trackingDir:  filepath.Join(base, "tracking"),
	}
	if err := os.MkdirAll(fx.templatesDir, 0o755); err != nil {
		t.Fatal(err)
	}

	st, err := store.NewFileStore(fx.trackingDir, fx.contactsDir, log)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	fx.store = st

	gate := compliance.NewGate(st, 1000, 1000, 0, log)
	tokens := compliance.NewTokenMinter("runner-test-secret-012345", time.Hour)
	exec := NewExecutor(gate, tokens, st, fx.mailer, "run-1", 90*time.Second,
		"https://example.com/optout", "Acme Outreach", "", log)
	cat := catalog.New(fx.templatesDir, catalog.StaleCatchUp, log)
	resolver := contacts.NewResolver(fx.contactsDir, log)
	fx.runner = NewRunner(cat, resolver, exec, st, fx.mailer, "run-1", "alerts@example.com", log)
	return fx
}

func (fx *runnerFixture) addTemplate(t *testing.T, category, name, body string) string {
	t.Helper()
	dir := filepath.Join(fx.templatesDir, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func (fx *runnerFixture) addContacts(t *testing.T, category, name, content string) {
	t.Helper()
	dir := filepath.Join(fx.contactsDir, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunExecutesDiscoveredCampaigns(t *testing.T) {
	fx := newRunnerFixture(t)
	fx.addTemplate(t, "education", "welcome.txt", "Subject: Welcome\n\nHi {{name}}.")
	fx.addContacts(t, "education", "contacts.csv", "email,name\na@one.com,A\nb@two.com,B\n")

	if err := fx.runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Two recipient sends plus the summary alert.
	if len(fx.mailer.sent) != 3 {
		t.Fatalf("sent %d messages, want 3: %v", len(fx.mailer.sent), fx.mailer.sent)
	}
	last := fx.mailer.sent[2]
	if last.To != "alerts@example.com" {
		t.Errorf("last message to %q, want the alerts address", last.To)
	}
	if !strings.Contains(last.Body, "2 sent") {
		t.Errorf("alert body missing totals:\n%s", last.Body)
	}

	summaries, err := filepath.Glob(filepath.Join(fx.trackingDir, "education", "campaigns", "*.json"))
	if err != nil || len(summaries) != 1 {
		t.Fatalf("summaries = %v (err %v), want exactly one", summaries, err)
	}
	data, err := os.ReadFile(summaries[0])
	if err != nil {
		t.Fatal(err)
	}
	var summary campaignSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatalf("summary is not valid JSON: %v", err)
	}
	if summary.Status != models.StatusCompleted || summary.Result.Sent != 2 {
		t.Errorf("summary = %+v, want completed with 2 sent", summary)
	}
	if summary.TrackingID == "" || !strings.HasPrefix(summary.TrackingID, "EDUCATION_") {
		t.Errorf("TrackingID = %q, want category-prefixed", summary.TrackingID)
	}
}

func TestRunLeavesFutureCampaignQueued(t *testing.T) {
	fx := newRunnerFixture(t)
	path := fx.addTemplate(t, "education", "later.txt", "Subject: Later\n\nHi.")
	if err := os.WriteFile(path+".schedule.json", []byte(`{"mode":"scheduled","date":"2999-01-01"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	fx.addContacts(t, "education", "contacts.csv", "email,name\na@one.com,A\n")

	if err := fx.runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(fx.mailer.sent) != 0 {
		t.Errorf("sent %d messages for a future campaign, want 0", len(fx.mailer.sent))
	}
}

func TestRunEmptyCatalog(t *testing.T) {
	fx := newRunnerFixture(t)
	if err := fx.runner.Run(context.Background()); err != nil {
		t.Fatalf("Run on empty catalog: %v", err)
	}
	if len(fx.mailer.sent) != 0 {
		t.Errorf("sent %d messages with nothing to do, want 0", len(fx.mailer.sent))
	}
}

func TestRunCampaignWithNoContactsIsSkipped(t *testing.T) {
	fx := newRunnerFixture(t)
	fx.addTemplate(t, "education", "welcome.txt", "Subject: Welcome\n\nHi.")

	if err := fx.runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	summaries, err := filepath.Glob(filepath.Join(fx.trackingDir, "education", "campaigns", "*.json"))
	if err != nil || len(summaries) != 1 {
		t.Fatalf("summaries = %v (err %v), want exactly one", summaries, err)
	}
	data, err := os.ReadFile(summaries[0])
	if err != nil {
		t.Fatal(err)
	}
	var summary campaignSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatal(err)
	}
	if summary.Status != models.StatusSkipped {
		t.Errorf("Status = %s, want skipped for an empty recipient list", summary.Status)
	}
}
