package catalog

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"mailflow/models"
)

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func writeTemplate(t *testing.T, root, category, name, body string) string {
	t.Helper()
	dir := filepath.Join(root, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeDescriptor(t *testing.T, templatePath, body string) {
	t.Helper()
	if err := os.WriteFile(templatePath+".schedule.json", []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func fixedCatalog(root string, policy StalePolicy, at time.Time) *Catalog {
	c := New(root, policy, discardLogger())
	c.now = func() time.Time { return at }
	return c
}

func TestDiscoverOrdersQueueByTier(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	later := writeTemplate(t, root, "education", "later.txt", "Subject: Later\n\nBody")
	writeDescriptor(t, later, `{"mode":"scheduled","date":"2026-09-20"}`)
	soon := writeTemplate(t, root, "education", "soon.txt", "Subject: Soon\n\nBody")
	writeDescriptor(t, soon, `{"mode":"scheduled","date":"2026-09-05"}`)
	queued := writeTemplate(t, root, "education", "queued.txt", "Subject: Queued\n\nBody")
	writeDescriptor(t, queued, `{"mode":"schedule-now"}`)
	writeTemplate(t, root, "outreach", "now.txt", "Subject: Now\n\nBody")

	queue, report, err := fixedCatalog(root, StaleCatchUp, now).Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if report.Scanned != 4 || report.Queued != 4 {
		t.Fatalf("report = %+v, want 4 scanned, 4 queued", report)
	}

	wantSubjects := []string{"Now", "Queued", "Soon", "Later"}
	for i, want := range wantSubjects {
		if queue[i].Subject != want {
			t.Errorf("queue[%d].Subject = %q, want %q", i, queue[i].Subject, want)
		}
	}
	if queue[0].Mode != models.ModeImmediate || queue[1].Mode != models.ModeScheduleNow {
		t.Errorf("tier order wrong: %s, %s", queue[0].Mode, queue[1].Mode)
	}
}

func TestDiscoverRejectsBrokenTemplates(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	writeTemplate(t, root, "education", "good.txt", "Subject: Good\n\nBody")
	writeTemplate(t, root, "education", "empty.txt", "   \n")
	writeTemplate(t, root, "education", "binary.txt", string([]byte{0xff, 0xfe, 0x00, 0x41}))
	writeTemplate(t, root, "education", "notes.yaml", "ignored: true")

	queue, report, err := fixedCatalog(root, StaleCatchUp, now).Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(queue) != 1 || queue[0].Subject != "Good" {
		t.Fatalf("queue = %v, want only the good template", queue)
	}
	if len(report.Failed) != 2 {
		t.Fatalf("Failed = %d campaigns, want 2", len(report.Failed))
	}
	for _, cmp := range report.Failed {
		if cmp.Status != models.StatusFailed || cmp.Err == "" {
			t.Errorf("failed campaign %s missing status or reason: %+v", cmp.TemplateName, cmp)
		}
	}
}

func TestDiscoverBadDescriptor(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	badMode := writeTemplate(t, root, "education", "badmode.txt", "Subject: A\n\nBody")
	writeDescriptor(t, badMode, `{"mode":"every-fortnight"}`)
	badDate := writeTemplate(t, root, "education", "baddate.txt", "Subject: B\n\nBody")
	writeDescriptor(t, badDate, `{"mode":"scheduled","date":"tomorrow"}`)
	badJSON := writeTemplate(t, root, "education", "badjson.txt", "Subject: C\n\nBody")
	writeDescriptor(t, badJSON, `{mode`)

	queue, report, err := fixedCatalog(root, StaleCatchUp, now).Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(queue) != 0 {
		t.Errorf("queue = %v, want empty", queue)
	}
	if len(report.Failed) != 3 {
		t.Errorf("Failed = %d, want 3", len(report.Failed))
	}
}

func TestStalePolicyCatchUp(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	stale := writeTemplate(t, root, "education", "stale.txt", "Subject: Stale\n\nBody")
	writeDescriptor(t, stale, `{"mode":"scheduled","date":"2026-08-15"}`)

	queue, _, err := fixedCatalog(root, StaleCatchUp, now).Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(queue) != 1 {
		t.Fatalf("queue = %v, want the caught-up campaign", queue)
	}
	if queue[0].Mode != models.ModeImmediate || !queue[0].ScheduledDate.IsZero() {
		t.Errorf("caught-up campaign = %+v, want immediate with no date", queue[0])
	}
}

func TestStalePolicySkip(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	stale := writeTemplate(t, root, "education", "stale.txt", "Subject: Stale\n\nBody")
	writeDescriptor(t, stale, `{"mode":"scheduled","date":"2026-08-15"}`)
	today := writeTemplate(t, root, "education", "today.txt", "Subject: Today\n\nBody")
	writeDescriptor(t, today, `{"mode":"scheduled","date":"2026-09-01"}`)

	queue, report, err := fixedCatalog(root, StaleSkip, now).Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	// A campaign scheduled for today is due, not stale.
	if len(queue) != 1 || queue[0].Subject != "Today" {
		t.Fatalf("queue = %v, want only today's campaign", queue)
	}
	if len(report.Stale) != 1 || report.Stale[0].Status != models.StatusSkipped {
		t.Errorf("Stale = %+v, want one skipped campaign", report.Stale)
	}
}

func TestSubjectFallsBackToFilename(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "education", "spring_launch-2026.txt", "No heading here, just body text.")

	queue, _, err := fixedCatalog(root, StaleCatchUp, time.Now()).Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(queue) != 1 {
		t.Fatalf("queue = %v, want one campaign", queue)
	}
	if queue[0].Subject != "spring launch 2026" {
		t.Errorf("Subject = %q, want filename-derived fallback", queue[0].Subject)
	}
}

func TestDiscoverMissingRootFails(t *testing.T) {
	c := fixedCatalog(filepath.Join(t.TempDir(), "nope"), StaleCatchUp, time.Now())
	if _, _, err := c.Discover(); err == nil {
		t.Fatal("Discover on a missing root must fail")
	}
}
