package pipeline

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mail2site/mail2site/gitsync"
	"github.com/mail2site/mail2site/markup"
	"github.com/mail2site/mail2site/model"
	"github.com/mail2site/mail2site/parser"
	"github.com/mail2site/mail2site/protocol"
	"github.com/mail2site/mail2site/publish"
	"github.com/mail2site/mail2site/state"
	"github.com/mail2site/mail2site/stats"
)

const indexFixture = `<!DOCTYPE html>
<html><body>
<nav></nav>
<div id="project-container"></div>
</body></html>
`

const owner = "owner@example.com"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProcessor(t *testing.T) (*Processor, *stats.Collector, string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte(indexFixture), 0o644); err != nil {
		t.Fatal(err)
	}

	publisher, err := publish.New(publish.Options{
		PagesDir:            filepath.Join(dir, "Pages"),
		ImagesDir:           filepath.Join(dir, "images"),
		IndexPath:           filepath.Join(dir, "index.html"),
		DefaultImage:        "images/python.jpg",
		DescriptionTemplate: "Learn about %s on this site",
		MaxTitlePrefixLen:   20,
		MaxSlugLen:          50,
	}, nil)
	if err != nil {
		t.Fatalf("publish.New() error = %v", err)
	}

	collector := stats.NewCollector(nil)
	processor := New(
		owner,
		protocol.NewClassifier(nil),
		parser.New(nil),
		markup.New(),
		publisher,
		gitsync.New(dir, "test", "test@localhost", false, nil),
		state.NewMemoryTracker(),
		collector,
		discardLogger(),
	)
	return processor, collector, dir
}

func rawMessage(uid uint32, subject, body string) model.RawMessage {
	raw := strings.ReplaceAll(
		"Subject: "+subject+"\nFrom: "+owner+"\nContent-Type: text/plain; charset=utf-8\n\n"+body+"\n",
		"\n", "\r\n")
	return model.RawMessage{
		Folder:     "INBOX",
		UID:        uid,
		Subject:    subject,
		Sender:     owner,
		ReceivedAt: time.Now(),
		Raw:        []byte(raw),
	}
}

func TestProcess_PublishesPage(t *testing.T) {
	processor, collector, dir := newTestProcessor(t)

	msg := rawMessage(1, "Garden Project", "# Garden Project\n\nWe planted a lot of tomatoes this year.")
	if err := processor.Process(msg); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	page, err := os.ReadFile(filepath.Join(dir, "Pages", "gardenproject.html"))
	if err != nil {
		t.Fatalf("page not written: %v", err)
	}
	if !strings.Contains(string(page), "tomatoes") {
		t.Error("page body missing content")
	}

	summary := collector.Snapshot()
	if summary.Created != 1 {
		t.Errorf("Created = %d, want 1", summary.Created)
	}
	if summary.Errors != 0 {
		t.Errorf("Errors = %d, want 0", summary.Errors)
	}
}

func TestProcess_DuplicateSettledOnce(t *testing.T) {
	processor, collector, _ := newTestProcessor(t)

	msg := rawMessage(2, "Garden Project", "Planting notes for the year.")
	if err := processor.Process(msg); err != nil {
		t.Fatalf("first Process() error = %v", err)
	}
	if err := processor.Process(msg); err != nil {
		t.Fatalf("second Process() error = %v", err)
	}

	summary := collector.Snapshot()
	if summary.Created != 1 {
		t.Errorf("Created = %d, want 1", summary.Created)
	}
	if summary.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", summary.Duplicates)
	}
}

func TestProcess_UnauthorizedSenderIgnored(t *testing.T) {
	processor, collector, dir := newTestProcessor(t)

	msg := rawMessage(3, "Garden Project", "content")
	msg.Sender = "stranger@example.com"
	if err := processor.Process(msg); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "Pages", "gardenproject.html")); !os.IsNotExist(err) {
		t.Error("page published for unauthorized sender")
	}
	if summary := collector.Snapshot(); summary.Unauthorized != 1 {
		t.Errorf("Unauthorized = %d, want 1", summary.Unauthorized)
	}

	// Settled: the same message is a duplicate next time, not a retry.
	if err := processor.Process(msg); err != nil {
		t.Fatalf("second Process() error = %v", err)
	}
	if summary := collector.Snapshot(); summary.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", summary.Duplicates)
	}
}

func TestProcess_TransactionalNoiseSkipped(t *testing.T) {
	processor, collector, _ := newTestProcessor(t)

	msg := rawMessage(4, "Out of Office reply", "I am away until Monday.")
	if err := processor.Process(msg); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if summary := collector.Snapshot(); summary.Skipped != 1 || summary.Created != 0 {
		t.Errorf("summary = %+v, want one skip and no pages", summary)
	}
}

func TestProcess_DeleteCommand(t *testing.T) {
	processor, collector, dir := newTestProcessor(t)

	create := rawMessage(5, "Garden Project", "Planting notes for the year.")
	if err := processor.Process(create); err != nil {
		t.Fatalf("create Process() error = %v", err)
	}

	del := rawMessage(6, "[DELETE CONFIRM] Garden Project", "")
	if err := processor.Process(del); err != nil {
		t.Fatalf("delete Process() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "Pages", "gardenproject.html")); !os.IsNotExist(err) {
		t.Error("page still exists after delete")
	}
	if summary := collector.Snapshot(); summary.Deleted != 1 {
		t.Errorf("Deleted = %d, want 1", summary.Deleted)
	}
}

func TestProcess_DeleteMissingPageSettles(t *testing.T) {
	processor, collector, _ := newTestProcessor(t)

	del := rawMessage(7, "[DELETE CONFIRM] never-existed", "")
	if err := processor.Process(del); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	summary := collector.Snapshot()
	if summary.Errors != 1 {
		t.Errorf("Errors = %d, want 1", summary.Errors)
	}
	if summary.Deleted != 0 {
		t.Errorf("Deleted = %d, want 0", summary.Deleted)
	}

	// A delete that cannot succeed must not loop forever.
	if err := processor.Process(del); err != nil {
		t.Fatalf("second Process() error = %v", err)
	}
	if summary := collector.Snapshot(); summary.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", summary.Duplicates)
	}
}

func TestProcess_UnsafeDeletePhrasingDoesNotDelete(t *testing.T) {
	processor, collector, dir := newTestProcessor(t)

	create := rawMessage(8, "Garden Project", "Planting notes for the year.")
	if err := processor.Process(create); err != nil {
		t.Fatalf("create Process() error = %v", err)
	}

	casual := rawMessage(9, "delete: Garden Project", "please remove it")
	if err := processor.Process(casual); err != nil {
		t.Fatalf("casual Process() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "Pages", "gardenproject.html")); err != nil {
		t.Error("page deleted by unconfirmed phrasing")
	}
	if _, err := os.Stat(filepath.Join(dir, "Pages", "deletegardenproject.html")); !os.IsNotExist(err) {
		t.Error("unconfirmed delete request published as a page")
	}
	if summary := collector.Snapshot(); summary.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", summary.Rejected)
	}
}
