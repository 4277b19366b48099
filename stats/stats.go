package stats

import (
	"log/slog"
	"sync"
	"time"
)

type Stage string

const (
	StageMailbox  Stage = "mailbox"
	StageClassify Stage = "classify"
	StageParse    Stage = "parse"
	StagePublish  Stage = "publish"
	StageSync     Stage = "sync"
)

type Outcome string

const (
	OutcomeScanned      Outcome = "scanned"
	OutcomeCreated      Outcome = "created"
	OutcomeDeleted      Outcome = "deleted"
	OutcomeSkipped      Outcome = "skipped"
	OutcomeUnauthorized Outcome = "unauthorized"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeDegraded     Outcome = "degraded"
	OutcomeRejected     Outcome = "rejected"
	OutcomeError        Outcome = "error"
)

type Event struct {
	Stage      Stage
	Outcome    Outcome
	MessageKey string
	Err        error
	Detail     string
}

type Summary struct {
	Scanned      int
	Created      int
	Deleted      int
	Skipped      int
	Unauthorized int
	Duplicates   int
	Degraded     int
	Rejected     int
	Errors       int
	LastError    error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"scanned", s.Scanned,
		"created", s.Created,
		"deleted", s.Deleted,
		"skipped", s.Skipped,
		"unauthorized", s.Unauthorized,
		"duplicates", s.Duplicates,
		"degraded", s.Degraded,
		"rejected", s.Rejected,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

// Collector accumulates pipeline events into a summary.
type Collector struct {
	mu      sync.Mutex
	summary Summary
	started time.Time
	logger  *slog.Logger
}

func NewCollector(logger *slog.Logger) *Collector {
	return &Collector{started: time.Now(), logger: logger}
}

func (c *Collector) Record(evt Event) {
	c.mu.Lock()
	switch evt.Outcome {
	case OutcomeScanned:
		c.summary.Scanned++
	case OutcomeCreated:
		c.summary.Created++
	case OutcomeDeleted:
		c.summary.Deleted++
	case OutcomeSkipped:
		c.summary.Skipped++
	case OutcomeUnauthorized:
		c.summary.Unauthorized++
	case OutcomeDuplicate:
		c.summary.Duplicates++
	case OutcomeDegraded:
		c.summary.Degraded++
	case OutcomeRejected:
		c.summary.Rejected++
	case OutcomeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
	c.mu.Unlock()

	if c.logger != nil && evt.Outcome == OutcomeError {
		c.logger.Debug("pipeline event", "stage", evt.Stage, "outcome", evt.Outcome, "key", evt.MessageKey, "err", evt.Err)
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}

// Report logs the accumulated summary. Called after each batch and at
// shutdown.
func (c *Collector) Report() {
	if c.logger == nil {
		return
	}
	summary := c.Snapshot()
	attrs := append(summary.LogAttrs(), "uptime", time.Since(c.started).Round(time.Second))
	c.logger.Info("pipeline summary", attrs...)
}
