// Package monitor supervises the mailbox watch. A listener goroutine holds
// an IDLE wait and turns server notifications into wake signals; the run
// loop scans on wake, at startup, and — only while the listener is down —
// on a fallback polling tick. Scans are single-flight: a trigger that
// arrives while a scan is running is dropped, because the running scan
// already covers it.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/mail2site/mail2site/mailbox"
	"github.com/mail2site/mail2site/model"
	"github.com/mail2site/mail2site/pipeline"
	"github.com/mail2site/mail2site/state"
	"github.com/mail2site/mail2site/stats"
)

// session is the slice of the mailbox client the monitor uses. Scans open a
// short-lived session; the listener keeps a long-lived one for IDLE.
type session interface {
	SearchSince(sender string, since time.Time) ([]uint32, error)
	Fetch(uid uint32) (model.RawMessage, error)
	MarkSeen(uid uint32) error
	Updates() <-chan struct{}
	Idle(ctx context.Context, refresh time.Duration) error
	Close()
}

type Options struct {
	Mailbox          mailbox.Options
	AuthorizedSender string
	IdleRefresh      time.Duration
	ReconnectBackoff time.Duration
	PollInterval     time.Duration
	SearchWindow     time.Duration
}

type Monitor struct {
	opts      Options
	processor *pipeline.Processor
	tracker   state.Tracker
	collector *stats.Collector
	logger    *slog.Logger

	dial      func() (session, error)
	scanToken chan struct{}
}

func New(opts Options, processor *pipeline.Processor, tracker state.Tracker, collector *stats.Collector, logger *slog.Logger) *Monitor {
	m := &Monitor{
		opts:      opts,
		processor: processor,
		tracker:   tracker,
		collector: collector,
		logger:    logger,
		scanToken: make(chan struct{}, 1),
	}
	m.dial = func() (session, error) {
		return mailbox.Connect(opts.Mailbox, logger)
	}
	return m
}

// Run watches the mailbox until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	wake := make(chan struct{}, 1)
	status := make(chan bool)
	go m.listen(ctx, wake, status)

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	// Startup catch-up: anything that arrived while the monitor was down.
	m.scan(ctx)

	listenerUp := false
	for {
		select {
		case <-ctx.Done():
			m.collector.Report()
			return ctx.Err()
		case listenerUp = <-status:
		case <-wake:
			m.scan(ctx)
		case <-ticker.C:
			// Polling is the fallback path. While the listener idles the
			// server pushes updates, so the tick carries no new information.
			if !listenerUp {
				m.scan(ctx)
			}
		}
	}
}

// RunOnce performs a single scan and reports. Used by the batch command.
func (m *Monitor) RunOnce(ctx context.Context) error {
	m.scan(ctx)
	m.collector.Report()
	summary := m.collector.Snapshot()
	return summary.LastError
}

// listen keeps a long-lived IDLE session alive, forwarding server update
// notifications onto wake and its own health onto status. Connection loss
// is absorbed here: report down, back off, reconnect, and wake once so mail
// that arrived during the gap is found.
func (m *Monitor) listen(ctx context.Context, wake chan<- struct{}, status chan<- bool) {
	for ctx.Err() == nil {
		client, err := m.dial()
		if err != nil {
			m.logger.Warn("listener connect failed", "err", err)
			if !sleepCtx(ctx, m.opts.ReconnectBackoff) {
				return
			}
			continue
		}
		m.logger.Info("listener connected, idling")
		report(ctx, status, true)
		notify(wake)

		done := make(chan error, 1)
		go func() {
			done <- client.Idle(ctx, m.opts.IdleRefresh)
		}()

		m.forward(ctx, client, wake, done)
		client.Close()
		report(ctx, status, false)

		if ctx.Err() != nil {
			return
		}
		m.logger.Warn("listener disconnected, reconnecting", "backoff", m.opts.ReconnectBackoff)
		if !sleepCtx(ctx, m.opts.ReconnectBackoff) {
			return
		}
	}
}

func (m *Monitor) forward(ctx context.Context, client session, wake chan<- struct{}, done <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Updates():
			m.logger.Debug("mailbox update received")
			notify(wake)
		case err := <-done:
			if err != nil && ctx.Err() == nil {
				m.logger.Debug("idle ended", "err", err)
			}
			return
		}
	}
}

// scan opens a fresh session, searches the window, and processes every
// message not yet handled. Overlapping triggers are dropped via the token.
func (m *Monitor) scan(ctx context.Context) {
	select {
	case m.scanToken <- struct{}{}:
	default:
		m.logger.Debug("scan already in flight, trigger dropped")
		return
	}
	defer func() { <-m.scanToken }()

	if ctx.Err() != nil {
		return
	}

	client, err := m.dial()
	if err != nil {
		m.logger.Error("scan connect failed", "err", err)
		m.collector.Record(stats.Event{Stage: stats.StageMailbox, Outcome: stats.OutcomeError, Err: err})
		return
	}
	defer client.Close()

	since := time.Now().Add(-m.opts.SearchWindow)
	uids, err := client.SearchSince(m.opts.AuthorizedSender, since)
	if err != nil {
		m.logger.Error("mailbox search failed", "err", err)
		m.collector.Record(stats.Event{Stage: stats.StageMailbox, Outcome: stats.OutcomeError, Err: err})
		return
	}

	processed := 0
	for _, uid := range uids {
		if ctx.Err() != nil {
			return
		}
		key := model.RawMessage{Folder: m.opts.Mailbox.Folder, UID: uid}.Key()
		if m.tracker.AlreadyHandled(key) {
			continue
		}

		msg, err := client.Fetch(uid)
		if err != nil {
			m.logger.Error("fetch failed", "uid", uid, "err", err)
			m.collector.Record(stats.Event{Stage: stats.StageMailbox, Outcome: stats.OutcomeError, MessageKey: key, Err: err})
			continue
		}

		if err := m.processor.Process(msg); err != nil {
			m.logger.Error("processing failed, message left for retry", "uid", uid, "err", err)
			continue
		}
		if err := client.MarkSeen(uid); err != nil {
			m.logger.Debug("mark seen failed", "uid", uid, "err", err)
		}
		processed++
	}

	if processed > 0 {
		m.logger.Info("scan complete", "candidates", len(uids), "processed", processed)
		m.collector.Report()
	}
}

func notify(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// report hands a listener health transition to the run loop. Transitions
// must not be lost, so the send blocks until the loop takes it or ctx ends.
func report(ctx context.Context, status chan<- bool, up bool) {
	select {
	case status <- up:
	case <-ctx.Done():
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
