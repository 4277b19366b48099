// Package pipeline drives one message through the gates and stages: dedup,
// sender authorization, the delete grammar, classification, parsing,
// rendering, publishing, and the git sync. It owns the error taxonomy: a
// failed publish leaves the message unmarked so a later pass retries it, a
// failed sync is degraded success and the message is marked anyway.
package pipeline

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/mail2site/mail2site/gitsync"
	"github.com/mail2site/mail2site/markup"
	"github.com/mail2site/mail2site/model"
	"github.com/mail2site/mail2site/parser"
	"github.com/mail2site/mail2site/protocol"
	"github.com/mail2site/mail2site/publish"
	"github.com/mail2site/mail2site/state"
	"github.com/mail2site/mail2site/stats"
)

type Processor struct {
	authorizedSender string

	classifier  *protocol.Classifier
	parser      *parser.Parser
	transformer *markup.Transformer
	publisher   *publish.Publisher
	syncer      *gitsync.Syncer
	tracker     state.Tracker
	collector   *stats.Collector
	logger      *slog.Logger
}

func New(
	authorizedSender string,
	classifier *protocol.Classifier,
	p *parser.Parser,
	transformer *markup.Transformer,
	publisher *publish.Publisher,
	syncer *gitsync.Syncer,
	tracker state.Tracker,
	collector *stats.Collector,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		authorizedSender: strings.ToLower(strings.TrimSpace(authorizedSender)),
		classifier:       classifier,
		parser:           p,
		transformer:      transformer,
		publisher:        publisher,
		syncer:           syncer,
		tracker:          tracker,
		collector:        collector,
		logger:           logger,
	}
}

// Process runs a single fetched message through the pipeline. A nil return
// means the message is settled (published, deleted, or deliberately skipped)
// and marked handled; an error means it stays unmarked for a retry.
func (p *Processor) Process(msg model.RawMessage) error {
	key := msg.Key()
	p.record(stats.StageMailbox, stats.OutcomeScanned, key, nil)

	if p.tracker.AlreadyHandled(key) {
		p.record(stats.StageMailbox, stats.OutcomeDuplicate, key, nil)
		return nil
	}

	if !p.authorized(msg.Sender) {
		p.logger.Warn("unauthorized sender ignored", "sender", msg.Sender, "subject", msg.Subject)
		p.record(stats.StageMailbox, stats.OutcomeUnauthorized, key, nil)
		p.settle(key)
		return nil
	}

	if cmd := p.classifier.DetectDelete(msg.Subject); cmd != nil {
		return p.processDelete(key, *cmd)
	}
	if p.classifier.IsUnsafeDeleteAttempt(msg.Subject) {
		// Looks like a delete but failed the confirm grammar; publishing it
		// as a page would be worse than doing nothing.
		p.record(stats.StageClassify, stats.OutcomeRejected, key, nil)
		p.settle(key)
		return nil
	}

	parsed := p.parser.Parse(msg.Raw)
	if parsed.Title == "" {
		parsed.Title = strings.TrimSpace(msg.Subject)
	}

	if !p.classifier.IsPageCreation(msg.Subject, parsed.Content) {
		p.logger.Info("message skipped by classifier", "subject", msg.Subject)
		p.record(stats.StageClassify, stats.OutcomeSkipped, key, nil)
		p.settle(key)
		return nil
	}

	savedPaths, savedFiles := p.publisher.SaveMedia(parsed)
	contentHTML := p.transformer.Render(parsed.Content, parsed.Attachments, savedPaths)

	result, err := p.publisher.Publish(parsed, contentHTML, savedFiles)
	if err != nil {
		p.record(stats.StagePublish, stats.OutcomeError, key, err)
		return fmt.Errorf("publish %q: %w", parsed.Title, err)
	}
	p.record(stats.StagePublish, stats.OutcomeCreated, key, nil)

	if err := p.syncer.PublishPage(result.PageWritten, parsed.Title, result.MediaSaved); err != nil {
		// The page exists locally; losing the push is degraded success,
		// not a reason to reprocess the message.
		p.logger.Warn("page created but not pushed", "filename", result.PageWritten, "err", err)
		p.record(stats.StageSync, stats.OutcomeDegraded, key, err)
	}

	p.settle(key)
	return nil
}

func (p *Processor) processDelete(key string, cmd model.DeleteCommand) error {
	filename, tileRemoved, err := p.publisher.Delete(cmd.PageIdentifier)
	if err != nil {
		// Deleting a page that does not exist cannot succeed on retry
		// either; settle the message and record the failure.
		p.logger.Error("delete failed", "identifier", cmd.PageIdentifier, "err", err)
		p.record(stats.StagePublish, stats.OutcomeError, key, err)
		p.settle(key)
		return nil
	}
	if !tileRemoved {
		p.logger.Warn("page deleted but tile not removed", "filename", filename)
	}

	if err := p.syncer.PublishDeletion(filename, cmd.PageIdentifier); err != nil {
		p.logger.Warn("deletion not pushed", "filename", filename, "err", err)
		p.record(stats.StageSync, stats.OutcomeDegraded, key, err)
	}

	p.record(stats.StagePublish, stats.OutcomeDeleted, key, nil)
	p.settle(key)
	return nil
}

func (p *Processor) authorized(sender string) bool {
	if p.authorizedSender == "" {
		return false
	}
	return strings.ToLower(strings.TrimSpace(sender)) == p.authorizedSender
}

// settle marks the key handled and persists the set immediately, so a crash
// between messages never reprocesses a settled one.
func (p *Processor) settle(key string) {
	p.tracker.MarkHandled(key)
	if err := p.tracker.Flush(); err != nil {
		p.logger.Warn("persist handled set failed", "err", err)
	}
}

func (p *Processor) record(stage stats.Stage, outcome stats.Outcome, key string, err error) {
	if p.collector != nil {
		p.collector.Record(stats.Event{Stage: stage, Outcome: outcome, MessageKey: key, Err: err})
	}
}
