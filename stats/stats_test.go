package stats

import (
	"errors"
	"testing"
)

func TestCollector_Tallies(t *testing.T) {
	c := NewCollector(nil)

	c.Record(Event{Stage: StageMailbox, Outcome: OutcomeScanned})
	c.Record(Event{Stage: StageMailbox, Outcome: OutcomeScanned})
	c.Record(Event{Stage: StagePublish, Outcome: OutcomeCreated})
	c.Record(Event{Stage: StageMailbox, Outcome: OutcomeDuplicate})
	c.Record(Event{Stage: StageClassify, Outcome: OutcomeRejected})
	c.Record(Event{Stage: StageClassify, Outcome: OutcomeSkipped})
	c.Record(Event{Stage: StageSync, Outcome: OutcomeDegraded})
	c.Record(Event{Stage: StagePublish, Outcome: OutcomeError, Err: errors.New("disk full")})

	s := c.Snapshot()
	if s.Scanned != 2 || s.Created != 1 || s.Duplicates != 1 || s.Degraded != 1 || s.Errors != 1 {
		t.Errorf("summary = %+v", s)
	}
	if s.Rejected != 1 || s.Skipped != 1 {
		t.Errorf("classify tallies = (%d, %d), want (1, 1)", s.Rejected, s.Skipped)
	}
	if s.LastError == nil || s.LastError.Error() != "disk full" {
		t.Errorf("LastError = %v", s.LastError)
	}
}

func TestSummary_LogAttrsPairs(t *testing.T) {
	s := Summary{Scanned: 1, LastError: errors.New("x")}
	attrs := s.LogAttrs()
	if len(attrs)%2 != 0 {
		t.Errorf("LogAttrs length %d is odd", len(attrs))
	}
}
