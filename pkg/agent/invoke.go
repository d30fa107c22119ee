package agent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/daviddao/txtclock/pkg/logger"
	"github.com/daviddao/txtclock/pkg/model"
)

// Report describes one finished invocation.
type Report struct {
	InvocationID string            `json:"invocation_id"`
	AgentID      string            `json:"agent_id"`
	StartedAt    time.Time         `json:"started_at"`
	Now          int64             `json:"now"`
	Outcome      model.Outcome     `json:"outcome"`
	Source       model.Source      `json:"source"`
	Record       model.StateRecord `json:"-"`
	Created      bool              `json:"created"`
	Advanced     bool              `json:"advanced"`
	Elapsed      time.Duration     `json:"elapsed"`
	Err          error             `json:"-"`
	Class        ErrorClass        `json:"class"`
	Invocation   *model.Invocation `json:"invocation"`
}

// Fatal reports whether the agent should stop.
func (r *Report) Fatal() bool { return r.Class == ClassFatal }

// Invoke runs one full cycle at now: reconcile, create or gate, publish.
// It never panics on remote failures; everything is folded into the
// Report, which is also journaled and counted.
func (s *Session) Invoke(ctx context.Context, now int64) *Report {
	rep := &Report{
		InvocationID: uuid.NewString(),
		AgentID:      s.agentID,
		StartedAt:    time.Now(),
		Now:          now,
		Source:       model.SourceLocal,
	}
	ctx = logger.WithValues(ctx, logger.AgentID(s.agentID), logger.InvocationID(rep.InvocationID))

	rec, err := s.Reconcile(ctx, now)
	switch {
	case err != nil && errors.Is(err, ErrZoneUnresolved):
		rep.Outcome = model.OutcomeFailed
		rep.Err = err
	case err != nil:
		rep.Outcome = model.OutcomeMalformed
		rep.Err = err
	default:
		rep.Source = rec.Source
		rep.Created = rec.Created
		rep.Err = rec.ReadErr()
		s.gate(ctx, rep, rec, now)
	}

	s.finish(ctx, rep, rec)
	return rep
}

// gate decides the outcome after a successful read phase.
func (s *Session) gate(ctx context.Context, rep *Report, rec *Reconciliation, now int64) {
	switch {
	case rec.Created:
		// A record is never advanced in the invocation that created it.
		rep.Outcome = model.OutcomeCreated
		return
	case rec.CreateErr != nil:
		rep.Outcome = model.OutcomeCreateFailed
		return
	case !s.snapshot.HasHandle():
		if rep.Err != nil {
			rep.Outcome = model.OutcomeFailed
		} else {
			rep.Outcome = model.OutcomeAbsent
		}
		return
	}

	advanced, err := s.Publish(ctx, now)
	rep.Advanced = advanced
	rep.Err = errors.Join(rep.Err, err)
	if advanced {
		rep.Outcome = model.OutcomeAdvanced
	} else {
		rep.Outcome = model.OutcomePending
	}
}

func (s *Session) finish(ctx context.Context, rep *Report, rec *Reconciliation) {
	rep.Record = s.Snapshot()
	rep.Class = Class(rep.Err)
	rep.Elapsed = time.Since(rep.StartedAt)

	inv := &model.Invocation{
		ID:               rep.InvocationID,
		AgentID:          rep.AgentID,
		StartedAt:        rep.StartedAt,
		Now:              rep.Now,
		Outcome:          rep.Outcome,
		Source:           rep.Source,
		Deadline:         rep.Record.Deadline,
		PreviousDeadline: rep.Record.PreviousDeadline,
		EntryHandle:      rep.Record.EntryHandle,
	}
	if rep.Err != nil {
		inv.Error = rep.Err.Error()
	}
	rep.Invocation = inv

	if err := s.journal.RecordInvocation(ctx, inv); err != nil {
		logger.Warn(ctx, "Journal write failed", logger.Err(err))
	}
	if rec != nil {
		for _, obs := range []*Observation{rec.Fast, rec.Authoritative} {
			if !obs.usable() {
				continue
			}
			if err := s.journal.ObservePeer(ctx, obs.Record.ID, obs.Record.Deadline, rep.StartedAt); err != nil {
				logger.Warn(ctx, "Journal peer write failed", logger.Writer(obs.Record.ID), logger.Err(err))
			}
		}
	}

	s.metrics.RecordInvocation(string(rep.Outcome), rep.Elapsed)
	if rep.Class != ClassOK {
		s.metrics.RecordError(rep.Class.String())
	}

	attrs := []any{
		logger.Outcome(string(rep.Outcome)),
		logger.Source(string(rep.Source)),
		logger.Deadline(rep.Record.Deadline),
	}
	switch rep.Class {
	case ClassOK:
		logger.Info(ctx, "Invocation finished", attrs...)
	case ClassTransient:
		logger.Warn(ctx, "Invocation finished with errors", append(attrs, logger.Err(rep.Err))...)
	default:
		logger.Error(ctx, "Invocation failed", append(attrs, logger.Err(rep.Err))...)
	}
}
