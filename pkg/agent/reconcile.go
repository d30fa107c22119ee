package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/daviddao/txtclock/pkg/logger"
	"github.com/daviddao/txtclock/pkg/model"
	"github.com/daviddao/txtclock/pkg/recordstore"
	"github.com/daviddao/txtclock/pkg/resolver"
)

// Reconciliation is the result of the read phase of one invocation.
type Reconciliation struct {
	Fast          *Observation
	Authoritative *Observation // nil when the authoritative read was skipped

	// Created is set when the fast path saw no record and this
	// invocation created one.
	Created   bool
	CreateErr error

	Record model.StateRecord
	Source model.Source
}

// ReadErr joins the transient read and create errors, if any.
func (r *Reconciliation) ReadErr() error {
	var errs []error
	if r.Fast != nil && r.Fast.Err != nil {
		errs = append(errs, r.Fast.Err)
	}
	if r.Authoritative != nil && r.Authoritative.Err != nil {
		errs = append(errs, r.Authoritative.Err)
	}
	if r.CreateErr != nil {
		errs = append(errs, r.CreateErr)
	}
	return errors.Join(errs...)
}

// Reconcile reads the shared record and folds it into the snapshot.
//
// The fast path always runs. When it reports the record absent and no
// handle is held, the record is created from the snapshot; the new
// entry's id is not adopted from that call. When it reports the record
// absent while a handle is held, the store is asked: if the store has no
// entry either, the handle is dropped and the record is created again.
// Otherwise the authoritative path runs when the resolver is bypassed or
// no handle is held yet.
//
// The returned error is fatal (zone) or integrity (malformed record);
// in both cases nothing is merged into the snapshot.
func (s *Session) Reconcile(ctx context.Context, now int64) (*Reconciliation, error) {
	s.seed(now)
	zoneID, err := s.EnsureZone(ctx)
	if err != nil {
		return nil, err
	}

	rec := &Reconciliation{Fast: s.readFast(ctx)}
	if errors.Is(rec.Fast.Err, model.ErrMalformedRecord) {
		return rec, rec.Fast.Err
	}

	fastAbsent := rec.Fast.Err == nil && !rec.Fast.Found
	if fastAbsent && s.snapshot.HasHandle() {
		rec.Authoritative = s.readAuthoritative(ctx, zoneID)
		if errors.Is(rec.Authoritative.Err, model.ErrMalformedRecord) {
			return rec, rec.Authoritative.Err
		}
		if rec.Authoritative.Err == nil && !rec.Authoritative.Found {
			logger.Warn(ctx, "Held record is gone from the store, dropping handle",
				logger.EntryID(s.snapshot.EntryHandle))
			s.snapshot.EntryHandle = ""
			rec.Authoritative = nil
		}
	}

	if fastAbsent && !s.snapshot.HasHandle() {
		rec.CreateErr = s.create(ctx, zoneID)
		rec.Created = rec.CreateErr == nil
	}

	if rec.Authoritative == nil && (s.opts.BypassResolver || !s.snapshot.HasHandle()) {
		rec.Authoritative = s.readAuthoritative(ctx, zoneID)
		if errors.Is(rec.Authoritative.Err, model.ErrMalformedRecord) {
			return rec, rec.Authoritative.Err
		}
	}

	rec.Record, rec.Source = Merge(rec.Fast, rec.Authoritative, s.snapshot)
	s.snapshot = rec.Record
	logger.Debug(ctx, "Record reconciled",
		logger.Source(string(rec.Source)),
		logger.Writer(rec.Record.ID),
		logger.Deadline(rec.Record.Deadline),
		logger.EntryID(rec.Record.EntryHandle),
	)
	return rec, nil
}

func (s *Session) readFast(ctx context.Context) *Observation {
	obs := &Observation{Source: model.SourceResolver}
	content, err := s.resolver.ResolveText(ctx, s.fqdn)
	switch {
	case errors.Is(err, resolver.ErrNotFound):
		logger.Debug(ctx, "Resolver reports no record", logger.FQDN(s.fqdn))
		return obs
	case err != nil:
		obs.Err = fmt.Errorf("resolve %s: %w", s.fqdn, err)
		logger.Error(ctx, "Resolver read failed", logger.FQDN(s.fqdn), logger.Err(err))
		return obs
	}

	obs.Found = true
	obs.Record, obs.Err = model.ParseStateRecord(content)
	if obs.Err != nil {
		obs.Err = fmt.Errorf("resolved record %s: %w", s.fqdn, obs.Err)
		logger.Error(ctx, "Resolved record is malformed", logger.FQDN(s.fqdn), logger.Err(obs.Err))
	}
	return obs
}

func (s *Session) readAuthoritative(ctx context.Context, zoneID string) *Observation {
	obs := &Observation{Source: model.SourceAuthoritative}
	entries, err := s.store.ListEntries(ctx, zoneID)
	if err != nil {
		obs.Err = fmt.Errorf("list entries: %w", err)
		logger.Error(ctx, "Record store read failed", logger.ZoneID(zoneID), logger.Err(err))
		return obs
	}

	entry, ok := recordstore.FindEntry(entries, s.fqdn)
	if !ok {
		logger.Info(ctx, "No record in store, first run", logger.FQDN(s.fqdn))
		return obs
	}

	obs.Found = true
	obs.Record, obs.Err = model.ParseStateRecord(entry.Content)
	if obs.Err != nil {
		obs.Err = fmt.Errorf("stored record %s: %w", entry.ID, obs.Err)
		logger.Error(ctx, "Stored record is malformed", logger.EntryID(entry.ID), logger.Err(obs.Err))
		return obs
	}
	obs.Record.EntryHandle = entry.ID
	return obs
}

// Create publishes the snapshot as a new record. It reports false on any
// store error; the error is logged and not retried.
func (s *Session) Create(ctx context.Context) bool {
	zoneID, err := s.EnsureZone(ctx)
	if err != nil {
		logger.Error(ctx, "Create skipped", logger.Err(err))
		return false
	}
	return s.create(ctx, zoneID) == nil
}

func (s *Session) create(ctx context.Context, zoneID string) error {
	content, err := s.snapshot.Marshal()
	if err != nil {
		return err
	}
	id, err := s.store.CreateEntry(ctx, zoneID, s.record(content))
	if err != nil {
		logger.Error(ctx, "Record create failed", logger.FQDN(s.fqdn), logger.Err(err))
		return fmt.Errorf("create %s: %w", s.fqdn, err)
	}
	logger.Info(ctx, "Record created",
		logger.FQDN(s.fqdn),
		logger.EntryID(id),
		logger.Deadline(s.snapshot.Deadline),
	)
	return nil
}
