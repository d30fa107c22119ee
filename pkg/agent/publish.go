package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/daviddao/txtclock/pkg/clock"
	"github.com/daviddao/txtclock/pkg/logger"
	"github.com/daviddao/txtclock/pkg/model"
	"github.com/daviddao/txtclock/pkg/recordstore"
)

// ErrNoHandle is returned by Publish when the snapshot has no entry
// handle to update.
var ErrNoHandle = errors.New("no entry handle")

// Publish advances the snapshot if it is due at now, writes it back to
// the store and posts liveness. It reports whether it advanced.
//
// An update failure does not undo the in-memory advance and does not
// suppress the liveness post. Both errors are returned joined. An update
// rejected because the entry no longer exists drops the handle.
func (s *Session) Publish(ctx context.Context, now int64) (bool, error) {
	if !s.snapshot.HasHandle() {
		return false, ErrNoHandle
	}
	if _, err := s.EnsureZone(ctx); err != nil {
		return false, err
	}
	if !clock.Advance(&s.snapshot, now, s.jitter.Jitter(), s.agentID) {
		logger.Debug(ctx, "Deadline not reached",
			logger.Now(now),
			logger.Deadline(s.snapshot.Deadline),
		)
		return false, nil
	}

	ctx = logger.WithValues(ctx,
		logger.EntryID(s.snapshot.EntryHandle),
		logger.Deadline(s.snapshot.Deadline),
		logger.PreviousDeadline(s.snapshot.Previous()),
	)
	s.metrics.SetDeadline(s.snapshot.Deadline)

	updateErr := s.update(ctx)
	notifyErr := s.notify(ctx)
	return true, errors.Join(updateErr, notifyErr)
}

func (s *Session) update(ctx context.Context) error {
	content, err := s.snapshot.Marshal()
	if err != nil {
		return err
	}
	handle := s.snapshot.EntryHandle
	if err := s.store.UpdateEntry(ctx, s.zoneID, handle, s.record(content)); err != nil {
		logger.Error(ctx, "Record update failed", logger.Err(err))
		if recordstore.IsNotFound(err) {
			// Re-read from the store next time.
			s.snapshot.EntryHandle = ""
		}
		return fmt.Errorf("update %s: %w", handle, err)
	}
	logger.Info(ctx, "Record advanced")
	return nil
}

func (s *Session) notify(ctx context.Context) error {
	err := s.notifier.Post(ctx, model.NewLivenessPayload(s.snapshot))
	s.metrics.RecordNotify(err == nil)
	if err != nil {
		logger.Error(ctx, "Liveness post failed", logger.Err(err))
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}
