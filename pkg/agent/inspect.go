package agent

import (
	"context"

	"github.com/daviddao/txtclock/pkg/clock"
	"github.com/daviddao/txtclock/pkg/model"
)

// View is a read-only picture of one read path.
type View struct {
	Source           model.Source `json:"source"`
	Found            bool         `json:"found"`
	Writer           string       `json:"id,omitempty"`
	Deadline         int64        `json:"timer,omitempty"`
	PreviousDeadline *int64       `json:"timerold,omitempty"`
	EntryID          string       `json:"entry_id,omitempty"`
	Due              bool         `json:"due"`
	Error            string       `json:"error,omitempty"`
	Class            string       `json:"class"`
}

// Status is the result of Inspect.
type Status struct {
	FQDN          string `json:"fqdn"`
	ZoneID        string `json:"zone_id"`
	Now           int64  `json:"now"`
	Resolver      View   `json:"resolver"`
	Authoritative View   `json:"authoritative"`
}

// Inspect reads both paths without creating, merging or publishing.
// Only a zone failure is returned as an error.
func (s *Session) Inspect(ctx context.Context, now int64) (*Status, error) {
	zoneID, err := s.EnsureZone(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{
		FQDN:          s.fqdn,
		ZoneID:        zoneID,
		Now:           now,
		Resolver:      viewOf(s.readFast(ctx), now),
		Authoritative: viewOf(s.readAuthoritative(ctx, zoneID), now),
	}, nil
}

func viewOf(obs *Observation, now int64) View {
	v := View{Source: obs.Source, Found: obs.Found, Class: Class(obs.Err).String()}
	if obs.Err != nil {
		v.Error = obs.Err.Error()
	}
	if obs.usable() {
		v.Writer = obs.Record.ID
		v.Deadline = obs.Record.Deadline
		v.PreviousDeadline = obs.Record.PreviousDeadline
		v.EntryID = obs.Record.EntryHandle
		v.Due = clock.Due(now, obs.Record.Deadline)
	}
	return v
}
