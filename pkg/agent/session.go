// Package agent runs one txtclock agent against the shared record.
//
// A Session owns everything that survives between invocations: the
// agent identity, the memoized zone id and the local snapshot of the
// record. Each Invoke reads the record through the resolver and the
// record store, merges what it saw, and advances the record when its
// deadline has passed. Invocations on one Session must not overlap.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/daviddao/txtclock/pkg/clock"
	"github.com/daviddao/txtclock/pkg/journal"
	"github.com/daviddao/txtclock/pkg/logger"
	"github.com/daviddao/txtclock/pkg/metrics"
	"github.com/daviddao/txtclock/pkg/model"
	"github.com/daviddao/txtclock/pkg/notifier"
	"github.com/daviddao/txtclock/pkg/recordstore"
	"github.com/daviddao/txtclock/pkg/resolver"
)

// DefaultTTL is the TTL, in seconds, of the coordination record.
const DefaultTTL = 60

// Options names the coordination record and tunes read behaviour.
type Options struct {
	Subdomain string
	Domain    string
	// BypassResolver forces the authoritative read every invocation.
	BypassResolver bool
	// TTL of created and updated records; DefaultTTL when zero.
	TTL int
}

// FQDN returns the coordination record name.
func (o Options) FQDN() string {
	return strings.TrimSuffix(o.Subdomain, ".") + "." + strings.TrimSuffix(o.Domain, ".")
}

// Deps are the collaborators a Session talks to. Store, Resolver and
// Notifier are required; the rest default to no-op or fixed values.
type Deps struct {
	Store    recordstore.Client
	Resolver resolver.Reader
	Notifier notifier.Notifier
	Journal  journal.Recorder
	Metrics  metrics.Collector
	Jitter   clock.JitterSource
	Identity clock.IdentitySource
}

// Session is the per-process agent state.
type Session struct {
	opts    Options
	fqdn    string
	agentID string

	store    recordstore.Client
	resolver resolver.Reader
	notifier notifier.Notifier
	journal  journal.Recorder
	metrics  metrics.Collector
	jitter   clock.JitterSource

	zoneID   string
	snapshot model.StateRecord
	seeded   bool
}

// NewSession validates opts and deps and draws the agent identity.
func NewSession(opts Options, deps Deps) (*Session, error) {
	if opts.Subdomain == "" || opts.Domain == "" {
		return nil, errors.New("agent: subdomain and domain are required")
	}
	if deps.Store == nil || deps.Resolver == nil || deps.Notifier == nil {
		return nil, errors.New("agent: store, resolver and notifier are required")
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if deps.Journal == nil {
		deps.Journal = journal.Nop{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Jitter == nil {
		deps.Jitter = clock.FixedJitter(0)
	}
	if deps.Identity == nil {
		deps.Identity = clock.UUIDIdentity{}
	}

	return &Session{
		opts:     opts,
		fqdn:     opts.FQDN(),
		agentID:  deps.Identity.NewIdentity(),
		store:    deps.Store,
		resolver: deps.Resolver,
		notifier: deps.Notifier,
		journal:  deps.Journal,
		metrics:  deps.Metrics,
		jitter:   deps.Jitter,
	}, nil
}

// AgentID returns the identity this session writes under.
func (s *Session) AgentID() string { return s.agentID }

// FQDN returns the coordination record name.
func (s *Session) FQDN() string { return s.fqdn }

// Snapshot returns a copy of the local record snapshot.
func (s *Session) Snapshot() model.StateRecord {
	snap := s.snapshot
	if snap.PreviousDeadline != nil {
		prev := *snap.PreviousDeadline
		snap.PreviousDeadline = &prev
	}
	return snap
}

// seed initializes the snapshot on the first invocation.
func (s *Session) seed(now int64) {
	if s.seeded {
		return
	}
	s.snapshot = model.NewStateRecord(s.agentID, now)
	s.seeded = true
}

// EnsureZone resolves the zone id once and memoizes it. Failures wrap
// ErrZoneUnresolved and are not memoized.
func (s *Session) EnsureZone(ctx context.Context) (string, error) {
	if s.zoneID != "" {
		return s.zoneID, nil
	}
	id, err := s.store.FindZone(ctx, s.opts.Domain)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrZoneUnresolved, s.opts.Domain, err)
	}
	if id == "" {
		return "", fmt.Errorf("%w: %s: empty zone id", ErrZoneUnresolved, s.opts.Domain)
	}
	s.zoneID = id
	logger.Info(ctx, "Zone resolved", logger.ZoneID(id), logger.FQDN(s.fqdn))
	return id, nil
}

func (s *Session) record(content string) recordstore.Record {
	return recordstore.Record{
		Name:    s.fqdn,
		Type:    model.RecordType,
		Content: content,
		TTL:     s.opts.TTL,
	}
}
