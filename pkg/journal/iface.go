// iface.go defines the Recorder interface the agent writes through.
//
// The agent only appends; the CLI reads. Both go through interfaces so
// tests can run the agent without a database.
package journal

import (
	"context"
	"time"

	"github.com/daviddao/txtclock/pkg/model"
)

// Recorder is the write side used by the agent.
type Recorder interface {
	// RecordInvocation appends an invocation.
	RecordInvocation(ctx context.Context, inv *model.Invocation) error

	// ObservePeer upserts a writer sighting.
	ObservePeer(ctx context.Context, id string, deadline int64, at time.Time) error
}

// Reader is the read side used by the CLI.
type Reader interface {
	// ListInvocations returns the newest invocations first.
	ListInvocations(limit int) ([]model.Invocation, error)

	// LastInvocation returns the newest invocation or nil.
	LastInvocation() (*model.Invocation, error)

	// CountInvocations returns invocation counts per outcome.
	CountInvocations() (map[model.Outcome]int64, error)

	// ListPeers returns peers, most recently seen first.
	ListPeers() ([]model.Peer, error)
}

// Nop is a Recorder that keeps nothing, used when the journal is disabled.
type Nop struct{}

func (Nop) RecordInvocation(context.Context, *model.Invocation) error    { return nil }
func (Nop) ObservePeer(context.Context, string, int64, time.Time) error { return nil }

// Compile-time checks.
var (
	_ Recorder = (*Journal)(nil)
	_ Reader   = (*Journal)(nil)
	_ Recorder = Nop{}
)
