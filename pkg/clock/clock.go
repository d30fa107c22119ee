// Package clock implements the deadline gate that decides when an agent
// may advance the shared record.
//
// Two rules govern the gate:
//
//	G1 (due): the record may be advanced iff now >= deadline.
//	G2 (advance): previous := deadline; deadline := now + jitter + BaseInterval.
//
// Because G2 only fires when now >= deadline and jitter is non-negative,
// every advance moves the deadline strictly forward. Duplicate advances by
// racing agents are tolerated: the last write wins and the next
// authoritative read resynchronizes everyone.
//
// The package also holds the injectable randomness sources (agent
// identity, gate jitter) so tests can pin them.
package clock

import (
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/daviddao/txtclock/pkg/model"
)

// BaseInterval is the fixed distance, in seconds, between a due time and
// the next deadline.
const BaseInterval int64 = 60

// Due implements G1.
func Due(now, deadline int64) bool { return now >= deadline }

// Advance implements G2 on r when it is due at now and reports whether it
// did. identity becomes the record's writer id. Negative jitter is
// treated as zero.
func Advance(r *model.StateRecord, now, jitter int64, identity string) bool {
	if !Due(now, r.Deadline) {
		return false
	}
	if jitter < 0 {
		jitter = 0
	}
	prev := r.Deadline
	r.PreviousDeadline = &prev
	r.Deadline = now + jitter + BaseInterval
	r.ID = identity
	return true
}

// Now returns the current Unix time in seconds.
func Now() int64 { return time.Now().Unix() }

// JitterSource yields the non-negative gate jitter, in seconds, for one
// advance.
type JitterSource interface {
	Jitter() int64
}

// IdentitySource yields the agent identity once per process.
type IdentitySource interface {
	NewIdentity() string
}

// FixedJitter always returns the same jitter.
type FixedJitter int64

// Jitter implements JitterSource.
func (f FixedJitter) Jitter() int64 { return int64(f) }

// RandomJitter draws uniformly from [0, Max] seconds.
type RandomJitter struct {
	Max time.Duration
}

// Jitter implements JitterSource.
func (r RandomJitter) Jitter() int64 {
	maxSec := int64(r.Max / time.Second)
	if maxSec <= 0 {
		return 0
	}
	return rand.Int64N(maxSec + 1)
}

// FixedIdentity always returns the same identity.
type FixedIdentity string

// NewIdentity implements IdentitySource.
func (f FixedIdentity) NewIdentity() string { return string(f) }

// UUIDIdentity generates a random UUID per call.
type UUIDIdentity struct{}

// NewIdentity implements IdentitySource.
func (UUIDIdentity) NewIdentity() string { return uuid.NewString() }
