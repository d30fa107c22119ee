// Package model defines the core domain types for txtclock.
//
// Txtclock agents share a single coordination record published as a DNS
// TXT value. The record carries a deadline: the next wall-clock second at
// which some agent should advance it. Every agent reads the record, and
// whichever agent first observes that the deadline has passed pushes it
// forward and reports liveness. The record is the only channel between
// agents; there is no leader and no lock.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedRecord is returned when a record exists but its content is
// not a valid state payload. It must never be treated as "absent".
var ErrMalformedRecord = errors.New("malformed state record")

// RecordType is the DNS record type used for the coordination record.
const RecordType = "TXT"

// StateRecord is the shared coordination state.
//
// EntryHandle is the store-assigned record id needed for updates. It is
// held locally only and never serialized into the payload.
type StateRecord struct {
	ID               string
	Deadline         int64
	PreviousDeadline *int64
	EntryHandle      string
}

// payload is the wire shape of a StateRecord. The three field names are
// shared with every other reader and writer of the record.
type payload struct {
	ID       string `json:"id"`
	Timer    *int64 `json:"timer"`
	TimerOld *int64 `json:"timerold"`
}

// legacyPayload additionally accepts the entry id that older agents
// embedded in the record.
type legacyPayload struct {
	payload
	EntryID string `json:"entryid"`
}

// NewStateRecord returns the initial local snapshot for an agent:
// deadline at now and a zero previous deadline.
func NewStateRecord(id string, now int64) StateRecord {
	zero := int64(0)
	return StateRecord{ID: id, Deadline: now, PreviousDeadline: &zero}
}

// HasHandle reports whether the record can be updated in place.
func (r StateRecord) HasHandle() bool { return r.EntryHandle != "" }

// Previous returns the previous deadline, or 0 when it is null.
func (r StateRecord) Previous() int64 {
	if r.PreviousDeadline == nil {
		return 0
	}
	return *r.PreviousDeadline
}

// Marshal serializes the record into its wire payload.
func (r StateRecord) Marshal() (string, error) {
	deadline := r.Deadline
	b, err := json.Marshal(payload{ID: r.ID, Timer: &deadline, TimerOld: r.PreviousDeadline})
	if err != nil {
		return "", fmt.Errorf("marshal state record: %w", err)
	}
	return string(b), nil
}

// String renders the record for logs.
func (r StateRecord) String() string {
	prev := "null"
	if r.PreviousDeadline != nil {
		prev = strconv.FormatInt(*r.PreviousDeadline, 10)
	}
	return fmt.Sprintf("id=%s timer=%d timerold=%s entry=%q", r.ID, r.Deadline, prev, r.EntryHandle)
}

// ParseStateRecord parses a wire payload. The content may arrive wrapped
// in DNS quoting. A payload without an id or a timer is malformed.
// EntryHandle is filled only from a legacy entryid field.
func ParseStateRecord(content string) (StateRecord, error) {
	raw := unquoteTXT(content)
	if raw == "" {
		return StateRecord{}, fmt.Errorf("%w: empty content", ErrMalformedRecord)
	}

	var p legacyPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return StateRecord{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if p.ID == "" {
		return StateRecord{}, fmt.Errorf("%w: missing id", ErrMalformedRecord)
	}
	if p.Timer == nil {
		return StateRecord{}, fmt.Errorf("%w: missing timer", ErrMalformedRecord)
	}
	if *p.Timer < 0 || (p.TimerOld != nil && *p.TimerOld < 0) {
		return StateRecord{}, fmt.Errorf("%w: negative timestamp", ErrMalformedRecord)
	}

	return StateRecord{
		ID:               p.ID,
		Deadline:         *p.Timer,
		PreviousDeadline: p.TimerOld,
		EntryHandle:      p.EntryID,
	}, nil
}

// unquoteTXT strips the quoting some APIs and resolvers put around TXT
// character strings. Content that is not a valid quoted string is
// returned trimmed but otherwise untouched.
func unquoteTXT(content string) string {
	s := strings.TrimSpace(content)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if u, err := strconv.Unquote(s); err == nil {
			return strings.TrimSpace(u)
		}
	}
	return s
}

// LivenessPayload is posted to the collector after each advance.
// Name repeats the agent id under the key the collector indexes senders by.
type LivenessPayload struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Timer    int64  `json:"timer"`
	TimerOld *int64 `json:"timerold"`
	Passcode int64  `json:"passcode"`
}

// Passcode tags liveness posts for the collector. It is a message-class
// discriminator, not a secret.
const Passcode int64 = 1641466583

// NewLivenessPayload builds the liveness message for an advanced record.
func NewLivenessPayload(r StateRecord) LivenessPayload {
	return LivenessPayload{
		ID:       r.ID,
		Name:     r.ID,
		Timer:    r.Deadline,
		TimerOld: r.PreviousDeadline,
		Passcode: Passcode,
	}
}

// Outcome is how one invocation ended.
type Outcome string

const (
	// OutcomeCreated: the record was absent and this agent created it.
	OutcomeCreated Outcome = "created"
	// OutcomeCreateFailed: the record was absent and creation failed.
	OutcomeCreateFailed Outcome = "create_failed"
	// OutcomeAbsent: no read path could see the record and no handle is
	// held, so there is nothing to update yet.
	OutcomeAbsent Outcome = "absent"
	// OutcomePending: the record exists and its deadline is in the future.
	OutcomePending Outcome = "pending"
	// OutcomeAdvanced: the deadline was due and this agent advanced it.
	OutcomeAdvanced Outcome = "advanced"
	// OutcomeMalformed: the record exists but could not be parsed.
	OutcomeMalformed Outcome = "malformed"
	// OutcomeFailed: a read failed before any decision could be made.
	OutcomeFailed Outcome = "failed"
)

// Source names the read path a snapshot was taken from.
type Source string

const (
	SourceLocal         Source = "local"
	SourceResolver      Source = "resolver"
	SourceAuthoritative Source = "authoritative"
)

// Invocation is one journaled agent invocation.
type Invocation struct {
	ID               string    `json:"id"`
	AgentID          string    `json:"agent_id"`
	StartedAt        time.Time `json:"started_at"`
	Now              int64     `json:"now"`
	Outcome          Outcome   `json:"outcome"`
	Source           Source    `json:"source"`
	Deadline         int64     `json:"deadline"`
	PreviousDeadline *int64    `json:"previous_deadline"`
	EntryHandle      string    `json:"entry_id,omitempty"`
	Error            string    `json:"error,omitempty"`
}

// Peer is an agent id seen as the writer of the shared record.
type Peer struct {
	ID           string    `json:"id"`
	FirstSeen    time.Time `json:"first_seen_at"`
	LastSeen     time.Time `json:"last_seen_at"`
	LastDeadline int64     `json:"last_deadline"`
	Sightings    int64     `json:"sightings"`
}
