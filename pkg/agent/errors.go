package agent

import (
	"errors"

	"github.com/daviddao/txtclock/pkg/model"
)

// ErrZoneUnresolved is returned when the coordination domain cannot be
// mapped to a zone id. Without a zone nothing else can run.
var ErrZoneUnresolved = errors.New("zone unresolved")

// ErrorClass groups errors by what the caller should do about them.
type ErrorClass int

const (
	// ClassOK means no error.
	ClassOK ErrorClass = iota
	// ClassTransient errors are logged; the next tick retries.
	ClassTransient
	// ClassIntegrity means the shared record is unreadable. The
	// invocation declined to create or advance.
	ClassIntegrity
	// ClassFatal stops the agent.
	ClassFatal
)

func (c ErrorClass) String() string {
	switch c {
	case ClassOK:
		return "ok"
	case ClassTransient:
		return "transient"
	case ClassIntegrity:
		return "integrity"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// MarshalText renders the class name in JSON reports.
func (c ErrorClass) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// Class maps err to its ErrorClass. Joined errors take the most severe
// class among their parts.
func Class(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassOK
	case errors.Is(err, ErrZoneUnresolved):
		return ClassFatal
	case errors.Is(err, model.ErrMalformedRecord):
		return ClassIntegrity
	default:
		return ClassTransient
	}
}
