package agent

import "github.com/daviddao/txtclock/pkg/model"

// Observation is what one read path saw of the shared record.
type Observation struct {
	Source model.Source
	// Found is false when the read path reported the record absent.
	Found  bool
	Record model.StateRecord
	// Err is set when the read failed or the content was malformed.
	Err error
}

// usable reports whether o carries a parsed record.
func (o *Observation) usable() bool {
	return o != nil && o.Found && o.Err == nil
}

// Merge combines the two read paths with the local snapshot.
//
// An authoritative observation with a handle wins outright. Otherwise a
// fast observation contributes its handle hint when local holds none,
// and its timers unless they would move a published local deadline
// backward. Otherwise local is kept. The local handle is never replaced
// by a hint.
func Merge(fast, authoritative *Observation, local model.StateRecord) (model.StateRecord, model.Source) {
	if authoritative.usable() && authoritative.Record.HasHandle() {
		return authoritative.Record, model.SourceAuthoritative
	}

	if fast.usable() {
		merged := local
		if fast.Record.HasHandle() && !local.HasHandle() {
			merged.EntryHandle = fast.Record.EntryHandle
		}
		// A snapshot without a handle was never read back from the
		// store, so its deadline is only a placeholder.
		if !local.HasHandle() || fast.Record.Deadline >= local.Deadline {
			merged.ID = fast.Record.ID
			merged.Deadline = fast.Record.Deadline
			merged.PreviousDeadline = fast.Record.PreviousDeadline
		}
		return merged, model.SourceResolver
	}

	return local, model.SourceLocal
}
