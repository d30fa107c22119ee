package logger

import "log/slog"

// Standard attribute constructors. Keys are kebab-case.

// Err creates a tag for error values.
func Err(err error) slog.Attr { return slog.Any("err", err) }

// AgentID creates a tag for the local agent identity.
func AgentID(id string) slog.Attr { return slog.String("agent-id", id) }

// Writer creates a tag for the id of the agent that last wrote the record.
func Writer(id string) slog.Attr { return slog.String("writer", id) }

// ZoneID creates a tag for the DNS zone id.
func ZoneID(id string) slog.Attr { return slog.String("zone-id", id) }

// FQDN creates a tag for the coordination name.
func FQDN(name string) slog.Attr { return slog.String("fqdn", name) }

// EntryID creates a tag for the store-assigned record id.
func EntryID(id string) slog.Attr { return slog.String("entry-id", id) }

// Deadline creates a tag for a deadline timestamp.
func Deadline(ts int64) slog.Attr { return slog.Int64("deadline", ts) }

// PreviousDeadline creates a tag for the previous deadline timestamp.
func PreviousDeadline(ts int64) slog.Attr { return slog.Int64("previous-deadline", ts) }

// Now creates a tag for the wall-clock second an invocation ran at.
func Now(ts int64) slog.Attr { return slog.Int64("now", ts) }

// Outcome creates a tag for an invocation outcome.
func Outcome(o string) slog.Attr { return slog.String("outcome", o) }

// Source creates a tag for the read path a snapshot came from.
func Source(s string) slog.Attr { return slog.String("source", s) }

// URL creates a tag for a remote endpoint.
func URL(u string) slog.Attr { return slog.String("url", u) }

// Status creates a tag for an HTTP status code.
func Status(code int) slog.Attr { return slog.Int("status", code) }

// InvocationID creates a tag for one agent invocation.
func InvocationID(id string) slog.Attr { return slog.String("invocation-id", id) }
