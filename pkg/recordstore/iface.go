// Package recordstore talks to the DNS provider API that hosts the
// coordination record.
//
// The API is the authoritative read path: slower than a DNS query, but
// consistent with the last accepted write. Client is the narrow surface
// the agent depends on; *Cloudflare implements it.
package recordstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
)

// ErrZoneNotFound is returned by FindZone when the provider has no zone
// with the requested name.
var ErrZoneNotFound = errors.New("zone not found")

// Entry is one DNS record as listed by the provider.
type Entry struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
}

// Record is the body of a create or update call.
type Record struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
}

// Client defines the record store operations the agent uses.
type Client interface {
	// FindZone resolves a domain to the provider's zone id.
	FindZone(ctx context.Context, domain string) (string, error)

	// ListEntries returns the zone's records in provider order.
	ListEntries(ctx context.Context, zoneID string) ([]Entry, error)

	// CreateEntry creates a record and returns its id.
	CreateEntry(ctx context.Context, zoneID string, rec Record) (string, error)

	// UpdateEntry patches the record with the given id.
	UpdateEntry(ctx context.Context, zoneID, entryID string, rec Record) error
}

// Compile-time check that *Cloudflare implements Client.
var _ Client = (*Cloudflare)(nil)

// FindEntry returns the first entry named fqdn. Names compare without
// case and without a trailing dot.
func FindEntry(entries []Entry, fqdn string) (Entry, bool) {
	want := normalizeName(fqdn)
	for _, e := range entries {
		if normalizeName(e.Name) == want {
			return e, true
		}
	}
	return Entry{}, false
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "."))
}

// codeRecordNotFound is Cloudflare's "Record does not exist".
const codeRecordNotFound = 81044

// APIError is a failed provider call.
type APIError struct {
	Op         string
	StatusCode int
	Codes      []int
	Messages   []string
}

// IsNotFound reports whether err says the addressed record does not exist.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusNotFound || slices.Contains(apiErr.Codes, codeRecordNotFound)
}

func (e *APIError) Error() string {
	msg := strings.Join(e.Messages, "; ")
	if msg == "" {
		msg = "request failed"
	}
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, msg)
}
