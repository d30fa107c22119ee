// Package resolver reads the coordination record through plain DNS.
//
// This is the fast read path. It is cheap, but it lags behind the record
// store right after a write: a record created seconds ago may still be
// reported as absent, and an updated one may still show old content.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrNotFound is returned when the name has no TXT record. It is the
// ABSENT state, not a failure.
var ErrNotFound = errors.New("txt record not found")

// DefaultNameserver is queried when no nameserver is configured.
const DefaultNameserver = "1.1.1.1:53"

const defaultTimeout = 5 * time.Second

// Reader resolves TXT records.
type Reader interface {
	// ResolveText returns the first TXT string for fqdn, or ErrNotFound.
	ResolveText(ctx context.Context, fqdn string) (string, error)
}

// lookupFunc matches net.Resolver.LookupTXT.
type lookupFunc func(ctx context.Context, name string) ([]string, error)

// DNS is a Reader that queries one fixed nameserver, bypassing the host's
// resolver configuration and its caches.
type DNS struct {
	nameserver string
	timeout    time.Duration
	lookup     lookupFunc
}

var _ Reader = (*DNS)(nil)

// New creates a DNS reader for nameserver ("host" or "host:port"). An
// empty nameserver selects DefaultNameserver.
func New(nameserver string, timeout time.Duration) *DNS {
	addr := NormalizeNameserver(nameserver)
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	r := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			d := net.Dialer{Timeout: timeout}
			return d.DialContext(ctx, network, addr)
		},
	}
	return &DNS{nameserver: addr, timeout: timeout, lookup: r.LookupTXT}
}

// Nameserver returns the address queried.
func (d *DNS) Nameserver() string { return d.nameserver }

// ResolveText implements Reader.
func (d *DNS) ResolveText(ctx context.Context, fqdn string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	txts, err := d.lookup(ctx, fqdn)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return "", fmt.Errorf("%w: %s", ErrNotFound, fqdn)
		}
		return "", fmt.Errorf("resolve %s via %s: %w", fqdn, d.nameserver, err)
	}
	for _, txt := range txts {
		if strings.TrimSpace(txt) != "" {
			return txt, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, fqdn)
}

// NormalizeNameserver adds the default DNS port when missing.
func NormalizeNameserver(ns string) string {
	ns = strings.TrimSpace(ns)
	if ns == "" {
		return DefaultNameserver
	}
	if _, _, err := net.SplitHostPort(ns); err == nil {
		return ns
	}
	return net.JoinHostPort(strings.Trim(ns, "[]"), "53")
}
