// retry.go retries journal writes that lose a lock race.
//
// The agent writes while `txc status` or `txc log` may be reading the
// same WAL database. busy_timeout absorbs most of that; what still comes
// back as a lock error is retried here until the attempts run out or the
// invocation's context ends.
package journal

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	sqlite3 "modernc.org/sqlite/lib"
)

// codedError is implemented by *sqlite.Error.
type codedError interface {
	Code() int
}

// contended reports whether err is a lock or short-read condition that
// clears once the other connection is done.
func contended(err error) bool {
	var ce codedError
	if !errors.As(err, &ce) {
		return false
	}
	code := ce.Code()
	if code == sqlite3.SQLITE_IOERR_SHORT_READ {
		return true
	}
	switch code & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// backoff bounds how often and how long a contended write is retried.
type backoff struct {
	attempts int
	step     time.Duration
	ceiling  time.Duration
	draw     func(int64) int64
}

var writeBackoff = backoff{
	attempts: 4,
	step:     25 * time.Millisecond,
	ceiling:  250 * time.Millisecond,
	draw:     rand.Int64N,
}

// wait is the pause before retry n, drawn uniformly from
// (0, min(step*2^n, ceiling)].
func (b backoff) wait(n int) time.Duration {
	window := b.ceiling
	if n < 16 && b.step<<n < window {
		window = b.step << n
	}
	if window <= 0 {
		return 0
	}
	return time.Duration(1 + b.draw(int64(window)))
}

// do runs op until it succeeds, fails with something other than
// contention, or runs out of attempts. Cancelling ctx ends the wait
// between attempts; the last op error is returned joined with ctx.Err().
func (b backoff) do(ctx context.Context, op func(context.Context) error) error {
	for n := 0; ; n++ {
		err := op(ctx)
		if err == nil || !contended(err) || n+1 >= b.attempts {
			return err
		}
		timer := time.NewTimer(b.wait(n))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}
