package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/daviddao/txtclock/pkg/model"
)

// sqliteCode stands in for a driver error carrying an extended result code.
type sqliteCode int

func (c sqliteCode) Error() string { return fmt.Sprintf("sqlite error (%d)", int(c)) }
func (c sqliteCode) Code() int     { return int(c) }

func TestContended(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("database is locked"), false},
		{"busy", sqliteCode(sqlite3.SQLITE_BUSY), true},
		{"busy snapshot", sqliteCode(sqlite3.SQLITE_BUSY_SNAPSHOT), true},
		{"locked wrapped", fmt.Errorf("insert: %w", sqliteCode(sqlite3.SQLITE_LOCKED)), true},
		{"short read", sqliteCode(sqlite3.SQLITE_IOERR_SHORT_READ), true},
		{"other ioerr", sqliteCode(sqlite3.SQLITE_IOERR), false},
		{"constraint", sqliteCode(sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, contended(tt.err))
		})
	}
}

func TestContended_RealLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock.db")
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(0)"

	holder, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer holder.Close()
	_, err = holder.Exec(`CREATE TABLE t (v INTEGER)`)
	require.NoError(t, err)

	conn, err := holder.Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.ExecContext(ctx, `BEGIN IMMEDIATE`)
	require.NoError(t, err)
	defer func() { _, _ = conn.ExecContext(ctx, `ROLLBACK`) }()

	other, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer other.Close()
	_, err = other.Exec(`INSERT INTO t (v) VALUES (1)`)
	require.Error(t, err)
	assert.True(t, contended(err), "got %v", err)
}

func noWait(int64) int64 { return 0 }

func TestBackoffDo(t *testing.T) {
	b := backoff{attempts: 4, step: time.Millisecond, ceiling: 5 * time.Millisecond, draw: noWait}
	busy := sqliteCode(sqlite3.SQLITE_BUSY)

	t.Run("succeeds first time", func(t *testing.T) {
		calls := 0
		err := b.do(ctx, func(context.Context) error { calls++; return nil })
		assert.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("other errors are returned at once", func(t *testing.T) {
		calls := 0
		dup := sqliteCode(sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY)
		err := b.do(ctx, func(context.Context) error { calls++; return dup })
		assert.ErrorIs(t, err, dup)
		assert.Equal(t, 1, calls)
	})

	t.Run("contention clears", func(t *testing.T) {
		calls := 0
		err := b.do(ctx, func(context.Context) error {
			calls++
			if calls < 3 {
				return busy
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("attempts run out", func(t *testing.T) {
		calls := 0
		err := b.do(ctx, func(context.Context) error { calls++; return busy })
		assert.ErrorIs(t, err, busy)
		assert.Equal(t, 4, calls)
	})
}

func TestBackoffDo_CancelStopsWaiting(t *testing.T) {
	b := backoff{attempts: 10, step: time.Hour, ceiling: time.Hour, draw: func(n int64) int64 { return n - 1 }}
	busy := sqliteCode(sqlite3.SQLITE_BUSY)

	cctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- b.do(cctx, func(context.Context) error { calls++; return busy })
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, busy)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("retry kept waiting after cancellation")
	}
}

func TestRecordInvocation_CancelledContext(t *testing.T) {
	j := newTestJournal(t)
	cctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := j.RecordInvocation(cctx, &model.Invocation{ID: "x", AgentID: "me", StartedAt: time.Now()})
	assert.ErrorIs(t, err, context.Canceled)

	invs, err := j.ListInvocations(0)
	require.NoError(t, err)
	assert.Empty(t, invs)
}

func TestBackoffWait(t *testing.T) {
	top := backoff{step: 25 * time.Millisecond, ceiling: 250 * time.Millisecond, draw: func(n int64) int64 { return n - 1 }}
	assert.Equal(t, 25*time.Millisecond, top.wait(0))
	assert.Equal(t, 100*time.Millisecond, top.wait(2))
	assert.Equal(t, 250*time.Millisecond, top.wait(5), "capped")
	assert.Equal(t, 250*time.Millisecond, top.wait(40), "no shift overflow")

	bottom := top
	bottom.draw = noWait
	assert.Equal(t, time.Nanosecond, bottom.wait(3))
}
