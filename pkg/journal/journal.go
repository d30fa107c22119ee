// Package journal keeps a local SQLite log of agent invocations.
//
// The shared record only ever shows the latest write. The journal keeps
// the history as this agent saw it: every invocation's outcome, the
// snapshot it ended with, and every writer id observed in the record.
// It is local to one machine and never consulted for coordination.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/daviddao/txtclock/pkg/model"

	_ "modernc.org/sqlite"
)

// timeLayout keeps a fixed-width fraction so stored timestamps sort
// lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Journal manages SQLite operations with WAL mode so status commands can
// read while the agent writes.
type Journal struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database and initializes the schema.
func New(path string) (*Journal, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return j, nil
}

// Close closes the database connection.
func (j *Journal) Close() error { return j.db.Close() }

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS invocations (
		id                TEXT PRIMARY KEY,
		agent_id          TEXT NOT NULL,
		started_at        TEXT NOT NULL,
		now               INTEGER NOT NULL,
		outcome           TEXT NOT NULL,
		source            TEXT NOT NULL,
		deadline          INTEGER NOT NULL,
		previous_deadline INTEGER,
		entry_id          TEXT,
		error             TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_invocations_started ON invocations(started_at);
	CREATE INDEX IF NOT EXISTS idx_invocations_outcome ON invocations(outcome);

	CREATE TABLE IF NOT EXISTS peers (
		id            TEXT PRIMARY KEY,
		first_seen    TEXT NOT NULL,
		last_seen     TEXT NOT NULL,
		last_deadline INTEGER NOT NULL,
		sightings     INTEGER NOT NULL DEFAULT 1
	);
	`
	_, err := j.db.Exec(schema)
	return err
}

// ---------------------------------------------------------------------------
// Invocations
// ---------------------------------------------------------------------------

// RecordInvocation appends an invocation. Ids are unique; recording the
// same id twice is an error.
func (j *Journal) RecordInvocation(ctx context.Context, inv *model.Invocation) error {
	var prev sql.NullInt64
	if inv.PreviousDeadline != nil {
		prev = sql.NullInt64{Int64: *inv.PreviousDeadline, Valid: true}
	}
	return writeBackoff.do(ctx, func(ctx context.Context) error {
		_, err := j.db.ExecContext(ctx,
			`INSERT INTO invocations
			   (id, agent_id, started_at, now, outcome, source, deadline, previous_deadline, entry_id, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inv.ID, inv.AgentID, inv.StartedAt.UTC().Format(timeLayout), inv.Now,
			string(inv.Outcome), string(inv.Source), inv.Deadline, prev, inv.EntryHandle, inv.Error,
		)
		return err
	})
}

// ListInvocations returns the most recent invocations, newest first.
func (j *Journal) ListInvocations(limit int) ([]model.Invocation, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.Query(
		`SELECT id, agent_id, started_at, now, outcome, source, deadline, previous_deadline,
		        COALESCE(entry_id,''), COALESCE(error,'')
		 FROM invocations ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInvocations(rows)
}

// LastInvocation returns the newest invocation, or nil if the journal is
// empty.
func (j *Journal) LastInvocation() (*model.Invocation, error) {
	invs, err := j.ListInvocations(1)
	if err != nil || len(invs) == 0 {
		return nil, err
	}
	return &invs[0], nil
}

// CountInvocations returns the number of invocations per outcome.
func (j *Journal) CountInvocations() (map[model.Outcome]int64, error) {
	rows, err := j.db.Query(`SELECT outcome, COUNT(*) FROM invocations GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.Outcome]int64)
	for rows.Next() {
		var o string
		var n int64
		if err := rows.Scan(&o, &n); err != nil {
			return nil, err
		}
		counts[model.Outcome(o)] = n
	}
	return counts, rows.Err()
}

// PruneInvocations deletes invocations started before cutoff and returns
// how many were removed.
func (j *Journal) PruneInvocations(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := writeBackoff.do(ctx, func(ctx context.Context) error {
		res, err := j.db.ExecContext(ctx, `DELETE FROM invocations WHERE started_at < ?`,
			cutoff.UTC().Format(timeLayout))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

func scanInvocations(rows *sql.Rows) ([]model.Invocation, error) {
	var invs []model.Invocation
	for rows.Next() {
		var inv model.Invocation
		var startedStr, outcome, source string
		var prev sql.NullInt64
		if err := rows.Scan(&inv.ID, &inv.AgentID, &startedStr, &inv.Now, &outcome, &source,
			&inv.Deadline, &prev, &inv.EntryHandle, &inv.Error); err != nil {
			return nil, err
		}
		inv.Outcome = model.Outcome(outcome)
		inv.Source = model.Source(source)
		if prev.Valid {
			v := prev.Int64
			inv.PreviousDeadline = &v
		}
		var parseErr error
		inv.StartedAt, parseErr = time.Parse(time.RFC3339Nano, startedStr)
		if parseErr != nil {
			return nil, fmt.Errorf("parse started_at for invocation %s: %w", inv.ID, parseErr)
		}
		invs = append(invs, inv)
	}
	return invs, rows.Err()
}

// ---------------------------------------------------------------------------
// Peers
// ---------------------------------------------------------------------------

// ObservePeer records that id was seen as the record's writer with the
// given deadline. Idempotent per id; last_deadline never moves backward.
func (j *Journal) ObservePeer(ctx context.Context, id string, deadline int64, at time.Time) error {
	ts := at.UTC().Format(timeLayout)
	return writeBackoff.do(ctx, func(ctx context.Context) error {
		_, err := j.db.ExecContext(ctx,
			`INSERT INTO peers (id, first_seen, last_seen, last_deadline, sightings)
			 VALUES (?, ?, ?, ?, 1)
			 ON CONFLICT(id) DO UPDATE SET
			   last_seen = excluded.last_seen,
			   last_deadline = MAX(peers.last_deadline, excluded.last_deadline),
			   sightings = peers.sightings + 1`,
			id, ts, ts, deadline,
		)
		return err
	})
}

// GetPeer retrieves a peer by id.
func (j *Journal) GetPeer(id string) (*model.Peer, error) {
	row := j.db.QueryRow(
		`SELECT id, first_seen, last_seen, last_deadline, sightings FROM peers WHERE id = ?`, id,
	)
	var p model.Peer
	var firstStr, lastStr string
	if err := row.Scan(&p.ID, &firstStr, &lastStr, &p.LastDeadline, &p.Sightings); err != nil {
		return nil, err
	}
	if err := parsePeerTimes(&p, firstStr, lastStr); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPeers returns all peers, most recently seen first.
func (j *Journal) ListPeers() ([]model.Peer, error) {
	rows, err := j.db.Query(
		`SELECT id, first_seen, last_seen, last_deadline, sightings FROM peers ORDER BY last_seen DESC, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var peers []model.Peer
	for rows.Next() {
		var p model.Peer
		var firstStr, lastStr string
		if err := rows.Scan(&p.ID, &firstStr, &lastStr, &p.LastDeadline, &p.Sightings); err != nil {
			return nil, err
		}
		if err := parsePeerTimes(&p, firstStr, lastStr); err != nil {
			return nil, err
		}
		peers = append(peers, p)
	}
	return peers, rows.Err()
}

func parsePeerTimes(p *model.Peer, firstStr, lastStr string) error {
	var err error
	p.FirstSeen, err = time.Parse(time.RFC3339Nano, firstStr)
	if err != nil {
		return fmt.Errorf("parse first_seen for peer %s: %w", p.ID, err)
	}
	p.LastSeen, err = time.Parse(time.RFC3339Nano, lastStr)
	if err != nil {
		return fmt.Errorf("parse last_seen for peer %s: %w", p.ID, err)
	}
	return nil
}
