package tracestore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/postalsys/muti-sim/internal/eventlog"
	"github.com/postalsys/muti-sim/internal/identity"
	"github.com/postalsys/muti-sim/internal/stats"
)

const insertEvent = `INSERT INTO events (
	run_id, seq, tick, type, peer, from_peer, via_peer, to_peer, packet_id,
	reason, detail, size, hops, interface_id, latency_us, success
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectEvents = `SELECT seq, tick, type, peer, from_peer, via_peer, to_peer, packet_id,
	reason, detail, size, hops, interface_id, latency_us, success
FROM events WHERE run_id = ?`

// AppendEvents stores events for a run in one transaction.
func (s *Store) AppendEvents(ctx context.Context, runID string, events []eventlog.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertEvent)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, eventArgs(runID, e)...); err != nil {
			return fmt.Errorf("insert event %d: %w", e.Seq, err)
		}
	}
	return tx.Commit()
}

func eventArgs(runID string, e eventlog.Event) []any {
	var reason, packet string
	if e.Reason != 0 {
		reason = e.Reason.String()
	}
	if !e.PacketID.IsZero() {
		packet = e.PacketID.String()
	}
	var success sql.NullBool
	if e.Success != nil {
		success = sql.NullBool{Bool: *e.Success, Valid: true}
	}
	return []any{
		runID, e.Seq, e.Tick, e.Type.String(),
		string(e.Peer), string(e.From), string(e.Via), string(e.To), packet,
		reason, e.Detail, e.Size, e.Hops, e.InterfaceID, e.LatencyUs, success,
	}
}

// SaveRun stores a complete run with its events and returns the run ID.
func (s *Store) SaveRun(ctx context.Context, run Run, events []eventlog.Event) (string, error) {
	id, err := s.BeginRun(ctx, run)
	if err != nil {
		return "", err
	}
	if err := s.AppendEvents(ctx, id, events); err != nil {
		return "", err
	}
	return id, nil
}

// Events returns every event of a run in sequence order.
func (s *Store) Events(ctx context.Context, runID string) ([]eventlog.Event, error) {
	return s.queryEvents(ctx, selectEvents+` ORDER BY seq`, runID)
}

// EventsByType returns the events of one type in sequence order.
func (s *Store) EventsByType(ctx context.Context, runID string, t eventlog.Type) ([]eventlog.Event, error) {
	return s.queryEvents(ctx, selectEvents+` AND type = ? ORDER BY seq`, runID, t.String())
}

// EventsForPacket returns the events that mention a packet.
func (s *Store) EventsForPacket(ctx context.Context, runID string, id identity.PacketID) ([]eventlog.Event, error) {
	return s.queryEvents(ctx, selectEvents+` AND packet_id = ? ORDER BY seq`, runID, id.String())
}

// CountByType returns the number of events of each type in a run.
func (s *Store) CountByType(ctx context.Context, runID string) (map[eventlog.Type]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, COUNT(*) FROM events WHERE run_id = ? GROUP BY type`, runID)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[eventlog.Type]int)
	for rows.Next() {
		var (
			name string
			n    int
			t    eventlog.Type
		)
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		if err := t.UnmarshalText([]byte(name)); err != nil {
			return nil, err
		}
		counts[t] = n
	}
	return counts, rows.Err()
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]eventlog.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []eventlog.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanEvent(row scanner) (eventlog.Event, error) {
	var (
		e                   eventlog.Event
		typ, reason, packet string
		peer, from, via, to string
		success             sql.NullBool
	)
	err := row.Scan(&e.Seq, &e.Tick, &typ, &peer, &from, &via, &to, &packet,
		&reason, &e.Detail, &e.Size, &e.Hops, &e.InterfaceID, &e.LatencyUs, &success)
	if err != nil {
		return e, fmt.Errorf("scan event: %w", err)
	}
	if err := e.Type.UnmarshalText([]byte(typ)); err != nil {
		return e, err
	}
	if reason != "" {
		if err := e.Reason.UnmarshalText([]byte(reason)); err != nil {
			return e, err
		}
	}
	if packet != "" {
		if e.PacketID, err = identity.ParsePacketID(packet); err != nil {
			return e, err
		}
	}
	e.Peer = identity.PeerID(peer)
	e.From = identity.PeerID(from)
	e.Via = identity.PeerID(via)
	e.To = identity.PeerID(to)
	if success.Valid {
		e.Success = eventlog.Outcome(success.Bool)
	}
	return e, nil
}

// Writer streams events of one run into the store in batches. Write has
// the signature of a simulation event hook; the first storage error is kept
// and returned by Flush and Close.
type Writer struct {
	store     *Store
	runID     string
	batchSize int
	pending   []eventlog.Event
	written   int
	err       error
}

// NewWriter creates a writer for an existing run. A batchSize below one
// selects 1000.
func (s *Store) NewWriter(runID string, batchSize int) *Writer {
	if batchSize < 1 {
		batchSize = 1000
	}
	return &Writer{store: s, runID: runID, batchSize: batchSize}
}

// RunID returns the run the writer appends to.
func (w *Writer) RunID() string {
	return w.runID
}

// Written returns the number of events flushed so far.
func (w *Writer) Written() int {
	return w.written
}

// Write buffers e and flushes when the batch is full.
func (w *Writer) Write(e eventlog.Event) {
	if w.err != nil {
		return
	}
	w.pending = append(w.pending, e)
	if len(w.pending) >= w.batchSize {
		w.err = w.Flush(context.Background())
	}
}

// Flush writes every buffered event.
func (w *Writer) Flush(ctx context.Context) error {
	if w.err != nil {
		return w.err
	}
	if err := w.store.AppendEvents(ctx, w.runID, w.pending); err != nil {
		w.err = err
		return err
	}
	w.written += len(w.pending)
	w.pending = w.pending[:0]
	return nil
}

// Close flushes the remaining events and records the run's final state.
func (w *Writer) Close(ctx context.Context, ticks uint64, st *stats.Stats) error {
	if err := w.Flush(ctx); err != nil {
		return err
	}
	return w.store.FinishRun(ctx, w.runID, ticks, st)
}
