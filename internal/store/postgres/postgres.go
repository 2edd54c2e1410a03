// Package postgres is a terminal.Storage implementation backed by a
// PostgreSQL table, the persistent container store spec.md §1 names as an
// external collaborator contract. It is grounded on the teacher's
// pkg/database connection/repository pattern (pgxpool + pgx/v5, a thin
// Exec/Query/QueryRow DB interface, telemetry-wrapped methods), adapted
// from a simulation-record table to a container-record table keyed by
// terminal name.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"terminalsim/internal/terminal"
	"terminalsim/pkg/apperror"
	"terminalsim/pkg/database"
	"terminalsim/pkg/logger"
	"terminalsim/pkg/telemetry"
)

// Store is a terminal.Storage backed by the containers table. Every Store
// is scoped to a single terminal name, the same way memoryStorage is
// scoped to a single Terminal instance — callers building a terminal with
// persistent storage construct one Store per terminal, sharing the
// underlying database.DB connection pool across all of them.
type Store struct {
	db           database.DB
	terminalName string
}

// NewStore builds a Store scoped to terminalName over an already-connected
// database.DB (see pkg/database.NewPostgresDB).
func NewStore(db database.DB, terminalName string) *Store {
	return &Store{db: db, terminalName: terminalName}
}

var _ terminal.Storage = (*Store)(nil)

var sqlOperators = map[string]string{
	"<": "<", "<=": "<=", ">": ">", ">=": ">=", "==": "=", "!=": "<>",
}

// Add persists c under the given added/departure times, upserting on
// (terminal_name, container_id) so a re-add (e.g. after a crash replay)
// overwrites rather than duplicates. Storage.Add has no error return, the
// same fire-and-forget contract memoryStorage gives its callers, so a
// write failure is logged rather than propagated.
func (s *Store) Add(c terminal.Container, addedTime, departureTime float64) {
	ctx := context.Background()
	ctx, span := telemetry.StartSpan(ctx, "postgres.Store.Add")
	defer span.End()

	variables, nextDestination := encodeVariables(c)

	_, err := s.db.Exec(ctx, `
		INSERT INTO containers (terminal_name, container_id, added_time, departure_time, next_destination, current_location, variables)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (terminal_name, container_id) DO UPDATE SET
			added_time = EXCLUDED.added_time,
			departure_time = EXCLUDED.departure_time,
			next_destination = EXCLUDED.next_destination,
			current_location = EXCLUDED.current_location,
			variables = EXCLUDED.variables
	`, s.terminalName, c.ID(), addedTime, departureTime, nextDestination, c.CurrentLocation(), variables)
	if err != nil {
		telemetry.SetError(ctx, err)
		logger.Error("container store add failed", "terminal", s.terminalName, "container_id", c.ID(), "error", err)
	}
}

// Count returns the number of containers currently stored for this
// terminal.
func (s *Store) Count() int {
	ctx := context.Background()
	var count int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM containers WHERE terminal_name = $1`, s.terminalName).Scan(&count)
	if err != nil {
		logger.Error("container store count failed", "terminal", s.terminalName, "error", err)
		return 0
	}
	return count
}

// ByDepartingTime returns every stored container whose departure_time
// satisfies condition relative to t.
func (s *Store) ByDepartingTime(t float64, condition string) ([]terminal.Container, error) {
	return s.byTime(context.Background(), "departure_time", t, condition)
}

// ByAddedTime returns every stored container whose added_time satisfies
// condition relative to t.
func (s *Store) ByAddedTime(t float64, condition string) ([]terminal.Container, error) {
	return s.byTime(context.Background(), "added_time", t, condition)
}

func (s *Store) byTime(ctx context.Context, column string, t float64, condition string) ([]terminal.Container, error) {
	op, ok := sqlOperators[condition]
	if !ok {
		return nil, apperror.New(apperror.CodeInvalidArgs, "invalid condition: "+condition+". Must be one of: <, <=, >, >=, ==, !=")
	}
	ctx, span := telemetry.StartSpan(ctx, "postgres.Store.byTime")
	defer span.End()

	query := fmt.Sprintf(`
		SELECT container_id, current_location, variables
		FROM containers
		WHERE terminal_name = $1 AND %s %s $2
		ORDER BY container_id
	`, column, op)

	rows, err := s.db.Query(ctx, query, s.terminalName, t)
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, apperror.Wrap(err, apperror.CodePersistenceError, "failed to query containers by "+column)
	}
	defer rows.Close()
	return scanContainers(rows)
}

// ByNextDestination returns every stored container whose next_destination
// custom variable equals dest.
func (s *Store) ByNextDestination(dest string) []terminal.Container {
	ctx := context.Background()
	ctx, span := telemetry.StartSpan(ctx, "postgres.Store.ByNextDestination")
	defer span.End()

	rows, err := s.db.Query(ctx, `
		SELECT container_id, current_location, variables
		FROM containers
		WHERE terminal_name = $1 AND next_destination = $2
		ORDER BY container_id
	`, s.terminalName, dest)
	if err != nil {
		telemetry.SetError(ctx, err)
		logger.Error("container store query by next destination failed", "terminal", s.terminalName, "error", err)
		return nil
	}
	defer rows.Close()
	containers, err := scanContainers(rows)
	if err != nil {
		logger.Error("container store scan by next destination failed", "terminal", s.terminalName, "error", err)
		return nil
	}
	return containers
}

// DequeueByNextDestination returns and removes every stored container
// whose next_destination custom variable equals dest.
func (s *Store) DequeueByNextDestination(dest string) []terminal.Container {
	ctx := context.Background()
	ctx, span := telemetry.StartSpan(ctx, "postgres.Store.DequeueByNextDestination")
	defer span.End()

	rows, err := s.db.Query(ctx, `
		DELETE FROM containers
		WHERE terminal_name = $1 AND next_destination = $2
		RETURNING container_id, current_location, variables
	`, s.terminalName, dest)
	if err != nil {
		telemetry.SetError(ctx, err)
		logger.Error("container store dequeue failed", "terminal", s.terminalName, "error", err)
		return nil
	}
	defer rows.Close()
	containers, err := scanContainers(rows)
	if err != nil {
		logger.Error("container store dequeue scan failed", "terminal", s.terminalName, "error", err)
		return nil
	}
	return containers
}

// Clear removes every stored container for this terminal.
func (s *Store) Clear() {
	ctx := context.Background()
	_, err := s.db.Exec(ctx, `DELETE FROM containers WHERE terminal_name = $1`, s.terminalName)
	if err != nil {
		logger.Error("container store clear failed", "terminal", s.terminalName, "error", err)
	}
}

// rowScanner is the subset of pgx.Rows this package needs, satisfied by
// both a live *pgxpool.Rows and pgxmock's fake rows in tests.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanContainers(rows rowScanner) ([]terminal.Container, error) {
	var out []terminal.Container
	for rows.Next() {
		var id, location string
		var raw []byte
		if err := rows.Scan(&id, &location, &raw); err != nil {
			return nil, apperror.Wrap(err, apperror.CodePersistenceError, "failed to scan container row")
		}
		c, err := decodeContainer(id, location, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Wrap(err, apperror.CodePersistenceError, "container row iteration failed")
	}
	return out, nil
}

// encodeVariables splits a Container's wire form into its custom-variable
// bag (stored as JSONB) and its next_destination index column.
func encodeVariables(c terminal.Container) ([]byte, *string) {
	raw := c.ToJSON()
	delete(raw, "containerID")
	delete(raw, "currentLocation")

	var nextDestination *string
	if v, ok := c.GetVariable("next_destination"); ok {
		if s, ok := v.(string); ok {
			nextDestination = &s
		}
	}

	b, err := json.Marshal(raw)
	if err != nil {
		b = []byte("{}")
	}
	return b, nextDestination
}

func decodeContainer(id, location string, raw []byte) (terminal.Container, error) {
	var variables map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &variables); err != nil {
			return nil, apperror.Wrap(err, apperror.CodePersistenceError, "failed to decode container variables")
		}
	}
	wire := make(map[string]any, len(variables)+2)
	for k, v := range variables {
		wire[k] = v
	}
	wire["containerID"] = id
	wire["currentLocation"] = location
	return terminal.RecordFromJSON(wire), nil
}
