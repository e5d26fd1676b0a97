package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/founderlink/founder-match/internal/domain/matching"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTION STORE
// Swipe facts are append-only; connections are unique per pair.
// ══════════════════════════════════════════════════════════════════════════════

// ConnectionRepository implements matching.ConnectionStore for PostgreSQL.
type ConnectionRepository struct {
	conn  *Connection
	newID func() uuid.UUID
}

// NewConnectionRepository creates a new ConnectionRepository.
func NewConnectionRepository(conn *Connection) *ConnectionRepository {
	return &ConnectionRepository{conn: conn, newID: uuid.New}
}

// SaveSwipe records the swipe and, when it produced a connection, the connection.
// A mutual accept is stored in both directions. Re-saving an existing
// connection is a no-op.
func (r *ConnectionRepository) SaveSwipe(ctx context.Context, result matching.SwipeResult) error {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertSwipeSQL, swipeArgs(r.newID(), result)...); err != nil {
			return err
		}
		for _, args := range connectionRows(result) {
			if _, err := tx.Exec(ctx, insertConnectionSQL, args...); err != nil {
				return err
			}
		}
		return nil
	})
	return wrapErr("SaveSwipe", "failed to save swipe", err)
}

// ListConnections returns connection IDs in creation order.
func (r *ConnectionRepository) ListConnections(ctx context.Context, requesterID string) ([]string, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	rows, err := r.conn.Pool().Query(ctx, `
		SELECT candidate_id FROM connections
		WHERE requester_id = $1
		ORDER BY created_at, candidate_id`, requesterID)
	if err != nil {
		return nil, wrapErr("ListConnections", "failed to query connections", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, wrapErr("ListConnections", "failed to scan connections", err)
	}
	return ids, nil
}

const insertSwipeSQL = `
	INSERT INTO swipes (id, requester_id, candidate_id, action, score, connected, cursor_pos, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

const insertConnectionSQL = `
	INSERT INTO connections (requester_id, candidate_id, via, created_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (requester_id, candidate_id) DO NOTHING`

func swipeArgs(id uuid.UUID, result matching.SwipeResult) []any {
	return []any{
		id,
		result.RequesterID,
		result.Candidate.ID(),
		string(result.Action),
		int(result.Candidate.Score),
		result.Connected,
		result.Cursor,
		result.OccurredAt,
	}
}

// connectionRows returns the connections a swipe creates. Connect is
// one-sided; a connected accept means both sides accepted.
func connectionRows(result matching.SwipeResult) [][]any {
	if !result.Connected {
		return nil
	}
	rows := [][]any{{result.RequesterID, result.Candidate.ID(), string(result.Action), result.OccurredAt}}
	if result.Action == matching.SwipeAccept {
		rows = append(rows, []any{result.Candidate.ID(), result.RequesterID, viaMutual, result.OccurredAt})
	}
	return rows
}

// viaMutual marks the reverse row of a mutual accept.
const viaMutual = "mutual"
