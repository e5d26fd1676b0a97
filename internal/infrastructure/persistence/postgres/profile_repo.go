package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/founderlink/founder-match/internal/domain/matching"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE SNAPSHOT PROVIDER
// ══════════════════════════════════════════════════════════════════════════════

// DefaultPoolLimit caps how many candidates one ranking call reads.
const DefaultPoolLimit = 5000

const profileColumns = `
	id, display_name, role, location, skills, looking_for, industry, stage,
	investment_focus, sectors, mentoring_areas, experience, availability`

// ProfileRepository implements matching.ProfileProvider for PostgreSQL.
type ProfileRepository struct {
	db        Querier
	poolLimit int
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(conn *Connection) *ProfileRepository {
	return NewProfileRepositoryWith(conn.Pool(), DefaultPoolLimit)
}

// NewProfileRepositoryWith creates a repository over any Querier (pool or tx).
func NewProfileRepositoryWith(db Querier, poolLimit int) *ProfileRepository {
	if poolLimit <= 0 {
		poolLimit = DefaultPoolLimit
	}
	return &ProfileRepository{db: db, poolLimit: poolLimit}
}

// GetProfile returns an active profile by ID.
func (r *ProfileRepository) GetProfile(ctx context.Context, id string) (*matching.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1 AND active`

	var row profileRow
	if err := row.scan(r.db.QueryRow(ctx, query, id)); err != nil {
		return nil, wrapErr("GetProfile", fmt.Sprintf("profile %q", id), err)
	}
	p := row.toDomain()
	return &p, nil
}

// ListCandidates returns the active pool, excluding the requester, ordered by ID.
func (r *ProfileRepository) ListCandidates(ctx context.Context, requesterID string) ([]matching.Profile, error) {
	query := `SELECT ` + profileColumns + `
		FROM profiles
		WHERE active AND id <> $1
		ORDER BY id
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, requesterID, r.poolLimit)
	if err != nil {
		return nil, wrapErr("ListCandidates", "failed to query candidate pool", err)
	}
	defer rows.Close()

	pool := make([]matching.Profile, 0, 64)
	for rows.Next() {
		var row profileRow
		if err := row.scan(rows); err != nil {
			return nil, wrapErr("ListCandidates", "failed to scan profile", err)
		}
		pool = append(pool, row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("ListCandidates", "failed to read candidate pool", err)
	}
	return pool, nil
}

// profileRow mirrors the profiles table.
type profileRow struct {
	ID              string
	DisplayName     string
	Role            string
	Location        string
	Skills          []string
	LookingFor      []string
	Industry        string
	Stage           string
	InvestmentFocus []string
	Sectors         []string
	MentoringAreas  []string
	Experience      string
	Availability    string
}

func (r *profileRow) scan(row pgx.Row) error {
	return row.Scan(
		&r.ID, &r.DisplayName, &r.Role, &r.Location, &r.Skills, &r.LookingFor,
		&r.Industry, &r.Stage, &r.InvestmentFocus, &r.Sectors, &r.MentoringAreas,
		&r.Experience, &r.Availability,
	)
}

// toDomain normalises free-text role and stage values. Unknown roles are
// kept as-is so the ranker can drop them as invalid.
func (r profileRow) toDomain() matching.Profile {
	role, ok := matching.ParseRole(r.Role)
	if !ok {
		role = matching.Role(r.Role)
	}
	stage, _ := matching.ParseStage(r.Stage)

	return matching.Profile{
		ID:              r.ID,
		DisplayName:     r.DisplayName,
		Role:            role,
		Location:        r.Location,
		Skills:          r.Skills,
		LookingFor:      r.LookingFor,
		Industry:        r.Industry,
		Stage:           stage,
		InvestmentFocus: r.InvestmentFocus,
		Sectors:         r.Sectors,
		MentoringAreas:  r.MentoringAreas,
		Experience:      r.Experience,
		Availability:    r.Availability,
	}
}
