package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const defaultClaimTable = "posted_line_claims"

// ClaimRepository is the durable posting guard. A claim is taken before the
// ledger call; a line whose claim insert loses means another worker already
// posted it (or is posting it) and must be skipped.
type ClaimRepository struct {
	db    *sql.DB
	table string
}

// NewClaimRepository constructs a repository.
func NewClaimRepository(db *sql.DB, opts ...ClaimOption) *ClaimRepository {
	repo := &ClaimRepository{db: db, table: defaultClaimTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// ClaimOption configures the repository.
type ClaimOption func(*ClaimRepository)

// WithClaimTable overrides the table name.
func WithClaimTable(table string) ClaimOption {
	return func(repo *ClaimRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Claim takes the posting claim for a line. Returns false when the claim is
// already held.
func (r *ClaimRepository) Claim(ctx context.Context, lineID string) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("claim repo: nil db")
	}
	if lineID == "" {
		return false, errors.New("claim repo: empty line id")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (line_id, claimed_at)
VALUES ($1, $2)
ON CONFLICT (line_id) DO NOTHING`, r.table)
	result, err := r.db.ExecContext(ctx, query, lineID, time.Now().UTC())
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// Release frees the claim after a failed post so a retry run can claim again.
// Claims of posted lines are never released.
func (r *ClaimRepository) Release(ctx context.Context, lineID string) error {
	if r == nil || r.db == nil {
		return errors.New("claim repo: nil db")
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE line_id = $1`, r.table)
	_, err := r.db.ExecContext(ctx, query, lineID)
	return err
}
