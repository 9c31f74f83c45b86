package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fundflow/be-fund-requests/internal/apperr"
	"github.com/fundflow/be-fund-requests/internal/database"
)

// DelegationRepository handles personal delegation rows.
type DelegationRepository struct {
	db *database.DB
}

// NewDelegationRepository creates a new DelegationRepository.
func NewDelegationRepository(db *database.DB) *DelegationRepository {
	return &DelegationRepository{db: db}
}

// ActiveDelegation returns the most recently created delegation from the given
// user that is not revoked and whose window contains now (start inclusive, end
// exclusive, UTC). Returns nil when none is active.
func (r *DelegationRepository) ActiveDelegation(ctx context.Context, fromUserID int64, now time.Time) (*Delegation, error) {
	query := `
		SELECT id, from_user_id, to_user_id, starts_at, ends_at, revoked, created_at
		FROM delegations
		WHERE from_user_id = $1
		  AND revoked = FALSE
		  AND starts_at <= $2
		  AND ends_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	d := &Delegation{}
	err := r.db.QueryRow(ctx, query, fromUserID, now.UTC()).Scan(
		&d.ID,
		&d.FromUserID,
		&d.ToUserID,
		&d.StartsAt,
		&d.EndsAt,
		&d.Revoked,
		&d.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to get active delegation")
	}
	return d, nil
}

// Create inserts a delegation row.
func (r *DelegationRepository) Create(ctx context.Context, d *Delegation) error {
	query := `
		INSERT INTO delegations (from_user_id, to_user_id, starts_at, ends_at, revoked)
		VALUES ($1, $2, $3, $4, FALSE)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query,
		d.FromUserID,
		d.ToUserID,
		d.StartsAt.UTC(),
		d.EndsAt.UTC(),
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to create delegation")
	}
	return nil
}

// Revoke marks a delegation revoked. Revoked rows are never considered at
// resolution time.
func (r *DelegationRepository) Revoke(ctx context.Context, id int64) error {
	query := `
		UPDATE delegations
		SET revoked = TRUE
		WHERE id = $1
		RETURNING id
	`

	var returnedID int64
	err := r.db.QueryRow(ctx, query, id).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperr.NotFound("delegation", id)
	}
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to revoke delegation")
	}
	return nil
}

// ListForUser returns all delegations created by a user, newest first.
func (r *DelegationRepository) ListForUser(ctx context.Context, fromUserID int64) ([]*Delegation, error) {
	query := `
		SELECT id, from_user_id, to_user_id, starts_at, ends_at, revoked, created_at
		FROM delegations
		WHERE from_user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, fromUserID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to list delegations")
	}
	defer rows.Close()

	var delegations []*Delegation
	for rows.Next() {
		d := &Delegation{}
		err := rows.Scan(&d.ID, &d.FromUserID, &d.ToUserID, &d.StartsAt, &d.EndsAt, &d.Revoked, &d.CreatedAt)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to scan delegation")
		}
		delegations = append(delegations, d)
	}
	return delegations, nil
}
