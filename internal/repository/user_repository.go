package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/fundflow/be-fund-requests/internal/apperr"
	"github.com/fundflow/be-fund-requests/internal/database"
)

// UserRepository handles user directory lookups, approver candidate queries
// and the final-receiver channel queries.
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID retrieves a user by primary key.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*User, error) {
	query := userSelect + ` WHERE u.id = $1`

	u, err := r.scanUser(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFound("user", id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to get user")
	}
	return u, nil
}

// DesignationIDForUsername returns the designation of the user with the given
// name, or nil when the user does not exist or carries no designation. Used to
// resolve steps configured with a fixed assigned username instead of a
// designation id.
func (r *UserRepository) DesignationIDForUsername(ctx context.Context, username string) (*int64, error) {
	query := `
		SELECT designation_id
		FROM users
		WHERE LOWER(TRIM(name)) = LOWER(TRIM($1))
		LIMIT 1
	`

	var designationID *int64
	err := r.db.QueryRow(ctx, query, username).Scan(&designationID)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to look up designation by username")
	}
	return designationID, nil
}

// candidateSelect is shared by the scoped and global candidate queries so the
// two paths cannot drift apart. Pending counts are system-wide.
const candidateSelect = `
	SELECT u.id, u.name, u.email, u.designation_id,
	       (SELECT COUNT(*) FROM approvals a
	        WHERE a.approver_id = u.id AND a.status = 'pending') AS pending_count
	FROM users u
	WHERE u.designation_id = $1
`

// ScopedCandidates returns users holding the designation, restricted to
// project membership (by trimmed, case-insensitive email) when a project id is
// given. Ordering is left to the caller.
func (r *UserRepository) ScopedCandidates(ctx context.Context, designationID int64, projectID *int64) ([]*Candidate, error) {
	query := candidateSelect
	args := []interface{}{designationID}

	if projectID != nil {
		query += `
		  AND LOWER(TRIM(u.email)) IN (
		      SELECT LOWER(TRIM(up.email)) FROM user_projects up WHERE up.project_id = $2
		  )`
		args = append(args, *projectID)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to query scoped approver candidates")
	}
	defer rows.Close()

	return r.scanCandidates(rows)
}

// GlobalCandidates returns all users holding the designation, with no project
// restriction.
func (r *UserRepository) GlobalCandidates(ctx context.Context, designationID int64) ([]*Candidate, error) {
	rows, err := r.db.Query(ctx, candidateSelect, designationID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to query global approver candidates")
	}
	defer rows.Close()

	return r.scanCandidates(rows)
}

// ── Final receiver channels ───────────────────────────────────────────────────
//
// Each channel query is scoped independently: department matches exactly; a
// project matches via the legacy direct column OR email membership in
// user_projects (union, not intersection).

// FinalReceiversByDesignationIDs returns users whose designation id is in ids.
func (r *UserRepository) FinalReceiversByDesignationIDs(ctx context.Context, ids []int64, scope ReceiverScope) ([]*User, error) {
	if len(ids) == 0 {
		return []*User{}, nil
	}

	query := userSelect + ` WHERE u.designation_id = ANY($1)`
	args := []interface{}{ids}
	query, args = applyReceiverScope(query, args, scope)

	return r.queryUsers(ctx, query, args, "failed to query final receivers by designation id")
}

// FinalReceiversByNames returns users whose designation name is in names.
// Names come from final-flagged steps and legacy receiver rows.
func (r *UserRepository) FinalReceiversByNames(ctx context.Context, names []string, scope ReceiverScope) ([]*User, error) {
	if len(names) == 0 {
		return []*User{}, nil
	}

	query := userSelect + `
		JOIN designations d ON d.id = u.designation_id
		WHERE LOWER(TRIM(d.name)) = ANY(SELECT LOWER(TRIM(n)) FROM UNNEST($1::text[]) AS n)`
	args := []interface{}{names}
	query, args = applyReceiverScope(query, args, scope)

	return r.queryUsers(ctx, query, args, "failed to query final receivers by designation name")
}

// FinalReceiversByIDs returns users explicitly listed by id.
func (r *UserRepository) FinalReceiversByIDs(ctx context.Context, ids []int64, scope ReceiverScope) ([]*User, error) {
	if len(ids) == 0 {
		return []*User{}, nil
	}

	query := userSelect + ` WHERE u.id = ANY($1)`
	args := []interface{}{ids}
	query, args = applyReceiverScope(query, args, scope)

	return r.queryUsers(ctx, query, args, "failed to query final receivers by user id")
}

// applyReceiverScope appends department and project predicates to a channel
// query.
func applyReceiverScope(query string, args []interface{}, scope ReceiverScope) (string, []interface{}) {
	if scope.DepartmentID != nil {
		args = append(args, *scope.DepartmentID)
		query += fmt.Sprintf(" AND u.department_id = $%d", len(args))
	}
	if scope.ProjectID != nil {
		args = append(args, *scope.ProjectID)
		n := len(args)
		query += fmt.Sprintf(`
		  AND (u.project_id = $%d
		       OR LOWER(TRIM(u.email)) IN (
		           SELECT LOWER(TRIM(up.email)) FROM user_projects up WHERE up.project_id = $%d
		       ))`, n, n)
	}
	return query, args
}

// ── scan helpers ──────────────────────────────────────────────────────────────

const userSelect = `
	SELECT u.id, u.name, u.email, u.designation_id, u.department_id, u.project_id, u.created_at
	FROM users u
`

type userScanner interface {
	Scan(dest ...any) error
}

func (r *UserRepository) scanUser(row userScanner) (*User, error) {
	u := &User{}
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.DesignationID,
		&u.DepartmentID,
		&u.ProjectID,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserRepository) queryUsers(ctx context.Context, query string, args []interface{}, errMsg string) ([]*User, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, errMsg)
	}
	defer rows.Close()

	users := make([]*User, 0)
	for rows.Next() {
		u, err := r.scanUser(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to scan user")
		}
		users = append(users, u)
	}
	return users, nil
}

func (r *UserRepository) scanCandidates(rows pgx.Rows) ([]*Candidate, error) {
	candidates := make([]*Candidate, 0)
	for rows.Next() {
		c := &Candidate{}
		err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.DesignationID, &c.PendingCount)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to scan approver candidate")
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}
