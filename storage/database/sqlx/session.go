package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-portals/core/auth"
)

type sessionRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
	ExpiresAt time.Time `db:"expires_at"`
	RevokedAt null.Time `db:"revoked_at"`
}

func (r sessionRow) toRecord() auth.SessionRecord {
	rec := auth.SessionRecord{
		ID:        r.ID,
		UserID:    r.UserID,
		CreatedAt: r.CreatedAt.UTC(),
		ExpiresAt: r.ExpiresAt.UTC(),
	}
	if r.RevokedAt.Valid {
		t := r.RevokedAt.Time.UTC()
		rec.RevokedAt = &t
	}
	return rec
}

type sessionRepository struct {
	db *sqlx.DB
}

var _ auth.SessionRepository = (*sessionRepository)(nil)

func NewSessionRepository(db *sqlx.DB) auth.SessionRepository {
	return &sessionRepository{db: db}
}

func (repo *sessionRepository) CreateSession(ctx context.Context, rec auth.SessionRecord) error {
	row := sessionRow{
		ID:        rec.ID,
		UserID:    rec.UserID,
		CreatedAt: rec.CreatedAt.UTC(),
		ExpiresAt: rec.ExpiresAt.UTC(),
		RevokedAt: null.TimeFromPtr(rec.RevokedAt),
	}
	q := `INSERT INTO sessions (id, user_id, created_at, expires_at, revoked_at)
		VALUES (:id, :user_id, :created_at, :expires_at, :revoked_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return errors.Wrap(err, "inserting session")
	}
	return nil
}

func (repo *sessionRepository) GetSession(ctx context.Context, id string) (auth.SessionRecord, error) {
	var row sessionRow
	q := "SELECT id, user_id, created_at, expires_at, revoked_at FROM sessions WHERE id = $1"
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return auth.SessionRecord{}, auth.ErrSessionNotFound
		}
		return auth.SessionRecord{}, errors.Wrap(err, "selecting session")
	}
	return row.toRecord(), nil
}

func (repo *sessionRepository) RevokeSession(ctx context.Context, id string, at time.Time) error {
	q := "UPDATE sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL"
	if _, err := repo.db.ExecContext(ctx, q, id, at.UTC()); err != nil {
		return errors.Wrap(err, "revoking session")
	}
	return nil
}

func (repo *sessionRepository) RevokeUserSessions(ctx context.Context, userID string, at time.Time) ([]string, error) {
	var ids []string
	q := `UPDATE sessions SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		RETURNING id`
	if err := repo.db.SelectContext(ctx, &ids, q, userID, at.UTC()); err != nil {
		return nil, errors.Wrap(err, "revoking user sessions")
	}
	return ids, nil
}
