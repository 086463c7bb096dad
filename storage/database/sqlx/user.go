package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-portals/core/user"
)

const (
	accountColumns = "id, email, password_hash, is_active, confirmed_at, created_at, updated_at, last_login"
	profileColumns = "id, user_id, tenant_id, role, first_name, last_name, email, phone, avatar_url"

	uniqueViolation = "23505"
)

type (
	accountRow struct {
		ID           string    `db:"id"`
		Email        string    `db:"email"`
		PasswordHash []byte    `db:"password_hash"`
		IsActive     bool      `db:"is_active"`
		ConfirmedAt  null.Time `db:"confirmed_at"`
		CreatedAt    time.Time `db:"created_at"`
		UpdatedAt    time.Time `db:"updated_at"`
		LastLogin    null.Time `db:"last_login"`
	}

	profileRow struct {
		ID        string      `db:"id"`
		UserID    string      `db:"user_id"`
		TenantID  string      `db:"tenant_id"`
		Role      string      `db:"role"`
		FirstName string      `db:"first_name"`
		LastName  string      `db:"last_name"`
		Email     string      `db:"email"`
		Phone     null.String `db:"phone"`
		AvatarURL null.String `db:"avatar_url"`
	}
)

func newAccountRow(acc user.Account) accountRow {
	return accountRow{
		ID:           acc.ID,
		Email:        acc.Email,
		PasswordHash: acc.PasswordHash,
		IsActive:     acc.IsActive,
		ConfirmedAt:  null.TimeFromPtr(acc.ConfirmedAt),
		CreatedAt:    acc.CreatedAt.UTC(),
		UpdatedAt:    acc.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(acc.LastLogin.UTC(), !acc.LastLogin.IsZero()),
	}
}

func (r accountRow) toAccount() user.Account {
	acc := user.Account{
		ID:           r.ID,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		IsActive:     r.IsActive,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if r.ConfirmedAt.Valid {
		t := r.ConfirmedAt.Time.UTC()
		acc.ConfirmedAt = &t
	}
	if r.LastLogin.Valid {
		acc.LastLogin = r.LastLogin.Time.UTC()
	}
	return acc
}

func newProfileRow(p user.Profile) profileRow {
	return profileRow{
		ID:        p.ID,
		UserID:    p.UserID,
		TenantID:  p.TenantID,
		Role:      p.Role.String(),
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
		Phone:     null.NewString(p.Phone, p.Phone != ""),
		AvatarURL: null.NewString(p.AvatarURL, p.AvatarURL != ""),
	}
}

func (r profileRow) toProfile() user.Profile {
	return user.Profile{
		ID:        r.ID,
		UserID:    r.UserID,
		TenantID:  r.TenantID,
		Role:      user.Role(r.Role),
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     r.Email,
		Phone:     r.Phone.String,
		AvatarURL: r.AvatarURL.String,
	}
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CreateAccount(ctx context.Context, acc user.Account, prof user.Profile) (user.Account, user.Profile, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return user.Account{}, user.Profile{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	q := fmt.Sprintf("INSERT INTO accounts (%s) VALUES (%s)", accountColumns, namedValues(accountColumns))
	if _, err = tx.NamedExecContext(ctx, q, newAccountRow(acc)); err != nil {
		if isUniqueViolation(err) {
			return user.Account{}, user.Profile{}, user.ErrEmailExists
		}
		return user.Account{}, user.Profile{}, errors.Wrap(err, "inserting account")
	}
	q = fmt.Sprintf("INSERT INTO profiles (%s) VALUES (%s)", profileColumns, namedValues(profileColumns))
	if _, err = tx.NamedExecContext(ctx, q, newProfileRow(prof)); err != nil {
		return user.Account{}, user.Profile{}, errors.Wrap(err, "inserting profile")
	}

	if err = tx.Commit(); err != nil {
		return user.Account{}, user.Profile{}, errors.Wrap(err, "committing transaction")
	}
	return acc, prof, nil
}

func (repo *userRepository) getAccount(ctx context.Context, where string, arg interface{}) (user.Account, error) {
	var row accountRow
	q := fmt.Sprintf("SELECT %s FROM accounts WHERE %s = $1", accountColumns, where)
	if err := repo.db.GetContext(ctx, &row, q, arg); err != nil {
		if err == sql.ErrNoRows {
			return user.Account{}, user.ErrNotFound
		}
		return user.Account{}, errors.Wrap(err, "selecting account")
	}
	return row.toAccount(), nil
}

func (repo *userRepository) GetAccountByID(ctx context.Context, id string) (user.Account, error) {
	return repo.getAccount(ctx, "id", id)
}

func (repo *userRepository) GetAccountByEmail(ctx context.Context, email string) (user.Account, error) {
	return repo.getAccount(ctx, "email", email)
}

func (repo *userRepository) UpdateAccount(ctx context.Context, acc user.Account) (user.Account, error) {
	q := `UPDATE accounts
		SET password_hash = :password_hash, is_active = :is_active, confirmed_at = :confirmed_at,
			updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, newAccountRow(acc))
	if err != nil {
		return user.Account{}, errors.Wrap(err, "updating account")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.Account{}, user.ErrNotFound
	}
	return acc, nil
}

func (repo *userRepository) GetProfileByUserID(ctx context.Context, userID string) (user.Profile, error) {
	var row profileRow
	q := fmt.Sprintf("SELECT %s FROM profiles WHERE user_id = $1", profileColumns)
	if err := repo.db.GetContext(ctx, &row, q, userID); err != nil {
		if err == sql.ErrNoRows {
			return user.Profile{}, user.ErrProfileNotFound
		}
		return user.Profile{}, errors.Wrap(err, "selecting profile")
	}
	return row.toProfile(), nil
}

func (repo *userRepository) UpdateProfile(ctx context.Context, userID string, upd user.ProfileUpdate) (user.Profile, error) {
	// only save set fields
	var (
		sets []string
		args []interface{}
	)
	set := func(col string, val interface{}) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.FirstName != nil {
		set("first_name", *upd.FirstName)
	}
	if upd.LastName != nil {
		set("last_name", *upd.LastName)
	}
	if upd.Email != nil {
		set("email", *upd.Email)
	}
	if upd.Phone != nil {
		set("phone", null.NewString(*upd.Phone, *upd.Phone != ""))
	}
	if upd.AvatarURL != nil {
		set("avatar_url", null.NewString(*upd.AvatarURL, *upd.AvatarURL != ""))
	}
	if upd.Role != nil {
		set("role", upd.Role.String())
	}
	if len(sets) == 0 {
		return repo.GetProfileByUserID(ctx, userID)
	}

	args = append(args, userID)
	q := fmt.Sprintf("UPDATE profiles SET %s WHERE user_id = $%d RETURNING %s", strings.Join(sets, ", "), len(args), profileColumns)
	var row profileRow
	if err := repo.db.GetContext(ctx, &row, q, args...); err != nil {
		if err == sql.ErrNoRows {
			return user.Profile{}, user.ErrProfileNotFound
		}
		return user.Profile{}, errors.Wrap(err, "updating profile")
	}
	return row.toProfile(), nil
}

func (repo *userRepository) QueryProfiles(ctx context.Context, tenantID string, roles ...user.Role) ([]user.Profile, error) {
	q := fmt.Sprintf("SELECT %s FROM profiles WHERE tenant_id = ?", profileColumns)
	args := []interface{}{tenantID}
	if len(roles) > 0 {
		names := make([]string, len(roles))
		for i, r := range roles {
			names[i] = r.String()
		}
		q += " AND role IN (?)"
		args = append(args, names)
	}
	q += " ORDER BY last_name, first_name"

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var rows []profileRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "selecting profiles")
	}
	profiles := make([]user.Profile, len(rows))
	for i, r := range rows {
		profiles[i] = r.toProfile()
	}
	return profiles, nil
}

// namedValues turns "a, b" into ":a, :b".
func namedValues(columns string) string {
	cols := strings.Split(columns, ", ")
	for i, c := range cols {
		cols[i] = ":" + c
	}
	return strings.Join(cols, ", ")
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
