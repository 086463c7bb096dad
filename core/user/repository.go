package user

import (
	"context"
	"errors"
)

var (
	// errors
	ErrNotFound        = errors.New("user not found")
	ErrProfileNotFound = errors.New("profile not found")
	ErrEmailExists     = errors.New("a user with this email already exists")
)

type (
	// Repository persists Accounts and their Profiles.
	Repository interface {
		// CreateAccount atomically saves a new Account and its Profile.
		CreateAccount(ctx context.Context, acc Account, prof Profile) (Account, Profile, error)
		GetAccountByID(ctx context.Context, id string) (Account, error)
		GetAccountByEmail(ctx context.Context, email string) (Account, error)
		// UpdateAccount saves the password hash, active flag, confirmation & last login of acc.
		UpdateAccount(ctx context.Context, acc Account) (Account, error)
		GetProfileByUserID(ctx context.Context, userID string) (Profile, error)
		// UpdateProfile only saves the set fields of upd.
		UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (Profile, error)
		// QueryProfiles returns all profiles of a tenant, optionally filtered by roles.
		QueryProfiles(ctx context.Context, tenantID string, roles ...Role) ([]Profile, error)
	}
)
