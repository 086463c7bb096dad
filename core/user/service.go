package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portals/core"
)

var nowFunc = func() time.Time { return time.Now().UTC() } // mockable

type Service struct {
	repo     Repository
	validate *validator.Validate
	tokens   *TokenGenerator
}

func NewService(repo Repository, validate *validator.Validate, conf *core.Config) *Service {
	return &Service{
		repo:     repo,
		validate: validate,
		tokens:   NewTokenGenerator("masomo.core.user.token_gen", conf.SecretKey, conf.EmailConfirmationTimeoutDelta),
	}
}

// Register validates and saves a new, unconfirmed, active Account along with its Profile.
func (svc *Service) Register(ctx context.Context, na NewAccount) (Account, Profile, error) {
	if err := na.Validate(svc.validate); err != nil {
		return Account{}, Profile{}, err
	}
	if !na.Role.IsValid() {
		return Account{}, Profile{}, core.NewValidationError(nil, core.FieldError{Field: "role", Error: roleText})
	}
	if _, err := svc.repo.GetAccountByEmail(ctx, na.Email); err == nil {
		return Account{}, Profile{}, core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
	} else if err != ErrNotFound {
		return Account{}, Profile{}, errors.Wrap(err, "checking email uniqueness")
	}

	now := nowFunc()
	acc := Account{
		ID:        uuid.NewString(),
		Email:     na.Email,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := acc.SetPassword(na.Password); err != nil {
		return Account{}, Profile{}, errors.Wrap(err, "hashing password")
	}
	prof := Profile{
		ID:        uuid.NewString(),
		UserID:    acc.ID,
		TenantID:  na.TenantID,
		Role:      na.Role,
		FirstName: na.FirstName,
		LastName:  na.LastName,
		Email:     na.Email,
	}
	acc, prof, err := svc.repo.CreateAccount(ctx, acc, prof)
	if err != nil {
		return Account{}, Profile{}, errors.Wrap(err, "creating account")
	}
	return acc, prof, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Account, error) {
	return svc.repo.GetAccountByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (Account, error) {
	return svc.repo.GetAccountByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *Service) SetLastLogin(ctx context.Context, acc Account) (Account, error) {
	acc.LastLogin = nowFunc()
	acc.UpdatedAt = acc.LastLogin
	return svc.repo.UpdateAccount(ctx, acc)
}

func (svc *Service) SetPassword(ctx context.Context, acc Account, pwd string) (Account, error) {
	if err := acc.SetPassword(pwd); err != nil {
		return Account{}, errors.Wrap(err, "hashing password")
	}
	acc.UpdatedAt = nowFunc()
	return svc.repo.UpdateAccount(ctx, acc)
}

func (svc *Service) SetActive(ctx context.Context, acc Account, active bool) (Account, error) {
	acc.IsActive = active
	acc.UpdatedAt = nowFunc()
	return svc.repo.UpdateAccount(ctx, acc)
}

// ConfirmationToken returns the (uid, token) pair to be emailed to the Account's owner.
func (svc *Service) ConfirmationToken(acc Account) (string, string) {
	return EncodeUID(acc), svc.tokens.MakeToken(acc)
}

// ConfirmEmail marks the Account identified by uid as confirmed if token is valid.
// Confirming an already confirmed Account is a no-op.
func (svc *Service) ConfirmEmail(ctx context.Context, uid, token string) (Account, error) {
	id, err := DecodeUID(uid)
	if err != nil {
		return Account{}, err
	}
	acc, err := svc.repo.GetAccountByID(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return Account{}, ErrInvalidToken
		}
		return Account{}, errors.Wrap(err, "finding account by ID")
	}
	if acc.IsConfirmed() {
		return acc, nil
	}
	if err = svc.tokens.VerifyToken(acc, token); err != nil {
		return Account{}, err
	}
	now := nowFunc()
	acc.ConfirmedAt = &now
	acc.UpdatedAt = now
	return svc.repo.UpdateAccount(ctx, acc)
}

func (svc *Service) GetProfile(ctx context.Context, userID string) (Profile, error) {
	return svc.repo.GetProfileByUserID(ctx, userID)
}

func (svc *Service) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (Profile, error) {
	if err := upd.Validate(svc.validate); err != nil {
		return Profile{}, err
	}
	return svc.repo.UpdateProfile(ctx, userID, upd)
}

func (svc *Service) QueryProfiles(ctx context.Context, tenantID string, roles ...Role) ([]Profile, error) {
	return svc.repo.QueryProfiles(ctx, tenantID, roles...)
}
