package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/masomo-portals/core/user"
)

type userRepository struct {
	db *userTable
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user}
}

func (repo *userRepository) CreateAccount(_ context.Context, acc user.Account, prof user.Profile) (user.Account, user.Profile, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, a := range repo.db.accounts {
		if a.Email == acc.Email {
			return user.Account{}, user.Profile{}, user.ErrEmailExists
		}
	}
	a, p := acc, prof
	repo.db.accounts[acc.ID] = &a
	repo.db.profiles[acc.ID] = &p
	return acc, prof, nil
}

func (repo *userRepository) GetAccountByID(_ context.Context, id string) (user.Account, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if acc, ok := repo.db.accounts[id]; ok {
		return *acc, nil
	}
	return user.Account{}, user.ErrNotFound
}

func (repo *userRepository) GetAccountByEmail(_ context.Context, email string) (user.Account, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, acc := range repo.db.accounts {
		if acc.Email == email {
			return *acc, nil
		}
	}
	return user.Account{}, user.ErrNotFound
}

func (repo *userRepository) UpdateAccount(_ context.Context, acc user.Account) (user.Account, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.accounts[acc.ID]
	if !ok {
		return user.Account{}, user.ErrNotFound
	}
	orig.PasswordHash = acc.PasswordHash
	orig.IsActive = acc.IsActive
	orig.ConfirmedAt = acc.ConfirmedAt
	orig.UpdatedAt = acc.UpdatedAt
	orig.LastLogin = acc.LastLogin
	return *orig, nil
}

func (repo *userRepository) GetProfileByUserID(_ context.Context, userID string) (user.Profile, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if prof, ok := repo.db.profiles[userID]; ok {
		return *prof, nil
	}
	return user.Profile{}, user.ErrProfileNotFound
}

func (repo *userRepository) UpdateProfile(_ context.Context, userID string, upd user.ProfileUpdate) (user.Profile, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.profiles[userID]
	if !ok {
		return user.Profile{}, user.ErrProfileNotFound
	}
	updated := upd.Apply(*orig)
	repo.db.profiles[userID] = &updated
	return updated, nil
}

func (repo *userRepository) QueryProfiles(_ context.Context, tenantID string, roles ...user.Role) ([]user.Profile, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	profiles := make([]user.Profile, 0)
	for _, p := range repo.db.profiles {
		if p.TenantID != tenantID || !hasRole(roles, p.Role) {
			continue
		}
		profiles = append(profiles, *p)
	}
	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].LastName == profiles[j].LastName {
			return profiles[i].FirstName < profiles[j].FirstName
		}
		return profiles[i].LastName < profiles[j].LastName
	})
	return profiles, nil
}

func hasRole(roles []user.Role, role user.Role) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
