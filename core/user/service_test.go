package user_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-portals/core"
	"github.com/trezcool/masomo-portals/core/user"
	"github.com/trezcool/masomo-portals/storage/database/inmem"
	"github.com/trezcool/masomo-portals/tests"
)

func newService(t *testing.T) *user.Service {
	t.Helper()
	validate, _ := testutil.NewValidator()
	return user.NewService(inmemdb.NewUserRepository(inmemdb.Open()), validate, core.NewTestConfig())
}

func TestService_Register(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		na      user.NewAccount
		wantFld string
	}{
		{"missing email", user.NewAccount{Password: testutil.StrongPassword, FirstName: "A", LastName: "B", Role: user.RoleStudent}, "email"},
		{"invalid email", user.NewAccount{Email: "nope", Password: testutil.StrongPassword, FirstName: "A", LastName: "B", Role: user.RoleStudent}, "email"},
		{"weak password", user.NewAccount{Email: "a@test.test", Password: "12345678", FirstName: "A", LastName: "B", Role: user.RoleStudent}, "password"},
		{"invalid role", user.NewAccount{Email: "a@test.test", Password: testutil.StrongPassword, FirstName: "A", LastName: "B", Role: "JANITOR"}, "role"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Register(ctx, tc.na)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantFld)
		})
	}

	acc, prof, err := svc.Register(ctx, user.NewAccount{
		Email: " Ann@Test.Test", Password: testutil.StrongPassword, FirstName: "Ann", LastName: "Lee", Role: user.RoleParent, TenantID: "t1",
	})
	require.NoError(t, err)
	assert.Equal(t, "ann@test.test", acc.Email)
	assert.True(t, acc.IsActive)
	assert.False(t, acc.IsConfirmed())
	assert.NoError(t, acc.CheckPassword(testutil.StrongPassword))
	assert.Equal(t, acc.ID, prof.UserID)
	assert.Equal(t, "Ann Lee", prof.FullName())

	_, _, err = svc.Register(ctx, user.NewAccount{
		Email: "ann@test.test", Password: testutil.StrongPassword, FirstName: "Ann", LastName: "Lee", Role: user.RoleParent,
	})
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, user.ErrEmailExists, vErr.Err)
	assert.Equal(t, "email", vErr.Fields[0].Field)
}

func TestService_ConfirmEmail(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	acc, _, err := svc.Register(ctx, user.NewAccount{
		Email: "bob@test.test", Password: testutil.StrongPassword, FirstName: "Bob", LastName: "Ray", Role: user.RoleTeacher,
	})
	require.NoError(t, err)

	uid, token := svc.ConfirmationToken(acc)
	_, err = svc.ConfirmEmail(ctx, "!!", token)
	assert.Equal(t, user.ErrInvalidToken, err)
	_, err = svc.ConfirmEmail(ctx, user.EncodeUID(user.Account{ID: "unknown"}), token)
	assert.Equal(t, user.ErrInvalidToken, err)
	_, err = svc.ConfirmEmail(ctx, user.EncodeUID(user.Account{ID: "5c1b3f0e-7d0e-4f6a-8a57-0b9e8f1d2c3a"}), token)
	assert.Equal(t, user.ErrInvalidToken, err)

	confirmed, err := svc.ConfirmEmail(ctx, uid, token)
	require.NoError(t, err)
	assert.True(t, confirmed.IsConfirmed())

	// already confirmed
	again, err := svc.ConfirmEmail(ctx, uid, "whatever")
	require.NoError(t, err)
	assert.Equal(t, confirmed.ConfirmedAt, again.ConfirmedAt)
}

func TestService_ProfilesAndAccountUpdates(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	register := func(email, last string, role user.Role) user.Account {
		acc, _, err := svc.Register(ctx, user.NewAccount{
			Email: email, Password: testutil.StrongPassword, FirstName: "X", LastName: last, Role: role, TenantID: "t1",
		})
		require.NoError(t, err)
		return acc
	}
	teacher := register("t@test.test", "Zed", user.RoleTeacher)
	register("s1@test.test", "Bee", user.RoleStudent)
	register("s2@test.test", "Ace", user.RoleStudent)

	students, err := svc.QueryProfiles(ctx, "t1", user.RoleStudent)
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, "Ace", students[0].LastName)

	all, err := svc.QueryProfiles(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, all, 3)
	none, err := svc.QueryProfiles(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, none)

	last := "  Young "
	prof, err := svc.UpdateProfile(ctx, teacher.ID, user.ProfileUpdate{LastName: &last})
	require.NoError(t, err)
	assert.Equal(t, "Young", prof.LastName)
	_, err = svc.UpdateProfile(ctx, "unknown", user.ProfileUpdate{LastName: &last})
	assert.Equal(t, user.ErrProfileNotFound, err)

	acc, err := svc.SetActive(ctx, teacher, false)
	require.NoError(t, err)
	assert.False(t, acc.IsActive)

	acc, err = svc.SetPassword(ctx, acc, "N3w-Passw0rd!")
	require.NoError(t, err)
	fetched, err := svc.GetByEmail(ctx, "T@TEST.TEST")
	require.NoError(t, err)
	assert.NoError(t, fetched.CheckPassword("N3w-Passw0rd!"))
	assert.False(t, fetched.IsActive)

	_, err = svc.GetByID(ctx, "unknown")
	assert.Equal(t, user.ErrNotFound, err)
}
