package user_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masomo/feeledger/core"
	"github.com/masomo/feeledger/core/user"
	"github.com/masomo/feeledger/tests"
)

var ctx = context.Background()

func TestService_Authenticate(t *testing.T) {
	env := testutil.NewEnv(t)
	testutil.CreateUser(t, env.UserRepo, "Jane", "jane", "jane@test.cd", "s3cr3t-pass", []string{user.RoleAdminAccountant}, true)
	testutil.CreateUser(t, env.UserRepo, "Gone", "gone", "gone@test.cd", "s3cr3t-pass", nil, false)

	tests := []struct {
		name    string
		uname   string
		pwd     string
		wantErr error
	}{
		{"by username", "jane", "s3cr3t-pass", nil},
		{"by email (case insensitive)", " JANE@test.cd ", "s3cr3t-pass", nil},
		{"wrong password", "jane", "nope", user.ErrAuthenticationFailed},
		{"unknown user", "john", "s3cr3t-pass", user.ErrAuthenticationFailed},
		{"deactivated", "gone", "s3cr3t-pass", user.ErrAccountDeactivated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usr, err := env.UserSvc.Authenticate(ctx, tt.uname, tt.pwd)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "jane", usr.Username)
			assert.False(t, usr.LastLogin.IsZero())
		})
	}
}

func TestService_AddOrUpdate(t *testing.T) {
	env := testutil.NewEnv(t)

	usr, err := env.UserSvc.AddOrUpdate(ctx, "Owner", "owner@test.cd", "Kw7!fee-ledger", true)
	require.NoError(t, err)
	assert.Equal(t, "owner", usr.Username)
	assert.Equal(t, []string{user.RoleAdminOwner}, usr.Roles)
	assert.True(t, usr.IsFeeManager())

	// existing user: password reset
	again, err := env.UserSvc.AddOrUpdate(ctx, "owner", "", "An0ther-pass!", false)
	require.NoError(t, err)
	assert.Equal(t, usr.ID, again.ID)
	assert.Equal(t, []string{user.RoleAdminOwner}, again.Roles)
	_, err = env.UserSvc.Authenticate(ctx, "owner", "An0ther-pass!")
	assert.NoError(t, err)
}

func TestService_AddOrUpdate_PasswordPolicy(t *testing.T) {
	env := testutil.NewEnv(t)

	tests := []struct {
		name string
		pwd  string
	}{
		{"too short", "abc12"},
		{"whitespace", "abc 12345"},
		{"all numeric", "1234567890"},
		{"similar to username", "bursar01x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.UserSvc.AddOrUpdate(ctx, "bursar01", "bursar@test.cd", tt.pwd, false)
			require.Error(t, err)
			var verr *core.ValidationError
			require.True(t, errors.As(err, &verr), "err = %v", err)
			require.Len(t, verr.Fields, 1)
			assert.Equal(t, "password", verr.Fields[0].Field)
		})
	}
}

func TestUser_Roles(t *testing.T) {
	tests := []struct {
		name        string
		roles       []string
		wantAdmin   bool
		wantManager bool
		wantStudent bool
		wantParent  bool
	}{
		{"owner", []string{user.RoleAdminOwner}, true, true, false, false},
		{"admin", []string{user.RoleAdmin}, true, true, false, false},
		{"accountant", []string{user.RoleAdminAccountant}, true, false, false, false},
		{"student", []string{user.RoleStudent}, false, false, true, false},
		{"parent", []string{user.RoleParent}, false, false, false, true},
		{"none", nil, false, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usr := user.User{Roles: tt.roles}
			assert.Equal(t, tt.wantAdmin, usr.IsAdmin())
			assert.Equal(t, tt.wantManager, usr.IsFeeManager())
			assert.Equal(t, tt.wantStudent, usr.IsStudent())
			assert.Equal(t, tt.wantParent, usr.IsParent())
		})
	}
	assert.Equal(t, 30, user.MaxRolePriority([]string{user.RoleStudent, user.RoleAdminOwner}))
}
