package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filevault/internal/models"
	"filevault/internal/security"
)

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, reg := env.registerUser(t, "alice")
	assert.Equal(t, models.UserRoleUser, user.Role)
	assert.Equal(t, int64(100), user.QuotaBytes)
	assert.NotEmpty(t, reg.SessionToken)
	assert.NotEmpty(t, reg.AccessToken)

	result, err := env.auth.Login(ctx, LoginInput{Username: "alice", Password: "Password1"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, result.User.ID)
	assert.NotEqual(t, reg.SessionToken, result.SessionToken)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	env := newTestEnv(t)
	env.registerUser(t, "alice")

	_, err := env.auth.Register(context.Background(), RegisterInput{Username: "alice", Password: "Password1"})
	assert.ErrorIs(t, err, ErrDuplicateUser)
}

func TestRegisterWeakPassword(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.auth.Register(context.Background(), RegisterInput{Username: "bob", Password: "short"})
	assert.ErrorIs(t, err, security.ErrPasswordTooShort)
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.registerUser(t, "alice")

	_, err := env.auth.Login(context.Background(), LoginInput{Username: "alice", Password: "Password2"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.auth.Login(context.Background(), LoginInput{Username: "nobody", Password: "Password1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, reg := env.registerUser(t, "alice")

	got, session, err := env.auth.ValidateSession(ctx, reg.SessionToken, "1.2.3.4", "test-agent")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, user.ID, session.UserID)

	_, _, err = env.auth.ValidateSession(ctx, "bogus-token", "", "")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestValidateAccessToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, reg := env.registerUser(t, "alice")

	got, _, err := env.auth.ValidateAccessToken(ctx, reg.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	// Logging out kills the backing session, so the JWT dies with it even
	// though its own expiry is still in the future.
	require.NoError(t, env.auth.Logout(ctx, reg.SessionToken))
	_, _, err = env.auth.ValidateAccessToken(ctx, reg.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestLogoutIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, reg := env.registerUser(t, "alice")

	require.NoError(t, env.auth.Logout(ctx, reg.SessionToken))
	require.NoError(t, env.auth.Logout(ctx, reg.SessionToken))

	_, _, err := env.auth.ValidateSession(ctx, reg.SessionToken, "", "")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestChangePasswordInvalidatesOtherSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, first := env.registerUser(t, "alice")

	second, err := env.auth.Login(ctx, LoginInput{Username: "alice", Password: "Password1"})
	require.NoError(t, err)

	_, session, err := env.auth.ValidateSession(ctx, second.SessionToken, "", "")
	require.NoError(t, err)

	err = env.auth.ChangePassword(ctx, user.ID, session.ID, "Password1", "NewPassword1")
	require.NoError(t, err)

	// The session that made the change survives; the other one does not.
	_, _, err = env.auth.ValidateSession(ctx, second.SessionToken, "", "")
	assert.NoError(t, err)
	_, _, err = env.auth.ValidateSession(ctx, first.SessionToken, "", "")
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = env.auth.Login(ctx, LoginInput{Username: "alice", Password: "Password1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.auth.Login(ctx, LoginInput{Username: "alice", Password: "NewPassword1"})
	assert.NoError(t, err)
}

func TestChangePasswordRequiresCurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, reg := env.registerUser(t, "alice")
	_, session, err := env.auth.ValidateSession(ctx, reg.SessionToken, "", "")
	require.NoError(t, err)

	err = env.auth.ChangePassword(ctx, user.ID, session.ID, "WrongCurrent1", "NewPassword1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSessionLimitEvictsOldest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, first := env.registerUser(t, "alice")

	// MaxSessions is 3; three more logins push the first session out.
	for i := 0; i < 3; i++ {
		_, err := env.auth.Login(ctx, LoginInput{Username: "alice", Password: "Password1"})
		require.NoError(t, err)
	}

	_, _, err := env.auth.ValidateSession(ctx, first.SessionToken, "", "")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestEnsureAdminBootstrap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.auth.EnsureAdmin(ctx))

	result, err := env.auth.Login(ctx, LoginInput{Username: "admin", Password: "Bootstrap1"})
	require.NoError(t, err)
	assert.Equal(t, models.UserRoleAdmin, result.User.Role)
	assert.True(t, result.User.MustChangePassword)
	assert.Equal(t, int64(1000), result.User.QuotaBytes)

	// Running the bootstrap again must not reset a changed password.
	_, session, err := env.auth.ValidateSession(ctx, result.SessionToken, "", "")
	require.NoError(t, err)
	require.NoError(t, env.auth.ChangePassword(ctx, result.User.ID, session.ID, "Bootstrap1", "Rotated1pw"))

	require.NoError(t, env.auth.EnsureAdmin(ctx))

	_, err = env.auth.Login(ctx, LoginInput{Username: "admin", Password: "Bootstrap1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	relogged, err := env.auth.Login(ctx, LoginInput{Username: "admin", Password: "Rotated1pw"})
	require.NoError(t, err)
	assert.False(t, relogged.User.MustChangePassword)
}
