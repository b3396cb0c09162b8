package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelmuse/pixelmuse/pkg/storage"
)

func newAccounts(t *testing.T) *AccountService {
	t.Helper()
	return NewAccountService(storage.NewMemoryAccountStore(), "test-secret", 24)
}

func TestCreateAccount(t *testing.T) {
	svc := newAccounts(t)

	accountID, err := svc.CreateAccount("alice", "hunter22")
	require.NoError(t, err)
	require.NotEmpty(t, accountID)

	account, err := svc.GetAccount(accountID)
	require.NoError(t, err)
	assert.Equal(t, "alice", account.Username)
	assert.Len(t, account.APIToken, 64)
	assert.NotEqual(t, "hunter22", account.PasswordHash)

	t.Run("duplicate username rejected", func(t *testing.T) {
		_, err := svc.CreateAccount("alice", "different")
		assert.EqualError(t, err, "username already exists")
	})

	t.Run("blank credentials rejected", func(t *testing.T) {
		_, err := svc.CreateAccount("", "pw")
		assert.Error(t, err)
		_, err = svc.CreateAccount("bob", "")
		assert.Error(t, err)
	})
}

func TestAuthenticate(t *testing.T) {
	svc := newAccounts(t)

	accountID, err := svc.CreateAccount("alice", "hunter22")
	require.NoError(t, err)

	got, err := svc.Authenticate("alice", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, accountID, got)

	_, err = svc.Authenticate("alice", "wrong")
	assert.Error(t, err)

	_, err = svc.Authenticate("nobody", "hunter22")
	assert.Error(t, err)
}

func TestValidateToken(t *testing.T) {
	svc := newAccounts(t)

	accountID, err := svc.CreateAccount("alice", "hunter22")
	require.NoError(t, err)
	account, err := svc.GetAccount(accountID)
	require.NoError(t, err)

	t.Run("signed JWT", func(t *testing.T) {
		token, err := svc.GenerateToken(account)
		require.NoError(t, err)

		got, err := svc.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, accountID, got)
	})

	t.Run("raw API token", func(t *testing.T) {
		got, err := svc.ValidateToken(account.APIToken)
		require.NoError(t, err)
		assert.Equal(t, accountID, got)
	})

	t.Run("JWT signed with another secret rejected", func(t *testing.T) {
		other := NewAccountService(storage.NewMemoryAccountStore(), "other-secret", 24)
		token, err := other.GenerateToken(account)
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("garbage rejected", func(t *testing.T) {
		_, err := svc.ValidateToken("not-a-token")
		assert.Error(t, err)
		_, err = svc.ValidateToken("")
		assert.Error(t, err)
	})
}
