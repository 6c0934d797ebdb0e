package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestAuthenticator() *Authenticator {
	return NewAuthenticator(NewMemoryUserStore(), newTestJWTService(), bcrypt.MinCost)
}

func TestAuthenticator_Anonymous(t *testing.T) {
	a := newTestAuthenticator()

	s, err := a.Anonymous(context.Background())

	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Empty(t, s.UserID)
	assert.True(t, s.ExpiresAt.After(time.Now()))

	claims, err := a.Verify(s.Token)
	require.NoError(t, err)
	assert.Equal(t, s.ID, claims.SessionID)
	assert.True(t, claims.Guest())
}

func TestAuthenticator_RegisterKeepsGuestSession(t *testing.T) {
	a := newTestAuthenticator()
	ctx := context.Background()
	guest, err := a.Anonymous(ctx)
	require.NoError(t, err)

	s, err := a.Register(ctx, " Buyer@Example.com ", "correct-horse", &Claims{SessionID: guest.ID})

	require.NoError(t, err)
	assert.Equal(t, guest.ID, s.ID)
	assert.Equal(t, "buyer@example.com", s.Email)
	assert.NotEmpty(t, s.UserID)
}

func TestAuthenticator_RegisterErrors(t *testing.T) {
	a := newTestAuthenticator()
	ctx := context.Background()
	_, err := a.Register(ctx, "taken@example.com", "correct-horse", nil)
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"duplicate email", "TAKEN@example.com", "correct-horse", ErrEmailTaken},
		{"short password", "new@example.com", "short", ErrPasswordTooShort},
		{"bad email", "not-an-email", "correct-horse", ErrInvalidEmail},
		{"missing domain", "user@", "correct-horse", ErrInvalidEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Register(ctx, tt.email, tt.password, nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAuthenticator_Login(t *testing.T) {
	a := newTestAuthenticator()
	ctx := context.Background()
	registered, err := a.Register(ctx, "buyer@example.com", "correct-horse", &Claims{SessionID: "profile-home"})
	require.NoError(t, err)

	t.Run("carries the guest session", func(t *testing.T) {
		s, err := a.Login(ctx, "buyer@example.com", "correct-horse", &Claims{SessionID: "guest-session"})
		require.NoError(t, err)
		assert.Equal(t, "guest-session", s.ID)
		assert.Equal(t, registered.UserID, s.UserID)
	})

	t.Run("falls back to the registered profile", func(t *testing.T) {
		s, err := a.Login(ctx, "buyer@example.com", "correct-horse", nil)
		require.NoError(t, err)
		assert.Equal(t, "profile-home", s.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := a.Login(ctx, "buyer@example.com", "wrong-horse", nil)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := a.Login(ctx, "nobody@example.com", "correct-horse", nil)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestAuthenticator_DoesNotCarryAnotherUsersSession(t *testing.T) {
	a := newTestAuthenticator()
	ctx := context.Background()
	_, err := a.Register(ctx, "bob@example.com", "correct-horse", nil)
	require.NoError(t, err)

	alice, err := a.Register(ctx, "alice@example.com", "correct-horse", &Claims{SessionID: "alice-cart"})
	require.NoError(t, err)
	require.Equal(t, "alice-cart", alice.ID)
	aliceClaims, err := a.Verify(alice.Token)
	require.NoError(t, err)

	bob, err := a.Login(ctx, "bob@example.com", "correct-horse", aliceClaims)
	require.NoError(t, err)
	assert.NotEqual(t, alice.ID, bob.ID)

	carol, err := a.Register(ctx, "carol@example.com", "correct-horse", aliceClaims)
	require.NoError(t, err)
	assert.NotEqual(t, alice.ID, carol.ID)
	assert.NotEqual(t, bob.ID, carol.ID)

	again, err := a.Login(ctx, "alice@example.com", "correct-horse", aliceClaims)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, again.ID)

	bobAgain, err := a.Login(ctx, "bob@example.com", "correct-horse", nil)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, bobAgain.ID)
}
