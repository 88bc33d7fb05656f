package identity

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/PatricioTamez/orchestrator2.0/internal/errors"
	"github.com/PatricioTamez/orchestrator2.0/internal/mocks"
	"github.com/PatricioTamez/orchestrator2.0/internal/models"
)

func newTestProvider(users *mocks.MockUserRepository) *Provider {
	return NewProvider(users, "test-secret", time.Hour, zap.NewNop())
}

func TestProvider_SignUpAndSignIn(t *testing.T) {
	t.Run("successful signup and signin", func(t *testing.T) {
		users := mocks.NewMockUserRepository()
		p := newTestProvider(users)

		err := p.SignUp(context.Background(), "alice@test.com", "password123", "Alice")
		require.NoError(t, err)

		id, token, err := p.SignIn(context.Background(), "alice@test.com", "password123")
		require.NoError(t, err)
		assert.NotEmpty(t, token)
		assert.Equal(t, "Alice", id.DisplayName)
		assert.Equal(t, "alice@test.com", id.Email)
	})

	t.Run("duplicate signup", func(t *testing.T) {
		users := mocks.NewMockUserRepository()
		p := newTestProvider(users)

		require.NoError(t, p.SignUp(context.Background(), "alice@test.com", "password123", "Alice"))
		err := p.SignUp(context.Background(), "alice@test.com", "other", "Alice Again")
		assert.ErrorIs(t, err, errors.ErrUserAlreadyExists)
	})

	t.Run("wrong password", func(t *testing.T) {
		users := mocks.NewMockUserRepository()
		p := newTestProvider(users)

		require.NoError(t, p.SignUp(context.Background(), "alice@test.com", "password123", "Alice"))
		_, _, err := p.SignIn(context.Background(), "alice@test.com", "wrong")
		assert.ErrorIs(t, err, errors.ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		users := mocks.NewMockUserRepository()
		p := newTestProvider(users)

		_, _, err := p.SignIn(context.Background(), "nobody@test.com", "password123")
		assert.ErrorIs(t, err, errors.ErrInvalidCredentials)
	})

	t.Run("federated-only account rejects password signin", func(t *testing.T) {
		users := mocks.NewMockUserRepository()
		p := newTestProvider(users)

		_, _, err := p.SignInExternal(context.Background(), "google", "g-123", "bob@test.com", "Bob")
		require.NoError(t, err)

		_, _, err = p.SignIn(context.Background(), "bob@test.com", "anything")
		assert.ErrorIs(t, err, errors.ErrInvalidCredentials)
	})
}

func TestProvider_SignInExternal(t *testing.T) {
	t.Run("first signin creates account and links it", func(t *testing.T) {
		users := mocks.NewMockUserRepository()
		p := newTestProvider(users)

		id, token, err := p.SignInExternal(context.Background(), "google", "g-123", "bob@test.com", "Bob")
		require.NoError(t, err)
		assert.NotEmpty(t, token)
		assert.Equal(t, "Bob", id.DisplayName)

		user, err := users.FindByExternalID(context.Background(), "google", "g-123")
		require.NoError(t, err)
		assert.Equal(t, "bob@test.com", user.Email)
		assert.Empty(t, user.PasswordHash)
	})

	t.Run("existing email gets linked instead of duplicated", func(t *testing.T) {
		users := mocks.NewMockUserRepository()
		p := newTestProvider(users)

		require.NoError(t, p.SignUp(context.Background(), "alice@test.com", "password123", "Alice"))

		id, _, err := p.SignInExternal(context.Background(), "google", "g-456", "alice@test.com", "Alice G")
		require.NoError(t, err)
		assert.Equal(t, "Alice", id.DisplayName)
		assert.Len(t, users.Users, 1)
		assert.Equal(t, "g-456", users.Users["alice@test.com"].GetExternalID("google"))
	})

	t.Run("repeat signin reuses the linked account", func(t *testing.T) {
		users := mocks.NewMockUserRepository()
		p := newTestProvider(users)

		_, _, err := p.SignInExternal(context.Background(), "google", "g-123", "bob@test.com", "Bob")
		require.NoError(t, err)
		_, _, err = p.SignInExternal(context.Background(), "google", "g-123", "bob@test.com", "Bob")
		require.NoError(t, err)
		assert.Len(t, users.Users, 1)
	})
}

func TestProvider_Tokens(t *testing.T) {
	t.Run("valid token round trip", func(t *testing.T) {
		users := mocks.NewMockUserRepository()
		p := newTestProvider(users)

		require.NoError(t, p.SignUp(context.Background(), "alice@test.com", "password123", "Alice"))
		_, token, err := p.SignIn(context.Background(), "alice@test.com", "password123")
		require.NoError(t, err)

		email, err := p.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, "alice@test.com", email)
	})

	t.Run("garbage token", func(t *testing.T) {
		p := newTestProvider(mocks.NewMockUserRepository())
		_, err := p.ValidateToken("not-a-token")
		assert.ErrorIs(t, err, errors.ErrInvalidToken)
	})

	t.Run("expired token", func(t *testing.T) {
		users := mocks.NewMockUserRepository()
		p := NewProvider(users, "test-secret", -time.Minute, zap.NewNop())

		require.NoError(t, p.SignUp(context.Background(), "alice@test.com", "password123", "Alice"))
		_, token, err := p.SignIn(context.Background(), "alice@test.com", "password123")
		require.NoError(t, err)

		_, err = p.ValidateToken(token)
		assert.ErrorIs(t, err, errors.ErrTokenExpired)
	})

	t.Run("wrong secret", func(t *testing.T) {
		users := mocks.NewMockUserRepository()
		p := newTestProvider(users)
		other := NewProvider(users, "different-secret", time.Hour, zap.NewNop())

		require.NoError(t, p.SignUp(context.Background(), "alice@test.com", "password123", "Alice"))
		_, token, err := p.SignIn(context.Background(), "alice@test.com", "password123")
		require.NoError(t, err)

		_, err = other.ValidateToken(token)
		assert.ErrorIs(t, err, errors.ErrInvalidToken)
	})
}

func TestProvider_SessionEvents(t *testing.T) {
	users := mocks.NewMockUserRepository()
	p := newTestProvider(users)

	var events []Event
	p.OnChange(func(ev Event) { events = append(events, ev) })
	second := 0
	p.OnChange(func(Event) { second++ })

	require.NoError(t, p.SignUp(context.Background(), "alice@test.com", "password123", "Alice"))
	id, _, err := p.SignIn(context.Background(), "alice@test.com", "password123")
	require.NoError(t, err)
	p.SignOut(id)

	require.Len(t, events, 2)
	assert.True(t, events[0].SignedIn)
	assert.Equal(t, id.ID, events[0].Identity.ID)
	assert.False(t, events[1].SignedIn)
	assert.Equal(t, 2, second, "every registered observer is notified")
}

func TestProvider_RepositoryErrorsPassThrough(t *testing.T) {
	users := mocks.NewMockUserRepository()
	dbErr := stderrors.New("database down")
	users.FindByEmailFunc = func(ctx context.Context, email string) (*models.User, error) {
		return nil, dbErr
	}
	p := newTestProvider(users)

	_, _, err := p.SignIn(context.Background(), "alice@test.com", "password123")
	assert.ErrorIs(t, err, dbErr)
}

func TestProvider_PasswordsAreHashed(t *testing.T) {
	users := mocks.NewMockUserRepository()
	p := newTestProvider(users)

	require.NoError(t, p.SignUp(context.Background(), "alice@test.com", "password123", "Alice"))

	user := users.Users["alice@test.com"]
	require.NotNil(t, user)
	assert.NotEqual(t, "password123", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("password123")))
}
