// Package identity is the boundary to the identity provider: password
// and federated sign-in, sign-out, session tokens, and a session-change
// notification stream. The chat client only ever consumes the resulting
// read-only Identity.
package identity

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/PatricioTamez/orchestrator2.0/internal/errors"
	"github.com/PatricioTamez/orchestrator2.0/internal/models"
	"github.com/PatricioTamez/orchestrator2.0/internal/repository"
)

// Event is one session-change notification.
type Event struct {
	Identity *models.Identity // nil on sign-out
	SignedIn bool
}

// JWTClaims represents session token claims
type JWTClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Provider implements the identity-provider boundary over a user
// repository.
type Provider struct {
	users     repository.UserRepository
	jwtSecret []byte
	jwtExpiry time.Duration
	log       *zap.Logger

	mu       sync.Mutex
	onChange []func(Event)
}

// NewProvider creates an identity provider
func NewProvider(users repository.UserRepository, jwtSecret string, jwtExpiry time.Duration, log *zap.Logger) *Provider {
	return &Provider{
		users:     users,
		jwtSecret: []byte(jwtSecret),
		jwtExpiry: jwtExpiry,
		log:       log,
	}
}

// OnChange registers an observer of session-change events.
func (p *Provider) OnChange(fn func(Event)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = append(p.onChange, fn)
}

func (p *Provider) emit(ev Event) {
	p.mu.Lock()
	observers := make([]func(Event), len(p.onChange))
	copy(observers, p.onChange)
	p.mu.Unlock()
	for _, fn := range observers {
		fn(ev)
	}
}

// SignUp registers a new user with password credentials.
func (p *Provider) SignUp(ctx context.Context, email, password, displayName string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	// Repository handles the duplicate check
	_, err = p.users.Create(ctx, email, string(hashedPassword), displayName)
	return err
}

// SignIn authenticates with email and password, returning the identity
// and a session token.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*models.Identity, string, error) {
	user, err := p.users.FindByEmail(ctx, email)
	if err != nil {
		if err == errors.ErrUserNotFound {
			return nil, "", errors.ErrInvalidCredentials
		}
		return nil, "", err
	}

	if user.PasswordHash == "" {
		// Federated-only account; no password set.
		return nil, "", errors.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", errors.ErrInvalidCredentials
	}

	token, err := p.generateToken(user.Email)
	if err != nil {
		return nil, "", err
	}

	identity := user.Identity()
	p.emit(Event{Identity: identity, SignedIn: true})
	return identity, token, nil
}

// SignInExternal completes a federated sign-in for an upstream-verified
// assertion (provider name plus the provider's subject id). An unknown
// subject creates a passwordless account on first sign-in; a known email
// gets the account linked instead.
func (p *Provider) SignInExternal(ctx context.Context, provider, externalID, email, displayName string) (*models.Identity, string, error) {
	user, err := p.users.FindByExternalID(ctx, provider, externalID)
	if err == errors.ErrUserNotFound {
		user, err = p.users.FindByEmail(ctx, email)
		if err == errors.ErrUserNotFound {
			user, err = p.users.Create(ctx, email, "", displayName)
		}
		if err != nil {
			return nil, "", err
		}
		if err := p.users.LinkExternalAccount(ctx, user.Email, provider, externalID); err != nil {
			return nil, "", err
		}
	} else if err != nil {
		return nil, "", err
	}

	token, err := p.generateToken(user.Email)
	if err != nil {
		return nil, "", err
	}

	identity := user.Identity()
	p.emit(Event{Identity: identity, SignedIn: true})
	return identity, token, nil
}

// SignOut ends the session for the given identity.
func (p *Provider) SignOut(identity *models.Identity) {
	p.emit(Event{Identity: identity, SignedIn: false})
}

// ValidateToken validates a session token and returns the email claim
func (p *Provider) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.ErrInvalidToken
		}
		return p.jwtSecret, nil
	})

	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return "", errors.ErrTokenExpired
		}
		return "", errors.ErrInvalidToken
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return "", errors.ErrInvalidToken
	}

	return claims.Email, nil
}

// IdentityFor resolves the identity for a validated email claim.
func (p *Provider) IdentityFor(ctx context.Context, email string) (*models.Identity, error) {
	user, err := p.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return user.Identity(), nil
}

// generateToken creates a new session token
func (p *Provider) generateToken(email string) (string, error) {
	now := time.Now()
	claims := &JWTClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(p.jwtExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Subject:   email,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.jwtSecret)
}
