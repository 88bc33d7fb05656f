package mocks

import (
	"context"
	"time"

	"github.com/PatricioTamez/orchestrator2.0/internal/bot"
	"github.com/PatricioTamez/orchestrator2.0/internal/errors"
	"github.com/PatricioTamez/orchestrator2.0/internal/models"
	"github.com/PatricioTamez/orchestrator2.0/internal/store"
)

// MockUserRepository is a mock implementation of repository.UserRepository
type MockUserRepository struct {
	Users                   map[string]*models.User
	ExternalAccounts        map[string]map[string]string // provider -> externalID -> email
	CreateFunc              func(ctx context.Context, email, passwordHash, displayName string) (*models.User, error)
	FindByEmailFunc         func(ctx context.Context, email string) (*models.User, error)
	LinkExternalAccountFunc func(ctx context.Context, email, provider, externalID string) error
	FindByExternalIDFunc    func(ctx context.Context, provider, externalID string) (*models.User, error)
}

// NewMockUserRepository creates a new mock user repository
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		Users:            make(map[string]*models.User),
		ExternalAccounts: make(map[string]map[string]string),
	}
}

func (m *MockUserRepository) Create(ctx context.Context, email, passwordHash, displayName string) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, email, passwordHash, displayName)
	}
	if _, exists := m.Users[email]; exists {
		return nil, errors.ErrUserAlreadyExists
	}
	user := &models.User{
		ID:           "uid-" + email,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	m.Users[email] = user
	return user, nil
}

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.FindByEmailFunc != nil {
		return m.FindByEmailFunc(ctx, email)
	}
	user, exists := m.Users[email]
	if !exists {
		return nil, errors.ErrUserNotFound
	}
	return user, nil
}

func (m *MockUserRepository) Exists(ctx context.Context, email string) (bool, error) {
	_, exists := m.Users[email]
	return exists, nil
}

func (m *MockUserRepository) LinkExternalAccount(ctx context.Context, email, provider, externalID string) error {
	if m.LinkExternalAccountFunc != nil {
		return m.LinkExternalAccountFunc(ctx, email, provider, externalID)
	}
	user, exists := m.Users[email]
	if !exists {
		return errors.ErrUserNotFound
	}
	user.ExternalAccounts = append(user.ExternalAccounts, models.ExternalAccount{
		Provider:   provider,
		ExternalID: externalID,
	})
	if m.ExternalAccounts[provider] == nil {
		m.ExternalAccounts[provider] = make(map[string]string)
	}
	m.ExternalAccounts[provider][externalID] = email
	return nil
}

func (m *MockUserRepository) FindByExternalID(ctx context.Context, provider, externalID string) (*models.User, error) {
	if m.FindByExternalIDFunc != nil {
		return m.FindByExternalIDFunc(ctx, provider, externalID)
	}
	if m.ExternalAccounts[provider] == nil {
		return nil, errors.ErrUserNotFound
	}
	email, exists := m.ExternalAccounts[provider][externalID]
	if !exists {
		return nil, errors.ErrUserNotFound
	}
	return m.Users[email], nil
}

// MockResponder is a mock implementation of bot.Responder
type MockResponder struct {
	FixedReply string
	ReplyFunc  func(ctx context.Context, req bot.Request) (string, error)
	Requests   []bot.Request
}

// NewMockResponder creates a responder that always answers with reply
func NewMockResponder(reply string) *MockResponder {
	return &MockResponder{FixedReply: reply}
}

func (m *MockResponder) Reply(ctx context.Context, req bot.Request) (string, error) {
	m.Requests = append(m.Requests, req)
	if m.ReplyFunc != nil {
		return m.ReplyFunc(ctx, req)
	}
	return m.FixedReply, nil
}

// StoreStub wraps a real store.LiveStore and lets individual operations
// be overridden, typically to inject failures.
type StoreStub struct {
	Inner store.LiveStore

	WatchFunc  func(ctx context.Context, path string) (store.Subscription, error)
	GetFunc    func(ctx context.Context, path string) (store.Snapshot, error)
	SetFunc    func(ctx context.Context, path string, value any) error
	PushFunc   func(ctx context.Context, path string, value any) (string, error)
	DeleteFunc func(ctx context.Context, path string) error
}

func (s *StoreStub) Watch(ctx context.Context, path string) (store.Subscription, error) {
	if s.WatchFunc != nil {
		return s.WatchFunc(ctx, path)
	}
	return s.Inner.Watch(ctx, path)
}

func (s *StoreStub) Get(ctx context.Context, path string) (store.Snapshot, error) {
	if s.GetFunc != nil {
		return s.GetFunc(ctx, path)
	}
	return s.Inner.Get(ctx, path)
}

func (s *StoreStub) Set(ctx context.Context, path string, value any) error {
	if s.SetFunc != nil {
		return s.SetFunc(ctx, path, value)
	}
	return s.Inner.Set(ctx, path, value)
}

func (s *StoreStub) Push(ctx context.Context, path string, value any) (string, error) {
	if s.PushFunc != nil {
		return s.PushFunc(ctx, path, value)
	}
	return s.Inner.Push(ctx, path, value)
}

func (s *StoreStub) Delete(ctx context.Context, path string) error {
	if s.DeleteFunc != nil {
		return s.DeleteFunc(ctx, path)
	}
	return s.Inner.Delete(ctx, path)
}

func (s *StoreStub) Close() error {
	return s.Inner.Close()
}

var _ store.LiveStore = (*StoreStub)(nil)
