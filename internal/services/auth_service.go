package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"carbontrack/internal/core"
	"carbontrack/internal/log"
	"carbontrack/internal/remote"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// AuthService handles accounts and sessions on top of a remote.AuthStore.
type AuthService struct {
	store      remote.AuthStore
	sessionTTL time.Duration
	cost       int
	now        func() time.Time
	logger     *log.StructuredLogger
}

type AuthOption func(*AuthService)

func WithAuthClock(now func() time.Time) AuthOption {
	return func(s *AuthService) { s.now = now }
}

// WithBcryptCost overrides the hashing cost.
func WithBcryptCost(cost int) AuthOption {
	return func(s *AuthService) { s.cost = cost }
}

func WithAuthLogger(l *log.Logger) AuthOption {
	return func(s *AuthService) { s.logger = log.NewStructuredLogger(l) }
}

func NewAuthService(store remote.AuthStore, sessionTTL time.Duration, opts ...AuthOption) *AuthService {
	s := &AuthService{
		store:      store,
		sessionTTL: sessionTTL,
		cost:       bcrypt.DefaultCost,
		now:        time.Now,
		logger:     log.NewStructuredLogger(log.New(log.DefaultConfig()).WithComponent(log.ComponentAuth)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login verifies credentials and opens a session.
func (s *AuthService) Login(ctx context.Context, email, password string) (core.Session, core.User, error) {
	sess, u, err := s.login(ctx, email, password, false)
	s.logger.LogAuthEvent(ctx, log.OpLogin, email, err)
	return sess, u, err
}

// AdminLogin is Login restricted to admin accounts.
func (s *AuthService) AdminLogin(ctx context.Context, email, password string) (core.Session, core.User, error) {
	sess, u, err := s.login(ctx, email, password, true)
	s.logger.LogAuthEvent(ctx, log.OpLogin, email, err)
	return sess, u, err
}

func (s *AuthService) login(ctx context.Context, email, password string, adminOnly bool) (core.Session, core.User, error) {
	normalized, err := core.NormalizeEmail(email)
	if err != nil {
		return core.Session{}, core.User{}, core.ErrInvalidCredentials
	}

	u, err := s.store.UserByEmail(ctx, normalized)
	if errors.Is(err, core.ErrUserNotFound) {
		return core.Session{}, core.User{}, core.ErrInvalidCredentials
	}
	if err != nil {
		return core.Session{}, core.User{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return core.Session{}, core.User{}, core.ErrInvalidCredentials
	}
	if adminOnly && u.Role != core.RoleAdmin {
		return core.Session{}, core.User{}, core.ErrNotAdmin
	}

	sess, err := s.openSession(ctx, u)
	if err != nil {
		return core.Session{}, core.User{}, err
	}
	return sess, u, nil
}

func (s *AuthService) openSession(ctx context.Context, u core.User) (core.Session, error) {
	now := s.now().UTC()
	sess := core.Session{
		Token:     uuid.NewString(),
		UserID:    u.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return core.Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Signup registers a user account and opens a session for it.
func (s *AuthService) Signup(ctx context.Context, email, password string) (core.Session, core.User, error) {
	u, err := s.CreateUser(ctx, email, password, core.RoleUser)
	if err != nil {
		s.logger.LogAuthEvent(ctx, log.OpSignup, email, err)
		return core.Session{}, core.User{}, err
	}
	sess, err := s.openSession(ctx, u)
	s.logger.LogAuthEvent(ctx, log.OpSignup, u.Email, err)
	if err != nil {
		return core.Session{}, core.User{}, err
	}
	return sess, u, nil
}

// CreateUser validates and stores a new account with the given role.
func (s *AuthService) CreateUser(ctx context.Context, email, password string, role core.Role) (core.User, error) {
	normalized, err := core.NormalizeEmail(email)
	if err != nil {
		return core.User{}, err
	}
	if len(password) < MinPasswordLength {
		return core.User{}, core.ErrWeakPassword
	}
	if !role.IsValid() {
		return core.User{}, fmt.Errorf("invalid role %q", role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return core.User{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.store.CreateUser(ctx, core.User{
		Email:        normalized,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, core.ErrEmailTaken) {
			return core.User{}, core.ErrEmailTaken
		}
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// EnsureAdmin creates the admin account unless the email is already
// registered. It reports whether an account was created.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	_, err := s.CreateUser(ctx, email, password, core.RoleAdmin)
	if errors.Is(err, core.ErrEmailTaken) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Current resolves a session token. Missing, unknown and expired tokens
// all yield core.ErrNoSession; other failures are returned wrapped.
func (s *AuthService) Current(ctx context.Context, token string) (core.Session, core.User, error) {
	if token == "" {
		return core.Session{}, core.User{}, core.ErrNoSession
	}

	sess, err := s.store.SessionByToken(ctx, token)
	if errors.Is(err, core.ErrNoSession) {
		return core.Session{}, core.User{}, core.ErrNoSession
	}
	if err != nil {
		return core.Session{}, core.User{}, fmt.Errorf("lookup session: %w", err)
	}

	if sess.Expired(s.now()) {
		if err := s.store.DeleteSession(ctx, token); err != nil {
			return core.Session{}, core.User{}, fmt.Errorf("delete expired session: %w", err)
		}
		return core.Session{}, core.User{}, core.ErrNoSession
	}

	u, err := s.store.UserByID(ctx, sess.UserID)
	if errors.Is(err, core.ErrUserNotFound) {
		return core.Session{}, core.User{}, core.ErrNoSession
	}
	if err != nil {
		return core.Session{}, core.User{}, fmt.Errorf("lookup session user: %w", err)
	}
	return sess, u, nil
}

// SignOut ends the session identified by token.
func (s *AuthService) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return core.ErrNoSession
	}
	err := s.store.DeleteSession(ctx, token)
	if err != nil {
		err = fmt.Errorf("sign out: %w", err)
	}
	s.logger.LogAuthEvent(ctx, log.OpLogout, "", err)
	return err
}

// Users lists every account, for the admin panel.
func (s *AuthService) Users(ctx context.Context) ([]core.User, error) {
	return s.store.ListUsers(ctx)
}
