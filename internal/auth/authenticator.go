package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrUserNotFound       = errors.New("user not found")
)

type User struct {
	ID           string
	Email        string
	PasswordHash string
	// ProfileID is the cart profile bound at registration.
	ProfileID string
	CreatedAt time.Time
}

type UserStore interface {
	Create(ctx context.Context, u User) error
	ByEmail(ctx context.Context, email string) (User, error)
}

// MemoryUserStore keeps users in process memory.
type MemoryUserStore struct {
	mu      sync.RWMutex
	byEmail map[string]User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{byEmail: make(map[string]User)}
}

func (s *MemoryUserStore) Create(ctx context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[u.Email]; ok {
		return ErrEmailTaken
	}
	s.byEmail[u.Email] = u
	return nil
}

func (s *MemoryUserStore) ByEmail(ctx context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byEmail[email]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

// Session is what a client holds: the cart profile id and a signed token.
type Session struct {
	ID        string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Authenticator struct {
	users      UserStore
	tokens     *JWTService
	bcryptCost int
	newID      func() string
}

func NewAuthenticator(users UserStore, tokens *JWTService, bcryptCost int) *Authenticator {
	if bcryptCost == 0 {
		bcryptCost = DefaultBcryptCost
	}
	return &Authenticator{users: users, tokens: tokens, bcryptCost: bcryptCost, newID: uuid.NewString}
}

// Anonymous starts a guest session.
func (a *Authenticator) Anonymous(ctx context.Context) (Session, error) {
	return a.issue(a.newID(), User{})
}

// Register creates a user. A guest session id is kept so the guest cart
// becomes the user's cart; current may be nil.
func (a *Authenticator) Register(ctx context.Context, email, password string, current *Claims) (Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Session{}, err
	}
	hash, err := HashPassword(password, a.bcryptCost)
	if err != nil {
		return Session{}, err
	}

	sessionID := a.newID()
	if carriesGuest(current) {
		sessionID = current.SessionID
	}
	u := User{
		ID:           a.newID(),
		Email:        email,
		PasswordHash: hash,
		ProfileID:    sessionID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.users.Create(ctx, u); err != nil {
		return Session{}, err
	}
	return a.issue(sessionID, u)
}

// Login authenticates a user. A guest session id is carried over; a session
// owned by another user never is, the registered profile is used instead.
func (a *Authenticator) Login(ctx context.Context, email, password string, current *Claims) (Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Session{}, ErrInvalidCredentials
	}
	u, err := a.users.ByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if !CheckPassword(password, u.PasswordHash) {
		return Session{}, ErrInvalidCredentials
	}

	sessionID := u.ProfileID
	if carriesGuest(current) || (current != nil && current.UserID == u.ID && current.SessionID != "") {
		sessionID = current.SessionID
	}
	return a.issue(sessionID, u)
}

func carriesGuest(c *Claims) bool {
	return c != nil && c.Guest() && c.SessionID != ""
}

// Verify validates a session token.
func (a *Authenticator) Verify(token string) (*Claims, error) {
	return a.tokens.Validate(token)
}

func (a *Authenticator) issue(sessionID string, u User) (Session, error) {
	token, expiresAt, err := a.tokens.Issue(sessionID, u.ID, u.Email)
	if err != nil {
		return Session{}, err
	}
	return Session{
		ID:        sessionID,
		UserID:    u.ID,
		Email:     u.Email,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(email, "@")
	if at < 1 || at == len(email)-1 {
		return "", ErrInvalidEmail
	}
	return email, nil
}
