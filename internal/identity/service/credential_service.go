package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"backoffice/portal/internal/autherr"
	identitydomain "backoffice/portal/internal/identity/domain"
	"backoffice/portal/internal/security"
	sessiondomain "backoffice/portal/internal/session/domain"
	userdomain "backoffice/portal/internal/user/domain"
)

// Sentinel errors for the credential service.
var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = autherr.ErrInvalidCredentials
	ErrInvalidSession         = errors.New("invalid or expired session")
)

// UserRepo is the minimal user repository needed by the credential service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
}

// IdentityRepo is the minimal identity repository needed by the credential service.
type IdentityRepo interface {
	GetByUserAndProvider(ctx context.Context, userID string, provider identitydomain.IdentityProvider) (*identitydomain.Identity, error)
	Create(ctx context.Context, i *identitydomain.Identity) error
}

// SessionRepo is the minimal session repository needed by the credential service.
type SessionRepo interface {
	GetByID(ctx context.Context, id string) (*sessiondomain.Session, error)
	Create(ctx context.Context, s *sessiondomain.Session) error
	RevokeAllSessionsByUser(ctx context.Context, userID string) error
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
}

// CredentialService checks identifier/password pairs against local identities and
// opens, resumes and invalidates the external sessions that back a portal session.
type CredentialService struct {
	userRepo     UserRepo
	identityRepo IdentityRepo
	sessionRepo  SessionRepo
	hasher       *security.Hasher
	tokens       *security.TokenProvider
	realm        string
	nowF         func() time.Time
}

// NewCredentialService returns a CredentialService with the given dependencies.
// realm is recorded on every session it opens.
func NewCredentialService(
	userRepo UserRepo,
	identityRepo IdentityRepo,
	sessionRepo SessionRepo,
	hasher *security.Hasher,
	tokens *security.TokenProvider,
	realm string,
) *CredentialService {
	return &CredentialService{
		userRepo:     userRepo,
		identityRepo: identityRepo,
		sessionRepo:  sessionRepo,
		hasher:       hasher,
		tokens:       tokens,
		realm:        realm,
		nowF:         func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a user and local identity with the given email and password. Used by seeding.
func (s *CredentialService) Register(ctx context.Context, email, password, name, phone string) (string, error) {
	email = userdomain.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return "", err
	}
	if err := validatePassword(password); err != nil {
		return "", err
	}
	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", ErrEmailAlreadyRegistered
	}
	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return "", err
	}
	now := s.nowF()
	user := &userdomain.User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      strings.TrimSpace(name),
		Phone:     strings.TrimSpace(phone),
		Status:    userdomain.UserStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := user.Validate(); err != nil {
		return "", err
	}
	identity := &identitydomain.Identity{
		ID:           uuid.New().String(),
		UserID:       user.ID,
		Provider:     identitydomain.IdentityProviderLocal,
		ProviderID:   email,
		PasswordHash: hashed,
		CreatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return "", err
	}
	if err := s.identityRepo.Create(ctx, identity); err != nil {
		return "", err
	}
	return user.ID, nil
}

// Verify checks identifier (an email) and secret. On success it opens a session and returns the
// principal, its raw phone and the signed session token. Any mismatch is ErrInvalidCredentials;
// other errors are storage failures.
func (s *CredentialService) Verify(ctx context.Context, identifier, secret string) (*identitydomain.Credentials, error) {
	email := userdomain.NormalizeEmail(identifier)
	if email == "" || secret == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Active() {
		s.hasher.CompareDummy([]byte(secret))
		return nil, ErrInvalidCredentials
	}
	ident, err := s.identityRepo.GetByUserAndProvider(ctx, user.ID, identitydomain.IdentityProviderLocal)
	if err != nil {
		return nil, err
	}
	if ident == nil || ident.PasswordHash == "" {
		s.hasher.CompareDummy([]byte(secret))
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(ident.PasswordHash, []byte(secret)); err != nil {
		return nil, ErrInvalidCredentials
	}

	sessionID := uuid.New().String()
	token, expiresAt, err := s.tokens.IssueSession(sessionID, user.ID, s.realm)
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}
	sess := &sessiondomain.Session{
		ID:        sessionID,
		UserID:    user.ID,
		Realm:     s.realm,
		ExpiresAt: expiresAt,
		CreatedAt: s.nowF(),
	}
	if err := s.sessionRepo.Create(ctx, sess); err != nil {
		return nil, err
	}
	return &identitydomain.Credentials{
		PrincipalID: user.ID,
		Phone:       user.Phone,
		SessionID:   sessionID,
		Token:       token,
		ExpiresAt:   expiresAt,
	}, nil
}

// Resume validates a stored session token and returns the external session it belongs to.
// Revoked, expired or foreign sessions are ErrInvalidSession.
func (s *CredentialService) Resume(ctx context.Context, token string) (*sessiondomain.ExternalSession, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}
	claims, err := s.tokens.ValidateSession(token)
	if err != nil {
		return nil, ErrInvalidSession
	}
	if claims.Realm != "" && claims.Realm != s.realm {
		return nil, ErrInvalidSession
	}
	sess, err := s.sessionRepo.GetByID(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	now := s.nowF()
	if sess == nil || sess.UserID != claims.Subject || !sess.Live(now) {
		return nil, ErrInvalidSession
	}
	user, err := s.userRepo.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Active() {
		return nil, ErrInvalidSession
	}
	_ = s.sessionRepo.UpdateLastSeen(ctx, sess.ID, now)
	return &sessiondomain.ExternalSession{
		PrincipalID: user.ID,
		Phone:       user.Phone,
		SessionID:   sess.ID,
	}, nil
}

// Invalidate revokes every live session of principalID.
func (s *CredentialService) Invalidate(ctx context.Context, principalID string) error {
	if principalID == "" {
		return nil
	}
	return s.sessionRepo.RevokeAllSessionsByUser(ctx, principalID)
}

var simpleEmail = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	if !simpleEmail.MatchString(email) {
		return errors.New("invalid email format")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 12 {
		return errors.New("password must be at least 12 characters")
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		default:
			hasSymbol = true
		}
	}
	if !hasUpper {
		return errors.New("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return errors.New("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return errors.New("password must contain at least one number")
	}
	if !hasSymbol {
		return errors.New("password must contain at least one symbol")
	}
	return nil
}
