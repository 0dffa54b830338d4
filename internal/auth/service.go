package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bookwell/backend/internal/models"
	"github.com/bookwell/backend/internal/repository"
)

var (
	// ErrDuplicateEmail is returned when registering with an email that already exists.
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

const tokenTTL = 24 * time.Hour

type AccountStore interface {
	Create(ctx context.Context, a *models.Account) error
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
}

type Service interface {
	Register(ctx context.Context, email, password, displayName string, role models.Role) (*models.Account, error)
	Login(ctx context.Context, email, password string) (string, error)
	ValidateToken(ctx context.Context, token string) (models.Actor, error)
}

type service struct {
	accounts AccountStore
	secret   []byte
}

func NewService(accounts AccountStore, secret string) *service {
	return &service{accounts: accounts, secret: []byte(secret)}
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Role models.Role `json:"role"`
}

// Register creates a client or provider account. Admins are provisioned
// out of band.
func (s *service) Register(ctx context.Context, email, password, displayName string, role models.Role) (*models.Account, error) {
	if role != models.RoleClient && role != models.RoleProvider {
		return nil, ErrInvalidRole
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	acc := &models.Account{
		ID:           uuid.New(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.accounts.Create(ctx, acc); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return acc, nil
}

func (s *service) Login(ctx context.Context, email, password string) (string, error) {
	acc, err := s.accounts.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repository.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.issueToken(acc.ID, acc.Role)
}

func (s *service) issueToken(userID uuid.UUID, role models.Role) (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role: role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) ValidateToken(_ context.Context, token string) (models.Actor, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.Actor{}, err
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return models.Actor{}, ErrInvalidToken
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return models.Actor{}, err
	}
	switch c.Role {
	case models.RoleClient, models.RoleProvider, models.RoleAdmin:
	default:
		return models.Actor{}, ErrInvalidToken
	}
	return models.Actor{ID: id, Role: c.Role}, nil
}
