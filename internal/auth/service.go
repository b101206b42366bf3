package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/localhive/backend/internal/models"
)

// ErrDuplicateEmail is returned when registering with an email that already exists.
var ErrDuplicateEmail = errors.New("email already registered")

// ErrInvalidCredentials is returned for unknown email or wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInvalidRole is returned when the requested role is not requester or provider.
var ErrInvalidRole = errors.New("invalid role")

// ReferralSignup creates the pending referral record at signup. Implemented
// by the referral repository.
type ReferralSignup interface {
	CreateRecord(ctx context.Context, referrerID, referredID uuid.UUID) error
}

type Service interface {
	Register(ctx context.Context, email, password, displayName, role, referralCode string) (*models.Account, error)
	Login(ctx context.Context, email, password string) (string, error)
	ValidateToken(ctx context.Context, token string) (uuid.UUID, string, error)
	SetPayoutDestination(ctx context.Context, userID uuid.UUID, destination string) error
}

type service struct {
	repo      *Repository
	referrals ReferralSignup
	secret    []byte
}

func NewService(repo *Repository, referrals ReferralSignup) *service {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "supersecretmvp"
	}
	return &service{repo: repo, referrals: referrals, secret: []byte(secret)}
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Register creates an account. A valid referral code links the new user to
// its owner as a pending referral; the bonus is issued later, on the referred
// user's first qualifying action. An unknown code is ignored rather than
// blocking signup.
func (s *service) Register(ctx context.Context, email, password, displayName, role, referralCode string) (*models.Account, error) {
	if role != models.RoleRequester && role != models.RoleProvider {
		return nil, ErrInvalidRole
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	acc, err := s.repo.Create(ctx, email, string(hash), displayName, role, newReferralCode())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	if referralCode != "" && s.referrals != nil {
		referrer, err := s.repo.GetByReferralCode(ctx, referralCode)
		if err != nil {
			return nil, err
		}
		if referrer != nil && referrer.ID != acc.ID {
			if err := s.referrals.CreateRecord(ctx, referrer.ID, acc.ID); err != nil {
				return nil, err
			}
		}
	}
	return acc, nil
}

func (s *service) Login(ctx context.Context, email, password string) (string, error) {
	acc, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if acc == nil {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.issueToken(acc.ID, acc.Role)
}

func (s *service) issueToken(userID uuid.UUID, role string) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Role: role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) ValidateToken(ctx context.Context, token string) (uuid.UUID, string, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return uuid.Nil, "", err
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return uuid.Nil, "", errors.New("invalid token")
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, "", err
	}
	return id, c.Role, nil
}

// SetPayoutDestination records where a provider's released payouts go.
func (s *service) SetPayoutDestination(ctx context.Context, userID uuid.UUID, destination string) error {
	acc, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if acc.Role != models.RoleProvider {
		return ErrInvalidRole
	}
	return s.repo.SetPayoutDestination(ctx, userID, destination)
}

func newReferralCode() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
