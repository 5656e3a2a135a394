package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"support360/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrUserUnavailable    = errors.New("user deleted or inactive")
)

// UserSource looks users up for authentication.
type UserSource interface {
	GetUser(id uint) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
}

// Claims carried by a session token.
type Claims struct {
	UserID uint        `json:"uid"`
	Email  string      `json:"email"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Session is the result of a successful login.
type Session struct {
	Token     string             `json:"token"`
	ExpiresAt time.Time          `json:"expires_at"`
	User      models.UserProfile `json:"user"`
}

// Authenticator checks credentials and mints/validates HS256 session tokens.
type Authenticator struct {
	users  UserSource
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	logger *logrus.Logger
}

// NewAuthenticator 创建认证服务
func NewAuthenticator(users UserSource, secret string, ttl time.Duration, logger *logrus.Logger) *Authenticator {
	if logger == nil {
		logger = logrus.New()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{
		users:  users,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

// WithClock overrides the time source, used by tests.
func (a *Authenticator) WithClock(now func() time.Time) *Authenticator {
	a.now = now
	return a
}

// Authenticate verifies email and password of an active user and opens a session.
func (a *Authenticator) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	user, err := a.users.GetUserByEmail(strings.TrimSpace(email))
	if err != nil {
		a.logger.WithField("email", email).Info("Login rejected: unknown email")
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		a.logger.WithField("user_id", user.ID).Info("Login rejected: inactive account")
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		a.logger.WithField("user_id", user.ID).Info("Login rejected: password mismatch")
		return nil, ErrInvalidCredentials
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	token, expiresAt, err := a.IssueToken(user)
	if err != nil {
		return nil, err
	}
	a.logger.WithField("user_id", user.ID).Info("User logged in")
	return &Session{Token: token, ExpiresAt: expiresAt, User: user.Profile()}, nil
}

// IssueToken signs a token for user that expires after the configured TTL.
func (a *Authenticator) IssueToken(user *models.User) (string, time.Time, error) {
	now := a.now()
	expiresAt := now.Add(a.ttl)
	claims := Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify parses token and returns the live user it belongs to.
// Expired, malformed or forged tokens fail, as do tokens of deleted or inactive users.
func (a *Authenticator) Verify(token string) (*models.User, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	user, err := a.users.GetUser(claims.UserID)
	if err != nil || !user.IsActive {
		return nil, ErrUserUnavailable
	}
	return user, nil
}
