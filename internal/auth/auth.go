package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ukydev/fleet-rental/internal/models"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token expired")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserBanned         = errors.New("user is banned")
)

const (
	defaultSecret     = "default-secret-key-change-in-production"
	defaultTokenExp   = 24 * time.Hour
	DefaultCookieName = "fleet_session"
)

// Oracle verifies credentials carried by a request and returns the
// principal they belong to. A nil principal with a nil error means no
// session is present.
type Oracle interface {
	VerifyBearerToken(ctx context.Context, token string) (*models.Principal, error)
	SessionFromCookies(ctx context.Context, cookies []*http.Cookie) (*models.Principal, error)
}

// Service handles authentication operations
type Service struct {
	jwtSecret  []byte
	tokenExp   time.Duration
	cookieName string
	secure     bool
}

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	Secret       string
	TokenExpiry  time.Duration
	CookieName   string
	SecureCookie bool
}

// NewService creates a new authentication service
func NewService(opts Options) (*Service, error) {
	secret := strings.TrimSpace(opts.Secret)
	if secret == "" {
		secret = defaultSecret
	}

	exp := opts.TokenExpiry
	if exp <= 0 {
		exp = defaultTokenExp
	}

	cookieName := opts.CookieName
	if cookieName == "" {
		cookieName = DefaultCookieName
	}

	return &Service{
		jwtSecret:  []byte(secret),
		tokenExp:   exp,
		cookieName: cookieName,
		secure:     opts.SecureCookie,
	}, nil
}

// CookieName returns the name of the session cookie.
func (s *Service) CookieName() string {
	return s.cookieName
}

// HashPassword hashes a password using bcrypt
func (s *Service) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// CheckPassword checks if a password matches a hash
func (s *Service) CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// GenerateToken generates a JWT token for a user
func (s *Service) GenerateToken(user *models.UserAccount) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   user.ID.Hex(),
		"email": user.Email,
		"role":  string(user.Role),
		"exp":   now.Add(s.tokenExp).Unix(),
		"iat":   now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken validates a JWT token and returns the claims.
// A missing role claim is accepted and left empty.
func (s *Service) ValidateToken(tokenString string) (*models.Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return nil, ErrInvalidToken
	}

	email, _ := claims["email"].(string)
	roleStr, _ := claims["role"].(string)

	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, ErrInvalidToken
	}

	return &models.Claims{
		UserID: userID,
		Email:  email,
		Role:   models.Role(roleStr),
		Exp:    int64(exp),
	}, nil
}

// VerifyBearerToken implements Oracle.
func (s *Service) VerifyBearerToken(_ context.Context, token string) (*models.Principal, error) {
	claims, err := s.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	return principalFromClaims(claims), nil
}

// SessionFromCookies implements Oracle.
func (s *Service) SessionFromCookies(ctx context.Context, cookies []*http.Cookie) (*models.Principal, error) {
	for _, c := range cookies {
		if c.Name == s.cookieName && c.Value != "" {
			return s.VerifyBearerToken(ctx, c.Value)
		}
	}
	return nil, nil
}

// SetSessionCookie writes token as the session cookie.
func (s *Service) SetSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(s.tokenExp),
	})
}

// ClearSessionCookie removes the session cookie.
func (s *Service) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

// ExtractBearer returns the token of an "Authorization: Bearer <token>" value.
func ExtractBearer(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrInvalidToken
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", ErrInvalidToken
	}

	return parts[1], nil
}

// CheckCredentials verifies password against the account and refuses
// accounts that are banned at now.
func (s *Service) CheckCredentials(user *models.UserAccount, password string, now time.Time) error {
	if user == nil || !s.CheckPassword(password, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	if user.IsBanned(now) {
		return ErrUserBanned
	}
	return nil
}

// ValidatePassword validates password strength
func (s *Service) ValidatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters long")
	}
	return nil
}

func principalFromClaims(c *models.Claims) *models.Principal {
	return &models.Principal{
		ID:    c.UserID,
		Email: strings.ToLower(c.Email),
		Role:  models.NormalizeRole(string(c.Role)),
	}
}
