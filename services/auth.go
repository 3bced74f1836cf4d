package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/osiprototype/backend/forms"
	"github.com/osiprototype/backend/models"
	"github.com/osiprototype/backend/repository"
	"golang.org/x/crypto/bcrypt"
)

const (
	accessCookieName  = "access_token"
	refreshCookieName = "refresh_token"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownUsername    = fmt.Errorf("%w: unknown username", ErrInvalidCredentials)
	ErrInvalidPassword    = fmt.Errorf("%w: invalid password", ErrInvalidCredentials)
	ErrInactiveUser       = fmt.Errorf("%w: account disabled", ErrInvalidCredentials)
)

type contextKey string

const userContextKey contextKey = "user"

type AuthService struct {
	repo          *repository.GORMRepository
	jwtSecret     []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	secureCookies bool
	bcryptCost    int
}

type CookieClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Session is the pair of credentials handed to the browser after login.
type Session struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
}

func NewAuthService(repo *repository.GORMRepository, jwtSecret string, secureCookies bool) *AuthService {
	return &AuthService{
		repo:          repo,
		jwtSecret:     []byte(jwtSecret),
		accessExpiry:  15 * time.Minute,
		refreshExpiry: 14 * 24 * time.Hour,
		secureCookies: secureCookies,
		bcryptCost:    bcrypt.DefaultCost,
	}
}

// generateSecureToken generates a cryptographically secure random token
func (s *AuthService) generateSecureToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// hashToken creates a SHA256 hash of the token for secure storage
func (s *AuthService) hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// Register creates the account described by a validated RegisterForm.
func (s *AuthService) Register(ctx context.Context, form *forms.RegisterForm) (*models.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(form.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username: form.Username,
		Email:    form.Email,
		Password: string(hashedPassword),
		Role:     form.RoleOrDefault(),
		Active:   true,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Login checks the username and password and opens a new session.
func (s *AuthService) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrUnknownUsername
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidPassword
	}
	if !user.Active {
		return nil, ErrInactiveUser
	}

	accessToken, err := s.generateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refreshToken, err := s.generateSecureToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	record := &models.RefreshToken{
		UserID:    user.ID,
		Token:     s.hashToken(refreshToken),
		ExpiresAt: time.Now().Add(s.refreshExpiry),
	}
	if err := s.repo.CreateRefreshToken(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	slog.Info("User logged in successfully", "user_id", user.ID, "username", user.Username)
	return &Session{User: user, AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// Refresh issues a new access token for a stored, unexpired refresh token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	record, err := s.repo.GetRefreshToken(ctx, s.hashToken(refreshToken))
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("invalid refresh token")
	}

	user, err := s.repo.GetUserByID(ctx, record.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil || !user.Active {
		return nil, fmt.Errorf("user not found")
	}

	accessToken, err := s.generateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	slog.Info("Access token refreshed", "user_id", user.ID)
	return &Session{User: user, AccessToken: accessToken}, nil
}

// Logout invalidates all refresh tokens for the user
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if err := s.repo.DeleteAllUserTokens(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user tokens: %w", err)
	}

	slog.Info("User logged out", "user_id", userID)
	return nil
}

// VerifyAccessToken verifies and extracts user from access token
func (s *AuthService) VerifyAccessToken(ctx context.Context, token string) (*models.User, error) {
	claims := &CookieClaims{}

	parsedToken, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !parsedToken.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	// the account may have been removed or disabled since the token was issued
	user, err := s.repo.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil || !user.Active {
		return nil, fmt.Errorf("user not found")
	}

	return user, nil
}

func (s *AuthService) generateAccessToken(user *models.User) (string, error) {
	now := time.Now()
	claims := &CookieClaims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *AuthService) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

// SetAuthCookies sets HTTP-only cookies. An empty refresh token leaves the
// existing refresh cookie untouched.
func (s *AuthService) SetAuthCookies(w http.ResponseWriter, session *Session) {
	s.setCookie(w, accessCookieName, session.AccessToken, int(s.accessExpiry.Seconds()))
	if session.RefreshToken != "" {
		s.setCookie(w, refreshCookieName, session.RefreshToken, int(s.refreshExpiry.Seconds()))
	}
}

// ClearAuthCookies clears all authentication cookies
func (s *AuthService) ClearAuthCookies(w http.ResponseWriter) {
	s.setCookie(w, accessCookieName, "", -1)
	s.setCookie(w, refreshCookieName, "", -1)
}

func tokenFromCookie(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// Authenticate resolves the request's user from the access cookie, falling
// back to the refresh cookie. It returns nil when neither is valid.
func (s *AuthService) Authenticate(w http.ResponseWriter, r *http.Request) *models.User {
	if accessToken := tokenFromCookie(r, accessCookieName); accessToken != "" {
		user, err := s.VerifyAccessToken(r.Context(), accessToken)
		if err == nil {
			return user
		}
		slog.Debug("Access token rejected", "error", err)
	}

	if refreshToken := tokenFromCookie(r, refreshCookieName); refreshToken != "" {
		session, err := s.Refresh(r.Context(), refreshToken)
		if err == nil {
			s.SetAuthCookies(w, session)
			return session.User
		}
		slog.Debug("Refresh token rejected", "error", err)
	}

	return nil
}

// Middleware requires a logged-in user and redirects anonymous requests to
// the login page, remembering where they were headed.
func (s *AuthService) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := s.Authenticate(w, r)
		if user == nil {
			http.Redirect(w, r, "/login/?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// CurrentUser returns the user placed on the context by Middleware.
func CurrentUser(ctx context.Context) *models.User {
	user, _ := ctx.Value(userContextKey).(*models.User)
	return user
}
