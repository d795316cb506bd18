package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/orkutrevival/backend/internal/database"
	"github.com/orkutrevival/backend/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrUsernameExists     = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrNotAdmin           = errors.New("email is not an administrator")
)

// Token scopes
const (
	ScopeUser  = "user"
	ScopeAdmin = "admin"
)

// Service issues and validates tokens for profiles and administrators
type Service struct {
	jwtSecret []byte
	tokenTTL  time.Duration
	admins    *AdminRegistry
	now       func() time.Time
}

// NewService creates a new authentication service
func NewService(jwtSecret []byte, tokenTTL time.Duration, admins *AdminRegistry) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	if admins == nil {
		admins = NewAdminRegistry(nil, "")
	}
	return &Service{
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		admins:    admins,
		now:       time.Now,
	}
}

// Admins returns the admin registry backing this service
func (s *Service) Admins() *AdminRegistry {
	return s.admins
}

// Claims is the decoded content of a token
type Claims struct {
	UserID    string
	Email     string
	Username  string
	IsAdmin   bool
	Scope     string
	ExpiresAt time.Time
}

// AuthResponse represents authentication response
type AuthResponse struct {
	Token     string          `json:"token"`
	User      *models.Profile `json:"user"`
	IsAdmin   bool            `json:"is_admin"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// RegisterRequest represents native registration request
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Username    string `json:"username" binding:"required,min=3,max=30"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name" binding:"required,min=1,max=50"`
}

// LoginRequest represents native login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Register creates a profile with an email/password login
func (s *Service) Register(req RegisterRequest) (*AuthResponse, error) {
	var existing models.Profile
	err := database.DB.Where("LOWER(email) = LOWER(?)", req.Email).First(&existing).Error
	if err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	err = database.DB.Where("LOWER(username) = LOWER(?)", req.Username).First(&existing).Error
	if err == nil {
		return nil, ErrUsernameExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	hashedStr := string(hashed)

	profile := models.Profile{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Username:     strings.TrimSpace(req.Username),
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PasswordHash: &hashedStr,
	}
	if err := database.DB.Create(&profile).Error; err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	return s.GenerateTokenForProfile(&profile)
}

// Login authenticates with email/password
func (s *Service) Login(req LoginRequest) (*AuthResponse, error) {
	var profile models.Profile
	err := database.DB.Where("LOWER(email) = LOWER(?)", req.Email).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	} else if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	if profile.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*profile.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	profile.LastSeenAt = &now
	database.DB.Model(&profile).Update("last_seen_at", now)

	return s.GenerateTokenForProfile(&profile)
}

// GenerateTokenForProfile signs a user scoped token for profile
func (s *Service) GenerateTokenForProfile(profile *models.Profile) (*AuthResponse, error) {
	isAdmin := s.admins.IsAdmin(profile.Email)
	expiresAt := s.now().Add(s.tokenTTL)

	token, err := s.sign(jwt.MapClaims{
		"user_id":  profile.ID,
		"email":    profile.Email,
		"username": profile.Username,
		"is_admin": isAdmin,
		"scope":    ScopeUser,
		"exp":      expiresAt.Unix(),
		"iat":      s.now().Unix(),
	})
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		Token:     token,
		User:      profile,
		IsAdmin:   isAdmin,
		ExpiresAt: expiresAt,
	}, nil
}

// GenerateAdminToken signs an admin scoped token for a configured admin email
func (s *Service) GenerateAdminToken(email string) (string, time.Time, error) {
	if !s.admins.IsAdmin(email) {
		return "", time.Time{}, ErrNotAdmin
	}
	expiresAt := s.now().Add(s.tokenTTL)
	token, err := s.sign(jwt.MapClaims{
		"email":    strings.ToLower(strings.TrimSpace(email)),
		"is_admin": true,
		"role":     "admin",
		"scope":    ScopeAdmin,
		"exp":      expiresAt.Unix(),
		"iat":      s.now().Unix(),
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func (s *Service) sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies the signature and expiry of tokenString and decodes
// its claims. Admin status is recomputed from the registry so removing an
// email from the admin list revokes outstanding tokens.
func (s *Service) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	claims.UserID, _ = mapClaims["user_id"].(string)
	claims.Email, _ = mapClaims["email"].(string)
	claims.Username, _ = mapClaims["username"].(string)
	claims.Scope, _ = mapClaims["scope"].(string)
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	claims.IsAdmin = s.admins.IsAdmin(claims.Email)

	switch claims.Scope {
	case ScopeAdmin:
		if claims.Email == "" {
			return nil, ErrInvalidToken
		}
	default:
		if claims.UserID == "" {
			return nil, fmt.Errorf("%w: missing user_id", ErrInvalidToken)
		}
		claims.Scope = ScopeUser
	}
	return claims, nil
}

// ValidateToken parses a user token and loads the profile it names
func (s *Service) ValidateToken(tokenString string) (*models.Profile, error) {
	claims, err := s.ParseToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Scope != ScopeUser {
		return nil, ErrInvalidToken
	}

	var profile models.Profile
	if err := database.DB.Where("id = ?", claims.UserID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &profile, nil
}
