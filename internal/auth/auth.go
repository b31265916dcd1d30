// Package auth issues and validates JWTs and enforces the role
// hierarchy from spec §7. Grounded on the teacher's
// internal/auth/auth.go (golang-jwt/jwt/v5 claims shape,
// GenerateToken/ValidateToken structure) and on original_source's
// AuthManager/UserRole/check_permission, with bcrypt replacing the
// source's SHA-256 password hashing per spec §9's explicit redesign
// instruction.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Role is one of the four principal roles, ordered by privilege.
type Role string

const (
	RoleTrader      Role = "TRADER"
	RoleRiskManager Role = "RISK_MANAGER"
	RoleCompliance  Role = "COMPLIANCE"
	RoleAdmin       Role = "ADMIN"
)

// level orders roles for the >= comparison check_permission used in
// original_source: an ADMIN satisfies any requirement a TRADER does.
var level = map[Role]int{
	RoleTrader:      1,
	RoleRiskManager: 2,
	RoleCompliance:  2,
	RoleAdmin:       3,
}

// Satisfies reports whether r has at least the privilege level of
// required.
func (r Role) Satisfies(required Role) bool {
	return level[r] >= level[required]
}

// Claims is the JWT payload, extending the registered claims with the
// principal's identity and role.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// Principal is one registered user. Password is stored as a bcrypt
// hash, never in the clear.
type Principal struct {
	UserID       string
	PasswordHash string
	Role         Role
}

var (
	// ErrInvalidCredentials is returned when a login fails verification.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrInvalidToken is returned when a presented token fails validation.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Service issues and validates tokens against an in-memory principal
// directory, the way the teacher's Service wraps jwtSecret and an API
// credential map.
type Service struct {
	jwtSecret  []byte
	tokenTTL   time.Duration
	principals map[string]Principal // user_id -> principal
}

// New builds an auth service. secret must be non-empty; it is the HMAC
// signing key for issued tokens.
func New(secret string, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &Service{
		jwtSecret:  []byte(secret),
		tokenTTL:   tokenTTL,
		principals: make(map[string]Principal),
	}
}

// Register hashes password with bcrypt and stores the principal. Used
// at startup to seed the fixed set of trading-desk accounts; there is
// no self-service signup in this system.
func (s *Service) Register(userID, password string, role Role) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	s.principals[userID] = Principal{UserID: userID, PasswordHash: string(hash), Role: role}
	return nil
}

// Authenticate verifies a password and, on success, issues a signed
// token.
func (s *Service) Authenticate(userID, password string) (string, error) {
	principal, ok := s.principals[userID]
	if !ok {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(principal.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.GenerateToken(principal.UserID, principal.Role)
}

// GenerateToken issues a signed JWT for the given principal.
func (s *Service) GenerateToken(userID string, role Role) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			Subject:   userID,
		},
		UserID: userID,
		Role:   role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken parses and verifies a token, returning its claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RequireRole reports whether claims' role satisfies required.
func RequireRole(claims *Claims, required Role) bool {
	if claims == nil {
		return false
	}
	return claims.Role.Satisfies(required)
}
