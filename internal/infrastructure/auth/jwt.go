package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/infrastructure/config"
)

// TokenType represents the type of session token
type TokenType string

const (
	TokenTypeSession       TokenType = "session"
	TokenTypeImpersonation TokenType = "impersonation"
)

// Common errors
var (
	ErrInvalidToken      = errors.New("invalid token")
	ErrExpiredToken      = errors.New("token has expired")
	ErrInvalidTokenType  = errors.New("invalid token type")
	ErrInvalidClaims     = errors.New("invalid token claims")
	ErrTokenNotYetValid  = errors.New("token is not yet valid")
	ErrMissingLicenseKey = errors.New("missing license_key in claims")
	ErrTokenRevoked      = errors.New("token has been revoked")
	ErrNotMaster         = errors.New("only the master license may impersonate")
)

// Claims are the session claims. Subject is the license key the session acts as.
type Claims struct {
	jwt.RegisteredClaims
	LicenseKey     string    `json:"license_key"`
	ActorID        string    `json:"actor_id,omitempty"`
	ImpersonatedBy string    `json:"impersonated_by,omitempty"`
	TokenType      TokenType `json:"token_type"`
}

// JWTService mints and validates session tokens and maps them to actors
type JWTService struct {
	secret           []byte
	issuer           string
	sessionTTL       time.Duration
	impersonationTTL time.Duration
	masterKey        licensing.LicenseKey
	now              func() time.Time
}

// NewJWTService creates a new JWT service. masterKey is the configured
// master license; it is the only source of Actor.IsMaster.
func NewJWTService(cfg config.JWTConfig, masterKey string) *JWTService {
	return &JWTService{
		secret:           []byte(cfg.Secret),
		issuer:           cfg.Issuer,
		sessionTTL:       cfg.AccessTokenExpiration,
		impersonationTTL: cfg.ImpersonationExpiration,
		masterKey:        licensing.LicenseKey(masterKey),
		now:              time.Now,
	}
}

// IssueSession mints a session token for a license
func (s *JWTService) IssueSession(license licensing.LicenseKey, actorID string) (string, time.Time, error) {
	return s.issue(license, actorID, "", TokenTypeSession, s.sessionTTL)
}

// IssueImpersonation mints a short-lived token acting as target on behalf of master
func (s *JWTService) IssueImpersonation(master licensing.Actor, target licensing.LicenseKey) (string, time.Time, error) {
	if !master.IsMaster {
		return "", time.Time{}, ErrNotMaster
	}
	actorID := master.ActorID
	if actorID == "" {
		actorID = master.LicenseKey.String()
	}
	return s.issue(target, actorID, master.LicenseKey.String(), TokenTypeImpersonation, s.impersonationTTL)
}

func (s *JWTService) issue(license licensing.LicenseKey, actorID, impersonatedBy string, typ TokenType, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			Subject:   license.String(),
			Audience:  jwt.ClaimStrings{s.issuer},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		LicenseKey:     license.String(),
		ActorID:        actorID,
		ImpersonatedBy: impersonatedBy,
		TokenType:      typ,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Validate parses and validates a session or impersonation token
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		default:
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.TokenType != TokenTypeSession && claims.TokenType != TokenTypeImpersonation {
		return nil, ErrInvalidTokenType
	}
	if claims.LicenseKey == "" {
		return nil, ErrMissingLicenseKey
	}
	if _, err := licensing.ParseLicenseKey(claims.LicenseKey); err != nil {
		return nil, ErrInvalidClaims
	}
	return claims, nil
}

// Actor maps validated claims to the acting identity. An impersonation
// session acts as the target license and is never master.
func (s *JWTService) Actor(claims *Claims, ip string) licensing.Actor {
	license := licensing.LicenseKey(claims.LicenseKey)
	actorID := claims.ActorID
	if actorID == "" {
		actorID = claims.LicenseKey
	}
	actor := licensing.Actor{
		LicenseKey: license,
		ActorID:    actorID,
		IP:         ip,
	}
	if claims.TokenType == TokenTypeImpersonation {
		actor.ImpersonatedBy = claims.ImpersonatedBy
		return actor
	}
	actor.IsMaster = s.masterKey != "" && license == s.masterKey
	return actor
}

// IssuedAtTime returns the token's issue time, or the zero time
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}
