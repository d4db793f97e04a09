package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ballot-engine/internal/domain"
	"ballot-engine/pkg/errors"
	"ballot-engine/pkg/logger"
)

const (
	issuer = "ballot-engine"

	tokenTypeAdmin = "admin"
	tokenTypeVoter = "voter"

	DefaultAdminTTL = 12 * time.Hour
	DefaultVoterTTL = 2 * time.Hour
)

// AdminClaims identify an administrative actor
type AdminClaims struct {
	Type           string `json:"typ"`
	Role           string `json:"role"`
	OrganizationID string `json:"org,omitempty"`
	jwt.RegisteredClaims
}

// VoterClaims identify a voter session within one election
type VoterClaims struct {
	Type       string `json:"typ"`
	ElectionID string `json:"eid"`
	jwt.RegisteredClaims
}

// Service issues and verifies HMAC-signed JWTs for administrators and voters
type Service struct {
	secret   []byte
	adminTTL time.Duration
	voterTTL time.Duration
	logger   *logger.Logger
	now      func() time.Time
}

// NewService creates an auth service. An empty secret disables every token.
func NewService(secret string, logger *logger.Logger) *Service {
	return &Service{
		secret:   []byte(secret),
		adminTTL: DefaultAdminTTL,
		voterTTL: DefaultVoterTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// IssueAdminToken signs a token for actor
func (s *Service) IssueAdminToken(actor domain.Actor) (*domain.AdminToken, error) {
	expiresAt := s.now().Add(s.adminTTL)
	claims := AdminClaims{
		Type:           tokenTypeAdmin,
		Role:           string(actor.Role),
		OrganizationID: actor.OrganizationID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := s.sign(claims)
	if err != nil {
		return nil, err
	}
	return &domain.AdminToken{Token: token, ExpiresAt: expiresAt}, nil
}

// ValidateAdminToken verifies an admin token and returns the actor it names
func (s *Service) ValidateAdminToken(ctx context.Context, tokenString string) (*domain.Actor, error) {
	var claims AdminClaims
	if err := s.parse(tokenString, &claims); err != nil {
		return nil, err
	}
	if claims.Type != tokenTypeAdmin || claims.Subject == "" {
		s.logger.Debug("Rejected non-admin token")
		return nil, errors.NewAuthenticationError("Invalid token type")
	}

	role := domain.Role(claims.Role)
	switch role {
	case domain.RoleSuperAdmin, domain.RoleReviewer, domain.RoleOrgAdmin:
	default:
		s.logger.WithField("role", claims.Role).Warn("Token carries unknown role")
		return nil, errors.NewAuthenticationError("Invalid token role")
	}

	return &domain.Actor{ID: claims.Subject, Role: role, OrganizationID: claims.OrganizationID}, nil
}

// IssueVoterToken signs a session token for a resolved voter
func (s *Service) IssueVoterToken(electionID, voterKey string) (string, time.Time, error) {
	expiresAt := s.now().Add(s.voterTTL)
	claims := VoterClaims{
		Type:       tokenTypeVoter,
		ElectionID: electionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   voterKey,
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := s.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// ValidateVoterToken verifies a voter session token
func (s *Service) ValidateVoterToken(ctx context.Context, tokenString string) (*domain.VoterIdentity, error) {
	var claims VoterClaims
	if err := s.parse(tokenString, &claims); err != nil {
		return nil, err
	}
	if claims.Type != tokenTypeVoter || claims.Subject == "" || claims.ElectionID == "" {
		return nil, errors.NewAuthenticationError("Invalid token type")
	}
	return &domain.VoterIdentity{ElectionID: claims.ElectionID, VoterKey: claims.Subject}, nil
}

func (s *Service) sign(claims jwt.Claims) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.NewInternalError("JWT signing is not configured", nil)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		s.logger.WithError(err).Error("Failed to sign token")
		return "", errors.NewInternalError("Failed to sign token", err)
	}
	return token, nil
}

func (s *Service) parse(tokenString string, claims jwt.Claims) error {
	if len(s.secret) == 0 {
		s.logger.Error("JWT_SECRET not configured")
		return errors.NewAuthenticationError("JWT validation not configured")
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		s.logger.WithError(err).Debug("Failed to parse/validate JWT token")
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return errors.NewAuthenticationError("Token has expired")
		}
		return errors.NewAuthenticationError("Invalid JWT token")
	}
	if !token.Valid {
		return errors.NewAuthenticationError("Invalid JWT token")
	}
	return nil
}
