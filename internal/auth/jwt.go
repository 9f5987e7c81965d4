// Package auth issues and validates tenant bearer tokens.
package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"
)

// ErrNoTenant is returned for a valid token that carries no company.
var ErrNoTenant = eris.New("auth: token has no company_id")

// Claims are the claims of a tenant token.
type Claims struct {
	jwt.RegisteredClaims
	CompanyID string `json:"company_id"`
}

// Tenant is the authenticated caller of a request.
type Tenant struct {
	CompanyID string
	Subject   string
}

// Manager signs and validates HS256 tenant tokens.
type Manager struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewManager creates a Manager.
func NewManager(secret, issuer string) *Manager {
	return &Manager{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue signs a token for a company. It is used by the CLI and tests; the
// CRM's identity service issues production tokens with the same secret.
func (m *Manager) Issue(companyID, subject string, ttl time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		CompanyID: companyID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", eris.Wrap(err, "auth: sign token")
	}
	return signed, nil
}

// Validate parses a token and returns its tenant.
func (m *Manager) Validate(token string) (*Tenant, error) {
	if token == "" {
		return nil, eris.New("auth: token is empty")
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, eris.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, eris.Wrap(err, "auth: parse token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, eris.New("auth: invalid token claims")
	}
	if claims.CompanyID == "" {
		return nil, ErrNoTenant
	}
	return &Tenant{CompanyID: claims.CompanyID, Subject: claims.Subject}, nil
}

type tenantKey struct{}

// WithTenant stores the tenant on ctx.
func WithTenant(ctx context.Context, t *Tenant) context.Context {
	return context.WithValue(ctx, tenantKey{}, t)
}

// FromContext returns the tenant stored by WithTenant.
func FromContext(ctx context.Context) (*Tenant, bool) {
	t, ok := ctx.Value(tenantKey{}).(*Tenant)
	return t, ok && t != nil
}
