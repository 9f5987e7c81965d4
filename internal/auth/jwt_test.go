package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	m := NewManager("test-secret-with-enough-length-123", "crm")

	token, err := m.Issue("co1", "user-1", time.Hour)
	require.NoError(t, err)

	tenant, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "co1", tenant.CompanyID)
	assert.Equal(t, "user-1", tenant.Subject)
}

func TestValidate_Empty(t *testing.T) {
	m := NewManager("secret", "crm")
	_, err := m.Validate("")
	assert.Error(t, err)
}

func TestValidate_WrongSecret(t *testing.T) {
	token, err := NewManager("secret-a", "crm").Issue("co1", "u", time.Hour)
	require.NoError(t, err)

	_, err = NewManager("secret-b", "crm").Validate(token)
	assert.Error(t, err)
}

func TestValidate_WrongIssuer(t *testing.T) {
	token, err := NewManager("secret", "other").Issue("co1", "u", time.Hour)
	require.NoError(t, err)

	_, err = NewManager("secret", "crm").Validate(token)
	assert.Error(t, err)
}

func TestValidate_Expired(t *testing.T) {
	m := NewManager("secret", "crm")
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := m.Issue("co1", "u", time.Hour)
	require.NoError(t, err)

	_, err = NewManager("secret", "crm").Validate(token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, jwt.ErrTokenExpired))
}

func TestValidate_NoCompany(t *testing.T) {
	m := NewManager("secret", "crm")
	token, err := m.Issue("", "u", time.Hour)
	require.NoError(t, err)

	_, err = m.Validate(token)
	assert.True(t, errors.Is(err, ErrNoTenant))
}

func TestValidate_RejectsNoneAlgorithm(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "crm"},
		CompanyID:        "co1",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewManager("secret", "crm").Validate(token)
	assert.Error(t, err)
}

func TestTenantContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithTenant(context.Background(), &Tenant{CompanyID: "co1"})
	tenant, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "co1", tenant.CompanyID)
}
