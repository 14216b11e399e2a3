package notify

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestParseJWT_ValidToken(t *testing.T) {
	signed := signToken(t, jwt.MapClaims{
		"user_id": 7,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}, testSecret)

	userID, err := parseJWT(signed, testSecret)
	require.NoError(t, err)
	assert.Equal(t, int64(7), userID)
}

func TestParseJWT_WrongSecret(t *testing.T) {
	signed := signToken(t, jwt.MapClaims{"user_id": 7}, "other-secret")

	_, err := parseJWT(signed, testSecret)
	assert.Error(t, err)
}

func TestParseJWT_Expired(t *testing.T) {
	signed := signToken(t, jwt.MapClaims{
		"user_id": 7,
		"exp":     time.Now().Add(-time.Hour).Unix(),
	}, testSecret)

	_, err := parseJWT(signed, testSecret)
	assert.Error(t, err)
}

func TestParseJWT_MissingUserID(t *testing.T) {
	signed := signToken(t, jwt.MapClaims{"sub": "someone"}, testSecret)

	_, err := parseJWT(signed, testSecret)
	assert.Error(t, err)
}

func TestExtractToken_BearerHeader(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer abc123")
	assert.Equal(t, "abc123", extractToken(r))
}

func TestExtractToken_QueryParam(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=abc123", nil)
	assert.Equal(t, "abc123", extractToken(r))
}

func TestExtractToken_Missing(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	assert.Equal(t, "", extractToken(r))
}
