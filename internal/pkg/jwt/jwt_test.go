package jwt

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestParseToken(t *testing.T) {
	secret := []byte("secret")
	token, err := GenerateToken("u1", secret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, secret)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.UserID)

	_, err = ParseToken(token, []byte("other"))
	require.Error(t, err)

	expired, err := GenerateToken("u1", secret, -time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(expired, secret)
	require.Error(t, err)
}

func TestParseTokenSubjectFallback(t *testing.T) {
	secret := []byte("secret")
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.RegisteredClaims{Subject: "u2"}).SignedString(secret)
	require.NoError(t, err)
	claims, err := ParseToken(signed, secret)
	require.NoError(t, err)
	require.Equal(t, "u2", claims.UserID)

	signed, err = jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.RegisteredClaims{}).SignedString(secret)
	require.NoError(t, err)
	_, err = ParseToken(signed, secret)
	require.Error(t, err)
}

func TestParseTokenRejectsOtherAlg(t *testing.T) {
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS512, Claims{UserID: "u1"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = ParseToken(signed, []byte("secret"))
	require.Error(t, err)
}
