package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAccessToken(t *testing.T) {
	tok, err := NewAccessToken("secret", "u-42", "CUSTOMER", time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.Exp, 5*time.Second)

	parsed, err := jwt.Parse(tok.Token, func(*jwt.Token) (interface{}, error) { return []byte("secret"), nil })
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "u-42", claims["sub"])
	assert.Equal(t, "CUSTOMER", claims["role"])

	_, err = jwt.Parse(tok.Token, func(*jwt.Token) (interface{}, error) { return []byte("other"), nil })
	assert.Error(t, err)
}

func TestNewAccessTokenRejectsEmptyInputs(t *testing.T) {
	_, err := NewAccessToken("", "u-1", "ADMIN", time.Hour)
	assert.Error(t, err)
	_, err = NewAccessToken("secret", "", "ADMIN", time.Hour)
	assert.Error(t, err)
}
