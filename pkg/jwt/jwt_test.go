package jwt

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	m := NewManager("secret", time.Hour)
	tok, err := m.Generate("u-1")
	require.NoError(t, err)

	claims, err := m.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
}

func TestParse_WrongSecret(t *testing.T) {
	tok, err := NewManager("a", time.Hour).Generate("u-1")
	require.NoError(t, err)

	_, err = NewManager("b", time.Hour).Parse(tok)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestParse_Expired(t *testing.T) {
	m := NewManager("secret", time.Minute)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, err := m.Generate("u-1")
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.Parse(tok)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestParse_RejectsNoneAndMissingUser(t *testing.T) {
	m := NewManager("secret", time.Hour)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.Parse(unsigned)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = m.Parse(noUser)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = m.Parse("")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=q", nil)
	assert.Equal(t, "q", FromRequest(r, "token"))

	r.Header.Set("Authorization", "Bearer h")
	assert.Equal(t, "h", FromRequest(r, "token"))

	r.AddCookie(&http.Cookie{Name: "token", Value: "c"})
	assert.Equal(t, "c", FromRequest(r, "token"))

	assert.Empty(t, FromRequest(httptest.NewRequest(http.MethodGet, "/", nil), "token"))
}
