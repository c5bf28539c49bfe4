package sessiontoken

import (
	"testing"
	"time"

	"github.com/Abraxas-365/remodel/pkg/errx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndAuthorize(t *testing.T) {
	s := NewService("secret", time.Hour)
	token, err := s.Issue("s1")
	require.NoError(t, err)

	claims, err := s.Authorize(token, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", claims.SessionID)
	assert.Equal(t, "remodel", claims.Issuer)
}

func TestAuthorize_OtherSession(t *testing.T) {
	s := NewService("secret", time.Hour)
	token, err := s.Issue("s1")
	require.NoError(t, err)

	_, err = s.Authorize(token, "s2")
	assert.True(t, errx.HasCode(err, ErrSessionMismatch))
}

func TestAuthorize_Rejections(t *testing.T) {
	s := NewService("secret", time.Hour)

	_, err := s.Authorize("", "s1")
	assert.True(t, errx.HasCode(err, ErrMissingToken))

	_, err = s.Authorize("not-a-jwt", "s1")
	assert.True(t, errx.HasCode(err, ErrInvalidToken))

	other, err := NewService("other", time.Hour).Issue("s1")
	require.NoError(t, err)
	_, err = s.Authorize(other, "s1")
	assert.True(t, errx.HasCode(err, ErrInvalidToken))

	noSid, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = s.Authorize(noSid, "s1")
	assert.True(t, errx.HasCode(err, ErrInvalidToken))

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{SessionID: "s1"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = s.Authorize(hs512, "s1")
	assert.True(t, errx.HasCode(err, ErrInvalidToken))
}

func TestAuthorize_Expired(t *testing.T) {
	s := NewService("secret", time.Minute)
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return issued }
	token, err := s.Issue("s1")
	require.NoError(t, err)

	s.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = s.Authorize(token, "s1")
	assert.True(t, errx.HasCode(err, ErrInvalidToken))
}

func TestMissingSecret(t *testing.T) {
	s := NewService("", 0)
	_, err := s.Issue("s1")
	assert.True(t, errx.HasCode(err, ErrMissingSecret))
	_, err = s.Authorize("x", "s1")
	assert.True(t, errx.HasCode(err, ErrMissingSecret))
}
