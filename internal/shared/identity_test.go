package shared

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestParseActorTokenRoundTrip(t *testing.T) {
	secret := []byte("ledger-secret")
	raw, err := SignActorToken(secret, "bursar-01", jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	require.NoError(t, err)

	actor, err := ParseActorToken(secret, raw)
	require.NoError(t, err)
	require.Equal(t, "bursar-01", actor)
}

func TestParseActorTokenRejectsWrongSecret(t *testing.T) {
	raw, err := SignActorToken([]byte("one"), "bursar-01", nil)
	require.NoError(t, err)

	_, err = ParseActorToken([]byte("two"), raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseActorTokenRequiresSubject(t *testing.T) {
	secret := []byte("ledger-secret")
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "clerk"}).SignedString(secret)
	require.NoError(t, err)

	_, err = ParseActorToken(secret, raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer abc.def")
	require.True(t, ok)
	require.Equal(t, "abc.def", token)

	_, ok = BearerToken("Basic xyz")
	require.False(t, ok)
	_, ok = BearerToken("")
	require.False(t, ok)
}

func TestNewPaginationDefaults(t *testing.T) {
	p := NewPagination(0, 0, 45)
	require.Equal(t, 1, p.Page)
	require.Equal(t, 20, p.PerPage)
	require.Equal(t, 3, p.TotalPages)
	require.Equal(t, 20, p.Offset()+p.PerPage)
}
