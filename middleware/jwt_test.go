package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jwtTestSecret = "test-jwt-secret-32bytes-padded!!"

func TestTokenRoundTrip(t *testing.T) {
	tok, err := GenerateToken(99, "gm", jwtTestSecret, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	claims, err := ParseToken(tok, jwtTestSecret)
	require.NoError(t, err)
	assert.Equal(t, int64(99), claims.AccountID)
	assert.Equal(t, "gm", claims.Role)
}

func TestTokensAreAccountSpecific(t *testing.T) {
	gmTok, err := GenerateToken(1, "gm", jwtTestSecret, time.Hour)
	require.NoError(t, err)
	playerTok, err := GenerateToken(2, "player", jwtTestSecret, time.Hour)
	require.NoError(t, err)
	require.NotEqual(t, gmTok, playerTok)

	gm, err := ParseToken(gmTok, jwtTestSecret)
	require.NoError(t, err)
	player, err := ParseToken(playerTok, jwtTestSecret)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gm.AccountID)
	assert.Equal(t, "player", player.Role)
}

func TestParseTokenRejections(t *testing.T) {
	valid, err := GenerateToken(1, "gm", jwtTestSecret, time.Hour)
	require.NoError(t, err)
	expired, err := GenerateToken(1, "gm", jwtTestSecret, -time.Second)
	require.NoError(t, err)

	cases := map[string]struct {
		token  string
		secret string
	}{
		"wrong secret": {valid, "some-other-secret"},
		"expired":      {expired, jwtTestSecret},
		"malformed":    {"not.a.jwt", jwtTestSecret},
		"empty":        {"", jwtTestSecret},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseToken(tc.token, tc.secret)
			assert.Error(t, err)
		})
	}
}
