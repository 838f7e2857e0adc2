package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"classtrack/internal/auth"
)

func TestIssueAndParseRoundTrip(t *testing.T) {
	tokens, err := auth.Issue("user-1", auth.RoleTeacher, "classtrack", "secret", time.Minute, time.Hour)
	assert.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)

	claims, err := auth.Parse(tokens.AccessToken, "secret", "classtrack")
	assert.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, auth.RoleTeacher, claims.Role)
}

func TestParseRejectsWrongKey(t *testing.T) {
	tokens, err := auth.Issue("user-1", auth.RoleStudent, "classtrack", "secret", time.Minute, time.Hour)
	assert.NoError(t, err)

	_, err = auth.Parse(tokens.AccessToken, "other-secret", "classtrack")
	assert.Error(t, err)
}

func TestParseRejectsIssuerMismatch(t *testing.T) {
	tokens, err := auth.Issue("user-1", auth.RoleStudent, "someone-else", "secret", time.Minute, time.Hour)
	assert.NoError(t, err)

	_, err = auth.Parse(tokens.AccessToken, "secret", "classtrack")
	assert.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	tokens, err := auth.Issue("user-1", auth.RoleStudent, "classtrack", "secret", -time.Minute, time.Hour)
	assert.NoError(t, err)

	_, err = auth.Parse(tokens.AccessToken, "secret", "classtrack")
	assert.Error(t, err)
}
