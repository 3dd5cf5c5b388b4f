package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-admin-api/internal/models"
)

func newTestCodec(t *testing.T) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "campus",
		Audience:      []string{"campus-web"},
	})
	require.NoError(t, err)
	return codec
}

var testSubject = models.TokenSubject{SubjectID: "u1", SessionID: "s1", Role: models.RoleStudent}

func TestNewTokenCodecRequiresDistinctKeys(t *testing.T) {
	_, err := NewTokenCodec(TokenConfig{AccessSecret: "same", RefreshSecret: "same"})
	assert.ErrorIs(t, err, ErrSharedSigningKey)

	_, err = NewTokenCodec(TokenConfig{AccessSecret: "only-access"})
	assert.ErrorIs(t, err, ErrSharedSigningKey)
}

func TestIssueAndVerifyAccess(t *testing.T) {
	codec := newTestCodec(t)

	issued, err := codec.IssueAccess(testSubject)
	require.NoError(t, err)
	assert.Empty(t, issued.Secret)

	claims, err := codec.Verify(issued.Value, models.TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.SubjectID())
	assert.Equal(t, "s1", claims.SessionID)
	assert.Equal(t, models.RoleStudent, claims.Role)
	assert.WithinDuration(t, issued.ExpiresAt, claims.ExpiresAtTime(), time.Second)
}

func TestRefreshCarriesSecret(t *testing.T) {
	codec := newTestCodec(t)

	issued, err := codec.IssueRefresh(testSubject)
	require.NoError(t, err)
	require.NotEmpty(t, issued.Secret)

	claims, err := codec.Verify(issued.Value, models.TokenRefresh)
	require.NoError(t, err)
	assert.Equal(t, issued.Secret, claims.Secret)
}

func TestTokensAreNotInterchangeable(t *testing.T) {
	codec := newTestCodec(t)

	access, err := codec.IssueAccess(testSubject)
	require.NoError(t, err)
	refresh, err := codec.IssueRefresh(testSubject)
	require.NoError(t, err)

	_, err = codec.Verify(access.Value, models.TokenRefresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = codec.Verify(refresh.Value, models.TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	codec := newTestCodec(t)
	past := time.Now().Add(-time.Hour)
	issued, err := codec.WithClock(func() time.Time { return past }).IssueAccess(testSubject)
	require.NoError(t, err)

	_, err = codec.Verify(issued.Value, models.TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsForeignKeyAndGarbage(t *testing.T) {
	codec := newTestCodec(t)
	other, err := NewTokenCodec(TokenConfig{AccessSecret: "x1", RefreshSecret: "x2", Issuer: "campus", Audience: []string{"campus-web"}})
	require.NoError(t, err)

	foreign, err := other.IssueAccess(testSubject)
	require.NoError(t, err)

	_, err = codec.Verify(foreign.Value, models.TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = codec.Verify("not-a-token", models.TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = codec.Verify("", models.TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
