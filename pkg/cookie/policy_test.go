package cookie

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-admin-api/internal/models"
)

func TestNewPolicyProductionDefaults(t *testing.T) {
	p := NewPolicy(true, false, "", "", "")
	assert.True(t, p.Secure)
	assert.Equal(t, http.SameSiteStrictMode, p.SameSite)
	assert.Equal(t, "/", p.Path)
}

func TestNewPolicyNoneRequiresSecure(t *testing.T) {
	assert.Equal(t, http.SameSiteLaxMode, NewPolicy(false, false, "none", "", "/").SameSite)
	assert.Equal(t, http.SameSiteNoneMode, NewPolicy(false, true, "none", "", "/").SameSite)
}

func TestSetTokensWritesBothCookies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	p := NewPolicy(true, true, "strict", "", "/")
	p.SetTokens(c, &models.TokenPair{
		AccessToken:      "a",
		RefreshToken:     "r",
		AccessExpiresAt:  time.Now().Add(15 * time.Minute),
		RefreshExpiresAt: time.Now().Add(7 * 24 * time.Hour),
	})

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 2)
	byName := map[string]*http.Cookie{}
	for _, ck := range cookies {
		byName[ck.Name] = ck
		assert.True(t, ck.HttpOnly)
		assert.True(t, ck.Secure)
		assert.Equal(t, http.SameSiteStrictMode, ck.SameSite)
	}
	assert.Equal(t, "a", byName[AccessTokenName].Value)
	assert.Equal(t, "r", byName[RefreshTokenName].Value)
	assert.InDelta(t, 900, byName[AccessTokenName].MaxAge, 2)
}

func TestClearExpiresBothCookies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	NewPolicy(false, false, "lax", "", "/").Clear(c)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 2)
	for _, ck := range cookies {
		assert.Empty(t, ck.Value)
		assert.True(t, ck.MaxAge < 0)
	}
}
