package cookie

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-admin-api/internal/models"
)

// Cookie names carrying the token pair.
const (
	AccessTokenName  = "accessToken"
	RefreshTokenName = "refreshToken"
)

// Policy controls how token cookies are written. It is built once from configuration
// and injected into the authentication middleware and handlers.
type Policy struct {
	Secure   bool
	SameSite http.SameSite
	Domain   string
	Path     string
}

// NewPolicy builds a policy. Production forces Secure; SameSite=None is only
// accepted together with Secure.
func NewPolicy(production, secure bool, sameSite, domain, path string) Policy {
	p := Policy{
		Secure:   secure || production,
		SameSite: ParseSameSite(sameSite, production),
		Domain:   domain,
		Path:     path,
	}
	if p.Path == "" {
		p.Path = "/"
	}
	if p.SameSite == http.SameSiteNoneMode && !p.Secure {
		p.SameSite = http.SameSiteLaxMode
	}
	return p
}

// ParseSameSite maps a configuration value onto http.SameSite.
func ParseSameSite(raw string, production bool) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	}
	if production {
		return http.SameSiteStrictMode
	}
	return http.SameSiteLaxMode
}

// SetTokens writes both cookies on the same response.
func (p Policy) SetTokens(c *gin.Context, pair *models.TokenPair) {
	if pair == nil {
		return
	}
	now := time.Now()
	http.SetCookie(c.Writer, p.build(AccessTokenName, pair.AccessToken, pair.AccessExpiresAt.Sub(now)))
	http.SetCookie(c.Writer, p.build(RefreshTokenName, pair.RefreshToken, pair.RefreshExpiresAt.Sub(now)))
}

// Clear expires both cookies on the same response.
func (p Policy) Clear(c *gin.Context) {
	http.SetCookie(c.Writer, p.build(AccessTokenName, "", -1))
	http.SetCookie(c.Writer, p.build(RefreshTokenName, "", -1))
}

// Read returns the raw access and refresh cookie values, empty when absent.
func Read(c *gin.Context) (access, refresh string) {
	access, _ = c.Cookie(AccessTokenName)
	refresh, _ = c.Cookie(RefreshTokenName)
	return access, refresh
}

func (p Policy) build(name, value string, ttl time.Duration) *http.Cookie {
	maxAge := int(ttl.Seconds())
	if ttl < 0 {
		maxAge = -1
	} else if maxAge == 0 {
		maxAge = 1
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     p.Path,
		Domain:   p.Domain,
		MaxAge:   maxAge,
		Secure:   p.Secure,
		HttpOnly: true,
		SameSite: p.SameSite,
	}
}
