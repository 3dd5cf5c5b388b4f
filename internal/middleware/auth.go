package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-admin-api/internal/models"
	"github.com/noah-isme/campus-admin-api/internal/service"
	"github.com/noah-isme/campus-admin-api/pkg/cookie"
	"github.com/noah-isme/campus-admin-api/pkg/device"
	"github.com/noah-isme/campus-admin-api/pkg/logger"
	"github.com/noah-isme/campus-admin-api/pkg/response"
)

const (
	// ContextUserKey is the gin context key storing the authenticated identity (without secrets).
	ContextUserKey = "currentUser"
	// ContextDecodedKey is the gin context key storing the decoded token of the request.
	ContextDecodedKey = "decodedToken"
)

// Authenticate protects routes with the rotation engine. When the access cookie has
// expired but the refresh cookie is redeemable, both cookies are replaced on this response.
func Authenticate(engine *service.RotationEngine, policy cookie.Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		access, refresh := cookie.Read(c)
		result, err := engine.Authenticate(c.Request.Context(), service.AuthenticateRequest{
			AccessToken:  access,
			RefreshToken: refresh,
			Device:       device.FromRequest(c),
		})
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		attach(c, result, policy)
		c.Next()
	}
}

// OptionalAuthenticate attaches the identity when the cookies authenticate but never blocks.
func OptionalAuthenticate(engine *service.RotationEngine, policy cookie.Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		access, refresh := cookie.Read(c)
		if access == "" && refresh == "" {
			c.Next()
			return
		}

		result, err := engine.Authenticate(c.Request.Context(), service.AuthenticateRequest{
			AccessToken:  access,
			RefreshToken: refresh,
			Device:       device.FromRequest(c),
		})
		if err == nil {
			attach(c, result, policy)
		}
		c.Next()
	}
}

func attach(c *gin.Context, result *service.AuthenticateResult, policy cookie.Policy) {
	if result.Rotated() {
		policy.SetTokens(c, result.Tokens)
	}
	c.Set(ContextUserKey, result.Identity)
	c.Set(ContextDecodedKey, result.Decoded)
	logger.Annotate(c, result.Decoded.ID, result.Decoded.SessionID, result.Rotated())
}

// CurrentIdentity returns the identity attached by Authenticate.
func CurrentIdentity(c *gin.Context) (*models.Identity, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	identity, ok := value.(*models.Identity)
	return identity, ok && identity != nil
}

// CurrentDecoded returns the decoded token attached by Authenticate.
func CurrentDecoded(c *gin.Context) (models.DecodedToken, bool) {
	value, exists := c.Get(ContextDecodedKey)
	if !exists {
		return models.DecodedToken{}, false
	}
	decoded, ok := value.(models.DecodedToken)
	return decoded, ok
}
