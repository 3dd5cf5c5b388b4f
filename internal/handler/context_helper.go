package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-admin-api/internal/middleware"
	"github.com/noah-isme/campus-admin-api/internal/models"
	appErrors "github.com/noah-isme/campus-admin-api/pkg/errors"
	"github.com/noah-isme/campus-admin-api/pkg/response"
)

// requireIdentity returns the authenticated identity and decoded token or writes a 401.
func requireIdentity(c *gin.Context) (*models.Identity, models.DecodedToken, bool) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, models.DecodedToken{}, false
	}
	decoded, _ := middleware.CurrentDecoded(c)
	return identity, decoded, true
}
