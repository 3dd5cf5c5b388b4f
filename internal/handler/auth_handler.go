package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-admin-api/internal/middleware"
	"github.com/noah-isme/campus-admin-api/internal/models"
	"github.com/noah-isme/campus-admin-api/internal/service"
	"github.com/noah-isme/campus-admin-api/pkg/cookie"
	"github.com/noah-isme/campus-admin-api/pkg/device"
	appErrors "github.com/noah-isme/campus-admin-api/pkg/errors"
	"github.com/noah-isme/campus-admin-api/pkg/response"
)

// AuthHandler wires HTTP endpoints to the auth service.
type AuthHandler struct {
	service *service.AuthService
	cookies cookie.Policy
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc *service.AuthService, cookies cookie.Policy) *AuthHandler {
	return &AuthHandler{service: svc, cookies: cookies}
}

// Login godoc
// @Summary Authenticate user
// @Description Authenticate by email and password. Sets the accessToken and refreshToken cookies.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}

	res, err := h.service.Login(c.Request.Context(), req, device.FromRequest(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	h.cookies.SetTokens(c, res.Tokens)
	response.JSON(c, http.StatusOK, models.AuthResponse{User: res.User}, nil)
}

// Register godoc
// @Summary Register user
// @Description Create a student (self-service) or faculty (administrators only) account.
// @Description Self-registration signs the new user in; registration by an administrator leaves the administrator's cookies untouched.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RegisterRequest true "Register payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid register payload"))
		return
	}

	actor, _ := middleware.CurrentIdentity(c)
	res, err := h.service.Register(c.Request.Context(), req, actor, device.FromRequest(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	if res.Tokens != nil {
		h.cookies.SetTokens(c, res.Tokens)
	}
	response.JSON(c, http.StatusOK, models.AuthResponse{User: res.User}, nil)
}

// VerifyUser godoc
// @Summary Current user
// @Description Returns the identity attached by the session middleware.
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/verify-user [get]
func (h *AuthHandler) VerifyUser(c *gin.Context) {
	identity, _, ok := requireIdentity(c)
	if !ok {
		return
	}
	response.JSON(c, http.StatusOK, models.AuthResponse{User: identity.Public()}, nil)
}

// Logout godoc
// @Summary Logout current session
// @Description Removes the session named by the refresh cookie and clears both cookies.
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/logout [get]
func (h *AuthHandler) Logout(c *gin.Context) {
	_, refresh := cookie.Read(c)
	err := h.service.Logout(c.Request.Context(), refresh, device.FromRequest(c))
	h.cookies.Clear(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"message": "logged out"}, nil)
}

// ChangePassword godoc
// @Summary Change password
// @Description Change password for current user and end all of their other sessions.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.ChangePasswordRequest true "Change password"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /auth/change-password [post]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	identity, decoded, ok := requireIdentity(c)
	if !ok {
		return
	}

	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.service.ChangePassword(c.Request.Context(), identity.ID, decoded.SessionID, req, device.FromRequest(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// ListSessions godoc
// @Summary List sessions
// @Description Lists the caller's active sessions, flagging the current one.
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/sessions [get]
func (h *AuthHandler) ListSessions(c *gin.Context) {
	identity, decoded, ok := requireIdentity(c)
	if !ok {
		return
	}

	sessions, err := h.service.ListSessions(c.Request.Context(), identity.ID, decoded.SessionID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, sessions, nil)
}

// RevokeSession godoc
// @Summary Revoke session
// @Description Ends one of the caller's sessions.
// @Tags Authentication
// @Produce json
// @Param id path string true "Session ID"
// @Success 204 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /auth/sessions/{id} [delete]
func (h *AuthHandler) RevokeSession(c *gin.Context) {
	identity, _, ok := requireIdentity(c)
	if !ok {
		return
	}

	if err := h.service.RevokeSession(c.Request.Context(), identity.ID, c.Param("id"), device.FromRequest(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
