package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/campus-admin-api/internal/models"
)

func rbacRouter(identity *models.Identity, guard gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/users/:id", func(c *gin.Context) {
		if identity != nil {
			c.Set(ContextUserKey, identity)
		}
		c.Next()
	}, guard, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func serve(r *gin.Engine, path string) int {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code
}

func TestRequireRoles(t *testing.T) {
	guard := RequireRoles(models.RoleAdmin, models.RoleSuperAdmin)

	assert.Equal(t, http.StatusOK, serve(rbacRouter(&models.Identity{ID: "a", Role: models.RoleAdmin}, guard), "/users/x"))
	assert.Equal(t, http.StatusForbidden, serve(rbacRouter(&models.Identity{ID: "s", Role: models.RoleStudent}, guard), "/users/x"))
	assert.Equal(t, http.StatusUnauthorized, serve(rbacRouter(nil, guard), "/users/x"))
}

func TestRBACSelf(t *testing.T) {
	guard := RBAC(string(models.RoleAdmin), "SELF")
	student := &models.Identity{ID: "s-1", Role: models.RoleStudent}

	assert.Equal(t, http.StatusOK, serve(rbacRouter(student, guard), "/users/s-1"))
	assert.Equal(t, http.StatusForbidden, serve(rbacRouter(student, guard), "/users/s-2"))
}
