package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-engine/internal/auth"
	"github.com/ignatzorin/escrow-engine/internal/interface/http/response"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

// Context ключи для gin.Context.
const (
	ContextUserIDKey = "userID"
	ContextRoleKey   = "role"
)

// AuthMiddleware проверяет JWT access токен.
// Для websocket токен допускается в query параметре token, браузер не умеет ставить заголовок.
func AuthMiddleware(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearer(c)
		if raw == "" {
			response.Error(c, apperror.ErrUnauthorized)
			c.Abort()
			return
		}

		id, err := tokens.ParseAccess(raw)
		if err != nil {
			response.Error(c, apperror.New(apperror.ErrCodeUnauthorized, "токен невалиден"))
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, id.UserID)
		c.Set(ContextRoleKey, id.Role)
		c.Next()
	}
}

// RequireRole пропускает только пользователей с указанной ролью платформы.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextRoleKey) != role {
			response.Error(c, apperror.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser возвращает пользователя, установленного AuthMiddleware.
func CurrentUser(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(ContextUserIDKey)
	if !ok {
		return auth.Identity{}, false
	}
	userID, ok := v.(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return auth.Identity{}, false
	}
	return auth.Identity{UserID: userID, Role: c.GetString(ContextRoleKey)}, true
}

func bearer(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if c.IsWebsocket() {
		return c.Query("token")
	}
	return ""
}
