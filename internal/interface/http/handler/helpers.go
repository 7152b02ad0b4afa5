package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-engine/internal/auth"
	"github.com/ignatzorin/escrow-engine/internal/domain/repository"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/http/middleware"
	"github.com/ignatzorin/escrow-engine/internal/interface/http/response"
)

func currentUser(c *gin.Context) (auth.Identity, bool) {
	id, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "требуется авторизация")
	}
	return id, ok
}

// pathID разбирает :id. Формат уже проверен UUIDValidator, ошибка здесь означает
// маршрут без валидатора.
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "некорректный ID")
		return uuid.Nil, false
	}
	return id, true
}

// bindJSON разбирает тело запроса. Пустое тело допустимо для команд без параметров.
func bindJSON(c *gin.Context, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		response.BadRequest(c, "некорректные данные запроса")
		return false
	}
	return true
}

func parseIntQuery(c *gin.Context, key string, defaultValue int) int {
	valueStr := c.Query(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func listFilter(c *gin.Context) repository.ListFilter {
	return repository.ListFilter{
		Status: strings.TrimSpace(c.Query("status")),
		Limit:  parseIntQuery(c, "limit", 20),
		Offset: parseIntQuery(c, "offset", 0),
	}.Normalize()
}

func parseMoney(c *gin.Context, amount float64, currency string) (valueobject.Money, bool) {
	money, err := valueobject.NewMoneyFromMajor(amount, strings.ToUpper(strings.TrimSpace(currency)))
	if err != nil {
		response.Error(c, err)
		return valueobject.Money{}, false
	}
	return money, true
}
