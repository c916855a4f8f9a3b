package http

import (
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// UserIDHeader carries the authenticated caller, set by the gateway in front of this service
const UserIDHeader = "X-User-ID"

const userIDKey = "user_id"

var registerOnce sync.Once

// registerValidators adds the domain binding rules to gin's validator
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("decision", func(fl validator.FieldLevel) bool {
			return entity.IsValidDecision(fl.Field().String())
		})
		_ = v.RegisterValidation("dimension", func(fl validator.FieldLevel) bool {
			return service.IsValidDimension(fl.Field().String())
		})
		_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
			return utils.ValidateCurrency(fl.Field().String()) == nil
		})
	})
}

// requireUser rejects requests without a numeric caller id
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.GetHeader(UserIDHeader), 10, 64)
		if err != nil || id <= 0 {
			abort(c, 401, "UNAUTHENTICATED", "missing or invalid "+UserIDHeader+" header")
			return
		}
		c.Set(userIDKey, id)
		c.Next()
	}
}

func currentUser(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}
