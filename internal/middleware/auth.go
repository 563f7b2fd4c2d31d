package middleware

import (
	"context"
	"strings"
	"time"

	"classbazz-backend/internal/errors"
	"classbazz-backend/internal/model"
	"classbazz-backend/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// IdentityKey 认证通过后身份在 gin.Context 中的键
const IdentityKey = "identity"

// TokenVerifier 校验令牌并返回其中的身份
type TokenVerifier func(token string) (model.Identity, error)

// BearerToken 从 Authorization 头中取出令牌
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func AuthMiddleware(verify TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			errors.HandleError(c, errors.New(errors.ErrAuthFailure, "需要认证"))
			c.Abort()
			return
		}

		token, ok := BearerToken(authHeader)
		if !ok {
			errors.HandleError(c, errors.New(errors.ErrAuthFailure, "无效的认证格式"))
			c.Abort()
			return
		}

		identity, err := verify(token)
		if err != nil {
			util.Logger.Debug("令牌校验失败",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err))
			errors.HandleError(c, errors.Wrap(errors.ErrInvalidToken, "无效或过期的令牌", err))
			c.Abort()
			return
		}

		c.Set(IdentityKey, identity)

		select {
		case <-ctx.Done():
			errors.HandleError(c, errors.New(errors.ErrTimeout, "请求超时"))
			c.Abort()
			return
		default:
			c.Next()
		}
	}
}

// IdentityFrom 读取认证中间件写入的身份
func IdentityFrom(c *gin.Context) (model.Identity, bool) {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return model.Identity{}, false
	}
	identity, ok := v.(model.Identity)
	return identity, ok
}
