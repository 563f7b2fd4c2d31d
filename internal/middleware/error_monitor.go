package middleware

import (
	"strconv"

	"classbazz-backend/internal/errors"
	"classbazz-backend/internal/metrics"
	"classbazz-backend/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorMonitorMiddleware 按错误码统计处理器记录的错误，服务端错误额外写日志
func ErrorMonitorMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		for _, e := range c.Errors {
			code := errors.CodeOf(e.Err)
			m.HTTPErrors.WithLabelValues(strconv.Itoa(int(code))).Inc()

			if errors.StatusOf(code) >= 500 {
				util.Logger.Error("请求处理错误",
					zap.Int("error_code", int(code)),
					zap.Error(e.Err),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method))
			}
		}
	}
}
