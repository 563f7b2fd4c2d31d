package middleware

import (
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"classbazz-backend/internal/metrics"
	"classbazz-backend/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func verifierFor(valid string, identity model.Identity) TokenVerifier {
	return func(token string) (model.Identity, error) {
		if token != valid {
			return model.Identity{}, stderrors.New("bad token")
		}
		return identity, nil
	}
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	_, ok = BearerToken("Basic abc")
	assert.False(t, ok)
	_, ok = BearerToken("Bearer ")
	assert.False(t, ok)
	_, ok = BearerToken("abc")
	assert.False(t, ok)
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	identity := model.Identity{Name: "alice", AvatarURL: "https://example.com/a.png", UserID: "u1"}
	router := gin.New()
	router.GET("/me", AuthMiddleware(verifierFor("good", identity)), func(c *gin.Context) {
		got, ok := IdentityFrom(c)
		assert.True(t, ok)
		c.JSON(http.StatusOK, got)
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"有效令牌", "Bearer good", http.StatusOK},
		{"缺少令牌", "", http.StatusUnauthorized},
		{"格式错误", "Token good", http.StatusUnauthorized},
		{"无效令牌", "Bearer bad", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestRecoveryAndErrorMonitor(t *testing.T) {
	gin.SetMode(gin.TestMode)

	m := metrics.NewNop()
	router := gin.New()
	router.Use(ErrorMonitorMiddleware(m), RecoveryMiddleware())
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	req, _ := http.NewRequest(http.MethodGet, "/panic", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPErrors.WithLabelValues("1000")))
}
