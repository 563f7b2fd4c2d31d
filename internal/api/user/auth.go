package user

import (
	"net/http"
	"strings"

	"classbazz-backend/internal/errors"
	"classbazz-backend/internal/model"
	"classbazz-backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TokenIssuer 为身份签发令牌
type TokenIssuer func(identity model.Identity) (string, error)

// AuthHandler 处理与认证相关的HTTP请求
type AuthHandler struct {
	issue TokenIssuer
}

// NewAuthHandler 创建一个新的 AuthHandler 实例
func NewAuthHandler(issue TokenIssuer) *AuthHandler {
	return &AuthHandler{issue: issue}
}

// IssueToken 用昵称和头像换取访问令牌，未带 userId 时分配一个
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var tokenData struct {
		Name      string `json:"name" binding:"required"`
		AvatarURL string `json:"avatarUrl" binding:"required"`
		UserID    string `json:"userId"`
	}

	if err := c.ShouldBindJSON(&tokenData); err != nil {
		util.Logger.Warn("签发令牌失败，无效的请求数据", zap.Error(err))
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "需要 name 和 avatarUrl", err))
		return
	}

	identity := model.Identity{
		Name:      strings.TrimSpace(tokenData.Name),
		AvatarURL: strings.TrimSpace(tokenData.AvatarURL),
		UserID:    strings.TrimSpace(tokenData.UserID),
	}
	if identity.Name == "" || identity.AvatarURL == "" {
		errors.HandleError(c, errors.New(errors.ErrValidation, "需要 name 和 avatarUrl"))
		return
	}
	if identity.UserID == "" {
		identity.UserID = uuid.NewString()
	}

	token, err := h.issue(identity)
	if err != nil {
		util.Logger.Error("生成令牌失败", zap.Error(err))
		errors.HandleError(c, errors.Wrap(errors.ErrInternal, "生成令牌失败", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":  token,
		"userId": identity.UserID,
	})
}
