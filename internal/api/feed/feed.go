package feed

import (
	"net/http"

	"classbazz-backend/internal/errors"
	"classbazz-backend/internal/middleware"
	"classbazz-backend/internal/model"
	"classbazz-backend/internal/service"

	"github.com/gin-gonic/gin"
)

// FeedHandler 动态流的一次性查询和 REST 回应入口，变更同样经同步服务广播
type FeedHandler struct {
	syncService service.SyncServiceInterface
	recentLimit int
}

func NewFeedHandler(syncService service.SyncServiceInterface, recentLimit int) *FeedHandler {
	return &FeedHandler{
		syncService: syncService,
		recentLimit: recentLimit,
	}
}

type reactionRequest struct {
	Type model.ReactionType `json:"type" binding:"required"`
}

// ListPosts 最新的帖子
func (h *FeedHandler) ListPosts(c *gin.Context) {
	posts, err := h.syncService.ListRecent(c.Request.Context(), h.recentLimit)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	if posts == nil {
		posts = []*model.Post{}
	}
	c.JSON(http.StatusOK, posts)
}

// GetStats 当前统计快照
func (h *FeedHandler) GetStats(c *gin.Context) {
	stats, err := h.syncService.Stats(c.Request.Context())
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ReactToPost 回应者取自令牌，不接受请求体中的用户
func (h *FeedHandler) ReactToPost(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		errors.HandleError(c, errors.New(errors.ErrAuthFailure, "需要认证"))
		return
	}

	var req reactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "无效的请求数据", err))
		return
	}

	post, err := h.syncService.ReactToPost(c.Request.Context(), identity.UserID, c.Param("id"), req.Type)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (h *FeedHandler) ReactToComment(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		errors.HandleError(c, errors.New(errors.ErrAuthFailure, "需要认证"))
		return
	}

	var req reactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "无效的请求数据", err))
		return
	}

	post, err := h.syncService.ReactToComment(c.Request.Context(), identity.UserID, c.Param("id"), c.Param("commentId"), req.Type)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}
