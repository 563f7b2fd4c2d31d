package media

import (
	stderrors "errors"
	"net/http"
	"path"

	"classbazz-backend/internal/errors"
	"classbazz-backend/internal/storage"
	"classbazz-backend/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// multipartOverhead 表单边界和头部的余量
const multipartOverhead = 1 << 20

// UploadHandler 接收图片帖使用的文件
type UploadHandler struct {
	uploader storage.Uploader
	folder   string
	maxBytes int64
}

func NewUploadHandler(uploader storage.Uploader, folder string, maxBytes int64) *UploadHandler {
	return &UploadHandler{
		uploader: uploader,
		folder:   folder,
		maxBytes: maxBytes,
	}
}

// Upload 表单字段 file，成功返回可公开访问的地址
func (h *UploadHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)

	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			errors.HandleError(c, errors.Wrap(errors.ErrPayloadTooLarge, "文件过大", err))
			return
		}
		errors.HandleError(c, errors.Wrap(errors.ErrBadRequest, "没有上传文件", err))
		return
	}
	if file.Size > h.maxBytes {
		errors.HandleError(c, errors.New(errors.ErrPayloadTooLarge, "文件过大"))
		return
	}

	objectPath := path.Join(h.folder, util.GenerateUniqueFilename(file.Filename))
	url, err := h.uploader.UploadFile(c.Request.Context(), file, objectPath)
	if err != nil {
		util.Logger.Error("文件上传失败", zap.Error(err), zap.String("path", objectPath))
		errors.HandleError(c, errors.Wrap(errors.ErrUpload, "文件上传失败", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"secure_url": url,
		"url":        url,
		"path":       objectPath,
	})
}
