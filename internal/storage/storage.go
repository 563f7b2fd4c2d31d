package storage

import (
	"context"
	"fmt"
	"mime/multipart"

	"classbazz-backend/config"
)

// Uploader 把上传的文件写入某个后端，返回可公开访问的地址
type Uploader interface {
	UploadFile(ctx context.Context, file *multipart.FileHeader, path string) (string, error)
}

// NewUploader 按配置选择上传后端
func NewUploader(ctx context.Context, cfg config.Config) (Uploader, error) {
	switch cfg.UploadBackend {
	case config.UploadLocal:
		return NewLocalStorage(cfg.LocalStoragePath, cfg.BackendURL+"/uploads")
	case config.UploadS3:
		return NewS3Client(cfg.S3Region, cfg.S3Bucket)
	case config.UploadGCS:
		return NewGCSClient(ctx, cfg.GCSProjectID, cfg.GCSBucketName, cfg.GCSCredentialsFile)
	default:
		return nil, fmt.Errorf("未知的上传后端: %s", cfg.UploadBackend)
	}
}
