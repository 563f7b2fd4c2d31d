package interfaces

import (
	"context"
	"errors"

	"classbazz-backend/internal/model"
)

// ErrVersionConflict 保存时文档已被其他写入者修改
var ErrVersionConflict = errors.New("文档版本冲突")

// PostRepository 定义了帖子文档的存储接口
//
// FindByID 未找到时返回 (nil, nil)。Save 以 post.Version 做比较交换，
// 版本不一致返回 ErrVersionConflict，成功后 post.Version 递增。
type PostRepository interface {
	Create(ctx context.Context, post *model.Post) error
	FindByID(ctx context.Context, id string) (*model.Post, error)
	ListRecent(ctx context.Context, limit int) ([]*model.Post, error)
	Save(ctx context.Context, post *model.Post) error
	CountByKind(ctx context.Context, kind model.PostKind) (int64, error)
}
