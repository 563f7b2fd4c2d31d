package service

import (
	"strings"

	"classbazz-backend/internal/errors"
	"classbazz-backend/internal/model"
	"classbazz-backend/internal/util"
)

// defaultCodeLanguage 代码帖未指定语言时使用
const defaultCodeLanguage = "plaintext"

// CreatePostInput post:create 的载荷，作者取自连接身份
type CreatePostInput struct {
	Kind     model.PostKind     `json:"kind" validate:"post_kind"`
	Text     string             `json:"text"`
	Code     *model.CodeSnippet `json:"code"`
	ImageURL string             `json:"imageUrl"`
}

// ReactionInput post:reaction 的载荷
type ReactionInput struct {
	PostID string             `json:"postId" validate:"required"`
	Type   model.ReactionType `json:"type" validate:"reaction_type"`
}

// CommentReactionInput comment:reaction 的载荷
type CommentReactionInput struct {
	PostID    string             `json:"postId" validate:"required"`
	CommentID string             `json:"commentId" validate:"required"`
	Type      model.ReactionType `json:"type" validate:"reaction_type"`
}

// CommentInput post:comment 的载荷
type CommentInput struct {
	PostID string `json:"postId" validate:"required"`
	Text   string `json:"text" validate:"notblank"`
}

// ValidateCreatePost 入口处校验并规整创建帖子的载荷
func ValidateCreatePost(in *CreatePostInput) error {
	if err := util.Validate.Struct(in); err != nil {
		return errors.Wrap(errors.ErrValidation, "无效的帖子类型", err)
	}

	switch in.Kind {
	case model.PostKindText:
		if strings.TrimSpace(in.Text) == "" {
			return errors.New(errors.ErrValidation, "文字内容不能为空")
		}
	case model.PostKindCode:
		if in.Code == nil || strings.TrimSpace(in.Code.Content) == "" {
			return errors.New(errors.ErrValidation, "代码内容不能为空")
		}
		in.Code.Language = strings.TrimSpace(in.Code.Language)
		if in.Code.Language == "" {
			in.Code.Language = defaultCodeLanguage
		}
	case model.PostKindImage:
		if err := util.Validate.Var(in.ImageURL, "required,url"); err != nil {
			return errors.Wrap(errors.ErrValidation, "图片地址无效", err)
		}
	}
	return nil
}

// ValidateInput 按结构体标签校验其余事件载荷
func ValidateInput(in interface{}) error {
	if err := util.Validate.Struct(in); err != nil {
		return errors.Wrap(errors.ErrValidation, "无效的请求数据", err)
	}
	return nil
}
