package util

import (
	"classbazz-backend/internal/model"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate 共享的校验器，注册了业务相关的规则
var Validate = NewValidator()

// NewValidator 创建带自定义规则的校验器
func NewValidator() *validator.Validate {
	v := validator.New()
	RegisterValidations(v)
	return v
}

// RegisterValidations 注册自定义规则，gin 的 binding 引擎也复用
func RegisterValidations(v *validator.Validate) {
	v.RegisterValidation("notblank", ValidateNotBlank)
	v.RegisterValidation("reaction_type", ValidateReactionType)
	v.RegisterValidation("post_kind", ValidatePostKind)
}

// ValidateNotBlank 去除空白后不能为空
func ValidateNotBlank(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return strings.TrimSpace(s) != ""
}

// ValidateReactionType 验证回应类型
func ValidateReactionType(fl validator.FieldLevel) bool {
	switch v := fl.Field().Interface().(type) {
	case model.ReactionType:
		return v.Valid()
	case string:
		return model.ReactionType(v).Valid()
	}
	return false
}

// ValidatePostKind 验证帖子类型
func ValidatePostKind(fl validator.FieldLevel) bool {
	switch v := fl.Field().Interface().(type) {
	case model.PostKind:
		return v.Valid()
	case string:
		return model.PostKind(v).Valid()
	}
	return false
}
