package util

import (
	"classbazz-backend/config"
	"classbazz-backend/internal/model"
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// IdentityClaims 令牌载荷：用户自报的身份，经服务端签名
type IdentityClaims struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
	UserID    string `json:"userId,omitempty"`
	jwt.StandardClaims
}

// GenerateToken 为身份签发令牌，有效期取自配置
func GenerateToken(identity model.Identity) (string, error) {
	now := time.Now()
	claims := IdentityClaims{
		Name:      identity.Name,
		AvatarURL: identity.AvatarURL,
		UserID:    identity.UserID,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(config.AppConfig.TokenTTL).Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.AppConfig.JWTSecret))
}

// ValidateToken 校验令牌并取出身份
func ValidateToken(tokenString string) (model.Identity, error) {
	if tokenString == "" {
		return model.Identity{}, errors.New("令牌为空")
	}

	claims := &IdentityClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("不支持的签名算法: %v", token.Header["alg"])
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})
	if err != nil {
		return model.Identity{}, err
	}
	if !token.Valid {
		return model.Identity{}, errors.New("无效的令牌")
	}
	if claims.Name == "" {
		return model.Identity{}, errors.New("令牌缺少用户名")
	}

	return model.Identity{
		Name:      claims.Name,
		AvatarURL: claims.AvatarURL,
		UserID:    claims.UserID,
	}, nil
}
