package model

// Identity 令牌中携带的用户身份，也是帖子和评论的作者信息
type Identity struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
	UserID    string `json:"userId,omitempty"`
}
