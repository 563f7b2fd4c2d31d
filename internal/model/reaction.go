package model

// ReactionType 表情回应类型
type ReactionType string

const (
	ReactionLike  ReactionType = "like"
	ReactionLove  ReactionType = "love"
	ReactionLaugh ReactionType = "laugh"
	ReactionSad   ReactionType = "sad"
	ReactionAngry ReactionType = "angry"
)

// Valid 判断是否为支持的回应类型
func (t ReactionType) Valid() bool {
	switch t {
	case ReactionLike, ReactionLove, ReactionLaugh, ReactionSad, ReactionAngry:
		return true
	}
	return false
}

// Reaction 同一个可回应对象内每个用户最多一条
type Reaction struct {
	UserID string       `json:"userId"`
	Type   ReactionType `json:"type"`
}

// UpsertReaction 已有该用户的回应则原地替换类型，否则追加
func UpsertReaction(reactions []Reaction, userID string, t ReactionType) []Reaction {
	for i := range reactions {
		if reactions[i].UserID == userID {
			reactions[i].Type = t
			return reactions
		}
	}
	return append(reactions, Reaction{UserID: userID, Type: t})
}
