package model

// Stats 实时统计快照，每次触发时重新计算
type Stats struct {
	OnlineCount    int   `json:"onlineCount"`
	PostCount      int64 `json:"postCount"`
	TextPostCount  int64 `json:"textPostCount"`
	CodePostCount  int64 `json:"codePostCount"`
	ImagePostCount int64 `json:"imagePostCount"`
}
