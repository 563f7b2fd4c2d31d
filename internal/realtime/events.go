package realtime

// 客户端发往服务端的事件
const (
	EventPostCreate      = "post:create"
	EventPostReaction    = "post:reaction"
	EventPostComment     = "post:comment"
	EventCommentReaction = "comment:reaction"
	EventPostsRecent     = "posts:recent"
)

// 服务端推送的事件
const (
	EventPostNew     = "post:new"
	EventStatsUpdate = "stats:update"
	EventAck         = "ack"
	EventError       = "error"
)

// Frame 线上传输的消息帧，收发两个方向结构一致
type Frame struct {
	Event     string      `json:"event"`
	RequestID string      `json:"requestId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// Ack 对带 requestId 的客户端事件的应答
type Ack struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error *AckError   `json:"error,omitempty"`
}

// AckError 失败应答中的错误信息
type AckError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
