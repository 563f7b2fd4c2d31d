package realtime

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// BroadcastTopic 所有连接共同订阅的主题
const BroadcastTopic = "feed.broadcast"

const eventMetadataKey = "event"

// Broadcaster 向全部在线连接推送消息
type Broadcaster interface {
	Broadcast(event string, payload interface{}) error
}

// Hub 基于进程内 Pub/Sub 的广播总线
//
// 发布会阻塞到全部订阅者确认，保证每个连接收到的广播顺序与发布顺序一致。
// 订阅者只需把消息放进自己的发送缓冲区后立即 Ack。
type Hub struct {
	pubSub *gochannel.GoChannel
}

// NewHub 创建广播总线
func NewHub(logger watermill.LoggerAdapter) *Hub {
	return &Hub{
		pubSub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            16,
			BlockPublishUntilSubscriberAck: true,
		}, logger),
	}
}

var _ Broadcaster = (*Hub)(nil)

// Broadcast 把事件编码为 JSON 帧后发布
func (h *Hub) Broadcast(event string, payload interface{}) error {
	body, err := json.Marshal(Frame{Event: event, Data: payload})
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), body)
	msg.Metadata.Set(eventMetadataKey, event)
	return h.pubSub.Publish(BroadcastTopic, msg)
}

// Subscribe 订阅广播，ctx 结束时自动退订并关闭通道
func (h *Hub) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return h.pubSub.Subscribe(ctx, BroadcastTopic)
}

// EventOf 读取广播消息的事件名
func EventOf(msg *message.Message) string {
	return msg.Metadata.Get(eventMetadataKey)
}

// Close 关闭总线，全部订阅通道随之关闭
func (h *Hub) Close() error {
	return h.pubSub.Close()
}
