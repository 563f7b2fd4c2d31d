package gateway

import (
	"context"
	"sync"
	"time"

	"classbazz-backend/internal/errors"
	"classbazz-backend/internal/model"
	"classbazz-backend/internal/realtime"
	"classbazz-backend/internal/util"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// client 一个已认证的连接。读循环顺序处理事件，写循环独占 conn 的写端
type client struct {
	id       string
	identity model.Identity
	conn     *websocket.Conn
	codec    realtime.Codec

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(id string, identity model.Identity, conn *websocket.Conn, codec realtime.Codec, buffer int) *client {
	return &client{
		id:       id,
		identity: identity,
		conn:     conn,
		codec:    codec,
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
	}
}

// readPump 读到错误或连接关闭为止
func (c *client) readPump(ctx context.Context, g *Gateway) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				util.Logger.Debug("连接异常断开", util.ConnID(c.id), zap.Error(err))
			}
			return
		}

		frame, err := c.codec.Decode(data)
		if err != nil {
			util.Logger.Debug("无法解析客户端消息", util.ConnID(c.id), zap.Error(err))
			c.reply(realtime.Frame{
				Event: realtime.EventError,
				Data:  toAckError(errors.Wrap(errors.ErrValidation, "无法解析消息", err)),
			})
			continue
		}

		g.handle(ctx, c, frame)
	}
}

// writePump 发送缓冲区中的帧并定时 ping
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(c.codec.MessageType(), data); err != nil {
				util.Logger.Debug("写入连接失败", util.ConnID(c.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// forward 把广播转入发送缓冲区。每条消息都要 Ack，否则发布方会一直阻塞
func (c *client) forward(msgs <-chan *message.Message) {
	for msg := range msgs {
		data, err := c.codec.FromBroadcast(msg.Payload)
		if err != nil {
			util.Logger.Error("广播转码失败", util.ConnID(c.id), zap.String("event", realtime.EventOf(msg)), zap.Error(err))
		} else {
			c.enqueue(data)
		}
		msg.Ack()
	}
}

// reply 只发给本连接的帧
func (c *client) reply(frame realtime.Frame) {
	data, err := c.codec.Encode(frame)
	if err != nil {
		util.Logger.Error("编码应答失败", util.ConnID(c.id), zap.String("event", frame.Event), zap.Error(err))
		return
	}
	c.enqueue(data)
}

// enqueue 缓冲区满说明客户端跟不上，直接断开
func (c *client) enqueue(data []byte) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- data:
	default:
		util.Logger.Warn("发送缓冲区已满，断开慢连接", util.ConnID(c.id))
		c.close()
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
