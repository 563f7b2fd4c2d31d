package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// 支持的 websocket 子协议
const (
	ProtocolJSON    = "json"
	ProtocolMsgpack = "msgpack"
)

// Protocols 握手时可协商的子协议，按优先级排列
var Protocols = []string{ProtocolJSON, ProtocolMsgpack}

var errMissingData = errors.New("消息缺少 data 字段")

// InboundFrame 解码后的客户端帧，Data 延迟到 Bind 时按目标类型解析
type InboundFrame struct {
	Event     string
	RequestID string

	bind func(v interface{}) error
}

// Bind 把 data 解析到 v
func (f InboundFrame) Bind(v interface{}) error {
	if f.bind == nil {
		return errMissingData
	}
	return f.bind(v)
}

// Codec 连接级别的编解码器
type Codec interface {
	Name() string
	// MessageType websocket 帧类型（文本或二进制）
	MessageType() int
	Encode(frame Frame) ([]byte, error)
	Decode(data []byte) (InboundFrame, error)
	// FromBroadcast 把广播总线上的 JSON 帧转换为本编码
	FromBroadcast(payload []byte) ([]byte, error)
}

// CodecFor 按协商出的子协议选择编解码器，未协商时使用 JSON
func CodecFor(protocol string) Codec {
	if protocol == ProtocolMsgpack {
		return msgpackCodec{}
	}
	return jsonCodec{}
}

type jsonCodec struct{}

func (jsonCodec) Name() string     { return ProtocolJSON }
func (jsonCodec) MessageType() int { return websocket.TextMessage }

func (jsonCodec) Encode(frame Frame) ([]byte, error) {
	return json.Marshal(frame)
}

func (jsonCodec) Decode(data []byte) (InboundFrame, error) {
	var raw struct {
		Event     string          `json:"event"`
		RequestID string          `json:"requestId"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return InboundFrame{}, fmt.Errorf("解析 JSON 帧失败: %w", err)
	}

	frame := InboundFrame{Event: raw.Event, RequestID: raw.RequestID}
	if len(raw.Data) > 0 && !bytes.Equal(raw.Data, []byte("null")) {
		frame.bind = func(v interface{}) error { return json.Unmarshal(raw.Data, v) }
	}
	return frame, nil
}

func (jsonCodec) FromBroadcast(payload []byte) ([]byte, error) {
	return payload, nil
}

// msgpackCodec 二进制编码，字段名沿用 json 标签，与 JSON 帧结构一致
type msgpackCodec struct{}

func (msgpackCodec) Name() string     { return ProtocolMsgpack }
func (msgpackCodec) MessageType() int { return websocket.BinaryMessage }

func (c msgpackCodec) Encode(frame Frame) ([]byte, error) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return nil, err
	}
	return c.FromBroadcast(payload)
}

func (msgpackCodec) Decode(data []byte) (InboundFrame, error) {
	var raw struct {
		Event     string             `json:"event"`
		RequestID string             `json:"requestId"`
		Data      msgpack.RawMessage `json:"data"`
	}
	if err := msgpackUnmarshal(data, &raw); err != nil {
		return InboundFrame{}, fmt.Errorf("解析 msgpack 帧失败: %w", err)
	}

	frame := InboundFrame{Event: raw.Event, RequestID: raw.RequestID}
	if len(raw.Data) > 0 && !isMsgpackNil(raw.Data) {
		frame.bind = func(v interface{}) error { return msgpackUnmarshal(raw.Data, v) }
	}
	return frame, nil
}

// FromBroadcast 先按通用结构解析 JSON 再编码，时间等字段保持与 JSON 帧相同的字符串形式
func (msgpackCodec) FromBroadcast(payload []byte) ([]byte, error) {
	var generic interface{}
	if err := json.Unmarshal(payload, &generic); err != nil {
		return nil, err
	}
	return msgpackMarshal(generic)
}

func msgpackMarshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func msgpackUnmarshal(data []byte, v interface{}) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

func isMsgpackNil(b []byte) bool {
	return len(b) == 1 && b[0] == 0xc0
}
