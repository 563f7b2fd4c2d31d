package gateway

import (
	"context"
	"net/http"
	"time"

	"classbazz-backend/internal/errors"
	"classbazz-backend/internal/middleware"
	"classbazz-backend/internal/realtime"
	"classbazz-backend/internal/service"
	"classbazz-backend/internal/util"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20

	// operationTimeout 单个事件的处理时限，与连接生命周期无关
	operationTimeout = 15 * time.Second
)

// Subscriber 广播总线的订阅端
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan *message.Message, error)
}

// Options 网关的可调参数
type Options struct {
	AllowedOrigin string
	SendBuffer    int
	RecentLimit   int
}

// Gateway 把认证后的 websocket 连接接入同步服务
type Gateway struct {
	syncService service.SyncServiceInterface
	hub         Subscriber
	verify      middleware.TokenVerifier
	upgrader    websocket.Upgrader
	sendBuffer  int
	recentLimit int
}

func NewGateway(syncService service.SyncServiceInterface, hub Subscriber, verify middleware.TokenVerifier, opts Options) *Gateway {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = 50
	}

	return &Gateway{
		syncService: syncService,
		hub:         hub,
		verify:      verify,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			Subprotocols:    realtime.Protocols,
			CheckOrigin:     originChecker(opts.AllowedOrigin),
		},
		sendBuffer:  opts.SendBuffer,
		recentLimit: opts.RecentLimit,
	}
}

// ServeWS 校验令牌后升级连接，阻塞到连接结束
func (g *Gateway) ServeWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token, _ = middleware.BearerToken(c.GetHeader("Authorization"))
	}
	if token == "" {
		errors.HandleError(c, errors.New(errors.ErrAuthFailure, "需要认证"))
		return
	}

	identity, err := g.verify(token)
	if err != nil {
		util.Logger.Debug("连接认证失败", zap.Error(err))
		errors.HandleError(c, errors.Wrap(errors.ErrInvalidToken, "无效或过期的令牌", err))
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写回了错误响应
		util.Logger.Warn("websocket 升级失败", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := g.hub.Subscribe(ctx)
	if err != nil {
		util.Logger.Error("订阅广播失败", zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	cl := newClient(uuid.NewString(), identity, conn, realtime.CodecFor(conn.Subprotocol()), g.sendBuffer)
	go cl.writePump()
	go cl.forward(msgs)

	// 先订阅再登记，新连接也能收到自己上线引起的 stats:update
	if err := g.syncService.Connect(ctx, cl.id, identity); err != nil {
		util.Logger.Error("连接登记失败", util.ConnID(cl.id), zap.Error(err))
		cl.close()
		return
	}

	cl.readPump(ctx, g)

	cancel()
	g.syncService.Disconnect(context.Background(), cl.id)
	cl.close()
}

// handle 处理一个客户端帧。带 requestId 的帧总会得到一个 ack
func (g *Gateway) handle(ctx context.Context, cl *client, frame realtime.InboundFrame) {
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), operationTimeout)
	defer cancel()

	data, err := g.dispatch(opCtx, cl, frame)

	if frame.RequestID != "" {
		ack := realtime.Ack{OK: err == nil}
		if err != nil {
			ack.Error = toAckError(err)
		} else {
			ack.Data = data
		}
		cl.reply(realtime.Frame{Event: realtime.EventAck, RequestID: frame.RequestID, Data: ack})
		return
	}

	// 没有 requestId 时只把存储失败告知发起者，其余失败静默丢弃
	if err != nil && errors.CodeOf(err) == errors.ErrStore {
		cl.reply(realtime.Frame{Event: realtime.EventError, Data: toAckError(err)})
	}
}

func (g *Gateway) dispatch(ctx context.Context, cl *client, frame realtime.InboundFrame) (interface{}, error) {
	switch frame.Event {
	case realtime.EventPostCreate:
		var in service.CreatePostInput
		if err := bind(frame, &in); err != nil {
			return nil, err
		}
		if err := service.ValidateCreatePost(&in); err != nil {
			return nil, err
		}
		return g.syncService.CreatePost(ctx, cl.identity, in)

	case realtime.EventPostReaction:
		var in service.ReactionInput
		if err := bindAndValidate(frame, &in); err != nil {
			return nil, err
		}
		return g.syncService.ReactToPost(ctx, cl.identity.UserID, in.PostID, in.Type)

	case realtime.EventCommentReaction:
		var in service.CommentReactionInput
		if err := bindAndValidate(frame, &in); err != nil {
			return nil, err
		}
		return g.syncService.ReactToComment(ctx, cl.identity.UserID, in.PostID, in.CommentID, in.Type)

	case realtime.EventPostComment:
		var in service.CommentInput
		if err := bindAndValidate(frame, &in); err != nil {
			return nil, err
		}
		return g.syncService.AddComment(ctx, cl.identity, in.PostID, in.Text)

	case realtime.EventPostsRecent:
		return g.syncService.ListRecent(ctx, g.recentLimit)

	default:
		return nil, errors.New(errors.ErrUnknownEvent, "未知的事件: "+frame.Event)
	}
}

func bind(frame realtime.InboundFrame, v interface{}) error {
	if err := frame.Bind(v); err != nil {
		return errors.Wrap(errors.ErrValidation, "无效的事件数据", err)
	}
	return nil
}

func bindAndValidate(frame realtime.InboundFrame, v interface{}) error {
	if err := bind(frame, v); err != nil {
		return err
	}
	return service.ValidateInput(v)
}

func toAckError(err error) *realtime.AckError {
	return &realtime.AckError{Code: int(errors.CodeOf(err)), Message: errors.MessageOf(err)}
}

func originChecker(allowed string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed == "*" || origin == allowed
	}
}
