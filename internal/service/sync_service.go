package service

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"classbazz-backend/internal/common"
	"classbazz-backend/internal/errors"
	"classbazz-backend/internal/metrics"
	"classbazz-backend/internal/model"
	"classbazz-backend/internal/presence"
	"classbazz-backend/internal/realtime"
	"classbazz-backend/internal/repository/interfaces"
	"classbazz-backend/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SyncServiceInterface 实时动态的全部写操作与查询
type SyncServiceInterface interface {
	Connect(ctx context.Context, connID string, identity model.Identity) error
	Disconnect(ctx context.Context, connID string)
	CreatePost(ctx context.Context, author model.Identity, input CreatePostInput) (*model.Post, error)
	ReactToPost(ctx context.Context, userID, postID string, reactionType model.ReactionType) (*model.Post, error)
	ReactToComment(ctx context.Context, userID, postID, commentID string, reactionType model.ReactionType) (*model.Post, error)
	AddComment(ctx context.Context, author model.Identity, postID, text string) (*model.Post, error)
	ListRecent(ctx context.Context, limit int) ([]*model.Post, error)
	Stats(ctx context.Context) (*model.Stats, error)
}

// SyncOptions 同步服务的可调参数
type SyncOptions struct {
	MaxRetries int
	Now        func() time.Time
}

// SyncService 把每个变更落库，成功后向全部连接广播结果
//
// 同一帖子的读-改-写在进程内串行执行，存储层再以版本号兜底，
// 多实例部署时冲突由重试消化。
type SyncService struct {
	postRepo    interfaces.PostRepository
	presence    *presence.Registry
	stats       *StatsService
	broadcaster realtime.Broadcaster
	metrics     *metrics.Metrics

	locks      *keyedMutex
	statsMu    sync.Mutex
	maxRetries int
	now        func() time.Time
}

var _ SyncServiceInterface = (*SyncService)(nil)

func NewSyncService(
	postRepo interfaces.PostRepository,
	registry *presence.Registry,
	broadcaster realtime.Broadcaster,
	m *metrics.Metrics,
	opts SyncOptions,
) *SyncService {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &SyncService{
		postRepo:    postRepo,
		presence:    registry,
		stats:       NewStatsService(registry, postRepo),
		broadcaster: broadcaster,
		metrics:     m,
		locks:       newKeyedMutex(),
		maxRetries:  opts.MaxRetries,
		now:         opts.Now,
	}
}

// Connect 登记在线连接并广播新的统计
func (s *SyncService) Connect(ctx context.Context, connID string, identity model.Identity) error {
	if err := s.presence.Register(connID, identity); err != nil {
		return errors.Wrap(errors.ErrBadRequest, "连接登记失败", err)
	}
	s.updatePresenceGauges()

	util.Logger.Info("用户上线",
		util.ConnID(connID),
		zap.String("name", identity.Name),
		zap.Int("online", s.presence.Count()))

	s.broadcastStats(ctx)
	return nil
}

// Disconnect 注销连接，未登记的连接不做任何事
func (s *SyncService) Disconnect(ctx context.Context, connID string) {
	if !s.presence.Unregister(connID) {
		return
	}
	s.updatePresenceGauges()

	util.Logger.Info("用户下线",
		util.ConnID(connID),
		zap.Int("online", s.presence.Count()))

	s.broadcastStats(ctx)
}

// CreatePost 创建帖子，广播 post:new 和 stats:update
func (s *SyncService) CreatePost(ctx context.Context, author model.Identity, input CreatePostInput) (*model.Post, error) {
	post, err := s.newPost(author, input)
	if err != nil {
		s.record(realtime.EventPostCreate, err)
		return nil, err
	}

	if err := s.postRepo.Create(ctx, post); err != nil {
		util.Logger.Error("创建帖子失败", util.Error(err), zap.String("kind", string(post.Kind)))
		err = errors.Wrap(errors.ErrStore, "创建帖子失败", err)
		s.record(realtime.EventPostCreate, err)
		return nil, err
	}
	s.record(realtime.EventPostCreate, nil)

	util.Logger.Debug("帖子已创建", util.PostID(post.ID), zap.String("kind", string(post.Kind)))

	s.broadcast(realtime.EventPostNew, post)
	s.broadcastStats(ctx)
	return post, nil
}

// ReactToPost 设置用户对帖子的回应，已有回应则替换类型
func (s *SyncService) ReactToPost(ctx context.Context, userID, postID string, reactionType model.ReactionType) (*model.Post, error) {
	if err := validateReaction(userID, reactionType); err != nil {
		s.record(realtime.EventPostReaction, err)
		return nil, err
	}

	return s.mutate(ctx, realtime.EventPostReaction, postID, func(post *model.Post) error {
		post.Reactions = model.UpsertReaction(post.Reactions, userID, reactionType)
		return nil
	})
}

// ReactToComment 设置用户对评论的回应，广播整条帖子
func (s *SyncService) ReactToComment(ctx context.Context, userID, postID, commentID string, reactionType model.ReactionType) (*model.Post, error) {
	if err := validateReaction(userID, reactionType); err != nil {
		s.record(realtime.EventCommentReaction, err)
		return nil, err
	}

	return s.mutate(ctx, realtime.EventCommentReaction, postID, func(post *model.Post) error {
		comment := post.FindComment(commentID)
		if comment == nil {
			return errors.New(errors.ErrCommentNotFound, "评论不存在")
		}
		comment.Reactions = model.UpsertReaction(comment.Reactions, userID, reactionType)
		return nil
	})
}

// AddComment 在帖子末尾追加评论
func (s *SyncService) AddComment(ctx context.Context, author model.Identity, postID, text string) (*model.Post, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		err := errors.New(errors.ErrValidation, "评论内容不能为空")
		s.record(realtime.EventPostComment, err)
		return nil, err
	}

	return s.mutate(ctx, realtime.EventPostComment, postID, func(post *model.Post) error {
		post.Comments = append(post.Comments, model.Comment{
			ID:        uuid.New().String(),
			User:      author,
			Text:      text,
			CreatedAt: s.now().UTC(),
			Reactions: []model.Reaction{},
		})
		return nil
	})
}

// ListRecent 最新的帖子，按创建时间倒序
func (s *SyncService) ListRecent(ctx context.Context, limit int) ([]*model.Post, error) {
	posts, err := s.postRepo.ListRecent(ctx, limit)
	if err != nil {
		util.Logger.Error("获取帖子列表失败", util.Error(err))
		return nil, errors.Wrap(errors.ErrStore, "获取帖子列表失败", err)
	}
	return posts, nil
}

// Stats 当前统计快照
func (s *SyncService) Stats(ctx context.Context) (*model.Stats, error) {
	stats, err := s.stats.Snapshot(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrStore, "统计失败", err)
	}
	return stats, nil
}

// mutate 在帖子锁内完成读-改-写和广播，版本冲突时重新读取再应用
func (s *SyncService) mutate(ctx context.Context, event, postID string, apply func(post *model.Post) error) (*model.Post, error) {
	if postID == "" {
		err := errors.New(errors.ErrValidation, "缺少帖子ID")
		s.record(event, err)
		return nil, err
	}

	unlock := s.locks.Lock(postID)
	defer unlock()

	var saved *model.Post
	err := common.WithRetry(ctx, func() error {
		post, err := s.postRepo.FindByID(ctx, postID)
		if err != nil {
			return errors.Wrap(errors.ErrStore, "读取帖子失败", err)
		}
		if post == nil {
			return errors.New(errors.ErrPostNotFound, "帖子不存在")
		}

		if err := apply(post); err != nil {
			return err
		}
		post.UpdatedAt = s.now().UTC()

		if err := s.postRepo.Save(ctx, post); err != nil {
			if stderrors.Is(err, interfaces.ErrVersionConflict) {
				s.metrics.StoreConflicts.Inc()
				util.Logger.Debug("帖子版本冲突，重试", util.PostID(postID))
				return err
			}
			return errors.Wrap(errors.ErrStore, "保存帖子失败", err)
		}
		saved = post
		return nil
	}, s.maxRetries)

	if err != nil {
		if stderrors.Is(err, interfaces.ErrVersionConflict) {
			err = errors.Wrap(errors.ErrStore, "帖子并发更新冲突", err)
		}
		s.logFailure(event, postID, err)
		s.record(event, err)
		return nil, err
	}
	s.record(event, nil)

	s.broadcast(broadcastEventFor(event), saved)
	return saved, nil
}

func (s *SyncService) newPost(author model.Identity, input CreatePostInput) (*model.Post, error) {
	if !input.Kind.Valid() {
		return nil, errors.New(errors.ErrValidation, "未知的帖子类型")
	}

	now := s.now().UTC()
	post := &model.Post{
		Kind:      input.Kind,
		User:      author,
		Reactions: []model.Reaction{},
		Comments:  []model.Comment{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	switch input.Kind {
	case model.PostKindText:
		post.Text = input.Text
	case model.PostKindCode:
		if input.Code == nil {
			return nil, errors.New(errors.ErrValidation, "代码内容不能为空")
		}
		code := *input.Code
		if code.Language == "" {
			code.Language = defaultCodeLanguage
		}
		post.Code = &code
	case model.PostKindImage:
		post.ImageURL = input.ImageURL
		post.Text = input.Text
	}
	return post, nil
}

// broadcast 广播失败只记日志，变更本身已经成功
func (s *SyncService) broadcast(event string, payload interface{}) {
	if err := s.broadcaster.Broadcast(event, payload); err != nil {
		util.Logger.Error("广播失败", zap.String("event", event), util.Error(err))
		return
	}
	s.metrics.Broadcasts.WithLabelValues(event).Inc()
}

// broadcastStats 统计的计算和发布串行执行，最后一次广播总是最新快照
func (s *SyncService) broadcastStats(ctx context.Context) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	stats, err := s.stats.Snapshot(ctx)
	if err != nil {
		util.Logger.Error("统计失败，跳过广播", util.Error(err))
		return
	}
	s.broadcast(realtime.EventStatsUpdate, stats)
}

func (s *SyncService) updatePresenceGauges() {
	s.metrics.OnlineConnections.Set(float64(s.presence.Count()))
	s.metrics.OnlineUsers.Set(float64(s.presence.UniqueUsers()))
}

func (s *SyncService) record(event string, err error) {
	s.metrics.Events.WithLabelValues(event, OutcomeOf(err)).Inc()
}

func (s *SyncService) logFailure(event, postID string, err error) {
	fields := []zap.Field{zap.String("event", event), util.PostID(postID), util.Error(err)}
	switch OutcomeOf(err) {
	case metrics.OutcomeStoreError:
		util.Logger.Error("帖子更新失败", fields...)
	default:
		util.Logger.Debug("忽略无效的帖子更新", fields...)
	}
}

// OutcomeOf 把错误归入监控用的结果分类
func OutcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.IsNotFound(err):
		return metrics.OutcomeNotFound
	case errors.Is(err, errors.ErrValidation), errors.Is(err, errors.ErrUnknownEvent), errors.Is(err, errors.ErrBadRequest):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeStoreError
	}
}

// broadcastEventFor 客户端事件对应的广播事件，评论回应以整条帖子的 post:reaction 推送
func broadcastEventFor(event string) string {
	switch event {
	case realtime.EventPostComment:
		return realtime.EventPostComment
	default:
		return realtime.EventPostReaction
	}
}

func validateReaction(userID string, reactionType model.ReactionType) error {
	if userID == "" {
		return errors.New(errors.ErrValidation, "缺少用户ID")
	}
	if !reactionType.Valid() {
		return errors.New(errors.ErrValidation, "无效的回应类型")
	}
	return nil
}
