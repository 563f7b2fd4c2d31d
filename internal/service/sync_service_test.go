package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"classbazz-backend/internal/errors"
	"classbazz-backend/internal/metrics"
	"classbazz-backend/internal/model"
	"classbazz-backend/internal/presence"
	"classbazz-backend/internal/realtime"
	"classbazz-backend/internal/repository/interfaces"
	"classbazz-backend/internal/repository/memory"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockPostRepository 是 PostRepository 接口的模拟实现
type MockPostRepository struct {
	mock.Mock
}

func (m *MockPostRepository) Create(ctx context.Context, post *model.Post) error {
	args := m.Called(ctx, post)
	return args.Error(0)
}

func (m *MockPostRepository) FindByID(ctx context.Context, id string) (*model.Post, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Post), args.Error(1)
}

func (m *MockPostRepository) ListRecent(ctx context.Context, limit int) ([]*model.Post, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Post), args.Error(1)
}

func (m *MockPostRepository) Save(ctx context.Context, post *model.Post) error {
	args := m.Called(ctx, post)
	return args.Error(0)
}

func (m *MockPostRepository) CountByKind(ctx context.Context, kind model.PostKind) (int64, error) {
	args := m.Called(ctx, kind)
	return args.Get(0).(int64), args.Error(1)
}

var _ interfaces.PostRepository = (*MockPostRepository)(nil)

// recordingBroadcaster 记录全部广播
type recordingBroadcaster struct {
	mu       sync.Mutex
	events   []string
	payloads []interface{}
	err      error
}

func (b *recordingBroadcaster) Broadcast(event string, payload interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.events = append(b.events, event)
	b.payloads = append(b.payloads, payload)
	return nil
}

func (b *recordingBroadcaster) Events() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string{}, b.events...)
}

func (b *recordingBroadcaster) Last() (string, interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return "", nil
	}
	return b.events[len(b.events)-1], b.payloads[len(b.payloads)-1]
}

func (b *recordingBroadcaster) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
	b.payloads = nil
}

var alice = model.Identity{Name: "alice", AvatarURL: "https://example.com/a.png", UserID: "u-alice"}

type syncFixture struct {
	svc         *SyncService
	repo        interfaces.PostRepository
	registry    *presence.Registry
	broadcaster *recordingBroadcaster
	metrics     *metrics.Metrics
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	return newSyncFixtureWithRepo(t, memory.NewPostRepository())
}

func newSyncFixtureWithRepo(t *testing.T, repo interfaces.PostRepository) *syncFixture {
	t.Helper()
	f := &syncFixture{
		repo:        repo,
		registry:    presence.NewRegistry(),
		broadcaster: &recordingBroadcaster{},
		metrics:     metrics.NewNop(),
	}
	f.svc = NewSyncService(f.repo, f.registry, f.broadcaster, f.metrics, SyncOptions{MaxRetries: 3})
	return f
}

func (f *syncFixture) createTextPost(t *testing.T, text string) *model.Post {
	t.Helper()
	post, err := f.svc.CreatePost(context.Background(), alice, CreatePostInput{Kind: model.PostKindText, Text: text})
	require.NoError(t, err)
	f.broadcaster.Reset()
	return post
}

func TestCreatePost(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	post, err := f.svc.CreatePost(ctx, alice, CreatePostInput{Kind: model.PostKindText, Text: "hello"})
	require.NoError(t, err)

	assert.NotEmpty(t, post.ID)
	assert.Equal(t, model.PostKindText, post.Kind)
	assert.Equal(t, alice, post.User)
	assert.Empty(t, post.Reactions)
	assert.Empty(t, post.Comments)
	assert.False(t, post.CreatedAt.IsZero())

	assert.Equal(t, []string{realtime.EventPostNew, realtime.EventStatsUpdate}, f.broadcaster.Events())

	_, payload := f.broadcaster.Last()
	stats := payload.(*model.Stats)
	assert.Equal(t, int64(1), stats.PostCount)
	assert.Equal(t, int64(1), stats.TextPostCount)
	assert.Equal(t, 0, stats.OnlineCount)

	stored, err := f.repo.FindByID(ctx, post.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "hello", stored.Text)
}

func TestCreatePost_KeepsOnlyKindPayload(t *testing.T) {
	f := newSyncFixture(t)

	post, err := f.svc.CreatePost(context.Background(), alice, CreatePostInput{
		Kind:     model.PostKindCode,
		Text:     "ignored",
		Code:     &model.CodeSnippet{Content: "fmt.Println(1)"},
		ImageURL: "https://example.com/ignored.png",
	})
	require.NoError(t, err)

	require.NotNil(t, post.Code)
	assert.Equal(t, "plaintext", post.Code.Language)
	assert.Empty(t, post.Text)
	assert.Empty(t, post.ImageURL)
}

func TestCreatePost_ImageWithCaption(t *testing.T) {
	f := newSyncFixture(t)

	post, err := f.svc.CreatePost(context.Background(), alice, CreatePostInput{
		Kind:     model.PostKindImage,
		Text:     "sunset",
		ImageURL: "https://example.com/sunset.png",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/sunset.png", post.ImageURL)
	assert.Equal(t, "sunset", post.Text)
	assert.Nil(t, post.Code)
}

func TestCreatePost_UnknownKind(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	post, err := f.svc.CreatePost(ctx, alice, CreatePostInput{Kind: "video"})
	assert.Nil(t, post)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	assert.Empty(t, f.broadcaster.Events())

	n, err := f.repo.CountByKind(ctx, model.PostKindText)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreatePost_StoreFailure(t *testing.T) {
	repo := new(MockPostRepository)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*model.Post")).Return(stderrors.New("connection refused"))
	f := newSyncFixtureWithRepo(t, repo)

	post, err := f.svc.CreatePost(context.Background(), alice, CreatePostInput{Kind: model.PostKindText, Text: "hello"})
	assert.Nil(t, post)
	assert.True(t, errors.Is(err, errors.ErrStore))
	assert.Empty(t, f.broadcaster.Events())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Events.WithLabelValues(realtime.EventPostCreate, metrics.OutcomeStoreError)))
	repo.AssertExpectations(t)
}

func TestCreatePost_BroadcastFailureKeepsPost(t *testing.T) {
	f := newSyncFixture(t)
	f.broadcaster.err = stderrors.New("hub closed")

	post, err := f.svc.CreatePost(context.Background(), alice, CreatePostInput{Kind: model.PostKindText, Text: "hello"})
	require.NoError(t, err)

	stored, err := f.repo.FindByID(context.Background(), post.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored)
}

func TestReactToPost(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	post := f.createTextPost(t, "hello")

	updated, err := f.svc.ReactToPost(ctx, "u1", post.ID, model.ReactionLike)
	require.NoError(t, err)
	assert.Equal(t, []model.Reaction{{UserID: "u1", Type: model.ReactionLike}}, updated.Reactions)

	updated, err = f.svc.ReactToPost(ctx, "u1", post.ID, model.ReactionLove)
	require.NoError(t, err)
	assert.Equal(t, []model.Reaction{{UserID: "u1", Type: model.ReactionLove}}, updated.Reactions)

	assert.Equal(t, []string{realtime.EventPostReaction, realtime.EventPostReaction}, f.broadcaster.Events())

	_, payload := f.broadcaster.Last()
	assert.Equal(t, post.ID, payload.(*model.Post).ID)
}

func TestReactToPost_NotFound(t *testing.T) {
	f := newSyncFixture(t)

	post, err := f.svc.ReactToPost(context.Background(), "u1", "missing", model.ReactionLike)
	assert.Nil(t, post)
	assert.True(t, errors.Is(err, errors.ErrPostNotFound))
	assert.Empty(t, f.broadcaster.Events())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Events.WithLabelValues(realtime.EventPostReaction, metrics.OutcomeNotFound)))
}

func TestReactToPost_InvalidInput(t *testing.T) {
	f := newSyncFixture(t)
	post := f.createTextPost(t, "hello")

	_, err := f.svc.ReactToPost(context.Background(), "u1", post.ID, "meh")
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = f.svc.ReactToPost(context.Background(), "", post.ID, model.ReactionLike)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = f.svc.ReactToPost(context.Background(), "u1", "", model.ReactionLike)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	assert.Empty(t, f.broadcaster.Events())
}

func TestAddComment(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	post := f.createTextPost(t, "hello")

	bob := model.Identity{Name: "bob", AvatarURL: "https://example.com/b.png"}
	_, err := f.svc.AddComment(ctx, bob, post.ID, "first")
	require.NoError(t, err)
	updated, err := f.svc.AddComment(ctx, alice, post.ID, "  second  ")
	require.NoError(t, err)

	require.Len(t, updated.Comments, 2)
	assert.Equal(t, "first", updated.Comments[0].Text)
	assert.Equal(t, bob, updated.Comments[0].User)
	assert.Equal(t, "second", updated.Comments[1].Text)
	assert.NotEmpty(t, updated.Comments[0].ID)
	assert.NotEqual(t, updated.Comments[0].ID, updated.Comments[1].ID)
	assert.Empty(t, updated.Comments[1].Reactions)

	assert.Equal(t, []string{realtime.EventPostComment, realtime.EventPostComment}, f.broadcaster.Events())
}

func TestAddComment_Blank(t *testing.T) {
	f := newSyncFixture(t)
	post := f.createTextPost(t, "hello")

	_, err := f.svc.AddComment(context.Background(), alice, post.ID, "   ")
	assert.True(t, errors.Is(err, errors.ErrValidation))
	assert.Empty(t, f.broadcaster.Events())

	stored, err := f.repo.FindByID(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Comments)
}

func TestReactToComment(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	post := f.createTextPost(t, "hello")

	withComment, err := f.svc.AddComment(ctx, alice, post.ID, "nice")
	require.NoError(t, err)
	commentID := withComment.Comments[0].ID
	f.broadcaster.Reset()

	updated, err := f.svc.ReactToComment(ctx, "u2", post.ID, commentID, model.ReactionLaugh)
	require.NoError(t, err)
	assert.Equal(t, []model.Reaction{{UserID: "u2", Type: model.ReactionLaugh}}, updated.Comments[0].Reactions)
	assert.Empty(t, updated.Reactions)

	event, payload := f.broadcaster.Last()
	assert.Equal(t, realtime.EventPostReaction, event)
	assert.Equal(t, post.ID, payload.(*model.Post).ID)
}

func TestReactToComment_NotFound(t *testing.T) {
	f := newSyncFixture(t)
	post := f.createTextPost(t, "hello")

	_, err := f.svc.ReactToComment(context.Background(), "u2", post.ID, "missing", model.ReactionLike)
	assert.True(t, errors.Is(err, errors.ErrCommentNotFound))

	_, err = f.svc.ReactToComment(context.Background(), "u2", "missing", "missing", model.ReactionLike)
	assert.True(t, errors.Is(err, errors.ErrPostNotFound))

	assert.Empty(t, f.broadcaster.Events())
}

func TestConcurrentReactionsAreNotLost(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	post := f.createTextPost(t, "hello")

	const users = 50
	var wg sync.WaitGroup
	errs := make(chan error, users)
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.ReactToPost(ctx, fmt.Sprintf("u%d", i), post.ID, model.ReactionLike)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	stored, err := f.repo.FindByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Reactions, users)
	assert.Len(t, f.broadcaster.Events(), users)
	assert.Zero(t, f.svc.locks.size())
}

func TestConcurrentCommentsAreNotLost(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	post := f.createTextPost(t, "hello")

	const comments = 20
	var wg sync.WaitGroup
	for i := 0; i < comments; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.AddComment(ctx, alice, post.ID, fmt.Sprintf("comment %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stored, err := f.repo.FindByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Comments, comments)
}

func TestMutate_RetriesVersionConflict(t *testing.T) {
	post := &model.Post{ID: "p1", Kind: model.PostKindText, Text: "hello", Version: 1}

	repo := new(MockPostRepository)
	repo.On("FindByID", mock.Anything, "p1").Return(post.Clone(), nil).Once()
	repo.On("FindByID", mock.Anything, "p1").Return(post.Clone(), nil).Once()
	repo.On("Save", mock.Anything, mock.AnythingOfType("*model.Post")).Return(interfaces.ErrVersionConflict).Once()
	repo.On("Save", mock.Anything, mock.AnythingOfType("*model.Post")).Return(nil).Once()
	f := newSyncFixtureWithRepo(t, repo)

	updated, err := f.svc.ReactToPost(context.Background(), "u1", "p1", model.ReactionSad)
	require.NoError(t, err)
	assert.Len(t, updated.Reactions, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.StoreConflicts))
	assert.Equal(t, []string{realtime.EventPostReaction}, f.broadcaster.Events())
	repo.AssertExpectations(t)
}

func TestMutate_ConflictRetriesExhausted(t *testing.T) {
	post := &model.Post{ID: "p1", Kind: model.PostKindText, Text: "hello", Version: 1}

	repo := new(MockPostRepository)
	repo.On("FindByID", mock.Anything, "p1").Return(post.Clone(), nil)
	repo.On("Save", mock.Anything, mock.AnythingOfType("*model.Post")).Return(interfaces.ErrVersionConflict)
	f := newSyncFixtureWithRepo(t, repo)

	_, err := f.svc.ReactToPost(context.Background(), "u1", "p1", model.ReactionSad)
	assert.True(t, errors.Is(err, errors.ErrStore))
	assert.Empty(t, f.broadcaster.Events())
	repo.AssertNumberOfCalls(t, "Save", 4)
}

func TestMutate_SaveFailureIsNotRetried(t *testing.T) {
	post := &model.Post{ID: "p1", Kind: model.PostKindText, Text: "hello", Version: 1}

	repo := new(MockPostRepository)
	repo.On("FindByID", mock.Anything, "p1").Return(post.Clone(), nil).Once()
	repo.On("Save", mock.Anything, mock.AnythingOfType("*model.Post")).Return(stderrors.New("disk full")).Once()
	f := newSyncFixtureWithRepo(t, repo)

	_, err := f.svc.AddComment(context.Background(), alice, "p1", "hi")
	assert.True(t, errors.Is(err, errors.ErrStore))
	assert.Empty(t, f.broadcaster.Events())
	repo.AssertExpectations(t)
}

func TestConnectDisconnect(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Connect(ctx, "c1", alice))
	require.NoError(t, f.svc.Connect(ctx, "c2", alice))

	_, payload := f.broadcaster.Last()
	assert.Equal(t, 2, payload.(*model.Stats).OnlineCount)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.OnlineConnections))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OnlineUsers))

	err := f.svc.Connect(ctx, "c1", alice)
	assert.True(t, errors.Is(err, errors.ErrBadRequest))

	f.broadcaster.Reset()
	f.svc.Disconnect(ctx, "unknown")
	assert.Empty(t, f.broadcaster.Events())

	f.svc.Disconnect(ctx, "c1")
	event, payload := f.broadcaster.Last()
	assert.Equal(t, realtime.EventStatsUpdate, event)
	assert.Equal(t, 1, payload.(*model.Stats).OnlineCount)

	f.svc.Disconnect(ctx, "c1")
	assert.Len(t, f.broadcaster.Events(), 1)
}

func TestListRecentAndStats(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f := newSyncFixture(t)
	f.svc.now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	ctx := context.Background()

	first := f.createTextPost(t, "first")
	_, err := f.svc.CreatePost(ctx, alice, CreatePostInput{Kind: model.PostKindImage, ImageURL: "https://example.com/x.png"})
	require.NoError(t, err)
	_, err = f.svc.CreatePost(ctx, alice, CreatePostInput{Kind: model.PostKindCode, Code: &model.CodeSnippet{Language: "go", Content: "x"}})
	require.NoError(t, err)

	posts, err := f.svc.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, model.PostKindCode, posts[0].Kind)
	assert.Equal(t, model.PostKindImage, posts[1].Kind)
	assert.NotEqual(t, first.ID, posts[1].ID)

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &model.Stats{PostCount: 3, TextPostCount: 1, CodePostCount: 1, ImagePostCount: 1}, stats)
}

func TestStats_StoreFailure(t *testing.T) {
	repo := new(MockPostRepository)
	repo.On("CountByKind", mock.Anything, model.PostKindText).Return(int64(0), stderrors.New("timeout"))
	f := newSyncFixtureWithRepo(t, repo)

	_, err := f.svc.Stats(context.Background())
	assert.True(t, errors.Is(err, errors.ErrStore))

	// 统计失败时连接照常登记，只是不广播
	require.NoError(t, f.svc.Connect(context.Background(), "c1", alice))
	assert.Empty(t, f.broadcaster.Events())
	assert.Equal(t, 1, f.registry.Count())
}

func TestFeedScenario(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	userA := model.Identity{Name: "a", AvatarURL: "https://example.com/a.png", UserID: "userA"}
	userB := model.Identity{Name: "b", AvatarURL: "https://example.com/b.png", UserID: "userB"}

	require.NoError(t, f.svc.Connect(ctx, "conn-a", userA))
	require.NoError(t, f.svc.Connect(ctx, "conn-b", userB))

	post, err := f.svc.CreatePost(ctx, userA, CreatePostInput{Kind: model.PostKindText, Text: "hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, post.ID)
	assert.Empty(t, post.Reactions)
	assert.Empty(t, post.Comments)

	post, err = f.svc.ReactToPost(ctx, userA.UserID, post.ID, model.ReactionLike)
	require.NoError(t, err)
	assert.Equal(t, []model.Reaction{{UserID: "userA", Type: model.ReactionLike}}, post.Reactions)

	post, err = f.svc.ReactToPost(ctx, userA.UserID, post.ID, model.ReactionLove)
	require.NoError(t, err)
	assert.Equal(t, []model.Reaction{{UserID: "userA", Type: model.ReactionLove}}, post.Reactions)

	post, err = f.svc.AddComment(ctx, userB, post.ID, "hi")
	require.NoError(t, err)
	require.Len(t, post.Comments, 1)
	assert.Equal(t, "hi", post.Comments[0].Text)

	f.broadcaster.Reset()
	f.svc.Disconnect(ctx, "conn-a")

	event, payload := f.broadcaster.Last()
	assert.Equal(t, realtime.EventStatsUpdate, event)
	stats := payload.(*model.Stats)
	assert.Equal(t, 1, stats.OnlineCount)
	assert.Equal(t, int64(1), stats.PostCount)
}
