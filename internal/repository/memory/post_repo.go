package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"classbazz-backend/internal/model"
	"classbazz-backend/internal/repository/interfaces"

	"github.com/oklog/ulid/v2"
)

// postRepository 进程内的帖子存储，用于测试和 DB_DRIVER=memory
type postRepository struct {
	mu    sync.RWMutex
	posts map[string]*model.Post
}

func NewPostRepository() *postRepository {
	return &postRepository{posts: make(map[string]*model.Post)}
}

var _ interfaces.PostRepository = (*postRepository)(nil)

func (r *postRepository) Create(ctx context.Context, post *model.Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	post.ID = ulid.Make().String()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = post.CreatedAt
	post.Version = 1
	post.Normalize()

	r.posts[post.ID] = post.Clone()
	return nil
}

func (r *postRepository) FindByID(ctx context.Context, id string) (*model.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	post, ok := r.posts[id]
	if !ok {
		return nil, nil
	}
	return post.Clone(), nil
}

func (r *postRepository) ListRecent(ctx context.Context, limit int) ([]*model.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	posts := make([]*model.Post, 0, len(r.posts))
	for _, p := range r.posts {
		posts = append(posts, p.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(posts, func(i, j int) bool {
		if posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].ID > posts[j].ID
		}
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (r *postRepository) Save(ctx context.Context, post *model.Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.posts[post.ID]
	if !ok || current.Version != post.Version {
		return interfaces.ErrVersionConflict
	}

	post.Version++
	post.UpdatedAt = time.Now().UTC()
	post.Normalize()
	r.posts[post.ID] = post.Clone()
	return nil
}

func (r *postRepository) CountByKind(ctx context.Context, kind model.PostKind) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, p := range r.posts {
		if p.Kind == kind {
			n++
		}
	}
	return n, nil
}
