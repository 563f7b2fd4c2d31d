package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"classbazz-backend/internal/model"
	"classbazz-backend/internal/repository/interfaces"
	"classbazz-backend/internal/util"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// 帖子整体以 JSON 文档存放，kind 和 created_at 单独成列用于统计和排序
var schemas = map[string][]string{
	"mysql": {
		`CREATE TABLE IF NOT EXISTS posts (
			id VARCHAR(26) NOT NULL PRIMARY KEY,
			kind VARCHAR(16) NOT NULL,
			document MEDIUMTEXT NOT NULL,
			version BIGINT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			INDEX idx_posts_kind (kind),
			INDEX idx_posts_created_at (created_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
	"sqlite3": {
		`CREATE TABLE IF NOT EXISTS posts (
			id TEXT NOT NULL PRIMARY KEY,
			kind TEXT NOT NULL,
			document TEXT NOT NULL,
			version INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_kind ON posts (kind)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts (created_at)`,
	},
}

// EnsureSchema 按驱动创建表结构，支持 mysql 与 sqlite3
func EnsureSchema(ctx context.Context, db *sql.DB, driver string) error {
	stmts, ok := schemas[driver]
	if !ok {
		return fmt.Errorf("不支持的数据库驱动: %s", driver)
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("创建表结构失败: %w", err)
		}
	}
	return nil
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) *postRepository {
	return &postRepository{db: db}
}

var _ interfaces.PostRepository = (*postRepository)(nil)

func (r *postRepository) Create(ctx context.Context, post *model.Post) error {
	post.ID = ulid.Make().String()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}
	post.UpdatedAt = post.CreatedAt
	post.Version = 1
	post.Normalize()

	doc, err := json.Marshal(post)
	if err != nil {
		return err
	}

	query := `INSERT INTO posts (id, kind, document, version, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		post.ID, string(post.Kind), string(doc), post.Version,
		post.CreatedAt.UnixNano(), post.UpdatedAt.UnixNano())
	if err != nil {
		util.Logger.Error("创建帖子失败", zap.Error(err))
		return err
	}

	util.Logger.Debug("帖子创建成功", util.PostID(post.ID))
	return nil
}

func (r *postRepository) FindByID(ctx context.Context, id string) (*model.Post, error) {
	query := `SELECT id, document, version FROM posts WHERE id = ?`

	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return post, nil
}

func (r *postRepository) ListRecent(ctx context.Context, limit int) ([]*model.Post, error) {
	query := `SELECT id, document, version FROM posts ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := make([]*model.Post, 0, limit)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (r *postRepository) Save(ctx context.Context, post *model.Post) error {
	expected := post.Version
	updated := post.Clone()
	updated.Version = expected + 1
	updated.UpdatedAt = time.Now().UTC()
	updated.Normalize()

	doc, err := json.Marshal(updated)
	if err != nil {
		return err
	}

	query := `UPDATE posts SET document = ?, version = ?, updated_at = ? WHERE id = ? AND version = ?`
	result, err := r.db.ExecContext(ctx, query,
		string(doc), updated.Version, updated.UpdatedAt.UnixNano(), post.ID, expected)
	if err != nil {
		util.Logger.Error("更新帖子失败", zap.Error(err), util.PostID(post.ID))
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return interfaces.ErrVersionConflict
	}

	*post = *updated
	return nil
}

func (r *postRepository) CountByKind(ctx context.Context, kind model.PostKind) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE kind = ?`, string(kind)).Scan(&count)
	return count, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(s scanner) (*model.Post, error) {
	var id, doc string
	var version int64
	if err := s.Scan(&id, &doc, &version); err != nil {
		return nil, err
	}

	var post model.Post
	if err := json.Unmarshal([]byte(doc), &post); err != nil {
		return nil, fmt.Errorf("解析帖子文档失败: %w", err)
	}
	post.ID = id
	post.Version = version
	post.Normalize()
	return &post, nil
}
