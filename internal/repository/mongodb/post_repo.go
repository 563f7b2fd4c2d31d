package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"classbazz-backend/internal/model"
	"classbazz-backend/internal/repository/interfaces"
	"classbazz-backend/internal/util"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const postsCollection = "posts"

// Connect 连接 MongoDB 并确认可用，启动阶段失败即退出
func Connect(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(timeout).
		SetSocketTimeout(45 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("连接 MongoDB 失败: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("MongoDB 连接测试失败: %w", err)
	}
	return client, nil
}

type postRepository struct {
	coll *mongo.Collection
}

func NewPostRepository(db *mongo.Database) *postRepository {
	return &postRepository{coll: db.Collection(postsCollection)}
}

var _ interfaces.PostRepository = (*postRepository)(nil)

// EnsureIndexes 创建排序和统计用的索引
func (r *postRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "kind", Value: 1}}},
	})
	return err
}

func (r *postRepository) Create(ctx context.Context, post *model.Post) error {
	oid := primitive.NewObjectID()
	post.ID = oid.Hex()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}
	post.UpdatedAt = post.CreatedAt
	post.Version = 1
	post.Normalize()

	doc, err := toDocument(post)
	if err != nil {
		return err
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		util.Logger.Error("创建帖子失败", zap.Error(err))
		return err
	}
	return nil
}

func (r *postRepository) FindByID(ctx context.Context, id string) (*model.Post, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		// 非法ID不可能存在，按未找到处理
		return nil, nil
	}

	var doc postDocument
	err = r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return fromDocument(&doc), nil
}

func (r *postRepository) ListRecent(ctx context.Context, limit int) ([]*model.Post, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	posts := make([]*model.Post, 0, limit)
	for cursor.Next(ctx) {
		var doc postDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		posts = append(posts, fromDocument(&doc))
	}
	return posts, cursor.Err()
}

func (r *postRepository) Save(ctx context.Context, post *model.Post) error {
	expected := post.Version
	updated := post.Clone()
	updated.Version = expected + 1
	updated.UpdatedAt = time.Now().UTC()
	updated.Normalize()

	doc, err := toDocument(updated)
	if err != nil {
		return err
	}

	result, err := r.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID, "version": expected}, doc)
	if err != nil {
		util.Logger.Error("更新帖子失败", zap.Error(err), util.PostID(post.ID))
		return err
	}
	if result.MatchedCount == 0 {
		return interfaces.ErrVersionConflict
	}

	*post = *updated
	return nil
}

func (r *postRepository) CountByKind(ctx context.Context, kind model.PostKind) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{"kind": string(kind)})
}
