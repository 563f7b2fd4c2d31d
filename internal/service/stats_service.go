package service

import (
	"context"

	"classbazz-backend/internal/model"
	"classbazz-backend/internal/repository/interfaces"
)

// OnlineCounter 在线连接计数来源
type OnlineCounter interface {
	Count() int
}

// StatsService 由在线表和帖子存储现算统计快照，不做缓存
type StatsService struct {
	presence OnlineCounter
	postRepo interfaces.PostRepository
}

func NewStatsService(presence OnlineCounter, postRepo interfaces.PostRepository) *StatsService {
	return &StatsService{
		presence: presence,
		postRepo: postRepo,
	}
}

// Snapshot 计算当前统计，postCount 恒等于三类帖子数之和
func (s *StatsService) Snapshot(ctx context.Context) (*model.Stats, error) {
	stats := &model.Stats{OnlineCount: s.presence.Count()}

	for _, kind := range model.PostKinds {
		n, err := s.postRepo.CountByKind(ctx, kind)
		if err != nil {
			return nil, err
		}
		switch kind {
		case model.PostKindText:
			stats.TextPostCount = n
		case model.PostKindCode:
			stats.CodePostCount = n
		case model.PostKindImage:
			stats.ImagePostCount = n
		}
	}
	stats.PostCount = stats.TextPostCount + stats.CodePostCount + stats.ImagePostCount

	return stats, nil
}
