package common

import (
	"context"
	stderrors "errors"
	"time"

	"classbazz-backend/internal/repository/interfaces"

	"github.com/cenkalti/backoff/v4"
)

// IsTemporary 判断是否为临时性错误
func IsTemporary(err error) bool {
	var temp interface{ Temporary() bool }
	if stderrors.As(err, &temp) {
		return temp.Temporary()
	}
	return false
}

// IsRetryable 判断是否可重试：版本冲突或临时性错误
func IsRetryable(err error) bool {
	return stderrors.Is(err, interfaces.ErrVersionConflict) || IsTemporary(err)
}

// WithRetry 通用重试机制，指数退避，不可重试的错误立即返回
func WithRetry(ctx context.Context, operation func() error, maxRetries int) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)

	return backoff.Retry(func() error {
		err := operation()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}
