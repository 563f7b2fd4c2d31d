package presence

import (
	"errors"
	"sync"

	"classbazz-backend/internal/model"
)

// ErrAlreadyRegistered 同一个连接ID重复注册
var ErrAlreadyRegistered = errors.New("连接已注册")

// Registry 在线连接表：连接ID -> 身份
//
// 以连接ID为键，同一用户多个标签页各算一个在线连接。
type Registry struct {
	mu      sync.RWMutex
	entries map[string]model.Identity
}

// NewRegistry 创建空的在线表，生命周期与进程一致
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]model.Identity)}
}

// Register 连接认证成功后调用一次
func (r *Registry) Register(connID string, identity model.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[connID]; ok {
		return ErrAlreadyRegistered
	}
	r.entries[connID] = identity
	return nil
}

// Unregister 连接终止时调用，返回该连接此前是否在线
func (r *Registry) Unregister(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[connID]; !ok {
		return false
	}
	delete(r.entries, connID)
	return true
}

// Lookup 查询连接绑定的身份
func (r *Registry) Lookup(connID string) (model.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.entries[connID]
	return identity, ok
}

// Count 当前在线连接数
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// UniqueUsers 按 userId 去重后的在线人数，没有 userId 的连接各算一人
func (r *Registry) UniqueUsers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(r.entries))
	anonymous := 0
	for _, identity := range r.entries {
		if identity.UserID == "" {
			anonymous++
			continue
		}
		seen[identity.UserID] = struct{}{}
	}
	return len(seen) + anonymous
}
