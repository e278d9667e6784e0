package executor

import (
	"strings"
	"sync"
)

// LockRegistry 维护按键互斥的锁集合。
// 同一发送方的两次提交绝不并发触链，不同发送方互不影响。
type LockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockRegistry 创建锁注册表。
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{
		locks: make(map[string]*sync.Mutex),
	}
}

// Acquire 返回 key 对应的互斥锁，不存在时创建。
func (r *LockRegistry) Acquire(key string) *sync.Mutex {
	key = strings.ToLower(strings.TrimSpace(key))

	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[key] = lock
	}
	return lock
}
