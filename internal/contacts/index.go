package contacts

import (
	"context"
	"strings"
	"sync"
)

// BlobIndex 维护用户地址到通讯录 blobId 的映射。
// 索引只存在密文指针，丢失后无法恢复通讯录。
type BlobIndex interface {
	Get(ctx context.Context, userAddress string) (string, bool, error)
	Put(ctx context.Context, userAddress, blobID string) error
	Delete(ctx context.Context, userAddress string) error
}

// MemoryIndex 是进程内的索引实现。
type MemoryIndex struct {
	mu    sync.RWMutex
	blobs map[string]string
}

// NewMemoryIndex 创建内存索引。
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		blobs: make(map[string]string),
	}
}

// Get 返回用户的 blobId。没有映射时第二个返回值为 false。
func (i *MemoryIndex) Get(_ context.Context, userAddress string) (string, bool, error) {
	i.mu.RLock()
	blobID, ok := i.blobs[normalizeAddress(userAddress)]
	i.mu.RUnlock()
	return blobID, ok, nil
}

// Put 覆盖用户的 blobId 映射。
func (i *MemoryIndex) Put(_ context.Context, userAddress, blobID string) error {
	i.mu.Lock()
	i.blobs[normalizeAddress(userAddress)] = blobID
	i.mu.Unlock()
	return nil
}

// Delete 移除用户的映射。
func (i *MemoryIndex) Delete(_ context.Context, userAddress string) error {
	i.mu.Lock()
	delete(i.blobs, normalizeAddress(userAddress))
	i.mu.Unlock()
	return nil
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

var _ BlobIndex = (*MemoryIndex)(nil)
