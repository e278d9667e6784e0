package walrus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// MemoryStore 是进程内的 blob 存储，按内容寻址。
// 主要服务于本地开发与测试，语义与 Walrus 的幂等上传一致。
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore 创建内存 blob 存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string][]byte),
	}
}

// Upload 写入密文并返回内容哈希作为 blobId。
func (s *MemoryStore) Upload(_ context.Context, data []byte) (*UploadResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("上传内容不能为空")
	}

	sum := sha256.Sum256(data)
	blobID := hex.EncodeToString(sum[:])

	stored := make([]byte, len(data))
	copy(stored, data)

	s.mu.Lock()
	s.blobs[blobID] = stored
	s.mu.Unlock()

	return &UploadResult{
		BlobID: blobID,
		Size:   int64(len(data)),
		Epochs: defaultEpochs,
	}, nil
}

// Download 读取密文。blob 不存在时返回 ErrBlobNotFound。
func (s *MemoryStore) Download(_ context.Context, blobID string) ([]byte, error) {
	s.mu.RLock()
	data, ok := s.blobs[blobID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, blobID)
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Exists 检查 blob 是否已写入。
func (s *MemoryStore) Exists(_ context.Context, blobID string) (bool, error) {
	s.mu.RLock()
	_, ok := s.blobs[blobID]
	s.mu.RUnlock()
	return ok, nil
}

var _ Store = (*MemoryStore)(nil)
