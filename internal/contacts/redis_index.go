package contacts

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisIndexConfig 描述 Redis 索引的连接参数。
type RedisIndexConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisIndex 把地址到 blobId 的映射放进 Redis，
// 让多个实例共享同一份通讯录索引。
type RedisIndex struct {
	client *redis.Client
	prefix string
}

// NewRedisIndex 创建 Redis 索引实例。
func NewRedisIndex(cfg RedisIndexConfig) (*RedisIndex, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "suiagent:contacts:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisIndex{client: client, prefix: prefix}, nil
}

// Get 返回用户的 blobId。键不存在时第二个返回值为 false。
func (i *RedisIndex) Get(ctx context.Context, userAddress string) (string, bool, error) {
	blobID, err := i.client.Get(ctx, i.key(userAddress)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("读取通讯录索引失败: %w", err)
	}
	return blobID, true, nil
}

// Put 覆盖用户的 blobId 映射。
func (i *RedisIndex) Put(ctx context.Context, userAddress, blobID string) error {
	if err := i.client.Set(ctx, i.key(userAddress), blobID, 0).Err(); err != nil {
		return fmt.Errorf("写入通讯录索引失败: %w", err)
	}
	return nil
}

// Delete 移除用户的映射。
func (i *RedisIndex) Delete(ctx context.Context, userAddress string) error {
	if err := i.client.Del(ctx, i.key(userAddress)).Err(); err != nil {
		return fmt.Errorf("删除通讯录索引失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (i *RedisIndex) Close() error {
	if i == nil || i.client == nil {
		return nil
	}
	return i.client.Close()
}

func (i *RedisIndex) key(userAddress string) string {
	return i.prefix + normalizeAddress(userAddress)
}

var _ BlobIndex = (*RedisIndex)(nil)
