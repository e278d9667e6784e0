package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config 描述了 SuiAgent 在启动阶段需要加载的核心配置。
type Config struct {
	Server    ServerConfig    `json:"server"`
	LLM       LLMConfig       `json:"llm"`
	Sui       SuiConfig       `json:"sui"`
	Walrus    WalrusConfig    `json:"walrus"`
	Contacts  ContactsConfig  `json:"contacts"`
	Knowledge KnowledgeConfig `json:"knowledge"`
	Storage   StorageConfig   `json:"storage"`
	TaskQueue TaskQueueConfig `json:"task_queue"`
	Auth      AuthConfig      `json:"auth"`
	Logging   LoggingConfig   `json:"logging"`
	Runtime   RuntimeConfig   `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// LLMConfig 用于配置大模型意图解析的调用方式。
type LLMConfig struct {
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	MaxTurns       int    `json:"max_turns"`
}

// SuiConfig 包含访问 Sui 节点所需的信息。
// NetworkCatalog 指向 YAML 网络清单，Network 选择其中一项。
type SuiConfig struct {
	NetworkCatalog   string `json:"network_catalog"`
	Network          string `json:"network"`
	TimeoutSeconds   int    `json:"timeout_seconds"`
	ValidatorAddress string `json:"validator_address"`
	StakingPoolID    string `json:"staking_pool_id"`
}

// WalrusConfig 描述 Walrus blob 存储的访问端点。
type WalrusConfig struct {
	PublisherURL   string `json:"publisher_url"`
	AggregatorURL  string `json:"aggregator_url"`
	Epochs         int    `json:"epochs"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ContactsConfig 控制联系人目录的 blob 索引驱动。
// memory 驱动是进程内映射（进程重启即丢失，MVP 显式接受的限制）；
// redis 驱动可在不改动加密逻辑的情况下换成持久化索引。
type ContactsConfig struct {
	IndexDriver string      `json:"index_driver"`
	Pepper      string      `json:"pepper"`
	Redis       RedisConfig `json:"redis"`
}

// KnowledgeConfig 指向意图解析使用的少样本示例库。
// Source 为空时使用内置示例。
type KnowledgeConfig struct {
	Source     string `json:"source"`
	MaxResults int    `json:"max_results"`
}

// RedisConfig 统一描述 Redis 连接参数。
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// StorageConfig 描述执行记录的落库方式。
type StorageConfig struct {
	Records RecordStoreConfig `json:"records"`
}

// RecordStoreConfig 支持 memory（本地 JSONL 文件）与 mysql 两种驱动。
type RecordStoreConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds"`
}

// TaskQueueConfig 控制异步执行任务的队列驱动。
type TaskQueueConfig struct {
	Driver     string              `json:"driver"`
	MaxRetries int                 `json:"max_retries"`
	Workers    int                 `json:"workers"`
	Redis      RedisQueueConfig    `json:"redis"`
	RabbitMQ   RabbitMQQueueConfig `json:"rabbitmq"`
}

// RedisQueueConfig 描述 Redis 队列参数。
type RedisQueueConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	Queue     string `json:"queue"`
	BlockWait int    `json:"block_wait_seconds"`
}

// RabbitMQQueueConfig 描述 RabbitMQ 队列参数。
type RabbitMQQueueConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// AuthConfig 控制入站请求的鉴权方式。
type AuthConfig struct {
	Mode    string   `json:"mode"`
	APIKeys []string `json:"api_keys"`
}

// LoggingConfig 透传给 pkg/logger。
type LoggingConfig struct {
	Level       string   `json:"level"`
	Format      string   `json:"format"`
	OutputPaths []string `json:"output_paths"`
	AuditPath   string   `json:"audit_path"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o"
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = 30
	}
	if c.LLM.MaxTurns <= 0 {
		c.LLM.MaxTurns = 3
	}

	if c.Sui.NetworkCatalog == "" {
		c.Sui.NetworkCatalog = filepath.Join(baseDir, "networks.yaml")
	} else if !filepath.IsAbs(c.Sui.NetworkCatalog) {
		c.Sui.NetworkCatalog = filepath.Join(baseDir, c.Sui.NetworkCatalog)
	}
	if c.Sui.Network == "" {
		c.Sui.Network = "testnet"
	}
	if c.Sui.TimeoutSeconds <= 0 {
		c.Sui.TimeoutSeconds = 30
	}

	if c.Walrus.Epochs <= 0 {
		c.Walrus.Epochs = 5
	}
	if c.Walrus.TimeoutSeconds <= 0 {
		c.Walrus.TimeoutSeconds = 30
	}

	if c.Contacts.IndexDriver == "" {
		c.Contacts.IndexDriver = "memory"
	}

	if c.Storage.Records.Driver == "" {
		c.Storage.Records.Driver = "memory"
	}

	if c.TaskQueue.Driver == "" {
		c.TaskQueue.Driver = "memory"
	}
	if c.TaskQueue.MaxRetries <= 0 {
		c.TaskQueue.MaxRetries = 3
	}
	if c.TaskQueue.Workers <= 0 {
		c.TaskQueue.Workers = 2
	}

	if c.Auth.Mode == "" {
		c.Auth.Mode = "disabled"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
}
