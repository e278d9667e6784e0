package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"SuiAgent/internal/agent"
	"SuiAgent/internal/api"
	"SuiAgent/internal/auth"
	"SuiAgent/internal/config"
	"SuiAgent/internal/contacts"
	"SuiAgent/internal/executor"
	"SuiAgent/internal/intent"
	"SuiAgent/internal/knowledge"
	"SuiAgent/internal/llm/openai"
	"SuiAgent/internal/observability/alerting"
	"SuiAgent/internal/storage/mysql"
	"SuiAgent/internal/sui"
	suirpc "SuiAgent/internal/sui/rpc"
	"SuiAgent/internal/task"
	"SuiAgent/internal/walrus"
	"SuiAgent/pkg/logger"
)

// main 是 SuiAgent 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("suiagentd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("SUIAGENT_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "suiagent.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled: cfg.Logging.AuditPath != "",
			Path:    cfg.Logging.AuditPath,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()

	dataDir := cfg.Runtime.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	// 选定 Sui 网络并建立节点连接。
	catalog, err := sui.LoadCatalog(cfg.Sui.NetworkCatalog)
	if err != nil {
		return err
	}
	network, err := catalog.Lookup(cfg.Sui.Network)
	if err != nil {
		return err
	}
	chain, err := suirpc.NewClient(ctx, suirpc.Config{
		Name:   network.Name,
		RPCURL: network.RPCURL,
		Notes:  network.Notes,
	})
	if err != nil {
		return err
	}
	defer chain.Close()

	// 大模型意图解析客户端。
	apiKey := strings.TrimSpace(cfg.LLM.APIKey)
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("SUIAGENT_LLM_API_KEY"))
	}
	if apiKey == "" {
		return errors.New("意图解析需要配置 llm.api_key 或 SUIAGENT_LLM_API_KEY")
	}
	llmClient, err := openai.NewClient(openai.Config{
		APIKey:  apiKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	var examples knowledge.Provider
	if cfg.Knowledge.Source != "" {
		provider, err := knowledge.LoadStaticProvider(cfg.Knowledge.Source, cfg.Knowledge.MaxResults)
		if err != nil {
			return err
		}
		examples = provider
	} else {
		examples = knowledge.NewStaticProvider(knowledge.DefaultExamples(), cfg.Knowledge.MaxResults)
	}

	// 联系人目录：Walrus 存储 + 鉴权加密 + blob 索引。
	pepper := cfg.Contacts.Pepper
	if pepper == "" {
		pepper = os.Getenv("SUIAGENT_CONTACTS_PEPPER")
	}
	cipher, err := contacts.NewCipher(pepper)
	if err != nil {
		return err
	}
	blobStore, err := walrus.NewClient(walrus.Config{
		PublisherURL:  cfg.Walrus.PublisherURL,
		AggregatorURL: cfg.Walrus.AggregatorURL,
		Epochs:        cfg.Walrus.Epochs,
		Timeout:       time.Duration(cfg.Walrus.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return err
	}
	var blobIndex contacts.BlobIndex
	switch cfg.Contacts.IndexDriver {
	case "", "memory":
		blobIndex = contacts.NewMemoryIndex()
	case "redis":
		index, err := contacts.NewRedisIndex(contacts.RedisIndexConfig{
			Address:  cfg.Contacts.Redis.Address,
			Password: cfg.Contacts.Redis.Password,
			DB:       cfg.Contacts.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer index.Close()
		blobIndex = index
	default:
		return errors.New("未知的联系人索引驱动: " + cfg.Contacts.IndexDriver)
	}
	directory, err := contacts.NewDirectory(cipher, blobStore, blobIndex)
	if err != nil {
		return err
	}

	resolver, err := intent.NewResolver(intent.ResolverConfig{
		Client:   llmClient,
		Contacts: directory,
		Examples: examples,
		MaxTurns: cfg.LLM.MaxTurns,
	})
	if err != nil {
		return err
	}

	usdcType := ""
	if coinType, err := network.CoinTypeFor("USDC"); err == nil {
		usdcType = coinType
	}
	coordinator, err := executor.NewCoordinator(chain, executor.Config{
		Validator:    cfg.Sui.ValidatorAddress,
		USDCCoinType: usdcType,
	})
	if err != nil {
		return err
	}

	// 执行记录存储。
	var records mysql.ExecutionRepository
	switch cfg.Storage.Records.Driver {
	case "", "memory":
		repo, err := mysql.NewMemoryExecutionRepository(dataDir)
		if err != nil {
			return err
		}
		records = repo
	case "mysql":
		repo, err := mysql.NewSQLExecutionRepository(ctx, mysql.Config{
			DSN:             cfg.Storage.Records.DSN,
			MaxOpenConns:    cfg.Storage.Records.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.Records.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Storage.Records.ConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.Storage.Records.ConnMaxIdleTimeSeconds) * time.Second,
		})
		if err != nil {
			return err
		}
		records = repo
	default:
		return errors.New("未知的执行记录驱动: " + cfg.Storage.Records.Driver)
	}
	if closer, ok := records.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	ag := agent.New(resolver, directory, chain, coordinator, network,
		agent.WithExecutionRepository(records),
		agent.WithChainTimeout(time.Duration(cfg.Sui.TimeoutSeconds)*time.Second),
		agent.WithValidatorConfigured(cfg.Sui.ValidatorAddress != ""),
	)

	// 异步执行任务：存储 + 队列 + 处理器。
	var taskStore task.Store
	switch cfg.Storage.Records.Driver {
	case "", "memory":
		taskStore = task.NewMemoryStore()
	case "mysql":
		store, err := task.NewMySQLStore(cfg.Storage.Records.DSN)
		if err != nil {
			return err
		}
		taskStore = store
	}
	defer func() {
		if taskStore != nil {
			_ = taskStore.Close()
		}
	}()

	var taskQueue task.Queue
	switch cfg.TaskQueue.Driver {
	case "", "memory":
		taskQueue = task.NewMemoryQueue(1024)
	case "redis":
		queue, err := task.NewRedisQueue(task.RedisQueueConfig{
			Address:   cfg.TaskQueue.Redis.Address,
			Password:  cfg.TaskQueue.Redis.Password,
			DB:        cfg.TaskQueue.Redis.DB,
			Queue:     cfg.TaskQueue.Redis.Queue,
			BlockWait: time.Duration(cfg.TaskQueue.Redis.BlockWait) * time.Second,
		})
		if err != nil {
			return err
		}
		taskQueue = queue
	case "rabbitmq":
		queue, err := task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:        cfg.TaskQueue.RabbitMQ.URL,
			Queue:      cfg.TaskQueue.RabbitMQ.Queue,
			Prefetch:   cfg.TaskQueue.RabbitMQ.Prefetch,
			Durable:    cfg.TaskQueue.RabbitMQ.Durable,
			AutoDelete: cfg.TaskQueue.RabbitMQ.AutoDelete,
		})
		if err != nil {
			return err
		}
		taskQueue = queue
	default:
		return errors.New("未知的队列驱动: " + cfg.TaskQueue.Driver)
	}
	defer func() {
		if taskQueue != nil {
			if err := taskQueue.Close(); err != nil {
				log.Printf("关闭任务队列失败: %v", err)
			}
		}
	}()

	vault := task.NewKeyVault()
	taskService := task.NewService(taskStore, taskQueue, vault, cfg.TaskQueue.MaxRetries)
	alerts := alerting.NewFanout(&alerting.LogNotifier{})
	processor := task.NewProcessor(ag, taskStore, taskQueue, taskQueue, vault,
		task.WithWorkerCount(cfg.TaskQueue.Workers),
		task.WithProcessorLogger(logger.Named("task.processor")),
		task.WithAlertDispatcher(alerts),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("任务处理器异常退出: %v", err)
		}
	}()

	authSvc, err := auth.NewService(auth.Config{
		Mode:    cfg.Auth.Mode,
		APIKeys: cfg.Auth.APIKeys,
	})
	if err != nil {
		return err
	}

	server := api.NewServer(cfg.Server.Address, ag, taskService, directory, authSvc)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
