package mysql

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/go-sql-driver/mysql"
)

// ExecutionRecord 表示一次链上执行的落库结构。
// 记录里只有计划与结果，绝不包含签名材料。
type ExecutionRecord struct {
	RequestID   string `json:"request_id"`
	UserAddress string `json:"user_address"`
	Kind        string `json:"kind"`
	Token       string `json:"token"`
	Amount      uint64 `json:"amount"`
	Recipient   string `json:"recipient"`
	Digest      string `json:"digest"`
	State       string `json:"state"`
	ChainStatus string `json:"chain_status"`
	ChainError  string `json:"chain_error"`
	RiskLevel   string `json:"risk_level"`
	GasUsed     uint64 `json:"gas_used"`
	CreatedAt   int64  `json:"created_at"`
}

// ExecutionRepository 抽象执行记录的持久化接口。
type ExecutionRepository interface {
	Save(ctx context.Context, record ExecutionRecord) error
	ListLatest(ctx context.Context, userAddress string, limit int) ([]ExecutionRecord, error)
}

// MemoryExecutionRepository 使用本地 JSON 行文件模拟 MySQL, 方便迭代开发。
type MemoryExecutionRepository struct {
	mu       sync.RWMutex
	dataFile string
	records  []ExecutionRecord
}

// NewMemoryExecutionRepository 创建一个内存执行记录仓库。
func NewMemoryExecutionRepository(dataDir string) (*MemoryExecutionRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	path := filepath.Join(dataDir, "executions.log")
	repo := &MemoryExecutionRepository{dataFile: path}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save 以追加写的方式记录执行结果。
func (m *MemoryExecutionRepository) Save(_ context.Context, record ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开执行日志失败: %w", err)
	}
	defer file.Close()

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化执行记录失败: %w", err)
	}
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入执行日志失败: %w", err)
	}

	m.records = append([]ExecutionRecord{record}, m.records...)
	if len(m.records) > 512 {
		m.records = m.records[:512]
	}
	return nil
}

// ListLatest 返回某个地址最近的执行记录, 按时间倒序。
// userAddress 为空时返回所有地址的记录。
func (m *MemoryExecutionRepository) ListLatest(_ context.Context, userAddress string, limit int) ([]ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []ExecutionRecord
	for _, record := range m.records {
		if userAddress != "" && record.UserAddress != userAddress {
			continue
		}
		results = append(results, record)
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, nil
}

func (m *MemoryExecutionRepository) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取执行日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var restored []ExecutionRecord
	for scanner.Scan() {
		var record ExecutionRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		restored = append([]ExecutionRecord{record}, restored...)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析执行日志失败: %w", err)
	}

	if len(restored) > 512 {
		restored = restored[:512]
	}
	if len(restored) > 0 {
		m.records = restored
	}
	return nil
}

// SQLExecutionRepository 使用真实的 MySQL 数据库存储执行记录。
type SQLExecutionRepository struct {
	db *sql.DB
}

// NewSQLExecutionRepository 建立连接池并应用 schema 迁移。
func NewSQLExecutionRepository(ctx context.Context, cfg Config) (*SQLExecutionRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	repo := &SQLExecutionRepository{db: db}
	if err := repo.runMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// Save 将执行记录写入 MySQL。
func (s *SQLExecutionRepository) Save(ctx context.Context, record ExecutionRecord) error {
	const stmt = `INSERT INTO executions
        (request_id, user_address, kind, token, amount, recipient, digest, state, chain_status, chain_error, risk_level, gas_used, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, stmt,
		record.RequestID,
		record.UserAddress,
		record.Kind,
		record.Token,
		record.Amount,
		record.Recipient,
		record.Digest,
		record.State,
		record.ChainStatus,
		record.ChainError,
		record.RiskLevel,
		record.GasUsed,
		record.CreatedAt,
	); err != nil {
		return fmt.Errorf("写入执行记录失败: %w", err)
	}
	return nil
}

// ListLatest 返回某个地址最近的执行记录, 按时间倒序。
func (s *SQLExecutionRepository) ListLatest(ctx context.Context, userAddress string, limit int) ([]ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT request_id, user_address, kind, token, amount, recipient, digest, state, chain_status, chain_error, risk_level, gas_used, created_at
        FROM executions`
	args := []any{}
	if userAddress != "" {
		query += ` WHERE user_address = ?`
		args = append(args, userAddress)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询执行记录失败: %w", err)
	}
	defer rows.Close()

	var results []ExecutionRecord
	for rows.Next() {
		var record ExecutionRecord
		if err := rows.Scan(
			&record.RequestID,
			&record.UserAddress,
			&record.Kind,
			&record.Token,
			&record.Amount,
			&record.Recipient,
			&record.Digest,
			&record.State,
			&record.ChainStatus,
			&record.ChainError,
			&record.RiskLevel,
			&record.GasUsed,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("解析执行记录失败: %w", err)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历执行记录失败: %w", err)
	}
	return results, nil
}

// Close 释放数据库连接。
func (s *SQLExecutionRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var (
	_ ExecutionRepository = (*MemoryExecutionRepository)(nil)
	_ ExecutionRepository = (*SQLExecutionRepository)(nil)
)
