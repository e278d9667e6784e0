package walrus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEpochs  = 5
	defaultTimeout = 30 * time.Second
)

// ErrBlobNotFound 表示聚合器上不存在对应的 blob。
var ErrBlobNotFound = errors.New("blob 不存在")

// UploadResult 描述一次上传的结果。
type UploadResult struct {
	BlobID string
	Size   int64
	Epochs int
}

// Store 定义加密通讯录所依赖的 blob 存储接口。
// 上传内容必须在调用前完成加密，存储层只见密文。
type Store interface {
	Upload(ctx context.Context, data []byte) (*UploadResult, error)
	Download(ctx context.Context, blobID string) ([]byte, error)
	Exists(ctx context.Context, blobID string) (bool, error)
}

// Config 描述 Walrus 发布器与聚合器的接入信息。
type Config struct {
	PublisherURL  string
	AggregatorURL string
	Epochs        int
	Timeout       time.Duration
}

// Client 通过 HTTP 访问 Walrus 网络。
type Client struct {
	publisherURL  string
	aggregatorURL string
	epochs        int
	httpClient    *http.Client
}

// NewClient 根据配置创建 Walrus 客户端。
func NewClient(cfg Config) (*Client, error) {
	publisher := strings.TrimRight(strings.TrimSpace(cfg.PublisherURL), "/")
	if publisher == "" {
		return nil, errors.New("未提供 Walrus publisher 地址")
	}
	aggregator := strings.TrimRight(strings.TrimSpace(cfg.AggregatorURL), "/")
	if aggregator == "" {
		return nil, errors.New("未提供 Walrus aggregator 地址")
	}

	epochs := cfg.Epochs
	if epochs <= 0 {
		epochs = defaultEpochs
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		publisherURL:  publisher,
		aggregatorURL: aggregator,
		epochs:        epochs,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Upload 将密文写入 Walrus，返回可寻址的 blobId。
// 发布器对同样内容可能返回 newlyCreated 或 alreadyCertified 两种信封。
func (c *Client) Upload(ctx context.Context, data []byte) (*UploadResult, error) {
	if len(data) == 0 {
		return nil, errors.New("上传内容不能为空")
	}

	endpoint := fmt.Sprintf("%s/v1/blobs?epochs=%d", c.publisherURL, c.epochs)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("构建 Walrus 上传请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("上传 Walrus blob 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("Walrus publisher 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var envelope struct {
		NewlyCreated *struct {
			BlobObject blobObject `json:"blobObject"`
		} `json:"newlyCreated"`
		AlreadyCertified *struct {
			BlobObject blobObject `json:"blobObject"`
		} `json:"alreadyCertified"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("解析 Walrus 响应失败: %w", err)
	}

	var object blobObject
	switch {
	case envelope.NewlyCreated != nil:
		object = envelope.NewlyCreated.BlobObject
	case envelope.AlreadyCertified != nil:
		object = envelope.AlreadyCertified.BlobObject
	default:
		return nil, errors.New("Walrus 响应格式不符合预期")
	}
	if strings.TrimSpace(object.BlobID) == "" {
		return nil, errors.New("Walrus 响应中缺少 blobId")
	}

	return &UploadResult{
		BlobID: object.BlobID,
		Size:   object.Size,
		Epochs: c.epochs,
	}, nil
}

// Download 从聚合器读取密文。blob 不存在时返回 ErrBlobNotFound。
func (c *Client) Download(ctx context.Context, blobID string) ([]byte, error) {
	blobID = strings.TrimSpace(blobID)
	if blobID == "" {
		return nil, errors.New("blobId 不能为空")
	}

	endpoint := c.aggregatorURL + "/v1/" + blobID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("构建 Walrus 下载请求失败: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("下载 Walrus blob 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, blobID)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("Walrus aggregator 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取 Walrus 响应失败: %w", err)
	}
	return data, nil
}

// Exists 通过 HEAD 请求探测 blob 是否可用。
func (c *Client) Exists(ctx context.Context, blobID string) (bool, error) {
	blobID = strings.TrimSpace(blobID)
	if blobID == "" {
		return false, errors.New("blobId 不能为空")
	}

	endpoint := c.aggregatorURL + "/v1/" + blobID
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("构建 Walrus 探测请求失败: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("探测 Walrus blob 失败: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}

type blobObject struct {
	BlobID  string `json:"blobId"`
	RawSize any    `json:"size"`
	Size    int64  `json:"-"`
}

// UnmarshalJSON 兼容数字与字符串两种 size 表达。
func (b *blobObject) UnmarshalJSON(data []byte) error {
	type alias blobObject
	var decoded alias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*b = blobObject(decoded)

	switch v := b.RawSize.(type) {
	case float64:
		b.Size = int64(v)
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("解析 blob size 失败: %w", err)
		}
		b.Size = parsed
	}
	return nil
}

var _ Store = (*Client)(nil)
