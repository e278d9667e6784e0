package contacts

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	kdfIterations = 100_000
	keyLength     = 32
	envelopeV1    = 1
)

// ErrDecryptFailed 表示密文无法用派生密钥解开。
// 通常意味着签名不匹配，而不是数据损坏。
var ErrDecryptFailed = errors.New("解密通讯录失败")

// Cipher 负责通讯录的对称加解密。
// 密钥由用户地址与钱包签名派生，服务端不保存任何密钥材料。
type Cipher struct {
	pepper []byte
}

// NewCipher 创建通讯录加密器。pepper 是服务端配置的盐料，
// 与用户地址共同决定 KDF 的盐，防止跨部署的彩虹表复用。
func NewCipher(pepper string) (*Cipher, error) {
	if pepper == "" {
		return nil, errors.New("未配置通讯录加密盐料")
	}
	return &Cipher{pepper: []byte(pepper)}, nil
}

// deriveKey 用 PBKDF2-HMAC-SHA256 从「地址:签名」派生 32 字节密钥。
func (c *Cipher) deriveKey(userAddress, signature string) []byte {
	material := []byte(userAddress + ":" + signature)

	saltInput := sha256.New()
	saltInput.Write([]byte(userAddress))
	saltInput.Write(c.pepper)
	salt := saltInput.Sum(nil)

	return pbkdf2.Key(material, salt, kdfIterations, keyLength, sha256.New)
}

type envelope struct {
	Version    int    `json:"v"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Encrypt 用 AES-256-GCM 加密明文，返回 JSON 信封字节。
func (c *Cipher) Encrypt(userAddress, signature string, plaintext []byte) ([]byte, error) {
	key := c.deriveKey(userAddress, signature)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("初始化加密器失败: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("初始化加密器失败: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("生成随机 nonce 失败: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, []byte(userAddress))

	encoded, err := json.Marshal(envelope{
		Version:    envelopeV1,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	})
	if err != nil {
		return nil, fmt.Errorf("序列化密文信封失败: %w", err)
	}
	return encoded, nil
}

// Decrypt 解开 JSON 信封。签名不匹配时返回 ErrDecryptFailed。
func (c *Cipher) Decrypt(userAddress, signature string, data []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("解析密文信封失败: %w", err)
	}
	if env.Version != envelopeV1 {
		return nil, fmt.Errorf("不支持的信封版本: %d", env.Version)
	}

	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("解码 nonce 失败: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("解码密文失败: %w", err)
	}

	key := c.deriveKey(userAddress, signature)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("初始化解密器失败: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("初始化解密器失败: %w", err)
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("nonce 长度不合法: %d", len(nonce))
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, []byte(userAddress))
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
