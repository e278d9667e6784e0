// Package signer implements ed25519 transaction signing for Sui.
package signer

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// ed25519 密钥方案在 Sui 签名序列化中的 flag 字节。
const schemeED25519 byte = 0x00

// 交易数据的 intent 前缀: scope=TransactionData, version=V0, app=Sui。
var transactionIntent = []byte{0, 0, 0}

// Signer 持有一把 ed25519 私钥，负责交易签名与地址派生。
// 私钥只存在于内存，进程内任何组件都不会持久化它。
type Signer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	address    string
}

// NewFromBase64 从 base64 编码的 32 字节种子创建签名器。
// 兼容带 flag 前缀的 33 字节导出格式。
func NewFromBase64(encoded string) (*Signer, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("解码私钥失败: %w", err)
	}
	if len(raw) == ed25519.SeedSize+1 && raw[0] == schemeED25519 {
		raw = raw[1:]
	}
	if len(raw) != ed25519.SeedSize {
		return nil, errors.New("私钥长度不合法")
	}
	return NewFromSeed(raw)
}

// NewFromSeed 从 32 字节种子创建签名器。
func NewFromSeed(seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errors.New("私钥种子必须是 32 字节")
	}

	privateKey := ed25519.NewKeyFromSeed(seed)
	publicKey := privateKey.Public().(ed25519.PublicKey)

	address, err := deriveAddress(publicKey)
	if err != nil {
		return nil, err
	}

	return &Signer{
		privateKey: privateKey,
		publicKey:  publicKey,
		address:    address,
	}, nil
}

// Address 返回签名器对应的 Sui 地址。
func (s *Signer) Address() string {
	return s.address
}

// SignTransaction 对 base64 编码的交易字节签名，
// 返回序列化签名: base64(flag || sig || pubkey)。
func (s *Signer) SignTransaction(txBytes string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(txBytes)
	if err != nil {
		return "", fmt.Errorf("解码交易字节失败: %w", err)
	}
	if len(raw) == 0 {
		return "", errors.New("交易字节不能为空")
	}

	message := make([]byte, 0, len(transactionIntent)+len(raw))
	message = append(message, transactionIntent...)
	message = append(message, raw...)

	digest := blake2b.Sum256(message)
	signature := ed25519.Sign(s.privateKey, digest[:])

	serialized := make([]byte, 0, 1+len(signature)+len(s.publicKey))
	serialized = append(serialized, schemeED25519)
	serialized = append(serialized, signature...)
	serialized = append(serialized, s.publicKey...)

	return base64.StdEncoding.EncodeToString(serialized), nil
}

// deriveAddress 由 blake2b-256(flag || pubkey) 得到 0x 前缀的地址。
func deriveAddress(publicKey ed25519.PublicKey) (string, error) {
	hasher, err := blake2b.New256(nil)
	if err != nil {
		return "", fmt.Errorf("初始化地址哈希失败: %w", err)
	}
	hasher.Write([]byte{schemeED25519})
	hasher.Write(publicKey)
	return "0x" + hex.EncodeToString(hasher.Sum(nil)), nil
}
