package sui

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Network 描述一个 Sui 网络的接入信息。
type Network struct {
	Name         string `yaml:"name"`
	RPCURL       string `yaml:"rpc_url"`
	USDCCoinType string `yaml:"usdc_coin_type"`
	Notes        string `yaml:"notes"`
}

// Catalog 是从 YAML 加载的网络目录。
type Catalog struct {
	Networks []Network `yaml:"networks"`
}

// LoadCatalog 从 YAML 文件读取网络目录。
func LoadCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("网络目录路径不能为空")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取网络目录失败: %w", err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("解析网络目录失败: %w", err)
	}
	if len(catalog.Networks) == 0 {
		return nil, fmt.Errorf("网络目录为空: %s", path)
	}
	return &catalog, nil
}

// Lookup 按名称查找网络。
func (c *Catalog) Lookup(name string) (*Network, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i := range c.Networks {
		if strings.ToLower(c.Networks[i].Name) == name {
			return &c.Networks[i], nil
		}
	}
	return nil, fmt.Errorf("未知的 Sui 网络: %s", name)
}

// CoinTypeFor 把符号解析成该网络上的完整 coin type。
func (n *Network) CoinTypeFor(symbol string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(symbol)) {
	case "SUI":
		return CoinTypeSUI, nil
	case "USDC":
		if strings.TrimSpace(n.USDCCoinType) == "" {
			return "", fmt.Errorf("网络 %s 未配置 USDC coin type", n.Name)
		}
		return n.USDCCoinType, nil
	default:
		return "", fmt.Errorf("不支持的代币: %s", symbol)
	}
}
