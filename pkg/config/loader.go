package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix 是环境变量前缀 (CLIMDASH_CACHE_TTL 等)
const EnvPrefix = "CLIMDASH"

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
// 返回实际使用的配置文件，没找到配置文件时为空串 (此时只用默认值和环境变量)
func Load(cfgFile string) (string, error) {
	// 1. 设置默认值 (Defaults)
	setDefaults()

	// 2. 配置搜索路径
	if cfgFile != "" {
		// 如果用户指定了文件，直接使用
		viper.SetConfigFile(cfgFile)
	} else {
		// 否则按优先级搜索
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}

		// 搜索顺序：
		// 1. 当前目录
		viper.AddConfigPath(".")
		// 2. 当前目录下的 .climdash
		viper.AddConfigPath(".climdash")
		// 3. 用户主目录下的 .climdash
		viper.AddConfigPath(filepath.Join(home, ".climdash"))

		viper.SetConfigType("yaml")
		viper.SetConfigName("config") // 找 config.yaml
	}

	// 3. 读取环境变量 (CLIMDASH_RESOLVER_BUDGET 等)
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 4. 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		// 如果只是没找到配置文件，但可能有环境变量，不算错
		// 但如果是配置文件格式错，那就是错
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("fatal error config file: %w", err)
	}
	return viper.ConfigFileUsed(), nil
}

func setDefaults() {
	// 后端默认值：只有一个本地目录
	viper.SetDefault("backends", []map[string]any{
		{"name": "local", "type": TypeDisk, "path": "data"},
	})

	// 解析器默认值
	viper.SetDefault("resolver.budget", "5s")
	viper.SetDefault("resolver.probe_timeout", "2s")

	// 缓存默认值
	viper.SetDefault("cache.type", CacheMemory)
	viper.SetDefault("cache.ttl", "10m")
	viper.SetDefault("cache.max_entries", 4096)
	viper.SetDefault("cache.redis_url", "redis://localhost:6379/0")

	// 审计默认值
	viper.SetDefault("audit.enabled", false)
	viper.SetDefault("audit.driver", "sqlite")
	viper.SetDefault("audit.path", filepath.Join(".climdash", "audit.db"))
	viper.SetDefault("audit.host", "localhost")
	viper.SetDefault("audit.port", 5432)
	viper.SetDefault("audit.sslmode", "disable")
	viper.SetDefault("audit.retention", "720h")

	// 服务默认值
	viper.SetDefault("server.grpc_addr", ":9090")
	viper.SetDefault("server.http_addr", ":8080")
	viper.SetDefault("server.shutdown_timeout", "10s")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	viper.SetDefault("watch.enabled", true)
}
