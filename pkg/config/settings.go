package config

import (
	"errors"
	"fmt"
	"time"

	"climdash/pkg/audit"
	"climdash/pkg/resolver"
	"climdash/pkg/types"

	"github.com/spf13/viper"
)

// 后端类型
const (
	TypeDisk = "disk"
	TypeHTTP = "http"
	TypeSFTP = "sftp"
	TypeS3   = "s3"
)

// 缓存类型
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Settings 是解码后的完整配置，显式传给各个构造函数
type Settings struct {
	Backends []BackendConfig `mapstructure:"backends"`
	Resolver resolver.Config `mapstructure:"resolver"`
	Cache    CacheConfig     `mapstructure:"cache"`
	Audit    AuditConfig     `mapstructure:"audit"`
	Server   ServerConfig    `mapstructure:"server"`
	Log      LogConfig       `mapstructure:"log"`
	Watch    WatchConfig     `mapstructure:"watch"`
}

// BackendConfig 描述一个后端，字段按 Type 取用
type BackendConfig struct {
	Name    string        `mapstructure:"name"`
	Type    string        `mapstructure:"type"`
	Timeout time.Duration `mapstructure:"timeout"`

	// disk
	Path string `mapstructure:"path"`

	// http
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`

	// sftp
	Addr       string `mapstructure:"addr"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	KeyFile    string `mapstructure:"key_file"`
	KnownHosts string `mapstructure:"known_hosts"`
	Root       string `mapstructure:"root"`

	// s3
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// Kind 返回后端所属的位置类别
func (b BackendConfig) Kind() types.Kind {
	switch b.Type {
	case TypeDisk:
		return types.KindLocal
	case TypeHTTP, TypeSFTP:
		return types.KindHosted
	case TypeS3:
		return types.KindCloud
	}
	return ""
}

type CacheConfig struct {
	Type       string        `mapstructure:"type"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
	RedisURL   string        `mapstructure:"redis_url"`
}

type AuditConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Retention 之前的记录由服务端定期清理，0 表示永久保留
	Retention    time.Duration `mapstructure:"retention"`
	audit.Config `mapstructure:",squash"`
}

type ServerConfig struct {
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	HTTPAddr        string        `mapstructure:"http_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type WatchConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Decode 把当前 Viper 状态解码为 Settings 并校验
func Decode() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate 检查配置的一致性
func (s *Settings) Validate() error {
	if len(s.Backends) == 0 {
		return errors.New("config: at least one backend is required")
	}

	names := make([]string, 0, len(s.Backends))
	seen := make(map[string]bool, len(s.Backends))
	for i, b := range s.Backends {
		if b.Name == "" {
			return fmt.Errorf("config: backends[%d]: name is required", i)
		}
		if seen[b.Name] {
			return fmt.Errorf("config: duplicate backend name %q", b.Name)
		}
		seen[b.Name] = true
		names = append(names, b.Name)

		if err := b.validate(); err != nil {
			return fmt.Errorf("config: backend %q: %w", b.Name, err)
		}
	}

	if err := resolver.ValidatePrecedence(s.Resolver.Precedence, names); err != nil {
		return fmt.Errorf("config: resolver: %w", err)
	}

	switch s.Cache.Type {
	case CacheNone, CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("config: unsupported cache type %q", s.Cache.Type)
	}
	if s.Cache.Type != CacheNone && s.Cache.TTL <= 0 {
		return errors.New("config: cache.ttl must be positive")
	}
	return nil
}

func (b BackendConfig) validate() error {
	switch b.Type {
	case TypeDisk:
		if b.Path == "" {
			return errors.New("path is required")
		}
	case TypeHTTP:
		if b.URL == "" {
			return errors.New("url is required")
		}
	case TypeSFTP:
		if b.Addr == "" || b.User == "" {
			return errors.New("addr and user are required")
		}
	case TypeS3:
		if b.Bucket == "" {
			return errors.New("bucket is required")
		}
	default:
		return fmt.Errorf("unsupported backend type %q", b.Type)
	}
	return nil
}
