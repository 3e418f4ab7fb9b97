// =============================================================================
// 📦 BiasLens 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("BIASLENS").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/biaslens/llm"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 BiasLens 的完整配置结构
type Config struct {
	// Server 运维 HTTP 服务配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Analysis 分析链配置
	Analysis AnalysisConfig `yaml:"analysis" env:"ANALYSIS"`

	// Providers 提供者配置，键为提供者名称
	// 环境变量覆盖格式: {PREFIX}_PROVIDERS_{NAME}_{FIELD}
	Providers map[string]llm.ProviderConfig `yaml:"providers" env:"-"`

	// Cache 结果缓存配置
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Redis 缓存配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每个客户端每秒请求数，0 表示不限流
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// AnalysisConfig 分析链配置
type AnalysisConfig struct {
	// 主提供者名称
	Primary string `yaml:"primary" env:"PRIMARY"`
	// 备用提供者（逗号分隔）
	Fallbacks []string `yaml:"fallbacks" env:"FALLBACKS"`
	// 是否允许故障转移
	FailoverEnabled bool `yaml:"failover_enabled" env:"FAILOVER_ENABLED"`
	// 后台健康探测间隔
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
	// 健康快照有效期
	HealthTTL time.Duration `yaml:"health_ttl" env:"HEALTH_TTL"`
	// 单次探测超时
	ProbeTimeout time.Duration `yaml:"probe_timeout" env:"PROBE_TIMEOUT"`
	// 熔断阈值（连续失败次数）
	BreakerThreshold int `yaml:"breaker_threshold" env:"BREAKER_THRESHOLD"`
	// 熔断持续时间
	BreakerCooldown time.Duration `yaml:"breaker_cooldown" env:"BREAKER_COOLDOWN"`
	// 缓存兜底结果的置信度扣减
	DegradedConfidencePenalty int `yaml:"degraded_confidence_penalty" env:"DEGRADED_CONFIDENCE_PENALTY"`
}

// CacheConfig 结果缓存配置
type CacheConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 后端: memory, redis, sql, tiered
	Backend string `yaml:"backend" env:"BACKEND"`
	// 常规条目有效期
	TTL time.Duration `yaml:"ttl" env:"TTL"`
	// 最近成功条目有效期
	LastSuccessTTL time.Duration `yaml:"last_success_ttl" env:"LAST_SUCCESS_TTL"`
	// 本地 LRU 容量
	LocalSize int `yaml:"local_size" env:"LOCAL_SIZE"`
	// 分层缓存中本地层的最长有效期
	LocalTTL time.Duration `yaml:"local_ttl" env:"LOCAL_TTL"`
	// 过期条目清理间隔（sql 后端）
	PurgeInterval time.Duration `yaml:"purge_interval" env:"PURGE_INTERVAL"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "BIASLENS",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// ConfigPath returns the configured file path.
func (l *Loader) ConfigPath() string {
	return l.configPath
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	if err := l.loadProvidersFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load provider config from env: %w", err)
	}
	cfg.normalizeProviders()

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// providerEnvFields 提供者可通过环境变量覆盖的字段
var providerEnvFields = map[string]func(*llm.ProviderConfig, string) error{
	"KIND":     func(c *llm.ProviderConfig, v string) error { c.Kind = llm.ProviderKind(v); return nil },
	"ENDPOINT": func(c *llm.ProviderConfig, v string) error { c.Endpoint = v; return nil },
	"API_KEY":  func(c *llm.ProviderConfig, v string) error { c.APIKey = v; return nil },
	"MODEL":    func(c *llm.ProviderConfig, v string) error { c.Model = v; return nil },
	"TIMEOUT": func(c *llm.ProviderConfig, v string) error {
		d, err := time.ParseDuration(v)
		c.Timeout = d
		return err
	},
	"MAX_RETRIES": func(c *llm.ProviderConfig, v string) error {
		n, err := strconv.Atoi(v)
		c.MaxRetries = n
		return err
	},
	"RATE_LIMIT_RPM": func(c *llm.ProviderConfig, v string) error {
		n, err := strconv.Atoi(v)
		c.RateLimitRPM = n
		return err
	},
	"MAX_INPUT_TOKENS": func(c *llm.ProviderConfig, v string) error {
		n, err := strconv.Atoi(v)
		c.MaxInputTokens = n
		return err
	},
}

// loadProvidersFromEnv 覆盖已声明提供者的字段，凭证通常只通过环境变量注入
func (l *Loader) loadProvidersFromEnv(cfg *Config) error {
	for name, pc := range cfg.Providers {
		base := l.envPrefix + "_PROVIDERS_" + envName(name) + "_"
		for field, apply := range providerEnvFields {
			v := os.Getenv(base + field)
			if v == "" {
				continue
			}
			if err := apply(&pc, v); err != nil {
				return fmt.Errorf("failed to set %s: %w", base+field, err)
			}
		}
		cfg.Providers[name] = pc
	}
	return nil
}

func envName(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// 提供者未声明时使用的默认值
const (
	defaultProviderTimeout = 60 * time.Second
	defaultProviderRPM     = 60
)

// normalizeProviders 用映射键填充提供者名称，并补齐超时与限流默认值
func (c *Config) normalizeProviders() {
	for name, pc := range c.Providers {
		pc.Name = name
		if pc.Timeout <= 0 {
			pc.Timeout = defaultProviderTimeout
		}
		if pc.RateLimitRPM <= 0 {
			pc.RateLimitRPM = defaultProviderRPM
		}
		c.Providers[name] = pc
	}
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// ChainNames returns primary followed by fallbacks.
func (c *Config) ChainNames() []string {
	return append([]string{c.Analysis.Primary}, c.Analysis.Fallbacks...)
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	// 验证服务器配置
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.RateLimitRPS < 0 {
		errs = append(errs, "rate_limit_rps must not be negative")
	}

	// 验证分析链
	if c.Analysis.Primary == "" {
		errs = append(errs, "analysis.primary is required")
	}
	for _, name := range c.ChainNames() {
		if name == "" {
			continue
		}
		if _, ok := c.Providers[name]; !ok {
			errs = append(errs, fmt.Sprintf("provider %q is referenced by analysis but not configured", name))
		}
	}
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		pc := c.Providers[name]
		pc.Name = name
		if err := pc.Validate(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if c.Analysis.BreakerThreshold <= 0 {
		errs = append(errs, "breaker_threshold must be positive")
	}
	if c.Analysis.BreakerCooldown <= 0 {
		errs = append(errs, "breaker_cooldown must be positive")
	}
	if c.Analysis.DegradedConfidencePenalty < 0 || c.Analysis.DegradedConfidencePenalty > 100 {
		errs = append(errs, "degraded_confidence_penalty must be between 0 and 100")
	}
	if c.Analysis.HealthCheckInterval <= 0 {
		errs = append(errs, "health_check_interval must be positive")
	}

	// 验证缓存
	switch c.Cache.Backend {
	case "memory", "redis", "tiered":
	case "sql":
		switch c.Database.Driver {
		case "postgres", "mysql", "sqlite":
		default:
			errs = append(errs, fmt.Sprintf("unsupported database driver %q", c.Database.Driver))
		}
	default:
		errs = append(errs, fmt.Sprintf("unsupported cache backend %q", c.Cache.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

// ChangedProviders returns the provider configs in next that differ from
// prev. Providers added or removed are not reported; the chain itself is
// fixed for the lifetime of the process.
func ChangedProviders(prev, next *Config) []llm.ProviderConfig {
	var out []llm.ProviderConfig
	for name, pc := range next.Providers {
		old, ok := prev.Providers[name]
		if !ok || old == pc {
			continue
		}
		out = append(out, pc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
