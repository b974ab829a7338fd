// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是服务的完整配置，从 YAML 文件加载，再用环境变量覆盖。
type Config struct {
	App      AppConfig      `yaml:"app"`
	Infra    InfraConfig    `yaml:"infra"`
	Checkout CheckoutConfig `yaml:"checkout"`
}

type AppConfig struct {
	Name      string `yaml:"name"`
	Port      int    `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`
}

type InfraConfig struct {
	Jaeger   JaegerConfig   `yaml:"jaeger"`
	Redis    RedisConfig    `yaml:"redis"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Nacos    NacosConfig    `yaml:"nacos"`
}

type JaegerConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MySQLConfig struct {
	Addr     string `yaml:"addr"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	URL string `yaml:"url"`
}

type KafkaConfig struct {
	Brokers             []string `yaml:"brokers"`
	ReconciliationTopic string   `yaml:"reconciliation_topic"`
	ConsumerGroup       string   `yaml:"consumer_group"`
}

type NacosConfig struct {
	Enabled        bool   `yaml:"enabled"`
	ServerAddrs    string `yaml:"server_addrs"`
	Namespace      string `yaml:"namespace"`
	Group          string `yaml:"group"`
	SettingsDataID string `yaml:"settings_data_id"`
}

// CheckoutConfig 是结账核心的配置
type CheckoutConfig struct {
	StockDriver         string         `yaml:"stock_driver"`
	OrderDriver         string         `yaml:"order_driver"`
	TaxRate             string         `yaml:"tax_rate"`
	ShippingExpr        string         `yaml:"shipping_expr"`
	ConflictRetries     int            `yaml:"conflict_retries"`
	ConflictBackoff     time.Duration  `yaml:"conflict_backoff"`
	CompensationTimeout time.Duration  `yaml:"compensation_timeout"`
	ProcessingTimeout   time.Duration  `yaml:"processing_timeout"`
	SeedStock           map[string]int `yaml:"seed_stock"`
}

var currentConfig atomic.Pointer[Config]

// DefaultConfig 返回本地开发可直接运行的默认配置
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{Name: "checkout-service", Port: 8081, LogLevel: "info"},
		Infra: InfraConfig{
			Redis:  RedisConfig{Addr: "localhost:6379"},
			SQLite: SQLiteConfig{Path: "storefront.db"},
			Kafka:  KafkaConfig{ReconciliationTopic: "inventory-reconciliation", ConsumerGroup: "reconciliation-worker"},
			Nacos:  NacosConfig{ServerAddrs: "localhost:8848", Group: "DEFAULT_GROUP", SettingsDataID: "checkout-settings.yaml"},
		},
		Checkout: CheckoutConfig{
			StockDriver:         "memory",
			OrderDriver:         "memory",
			TaxRate:             "0",
			ShippingExpr:        "",
			ConflictBackoff:     20 * time.Millisecond,
			CompensationTimeout: 5 * time.Second,
			ProcessingTimeout:   10 * time.Second,
		},
	}
}

// Init 加载配置并设置为当前配置。path 为空时读取 CONFIG_FILE 环境变量，
// 都为空时只使用默认值和环境变量。
func Init(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	currentConfig.Store(cfg)
	return cfg, nil
}

// Load 读取 YAML 文件并应用环境变量覆盖，不修改当前配置。
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetCurrentConfig 返回最近一次 Init 加载的配置
func GetCurrentConfig() *Config {
	if cfg := currentConfig.Load(); cfg != nil {
		return cfg
	}
	return DefaultConfig()
}

func applyEnv(cfg *Config) {
	cfg.App.Port = getEnvInt("PORT", cfg.App.Port)
	cfg.App.LogLevel = getEnv("LOG_LEVEL", cfg.App.LogLevel)
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger.Endpoint)
	cfg.Infra.Redis.Addr = getEnv("REDIS_ADDR", cfg.Infra.Redis.Addr)
	cfg.Infra.Postgres.URL = getEnv("DATABASE_URL", cfg.Infra.Postgres.URL)
	cfg.Infra.MySQL.Addr = getEnv("MYSQL_ADDR", cfg.Infra.MySQL.Addr)
	cfg.Infra.MySQL.Password = getEnv("MYSQL_PASSWORD", cfg.Infra.MySQL.Password)
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(brokers, ",")
	}
	cfg.Infra.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", cfg.Infra.Nacos.ServerAddrs)
	cfg.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", cfg.Infra.Nacos.Namespace)
	cfg.Infra.Nacos.Group = getEnv("NACOS_GROUP", cfg.Infra.Nacos.Group)
	cfg.Checkout.StockDriver = getEnv("STOCK_DRIVER", cfg.Checkout.StockDriver)
	cfg.Checkout.OrderDriver = getEnv("ORDER_DRIVER", cfg.Checkout.OrderDriver)
	cfg.Checkout.TaxRate = getEnv("TAX_RATE", cfg.Checkout.TaxRate)
}

func (c *Config) validate() error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("invalid app.port %d", c.App.Port)
	}
	if c.Checkout.ConflictRetries < 0 {
		return fmt.Errorf("checkout.conflict_retries must not be negative")
	}
	switch c.Checkout.StockDriver {
	case "memory", "redis", "mysql", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown checkout.stock_driver %q", c.Checkout.StockDriver)
	}
	switch c.Checkout.OrderDriver {
	case "memory", "mysql", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown checkout.order_driver %q", c.Checkout.OrderDriver)
	}
	return nil
}

// getEnv 从环境变量中读取配置
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
