package config

import (
	"os"
	"strconv"
	"strings"
)

// Config 报警定义服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig

	// 定义管理策略
	Rules struct {
		RejectDuplicateActions bool   // 同一动作列表内重复 id：默认警告，true 时拒绝
		StrictActions          bool   // 严格模式：action id 必须在注册表中存在
		CacheEnabled           bool   // 是否启用定义缓存
		CacheKeyPrefix         string // 缓存键前缀，如 "alarm-rules:def:"
		CacheTTL               int    // 缓存 TTL（秒），默认 300
	}

	Log LogConfig
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json 或 console
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Database +
		" sslmode=" + c.SSLMode
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig Kafka配置（定义生命周期事件发布）
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// Load 加载配置（环境变量，带默认值）
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "alarmrules")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.Kafka.Enabled = getEnvBool("KAFKA_ENABLED", false)
	cfg.Kafka.Brokers = strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ",")
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", "alarm-definition-events")

	cfg.Rules.RejectDuplicateActions = getEnvBool("RULES_REJECT_DUPLICATE_ACTIONS", false)
	cfg.Rules.StrictActions = getEnvBool("RULES_STRICT_ACTIONS", false)
	cfg.Rules.CacheEnabled = getEnvBool("RULES_CACHE_ENABLED", true)
	cfg.Rules.CacheKeyPrefix = getEnv("RULES_CACHE_PREFIX", "alarm-rules:def:")
	cfg.Rules.CacheTTL = getEnvInt("RULES_CACHE_TTL", 300)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
