// 文件: pkg/config/config.go
// 配置：YAML 文件 + 环境变量覆盖 (可选 .env 预加载)

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 配置结构
// =============================================================================

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig MySQL 连接与连接池
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	PoolSize        int           `yaml:"pool_size"` // 最大打开连接数
	MaxIdle         int           `yaml:"max_idle"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// Enabled 未配置 Host 时视为不启用持久化
func (c DatabaseConfig) Enabled() bool { return c.Host != "" }

// DSN go-sql-driver/mysql 格式的连接串
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

type RedisConfig struct {
	Addr string        `yaml:"addr"` // 为空时不启用曲面缓存
	TTL  time.Duration `yaml:"ttl"`
}

type NatsConfig struct {
	URL           string `yaml:"url"` // 为空时不发布事件
	SavedSubject  string `yaml:"saved_subject"`
	RequestSubj   string `yaml:"request_subject"`
	ConsumerQueue string `yaml:"consumer_queue"`
}

type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"` // 为空时输出行直接写 MySQL
	Topic         string        `yaml:"topic"`
	GroupID       string        `yaml:"group_id"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// EngineConfig 情景引擎参数
type EngineConfig struct {
	Workers           int     `yaml:"workers"` // <=0 时取 GOMAXPROCS
	DefaultResolution int     `yaml:"default_resolution"`
	MinResolution     int     `yaml:"min_resolution"`
	MaxResolution     int     `yaml:"max_resolution"`
	SpotSpread        float64 `yaml:"spot_spread"`
	VolSpread         float64 `yaml:"vol_spread"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type SnowflakeConfig struct {
	NodeID int64 `yaml:"node_id"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Nats      NatsConfig      `yaml:"nats"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Engine    EngineConfig    `yaml:"engine"`
	Logging   LoggingConfig   `yaml:"logging"`
	Snowflake SnowflakeConfig `yaml:"snowflake"`
}

// =============================================================================
// 加载
// =============================================================================

// Default 默认配置：只启用计算与看板，外部依赖全部关闭
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Port:            3306,
			PoolSize:        5,
			MaxIdle:         2,
			ConnMaxLifetime: time.Hour,
		},
		Redis: RedisConfig{TTL: 15 * time.Minute},
		Nats: NatsConfig{
			SavedSubject:  "calculation.saved",
			RequestSubj:   "calculation.request",
			ConsumerQueue: "calculation-worker",
		},
		Kafka: KafkaConfig{
			Topic:         "calculation.outputs",
			GroupID:       "calculation_db_writer",
			BatchSize:     500,
			FlushInterval: 500 * time.Millisecond,
		},
		Engine: EngineConfig{
			DefaultResolution: 10,
			MinResolution:     5,
			MaxResolution:     20,
			SpotSpread:        0.3,
			VolSpread:         0.5,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load 读取配置。
// path 为空时跳过文件；envFile 非空时先用 godotenv 加载到进程环境，
// 最后统一应用环境变量覆盖。
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 环境变量优先级最高
func (c *Config) applyEnv() error {
	setString(&c.Server.Addr, "SERVER_ADDR")

	setString(&c.Database.Host, "DB_HOST")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.Name, "DB_NAME")
	if err := setInt(&c.Database.Port, "DB_PORT"); err != nil {
		return err
	}
	if err := setInt(&c.Database.PoolSize, "DB_POOL_SIZE"); err != nil {
		return err
	}

	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Nats.URL, "NATS_URL")
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}

	if err := setInt(&c.Engine.Workers, "ENGINE_WORKERS"); err != nil {
		return err
	}
	setString(&c.Logging.Level, "LOG_LEVEL")
	return nil
}

// Validate 检查配置一致性
func (c *Config) Validate() error {
	if c.Database.Enabled() {
		if c.Database.Name == "" {
			return errors.New("database.name is required when database.host is set")
		}
		if c.Database.PoolSize <= 0 {
			return errors.New("database.pool_size must be > 0")
		}
	}
	e := c.Engine
	if e.MinResolution < 1 || e.MaxResolution < e.MinResolution {
		return fmt.Errorf("engine resolution bounds invalid: min=%d max=%d", e.MinResolution, e.MaxResolution)
	}
	if e.DefaultResolution < e.MinResolution || e.DefaultResolution > e.MaxResolution {
		return fmt.Errorf("engine.default_resolution %d outside [%d, %d]", e.DefaultResolution, e.MinResolution, e.MaxResolution)
	}
	if e.SpotSpread <= 0 || e.SpotSpread >= 1 {
		return fmt.Errorf("engine.spot_spread must be in (0, 1), got %v", e.SpotSpread)
	}
	if e.VolSpread <= 0 || e.VolSpread >= 1 {
		return fmt.Errorf("engine.vol_spread must be in (0, 1), got %v", e.VolSpread)
	}
	if c.Snowflake.NodeID < 0 || c.Snowflake.NodeID > 1023 {
		return fmt.Errorf("snowflake.node_id must be in [0, 1023], got %d", c.Snowflake.NodeID)
	}
	return nil
}

// ClampResolution 把分辨率限制在配置范围内
func (e EngineConfig) ClampResolution(n int) int {
	if n <= 0 {
		return e.DefaultResolution
	}
	if n < e.MinResolution {
		return e.MinResolution
	}
	if n > e.MaxResolution {
		return e.MaxResolution
	}
	return n
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("env %s: %w", key, err)
	}
	*dst = n
	return nil
}
