package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/JoeShih716/go-bank-ledger/pkg/mysql"
	"github.com/JoeShih716/go-bank-ledger/pkg/postgres"
)

// 儲存層
const (
	StorageMemory   = "memory"
	StorageMySQL    = "mysql"
	StoragePostgres = "postgres"
)

// 事件發布
const (
	EventsNone  = "none"
	EventsRedis = "redis"
	EventsKafka = "kafka"
	EventsBoth  = "both"
)

type Config struct {
	Storage  StorageConfig   `yaml:"storage"`
	MySQL    mysql.Config    `yaml:"mysql"`
	Postgres postgres.Config `yaml:"postgres"`
	HTTP     HTTPConfig      `yaml:"http"`
	GRPC     GRPCConfig      `yaml:"grpc"`
	CORS     CORSConfig      `yaml:"cors"`
	Events   EventsConfig    `yaml:"events"`
	Log      LogConfig       `yaml:"log"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"` // memory, mysql, postgres
	// WALPath memory 模式的 WAL 檔案，空字串表示不落地
	WALPath string `yaml:"wal_path"`
	// Migrate 啟動時建立資料表
	Migrate bool `yaml:"migrate"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type GRPCConfig struct {
	Addr string `yaml:"addr"` // 空字串表示不啟動
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type EventsConfig struct {
	Driver         string        `yaml:"driver"` // none, redis, kafka, both
	QueueSize      int           `yaml:"queue_size"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
	Redis          RedisConfig   `yaml:"redis"`
	Kafka          KafkaConfig   `yaml:"kafka"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Load 載入設定
//
// 順序: yaml 檔 -> .env (可選) -> 環境變數覆蓋 -> 預設值 -> 驗證
//
// 參數:
//
//	path: yaml 檔路徑，檔案不存在時只使用環境變數與預設值
//
// 回傳:
//
//	*Config: 設定
//	error: 檔案格式錯誤或驗證失敗
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// .env 不存在不是錯誤
	_ = godotenv.Load()

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Storage.Driver, "LEDGER_STORAGE_DRIVER")
	setString(&c.HTTP.Addr, "HTTP_ADDR")
	setString(&c.GRPC.Addr, "GRPC_ADDR")
	setString(&c.MySQL.Host, "MYSQL_HOST")
	setString(&c.MySQL.Password, "MYSQL_PASSWORD")
	setString(&c.Postgres.URL, "POSTGRES_URL")
	setString(&c.Events.Driver, "EVENTS_DRIVER")
	setString(&c.Events.Redis.Addr, "REDIS_ADDR")
	setString(&c.Events.Redis.Password, "REDIS_PASS")
	setList(&c.Events.Kafka.Brokers, "KAFKA_BROKERS")
	setList(&c.CORS.AllowedOrigins, "CORS_ALLOWED_ORIGINS")
	setString(&c.Log.Level, "LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

// setList 逗號分隔
func setList(dst *[]string, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

func (c *Config) applyDefaults() {
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageMemory
	}

	if c.MySQL.Port == 0 {
		c.MySQL.Port = 3306
	}
	if c.MySQL.MaxOpenConns == 0 {
		c.MySQL.MaxOpenConns = 100
	}
	if c.MySQL.MaxIdleConns == 0 {
		c.MySQL.MaxIdleConns = 10
	}
	if c.MySQL.ConnMaxLifetime == 0 {
		c.MySQL.ConnMaxLifetime = 30 * time.Minute
	}

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 10 * time.Second
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 15 * time.Second
	}

	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	}

	if c.Events.Driver == "" {
		c.Events.Driver = EventsNone
	}
	if c.Events.QueueSize == 0 {
		c.Events.QueueSize = 1000
	}
	if c.Events.PublishTimeout == 0 {
		c.Events.PublishTimeout = 5 * time.Second
	}
	if c.Events.Redis.Addr == "" {
		c.Events.Redis.Addr = "localhost:6379"
	}
	if len(c.Events.Kafka.Brokers) == 0 {
		c.Events.Kafka.Brokers = []string{"localhost:9092"}
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate 檢查 driver 設定
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory, StorageMySQL:
	case StoragePostgres:
		if c.Postgres.URL == "" {
			return errors.New("postgres.url is required when storage.driver is postgres")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Events.Driver {
	case EventsNone, EventsRedis, EventsKafka, EventsBoth:
	default:
		return fmt.Errorf("unknown events driver %q", c.Events.Driver)
	}
	return nil
}
