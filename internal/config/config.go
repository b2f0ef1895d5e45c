package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/shahzaib974/attendance-service/pkg/config"
)

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	Archive    ArchiveConfig
	RoomServer RoomServerConfig `mapstructure:"room_server"`
	Kafka      KafkaConfig
	Attendance AttendanceConfig
	Log        LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

type ArchiveConfig struct {
	Enabled         bool
	Driver          string `mapstructure:"driver"`
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	FilePath        string `mapstructure:"file_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type RoomServerConfig struct {
	URL       string
	APIKey    string        `mapstructure:"api_key"`
	APISecret string        `mapstructure:"api_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type KafkaConfig struct {
	Enabled bool
	Brokers string
	Topic   string
	GroupID string `mapstructure:"group_id"`
}

type AttendanceConfig struct {
	FinalizeConcurrency int `mapstructure:"finalize_concurrency"`
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8094)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "attendance")
	v.SetDefault("archive.enabled", true)
	v.SetDefault("archive.driver", "sqlite")
	v.SetDefault("archive.host", "localhost")
	v.SetDefault("archive.port", 5432)
	v.SetDefault("archive.user", "postgres")
	v.SetDefault("archive.password", "postgres")
	v.SetDefault("archive.dbname", "attendance")
	v.SetDefault("archive.sslmode", "disable")
	v.SetDefault("archive.file_path", "./data/attendance.db")
	v.SetDefault("archive.max_idle_conns", 10)
	v.SetDefault("archive.max_open_conns", 100)
	v.SetDefault("archive.conn_max_lifetime", 60)
	v.SetDefault("room_server.url", "http://localhost:7880")
	v.SetDefault("room_server.api_key", "")
	v.SetDefault("room_server.api_secret", "")
	v.SetDefault("room_server.token_ttl", "10m")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "room-events")
	v.SetDefault("kafka.group_id", "attendance-service")
	v.SetDefault("attendance.finalize_concurrency", 8)
	v.SetDefault("log.level", "info")

	// Bind environment variables
	v.BindEnv("server.port", "PORT")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")
	v.BindEnv("redis.prefix", "REDIS_PREFIX")
	v.BindEnv("archive.enabled", "ARCHIVE_ENABLED")
	v.BindEnv("archive.driver", "ARCHIVE_DB_DRIVER")
	v.BindEnv("archive.host", "ARCHIVE_DB_HOST")
	v.BindEnv("archive.port", "ARCHIVE_DB_PORT")
	v.BindEnv("archive.user", "ARCHIVE_DB_USER")
	v.BindEnv("archive.password", "ARCHIVE_DB_PASSWORD")
	v.BindEnv("archive.dbname", "ARCHIVE_DB_NAME")
	v.BindEnv("archive.sslmode", "ARCHIVE_DB_SSLMODE")
	v.BindEnv("archive.file_path", "ARCHIVE_DB_FILE_PATH")
	v.BindEnv("room_server.url", "ROOM_SERVER_URL")
	v.BindEnv("room_server.api_key", "ROOM_SERVER_API_KEY")
	v.BindEnv("room_server.api_secret", "ROOM_SERVER_API_SECRET")
	v.BindEnv("kafka.enabled", "KAFKA_ENABLED")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "KAFKA_ROOM_EVENTS_TOPIC")
	v.BindEnv("kafka.group_id", "KAFKA_GROUP_ID")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.RoomServer.TokenTTL = parseDuration(v, "room_server.token_ttl", 10*time.Minute)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
