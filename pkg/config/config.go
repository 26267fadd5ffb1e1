package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	SQLite  SQLiteConfig
	Redis   RedisConfig
	Archive ArchiveConfig
	Crypto  CryptoConfig
	Scanner ScannerConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type ArchiveConfig struct {
	// Root of the tenant-partitioned archive tree:
	// {tenant_code}/{YYYYMM}/{filename}
	Path string
	// Directory for encrypted document content, keyed by document id.
	BlobPath string
}

type CryptoConfig struct {
	// Base64-encoded 256-bit key.
	Key string
}

type ScannerConfig struct {
	Workers           int
	MaxDecodePages    int
	DecodeTimeoutSec  int
	LockTTLSec        int
	ProgressBatchSize int
	SplitTempDir      string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func (s ScannerConfig) DecodeTimeout() time.Duration {
	return time.Duration(s.DecodeTimeoutSec) * time.Second
}

func (s ScannerConfig) LockTTL() time.Duration {
	return time.Duration(s.LockTTLSec) * time.Second
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/docuflow")

	viper.SetEnvPrefix("DOCUFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 52428800)

	viper.SetDefault("sqlite.path", "./data/docuflow.db")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("archive.path", "./data/archive")
	viper.SetDefault("archive.blobPath", "./data/blobs")

	viper.SetDefault("crypto.key", "")

	viper.SetDefault("scanner.workers", 0) // 0 = min(4, NumCPU)
	viper.SetDefault("scanner.maxDecodePages", 1)
	viper.SetDefault("scanner.decodeTimeoutSec", 10)
	viper.SetDefault("scanner.lockTTLSec", 1800)
	viper.SetDefault("scanner.progressBatchSize", 10)
	viper.SetDefault("scanner.splitTempDir", "./data/split_temp")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
