package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds application configuration from environment.
type Config struct {
	HTTPPort          string
	RemoteDatabaseURL string
	DBPoolSize        int
	LocalStorePath    string
	RedisURL          string
	RedisPoolSize     int
	CacheTTL          time.Duration
	KafkaBrokers      []string
	KafkaTopic        string
	KafkaPartitions   int
	KafkaGroupID      string
	JWTSecret         string
	Offline           bool
}

var (
	cfg     *Config
	cfgOnce sync.Once
)

// Get returns the application config (loads once from env).
func Get() *Config {
	cfgOnce.Do(func() {
		cfg = &Config{
			HTTPPort:          getEnv("HTTP_PORT", "8080"),
			RemoteDatabaseURL: os.Getenv("REMOTE_DATABASE_URL"),
			DBPoolSize:        getIntEnv("DB_POOL_SIZE", 25),
			LocalStorePath:    getEnv("LOCAL_STORE_PATH", "data/localstore"),
			RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
			RedisPoolSize:     getIntEnv("REDIS_POOL_SIZE", 50),
			CacheTTL:          time.Duration(getIntEnv("CACHE_TTL_MS", 30000)) * time.Millisecond,
			KafkaBrokers:      getSliceEnv("KAFKA_BROKERS", "localhost:9092"),
			KafkaTopic:        getEnv("KAFKA_OPS_TOPIC", "installment-ops"),
			KafkaPartitions:   getIntEnv("KAFKA_PARTITIONS", 4),
			KafkaGroupID:      getEnv("KAFKA_GROUP_ID", "installment-op-workers"),
			JWTSecret:         os.Getenv("JWT_SECRET"),
			Offline:           getBoolEnv("OFFLINE", false),
		}
	})
	return cfg
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getSliceEnv(key, defaultVal string) []string {
	if v := os.Getenv(key); v != "" {
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return []string{defaultVal}
}
