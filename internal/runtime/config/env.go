package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnv returns the variable's value or defaultValue when unset.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt returns the variable as an int, or defaultValue when unset or malformed.
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvBool accepts "true", "1", "yes" and "false", "0", "no".
func GetEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

// GetEnvDuration parses values such as "3s" or "48h".
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GetEnvSlice splits the variable on separator, dropping empty parts.
func GetEnvSlice(key, separator string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, separator)
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ApplyEnv overlays environment variables onto c. Unset variables keep the
// current value.
func (c *Config) ApplyEnv() *Config {
	c.PubSubSystem = GetEnv("PUBSUB_SYSTEM", c.PubSubSystem)
	c.NATSURL = GetEnv("NATS_URL", c.NATSURL)
	c.KafkaBrokers = GetEnvSlice("KAFKA_BROKERS", ",", c.KafkaBrokers)
	c.KafkaConsumerGroup = GetEnv("KAFKA_CONSUMER_GROUP", c.KafkaConsumerGroup)
	c.RabbitMQURL = GetEnv("RABBITMQ_URL", c.RabbitMQURL)

	c.ProgressStore = GetEnv("PROGRESS_STORE", c.ProgressStore)
	c.NATSKVBucket = GetEnv("NATS_KV_BUCKET", c.NATSKVBucket)
	c.EtcdEndpoints = GetEnvSlice("ETCD_ENDPOINTS", ",", c.EtcdEndpoints)
	c.EtcdTimeout = GetEnvDuration("ETCD_TIMEOUT", c.EtcdTimeout)
	c.ProgressTTL = GetEnvDuration("PROGRESS_TTL", c.ProgressTTL)

	c.BackendURL = GetEnv("HTTP_BOT_API", c.BackendURL)
	c.BackendAuth = GetEnv("HTTP_BOT_AUTH", c.BackendAuth)
	c.BackendTimeout = GetEnvDuration("HTTP_BOT_TIMEOUT", c.BackendTimeout)

	c.ShardCount = GetEnvInt("SHARD_COUNT", c.ShardCount)
	c.ShardsPerNode = GetEnvInt("SHARDS_PER_NODE", c.ShardsPerNode)
	c.Hostname = GetEnv("HOSTNAME", c.Hostname)
	c.Environment = GetEnv("ENVIRONMENT", c.Environment)
	c.Release = strings.ToUpper(GetEnv("BOT_RELEASE", c.Release))

	c.ProcessTimeout = GetEnvDuration("PROCESS_TIMEOUT", c.ProcessTimeout)
	c.ChunkDelay = GetEnvDuration("CHUNK_DELAY", c.ChunkDelay)
	c.ShutdownTimeout = GetEnvDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)

	c.HTTPHost = GetEnv("HOST", c.HTTPHost)
	c.HTTPPort = GetEnvInt("PORT", c.HTTPPort)
	c.MetricsEnabled = GetEnvBool("METRICS_ENABLED", c.MetricsEnabled)
	c.LogLevel = GetEnv("LOG_LEVEL", c.LogLevel)
	return c
}
