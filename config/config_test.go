package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("CACHE_TTL_SECONDS", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := Load()
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 30*time.Second, cfg.Redis.CacheTTL)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 30, cfg.Business.ReorderLookbackDays)
	assert.Equal(t, 7, cfg.Business.ReorderLeadTimeDays)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("CACHE_TTL_SECONDS", "5")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("REPORT_TOP_N", "not-a-number")
	t.Setenv("CORS_ALLOWED_ORIGINS", "none")

	cfg := Load()
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Redis.CacheTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 10, cfg.Business.ReportTopN)
	assert.Empty(t, cfg.Server.CORSOrigins)
}

func TestLoad_DisableRedis(t *testing.T) {
	t.Setenv("REDIS_ADDR", "none")
	t.Setenv("KAFKA_BROKERS", "none")

	cfg := Load()
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.Kafka.Brokers)
}
