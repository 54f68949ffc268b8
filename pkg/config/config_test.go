package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, KVDriverMemory, cfg.KV.Driver)
	assert.Equal(t, time.Minute, cfg.KV.PurgeInterval)
	assert.Equal(t, 10, cfg.Listing.DefaultPageSize)
	assert.Equal(t, 5, cfg.Listing.PageWindow)
	assert.Equal(t, StorageDriverLocal, cfg.Reports.StorageDriver)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Events.Brokers)
	assert.Equal(t, 30*24*time.Hour, cfg.Maintenance.CancelledRetention)
	assert.Zero(t, cfg.Database.QueryTimeout)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("KV_DRIVER", "SQLite")
	v.Set("ALLOWED_ORIGINS", "http://a.test, ,http://b.test")
	v.Set("DB_QUERY_TIMEOUT", "3s")
	v.Set("SESSION_TTL", "not-a-duration")

	cfg := fromViper(v)
	assert.Equal(t, KVDriverSQLite, cfg.KV.Driver)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 3*time.Second, cfg.Database.QueryTimeout)
	assert.Equal(t, 12*time.Hour, cfg.Sessions.SnapshotTTL)
}
