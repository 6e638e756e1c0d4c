package configuration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("AUTH_HOST", "https://project.supabase.co")
	t.Setenv("AUTH_API_KEY", "anon")
	t.Setenv("ML_PROJECT_ID", "nutrition")
}

func TestReadPropertiesDefaults(t *testing.T) {
	setRequired(t)

	config, err := ReadProperties()
	require.NoError(t, err)

	assert.Equal(t, "gotrue", config.Auth.Provider)
	assert.Equal(t, "vertex", config.MLServer.Provider)
	assert.Equal(t, 90*time.Second, config.MLServer.Timeout)
	assert.Equal(t, float32(0.7), config.MLServer.Temperature)
	assert.Equal(t, int32(64), config.MLServer.TopK)
	assert.Equal(t, int32(65536), config.MLServer.MaxTokens)
	assert.Equal(t, "user-images", config.S3.Bucket)
	assert.Equal(t, 256, config.Staging.MaxWidth)
	assert.Equal(t, int64(10<<20), config.Staging.MaxUploadBytes)
	assert.Equal(t, []string{"*"}, config.Server.CorsOrigins)
	assert.Equal(t, "UTC", config.Server.DefaultTimezone)
	assert.Equal(t, time.Duration(0), config.Sweeper.Interval)
}

func TestReadPropertiesOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("ML_PROVIDER", "openai")
	t.Setenv("ML_API_KEY", "sk-test")
	t.Setenv("CACHE_TYPE", "redis")
	t.Setenv("HTTP_CORS_ORIGINS", "http://localhost:3000,https://app.example.com")
	t.Setenv("SWEEPER_INTERVAL", "10m")

	config, err := ReadProperties()
	require.NoError(t, err)
	assert.Equal(t, "openai", config.MLServer.Provider)
	assert.Equal(t, "redis", config.Cache.Type)
	assert.Equal(t, []string{"http://localhost:3000", "https://app.example.com"}, config.Server.CorsOrigins)
	assert.Equal(t, 10*time.Minute, config.Sweeper.Interval)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Properties)
		wantErr string
	}{
		{"valid", func(p *Properties) {}, ""},
		{"unknown auth provider", func(p *Properties) { p.Auth.Provider = "ldap" }, "unknown AUTH_PROVIDER"},
		{"oidc without client", func(p *Properties) { p.Auth.Provider = "oidc" }, "AUTH_ID"},
		{"openai without key", func(p *Properties) { p.MLServer.Provider = "openai" }, "ML_API_KEY"},
		{"bad db driver", func(p *Properties) { p.DB.Driver = "mysql" }, "unknown DB_DRIVER"},
		{"bad cache", func(p *Properties) { p.Cache.Type = "memcached" }, "unknown CACHE_TYPE"},
		{"zero timeout", func(p *Properties) { p.MLServer.Timeout = 0 }, "ML_TIMEOUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Properties{
				Auth:     AuthProperties{Provider: "gotrue", Host: "h", APIKey: "k"},
				MLServer: MLServerProperties{Provider: "vertex", ProjectID: "p", Timeout: time.Second},
				DB:       DBProperties{Driver: "sqlite"},
				Cache:    CacheProperties{Type: "memory"},
				Staging:  StagingProperties{MaxWidth: 256, MaxHeight: 256},
			}
			tt.mutate(p)
			err := p.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
