package configuration

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type (
	Properties struct {
		LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
		LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

		Auth     AuthProperties       `envPrefix:"AUTH_"`
		S3       S3Properties         `envPrefix:"S3_"`
		Server   HttpServerProperties `envPrefix:"HTTP_"`
		MLServer MLServerProperties   `envPrefix:"ML_"`
		DB       DBProperties         `envPrefix:"DB_"`
		Cache    CacheProperties      `envPrefix:"CACHE_"`
		Staging  StagingProperties    `envPrefix:"STAGING_"`
		Sweeper  SweeperProperties    `envPrefix:"SWEEPER_"`
	}

	AuthProperties struct {
		// Provider is "gotrue" or "oidc".
		Provider string `env:"PROVIDER" envDefault:"gotrue"`
		Host     string `env:"HOST"`
		// APIKey is the GoTrue anon key, sent as the apikey header.
		APIKey    string `env:"API_KEY"`
		JWTSecret string `env:"JWT_SECRET"`
		// ID and Secret are the OIDC client credentials.
		ID                     string        `env:"ID"`
		Secret                 string        `env:"SECRET"`
		Scopes                 []string      `env:"SCOPES" envSeparator:"," envDefault:"openid,email,profile,offline_access"`
		AccessTokenCookieName  string        `env:"ACCESS_COOKIE" envDefault:"nf_access_token"`
		RefreshTokenCookieName string        `env:"REFRESH_COOKIE" envDefault:"nf_refresh_token"`
		CookieDomain           string        `env:"COOKIE_DOMAIN"`
		CookieSecure           bool          `env:"COOKIE_SECURE" envDefault:"false"`
		ReadTimeout            time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	}

	HttpServerProperties struct {
		Name            string        `env:"NAME" envDefault:"nutrition-api"`
		Port            string        `env:"PORT" envDefault:"8000"`
		ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
		CorsOrigins     []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
		Pprof           bool          `env:"PPROF" envDefault:"false"`
		DefaultTimezone string        `env:"DEFAULT_TIMEZONE" envDefault:"UTC"`
	}

	MLServerProperties struct {
		// Provider is "vertex" or "openai".
		Provider       string        `env:"PROVIDER" envDefault:"vertex"`
		Model          string        `env:"MODEL" envDefault:"gemini-2.5-flash"`
		DeepModel      string        `env:"DEEP_MODEL"`
		ProjectID      string        `env:"PROJECT_ID"`
		Location       string        `env:"LOCATION" envDefault:"us-central1"`
		Credentials    string        `env:"CREDENTIALS_FILE"`
		APIKey         string        `env:"API_KEY"`
		BaseURL        string        `env:"BASE_URL"`
		Temperature    float32       `env:"TEMPERATURE" envDefault:"0.7"`
		TopP           float32       `env:"TOP_P" envDefault:"0.95"`
		TopK           int32         `env:"TOP_K" envDefault:"64"`
		MaxTokens      int32         `env:"MAX_OUTPUT_TOKENS" envDefault:"65536"`
		ThinkingBudget int32         `env:"THINKING_BUDGET" envDefault:"8192"`
		Timeout        time.Duration `env:"TIMEOUT" envDefault:"90s"`
		// UploadViaStorage passes images to the openai backend as presigned
		// object storage links instead of inline data URLs.
		UploadViaStorage bool `env:"UPLOAD_VIA_STORAGE" envDefault:"false"`
	}

	S3Properties struct {
		Host         string        `env:"HOST" envDefault:"localhost:9000"`
		AccessKey    string        `env:"ACCESS_KEY"`
		SecretKey    string        `env:"SECRET_KEY"`
		Bucket       string        `env:"BUCKET" envDefault:"user-images"`
		UseSSL       bool          `env:"USE_SSL" envDefault:"false"`
		PublicURL    string        `env:"PUBLIC_URL"`
		CreateBucket bool          `env:"CREATE_BUCKET" envDefault:"false"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	}

	DBProperties struct {
		// Driver is "sqlite" or "postgres".
		Driver string `env:"DRIVER" envDefault:"sqlite"`
		DSN    string `env:"DSN" envDefault:"file:meals.db?_pragma=foreign_keys(1)"`
	}

	CacheProperties struct {
		// Type is "memory" or "redis".
		Type      string        `env:"TYPE" envDefault:"memory"`
		Addr      string        `env:"ADDR" envDefault:"localhost:6379"`
		Password  string        `env:"PASSWORD"`
		DB        int           `env:"DB" envDefault:"0"`
		KeyPrefix string        `env:"KEY_PREFIX" envDefault:"nf:token:"`
		TTL       time.Duration `env:"TTL" envDefault:"5m"`
	}

	StagingProperties struct {
		Dir            string `env:"DIR"`
		MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
		MaxWidth       int    `env:"MAX_WIDTH" envDefault:"256"`
		MaxHeight      int    `env:"MAX_HEIGHT" envDefault:"256"`
	}

	SweeperProperties struct {
		Interval time.Duration `env:"INTERVAL" envDefault:"0s"`
		Grace    time.Duration `env:"GRACE" envDefault:"1h"`
	}
)

// ReadProperties loads an optional .env file and parses the environment.
func ReadProperties() (*Properties, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read .env error: %w", err)
	}
	config := &Properties{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("read config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the keys each selected provider needs.
func (p *Properties) Validate() error {
	var errs []error
	switch p.Auth.Provider {
	case "gotrue":
		if p.Auth.Host == "" || p.Auth.APIKey == "" {
			errs = append(errs, errors.New("AUTH_HOST and AUTH_API_KEY are required for the gotrue provider"))
		}
	case "oidc":
		if p.Auth.Host == "" || p.Auth.ID == "" {
			errs = append(errs, errors.New("AUTH_HOST and AUTH_ID are required for the oidc provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AUTH_PROVIDER %q", p.Auth.Provider))
	}
	switch p.MLServer.Provider {
	case "vertex":
		if p.MLServer.ProjectID == "" {
			errs = append(errs, errors.New("ML_PROJECT_ID is required for the vertex provider"))
		}
	case "openai":
		if p.MLServer.APIKey == "" {
			errs = append(errs, errors.New("ML_API_KEY is required for the openai provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ML_PROVIDER %q", p.MLServer.Provider))
	}
	switch p.DB.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", p.DB.Driver))
	}
	switch p.Cache.Type {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown CACHE_TYPE %q", p.Cache.Type))
	}
	if p.MLServer.Timeout <= 0 {
		errs = append(errs, errors.New("ML_TIMEOUT must be positive"))
	}
	if p.Staging.MaxWidth <= 0 || p.Staging.MaxHeight <= 0 {
		errs = append(errs, errors.New("STAGING_MAX_WIDTH and STAGING_MAX_HEIGHT must be positive"))
	}
	return errors.Join(errs...)
}
