package configs

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	App struct {
		Name     string `koanf:"name"`
		HTTPAddr string `koanf:"http_addr"`
		LogLevel string `koanf:"log_level"`
		LogFile  string `koanf:"log_file"`
	} `koanf:"app"`

	HTTP struct {
		ReadTimeout  time.Duration `koanf:"read_timeout"`
		WriteTimeout time.Duration `koanf:"write_timeout"`
		IdleTimeout  time.Duration `koanf:"idle_timeout"`
	} `koanf:"http"`

	Mongo struct {
		URI      string `koanf:"uri"`
		Database string `koanf:"database"`
	} `koanf:"mongo"`

	Redis struct {
		Addr     string `koanf:"addr"`
		Password string `koanf:"password"`
		DB       int    `koanf:"db"`
	} `koanf:"redis"`

	Cache struct {
		UserTTL    time.Duration `koanf:"user_ttl"`
		ProductTTL time.Duration `koanf:"product_ttl"`
	} `koanf:"cache"`

	Rabbit struct {
		URL string `koanf:"url"`
	} `koanf:"rabbitmq"`

	Services struct {
		UsersBaseURL    string `koanf:"users_base_url"`
		ProductsBaseURL string `koanf:"products_base_url"`
	} `koanf:"services"`

	Resilience struct {
		MaxParallel      int           `koanf:"max_parallel"`
		MaxQueued        int           `koanf:"max_queued"`
		MaxRetries       int           `koanf:"max_retries"`
		RetryBaseDelay   time.Duration `koanf:"retry_base_delay"`
		BreakerThreshold int           `koanf:"breaker_threshold"`
		BreakerCooldown  time.Duration `koanf:"breaker_cooldown"`
		CallTimeout      time.Duration `koanf:"call_timeout"`
	} `koanf:"resilience"`

	Saga struct {
		ReconcileAfter time.Duration `koanf:"reconcile_after"`
	} `koanf:"saga"`
}

func Load(pathDir, envName string) (Config, error) {
	k := koanf.New(".")
	// 1) base
	if err := k.Load(file.Provider(fmt.Sprintf("%s/base.yaml", pathDir)), yaml.Parser()); err != nil {
		return Config{}, fmt.Errorf("load base: %w", err)
	}

	// 2) env override (dev/staging/prod). Optional: allow missing for local runs.
	_ = k.Load(file.Provider(fmt.Sprintf("%s/%s.yaml", pathDir, envName)), yaml.Parser())

	// 3) environment variables override (prefix ORDERSVC_, nested with __)
	// e.g. ORDERSVC_MONGO__URI, ORDERSVC_REDIS__PASSWORD
	if err := k.Load(env.Provider("ORDERSVC_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "ORDERSVC_")
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.App.HTTPAddr == "" {
		return fmt.Errorf("app.http_addr required")
	}
	if c.Mongo.URI == "" {
		return fmt.Errorf("mongo.uri required")
	}
	if c.Rabbit.URL == "" {
		return fmt.Errorf("rabbitmq.url required")
	}
	if c.Services.UsersBaseURL == "" || c.Services.ProductsBaseURL == "" {
		return fmt.Errorf("services.users_base_url and services.products_base_url required")
	}
	return nil
}
