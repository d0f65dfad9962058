// Package config carga la configuración del gateway: YAML como base,
// variables de entorno como override. Los defaults apuntan a un setup de
// desarrollo single-node (storage memory, cache memory, sync en proceso).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`

		// PublicURL es la URL externa del gateway; de acá salen el issuer
		// base y el audience de client assertions (token endpoint).
		PublicURL string `yaml:"public_url"`

		ReadTimeout     string `yaml:"read_timeout"`
		WriteTimeout    string `yaml:"write_timeout"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Storage struct {
		// memory | postgres
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns        int    `yaml:"max_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Sync struct {
		// chan | redis. El source chan sólo sirve single-node.
		Source  string `yaml:"source"`
		Channel string `yaml:"channel"`

		LoadTimeout    string `yaml:"load_timeout"`
		RefreshRetries int    `yaml:"refresh_retries"`
	} `yaml:"sync"`

	Issuer struct {
		// Mode default para dominios sin override: global | path
		Mode string `yaml:"mode"`

		// Cadencia de rotación de claves de firma. "0" la deshabilita.
		KeyRotationInterval     string `yaml:"key_rotation_interval"`
		KeyRotationGraceSeconds int    `yaml:"key_rotation_grace_seconds"`
	} `yaml:"issuer"`

	Rate struct {
		Enabled bool   `yaml:"enabled"`
		Token   Window `yaml:"token"`
	} `yaml:"rate"`
}

// Window es un límite fixed-window por endpoint.
type Window struct {
	Limit  int    `yaml:"limit"`
	Window string `yaml:"window"`
}

// Load lee el YAML (si path no está vacío), aplica defaults, pisa con env
// y valida. Un path vacío arranca con defaults puros (dev).
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.PublicURL == "" {
		c.Server.PublicURL = "http://localhost:8080"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "10s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "20s"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "15s"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.Postgres.MaxConns == 0 {
		c.Storage.Postgres.MaxConns = 10
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "gatejohn:"
	}
	if c.Sync.Source == "" {
		c.Sync.Source = "chan"
	}
	if c.Sync.Channel == "" {
		c.Sync.Channel = "gatejohn:sync"
	}
	if c.Sync.LoadTimeout == "" {
		c.Sync.LoadTimeout = "5s"
	}
	if c.Sync.RefreshRetries == 0 {
		c.Sync.RefreshRetries = 5
	}
	if c.Issuer.Mode == "" {
		c.Issuer.Mode = "global"
	}
	if c.Issuer.KeyRotationInterval == "" {
		c.Issuer.KeyRotationInterval = "24h"
	}
	if c.Issuer.KeyRotationGraceSeconds == 0 {
		c.Issuer.KeyRotationGraceSeconds = 60
	}
	if c.Rate.Token.Limit == 0 {
		c.Rate.Token.Limit = 60
	}
	if c.Rate.Token.Window == "" {
		c.Rate.Token.Window = "1m"
	}

	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate chequea combinaciones inválidas antes de arrancar.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return fmt.Errorf("config: storage.dsn is required for driver postgres")
		}
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Cache.Kind {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Cache.Redis.Addr) == "" {
			return fmt.Errorf("config: cache.redis.addr is required for kind redis")
		}
	default:
		return fmt.Errorf("config: unknown cache kind %q", c.Cache.Kind)
	}

	switch c.Sync.Source {
	case "chan":
	case "redis":
		if strings.TrimSpace(c.Cache.Redis.Addr) == "" {
			return fmt.Errorf("config: sync.source redis requires cache.redis.addr")
		}
	default:
		return fmt.Errorf("config: unknown sync source %q", c.Sync.Source)
	}

	for _, d := range []string{
		c.Server.ReadTimeout, c.Server.WriteTimeout, c.Server.ShutdownTimeout,
		c.Sync.LoadTimeout, c.Rate.Token.Window, c.Issuer.KeyRotationInterval,
	} {
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", d, err)
		}
	}
	if c.Storage.Postgres.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(c.Storage.Postgres.ConnMaxLifetime); err != nil {
			return err
		}
	}
	return nil
}

// Dur parsea una duración ya validada por Load.
func Dur(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("SERVER_PUBLIC_URL"); ok {
		c.Server.PublicURL = v
	}
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("SYNC_SOURCE"); ok {
		c.Sync.Source = v
	}
	if v, ok := getEnvStr("SYNC_CHANNEL"); ok {
		c.Sync.Channel = v
	}
	if v, ok := getEnvStr("ISSUER_MODE"); ok {
		c.Issuer.Mode = v
	}
	if v, ok := getEnvStr("KEY_ROTATION_INTERVAL"); ok {
		c.Issuer.KeyRotationInterval = v
	}
	if v, ok := getEnvInt("KEY_ROTATION_GRACE_SECONDS"); ok {
		c.Issuer.KeyRotationGraceSeconds = v
	}
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvInt("RATE_TOKEN_LIMIT"); ok {
		c.Rate.Token.Limit = v
	}
}
