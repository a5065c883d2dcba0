package config

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngprep/internal/errors"
	"github.com/iamwavecut/ngprep/internal/pipeline"
)

const envPrefix = "NGPREP_"

type (
	Config struct {
		LogLevel int    `env:"LOG_LEVEL,default=4"`
		DotPath  string `env:"DOT_PATH,default=~/.ngprep"`
		Mode     string `env:"MODE,default=line"`
		Workers  int    `env:"WORKERS,default=0"`
		Cache    Cache
		HTTP     HTTP
	}

	Cache struct {
		Enabled    bool          `env:"CACHE_ENABLED,default=true"`
		Path       string        `env:"CACHE_PATH,default=cache.db"`
		MemorySize int           `env:"CACHE_MEMORY_SIZE,default=4096"`
		TTL        time.Duration `env:"CACHE_TTL,default=720h"`
	}

	HTTP struct {
		Addr         string        `env:"HTTP_ADDR,default=:8080"`
		MetricsAddr  string        `env:"METRICS_ADDR,default=:2112"`
		MaxBody      int64         `env:"HTTP_MAX_BODY,default=1048576"`
		ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT,default=10s"`
		WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT,default=10s"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

// Load reads the process environment once and memoizes the result. On error the
// defaults are returned along with it, so callers can still log.
func Load() (Config, error) {
	once.Do(func() {
		cfg, err := LoadWith(context.Background(), envconfig.OsLookuper())
		globalConfig, globalErr = &cfg, err
		if err == nil {
			log.Traceln("loaded config")
		}
	})
	return *globalConfig, globalErr
}

// Defaults is the config with every field at its declared default.
func Defaults() Config {
	cfg := Config{}
	envcfg := envconfig.Config{
		Lookuper: envconfig.MapLookuper(map[string]string{}),
		Target:   &cfg,
	}
	if err := envconfig.ProcessWith(context.Background(), &envcfg); err != nil {
		log.WithError(err).Error("cant apply config defaults")
	}
	if dotPath, err := homedir.Expand(cfg.DotPath); err == nil {
		cfg.DotPath = dotPath
	}
	return cfg
}

// LoadWith builds a config from an arbitrary lookuper, variables are read with
// the NGPREP_ prefix. Any error comes with Defaults() instead of a partial config.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	cfg := Config{}
	envcfg := envconfig.Config{
		Lookuper: envconfig.PrefixLookuper(envPrefix, lookuper),
		Target:   &cfg,
	}
	if err := envconfig.ProcessWith(ctx, &envcfg); err != nil {
		return Defaults(), fmt.Errorf("process env config: %w", err)
	}
	dotPath, err := homedir.Expand(cfg.DotPath)
	if err != nil {
		return Defaults(), fmt.Errorf("expand dot path: %w", err)
	}
	cfg.DotPath = dotPath
	if err := cfg.Validate(); err != nil {
		return Defaults(), err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if _, err := pipeline.ParseMode(c.Mode); err != nil {
		return err
	}
	if c.LogLevel < int(log.PanicLevel) || c.LogLevel > int(log.TraceLevel) {
		return fmt.Errorf("%w: log level %d out of range", errors.ErrInvalidConfig, c.LogLevel)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be non-negative", errors.ErrInvalidConfig)
	}
	if c.Cache.MemorySize < 0 {
		return fmt.Errorf("%w: cache memory size must be non-negative", errors.ErrInvalidConfig)
	}
	if c.HTTP.MaxBody <= 0 {
		return fmt.Errorf("%w: http max body must be positive", errors.ErrInvalidConfig)
	}
	return nil
}

// EffectiveWorkers resolves the zero value to GOMAXPROCS.
func (c Config) EffectiveWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}
