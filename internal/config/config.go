// Package config loads service settings from an optional YAML file, a .env
// file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"dispatchmap/internal/geo"
	"dispatchmap/internal/mapprovider"
	"dispatchmap/internal/routing"
)

type Config struct {
	Port           string        `yaml:"port"`
	DatabaseURL    string        `yaml:"database_url"`
	RedisURL       string        `yaml:"redis_url"`
	SeedDemo       bool          `yaml:"seed_demo"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	Map struct {
		DefaultProvider string `yaml:"default_provider"`
	} `yaml:"map"`

	Routing struct {
		Backend   string        `yaml:"backend"` // empty: each map provider uses its own router
		OSRMURL   string        `yaml:"osrm_url"`
		HEREURL   string        `yaml:"here_url"`
		MapyURL   string        `yaml:"mapy_url"`
		GoogleURL string        `yaml:"google_url"`
		HEREKey   string        `yaml:"here_api_key"`
		MapyKey   string        `yaml:"mapy_api_key"`
		GoogleKey string        `yaml:"google_api_key"`
		RPS       float64       `yaml:"rps"`
		Burst     int           `yaml:"burst"`
		Timeout   time.Duration `yaml:"timeout"`
		CacheTTL  time.Duration `yaml:"cache_ttl"`
	} `yaml:"routing"`

	Estimate struct {
		AvgSpeedKmh             float64 `yaml:"avg_speed_kmh"`
		HandlingMinutesPerLevel int     `yaml:"handling_minutes_per_level"`
	} `yaml:"estimate"`

	Recalc struct {
		Concurrency int `yaml:"concurrency"`
	} `yaml:"recalc"`
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Config {
	var c Config
	c.Port = "8080"
	c.SeedDemo = true
	c.RequestTimeout = 30 * time.Second
	c.Map.DefaultProvider = string(mapprovider.Leaflet)
	c.Routing.RPS = 5
	c.Routing.Burst = 5
	c.Routing.Timeout = 10 * time.Second
	c.Routing.CacheTTL = 24 * time.Hour
	c.Estimate.AvgSpeedKmh = geo.DefaultAvgSpeedKmh
	c.Estimate.HandlingMinutesPerLevel = geo.DefaultMinutesPerLevel
	c.Recalc.Concurrency = 4
	return c
}

// Load reads .env, then CONFIG_FILE if set, then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("op=config.dotenv err=%v", err)
	}
	c := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := c.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := c.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config YAML: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	str("PORT", &c.Port)
	str("DATABASE_URL", &c.DatabaseURL)
	str("REDIS_URL", &c.RedisURL)
	str("MAP_PROVIDER", &c.Map.DefaultProvider)
	str("ROUTING_BACKEND", &c.Routing.Backend)
	str("OSRM_URL", &c.Routing.OSRMURL)
	str("HERE_ROUTING_URL", &c.Routing.HEREURL)
	str("MAPY_ROUTING_URL", &c.Routing.MapyURL)
	str("GOOGLE_MAPS_URL", &c.Routing.GoogleURL)
	str("HERE_API_KEY", &c.Routing.HEREKey)
	str("MAPY_API_KEY", &c.Routing.MapyKey)
	str("GOOGLE_MAPS_API_KEY", &c.Routing.GoogleKey)

	var errs []error
	parse := func(key string, fn func(string) error) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			if err := fn(strings.TrimSpace(v)); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		}
	}
	parse("SEED_DEMO", func(v string) (err error) { c.SeedDemo, err = strconv.ParseBool(v); return })
	parse("REQUEST_TIMEOUT", func(v string) (err error) { c.RequestTimeout, err = time.ParseDuration(v); return })
	parse("ROUTING_RPS", func(v string) (err error) { c.Routing.RPS, err = strconv.ParseFloat(v, 64); return })
	parse("ROUTING_BURST", func(v string) (err error) { c.Routing.Burst, err = strconv.Atoi(v); return })
	parse("ROUTING_TIMEOUT", func(v string) (err error) { c.Routing.Timeout, err = time.ParseDuration(v); return })
	parse("ROUTE_CACHE_TTL", func(v string) (err error) { c.Routing.CacheTTL, err = time.ParseDuration(v); return })
	parse("AVG_SPEED_KMH", func(v string) (err error) { c.Estimate.AvgSpeedKmh, err = strconv.ParseFloat(v, 64); return })
	parse("HANDLING_MINUTES_PER_LEVEL", func(v string) (err error) {
		c.Estimate.HandlingMinutesPerLevel, err = strconv.Atoi(v)
		return
	})
	parse("RECALC_CONCURRENCY", func(v string) (err error) { c.Recalc.Concurrency, err = strconv.Atoi(v); return })
	return errors.Join(errs...)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port is empty"))
	}
	if _, err := mapprovider.ParseBackend(c.Map.DefaultProvider); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Routing.Backend) {
	case "", "osrm", "osm", "straight", "straight-line":
	case "here":
		if c.Routing.HEREKey == "" {
			errs = append(errs, errors.New("routing backend here needs HERE_API_KEY"))
		}
	case "mapy", "mapy.cz":
		if c.Routing.MapyKey == "" {
			errs = append(errs, errors.New("routing backend mapy needs MAPY_API_KEY"))
		}
	case "google":
		if c.Routing.GoogleKey == "" {
			errs = append(errs, errors.New("routing backend google needs GOOGLE_MAPS_API_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown routing backend %q", c.Routing.Backend))
	}
	if c.Routing.RPS < 0 {
		errs = append(errs, errors.New("routing rps must not be negative"))
	}
	if c.Estimate.AvgSpeedKmh <= 0 {
		errs = append(errs, errors.New("avg speed must be positive"))
	}
	if c.Estimate.HandlingMinutesPerLevel <= 0 {
		errs = append(errs, errors.New("handling minutes per level must be positive"))
	}
	if c.Recalc.Concurrency <= 0 {
		errs = append(errs, errors.New("recalc concurrency must be positive"))
	}
	return errors.Join(errs...)
}

func (c Config) Estimator() geo.Estimator {
	return geo.Estimator{AvgSpeedKmh: c.Estimate.AvgSpeedKmh, MinutesPerLevel: c.Estimate.HandlingMinutesPerLevel}
}

// RouterFor picks the routing backend for a map provider. An explicit
// routing backend wins; otherwise the provider's own router is used, falling
// back to OSRM when its API key is missing.
func (c Config) RouterFor(b mapprovider.Backend) routing.Config {
	name := strings.ToLower(c.Routing.Backend)
	if name == "" {
		name = b.DefaultRouter()
		if c.keyFor(name) == "" && name != "osrm" {
			log.Printf("op=config.router provider=%s router=%s fallback=osrm reason=no_api_key", b, name)
			name = "osrm"
		}
	}
	return routing.Config{
		Backend:   name,
		BaseURL:   c.urlFor(name),
		APIKey:    c.keyFor(name),
		RPS:       c.Routing.RPS,
		Burst:     c.Routing.Burst,
		Timeout:   c.Routing.Timeout,
		Estimator: c.Estimator(),
	}
}

func (c Config) keyFor(name string) string {
	switch name {
	case "here":
		return c.Routing.HEREKey
	case "mapy", "mapy.cz":
		return c.Routing.MapyKey
	case "google":
		return c.Routing.GoogleKey
	}
	return ""
}

func (c Config) urlFor(name string) string {
	switch name {
	case "here":
		return c.Routing.HEREURL
	case "mapy", "mapy.cz":
		return c.Routing.MapyURL
	case "google":
		return c.Routing.GoogleURL
	case "osrm", "osm":
		return c.Routing.OSRMURL
	}
	return ""
}
