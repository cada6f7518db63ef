// Package config loads the map configuration from config.yml, applies
// environment overrides and validates the result.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPaths are searched in order when no config path is given.
var DefaultPaths = []string{"config.yml", "./config/config.yml"}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"gt=0,lte=65535"`
	// Origin is the public base URL root-relative data paths resolve against.
	Origin string `yaml:"origin" validate:"omitempty,url"`
}

// DataConfig locates the three structure datasets.
type DataConfig struct {
	// Prefix is shared by <prefix>_elements.geojson, <prefix>_stations.geojson
	// and <prefix>_station_routes.geojson. It may be a URL, a root-relative
	// path served from Dir, or a local file path.
	Prefix string `yaml:"prefix" validate:"required"`
	// Dir is served at /data/ when set.
	Dir             string `yaml:"dir"`
	CacheTTLSeconds int    `yaml:"cacheTTLSeconds" validate:"gte=0"`
}

// MapConfig holds the initial map view and look.
type MapConfig struct {
	Style      string        `yaml:"style"`
	Center     [2]float64    `yaml:"center"`
	Zoom       float64       `yaml:"zoom" validate:"gte=0,lte=24"`
	Bearing    float64       `yaml:"bearing" validate:"gte=-360,lte=360"`
	MaxBounds  [2][2]float64 `yaml:"maxBounds"`
	MarkerIcon string        `yaml:"markerIcon"`
	Hash       string        `yaml:"hash"`
}

// AppConfig is the root configuration structure.
type AppConfig struct {
	Server ServerConfig `yaml:"server" validate:"required"`
	Data   DataConfig   `yaml:"data" validate:"required"`
	Map    MapConfig    `yaml:"map"`
	Output string       `yaml:"output"`
}

// CacheTTL returns the data cache lifetime.
func (c AppConfig) CacheTTL() time.Duration {
	return time.Duration(c.Data.CacheTTLSeconds) * time.Second
}

// Addr is the listen address.
func (c AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Default returns the built-in configuration: Darmstadt, zoom 14, data
// served from ./data.
func Default() AppConfig {
	return AppConfig{
		Server: ServerConfig{Port: 8080},
		Data: DataConfig{
			Prefix:          "/data/structure",
			Dir:             "data",
			CacheTTLSeconds: 60,
		},
		Map: MapConfig{
			Style:      "default",
			Center:     [2]float64{8.6671065, 49.8747541},
			Zoom:       14,
			MaxBounds:  [2][2]float64{{-31, 35}, {48, 62}},
			MarkerIcon: "https://img.icons8.com/material-outlined/24/000000/railway-station.png",
			Hash:       "location",
		},
		Output: "structure-map.html",
	}
}

// LoadEnvFiles loads .env into the process environment if present.
func LoadEnvFiles(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		_ = godotenv.Load(p)
	}
}

// Load reads path, or the first of DefaultPaths that exists when path is
// empty. Missing default files are not an error; a missing explicit path is.
func Load(path string) (*AppConfig, error) {
	cfg := Default()

	data, err := readConfig(path)
	if err != nil {
		return nil, err
	}
	if data != nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readConfig(path string) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		return data, nil
	}
	for _, p := range DefaultPaths {
		data, err := os.ReadFile(p)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", p, err)
		}
	}
	return nil, nil
}

// ApplyEnv overrides fields from STRUCTURE_MAP_* variables.
func ApplyEnv(cfg *AppConfig) error {
	if v := os.Getenv("STRUCTURE_MAP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("STRUCTURE_MAP_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("STRUCTURE_MAP_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("STRUCTURE_MAP_ORIGIN"); v != "" {
		cfg.Server.Origin = v
	}
	if v := os.Getenv("STRUCTURE_MAP_PREFIX"); v != "" {
		cfg.Data.Prefix = v
	}
	if v := os.Getenv("STRUCTURE_MAP_DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if v := os.Getenv("STRUCTURE_MAP_STYLE"); v != "" {
		cfg.Map.Style = v
	}
	if v := os.Getenv("STRUCTURE_MAP_MARKER_ICON"); v != "" {
		cfg.Map.MarkerIcon = v
	}
	return nil
}

// Validate checks struct tags and coordinate ranges.
func Validate(cfg AppConfig) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if !validLonLat(cfg.Map.Center) {
		return fmt.Errorf("invalid config: map.center %v out of range", cfg.Map.Center)
	}
	sw, ne := cfg.Map.MaxBounds[0], cfg.Map.MaxBounds[1]
	if sw != ([2]float64{}) || ne != ([2]float64{}) {
		if !validLonLat(sw) || !validLonLat(ne) || sw[0] >= ne[0] || sw[1] >= ne[1] {
			return fmt.Errorf("invalid config: map.maxBounds %v must be [[west, south], [east, north]]", cfg.Map.MaxBounds)
		}
	}
	return nil
}

func validLonLat(p [2]float64) bool {
	return p[0] >= -180 && p[0] <= 180 && p[1] >= -90 && p[1] <= 90
}
