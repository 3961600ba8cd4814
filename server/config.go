package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/janelia-flyem/mrf/dvid"
	"github.com/janelia-flyem/mrf/storage"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	// DefaultWebAddress is the default URL of the web server
	DefaultWebAddress = "localhost:8000"

	// DefaultMaxConnections limits concurrent HTTP connections.
	DefaultMaxConnections = 256

	// DefaultMaxSteps limits the relaxation steps of one request.
	DefaultMaxSteps = 100
)

// Config is the parsed server configuration.
type Config struct {
	Server  serverConfig
	Logging dvid.LogConfig
	Store   map[string]interface{}
	Cache   cacheConfig
	Relax   relaxConfig
	Auth    authConfig
	Kafka   storage.KafkaConfig

	// location of the TOML file, if any
	location string
}

type serverConfig struct {
	HTTPAddress    string
	MaxConnections int
	Note           string
	CorsDomains    []string
}

type cacheConfig struct {
	Size int // in MB
}

type relaxConfig struct {
	Workers     int
	Compression string
	MaxSteps    int
}

// DefaultConfig returns the configuration used for settings absent from the TOML file.
func DefaultConfig() *Config {
	return &Config{
		Server: serverConfig{
			HTTPAddress:    DefaultWebAddress,
			MaxConnections: DefaultMaxConnections,
		},
		Store: inMemoryStore(),
		Relax: relaxConfig{
			Compression: "snappy",
			MaxSteps:    DefaultMaxSteps,
		},
	}
}

func inMemoryStore() map[string]interface{} {
	return map[string]interface{}{
		"engine":   "badger",
		"inmemory": true,
	}
}

// LoadConfig loads server configuration from a TOML file, then applies any .env file in
// the same directory and MRF_* environment variables.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("no server TOML configuration file provided")
	}
	c := DefaultConfig()
	c.Store = nil // toml merges into existing maps
	if _, err := toml.DecodeFile(filename, c); err != nil {
		return nil, fmt.Errorf("could not decode TOML config: %v", err)
	}
	c.location = filename
	if c.Store == nil {
		c.Store = inMemoryStore()
	}

	envFile := filepath.Join(filepath.Dir(filename), ".env")
	if dvid.FileExists(envFile) {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("could not load %s: %v", envFile, err)
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.convertPathsToAbsolute(filename); err != nil {
		return nil, fmt.Errorf("could not convert relative paths to absolute paths in TOML config: %v", err)
	}
	return c, c.validate()
}

// Some settings in the TOML can be given as relative paths.
// This function converts them in-place to absolute paths,
// assuming the given paths were relative to the TOML file's own directory.
func (c *Config) convertPathsToAbsolute(configPath string) error {
	var err error

	configDir := filepath.Dir(configPath)

	// [logging].logfile
	if c.Logging.Logfile != "" {
		c.Logging.Logfile, err = dvid.ConvertToAbsolute(c.Logging.Logfile, configDir)
		if err != nil {
			return fmt.Errorf("Error converting logfile setting to absolute path")
		}
	}

	// [auth].auth_file
	if c.Auth.AuthFile != "" {
		c.Auth.AuthFile, err = dvid.ConvertToAbsolute(c.Auth.AuthFile, configDir)
		if err != nil {
			return fmt.Errorf("Error converting auth_file setting to absolute path")
		}
	}

	// [store].path
	if p, found := c.Store["path"]; found {
		path, ok := p.(string)
		if !ok {
			return fmt.Errorf("Don't understand path setting for store: %v", p)
		}
		absPath, err := dvid.ConvertToAbsolute(path, configDir)
		if err != nil {
			return fmt.Errorf("Error converting store.path to absolute path: %q", path)
		}
		c.Store["path"] = absPath
	}
	return nil
}

// applyEnv overrides settings with MRF_HTTP_ADDRESS, MRF_SECRET_KEY, MRF_LOG_LEVEL,
// MRF_STORE_PATH and MRF_WORKERS if they are set.
func (c *Config) applyEnv() error {
	if v := os.Getenv("MRF_HTTP_ADDRESS"); v != "" {
		c.Server.HTTPAddress = v
	}
	if v := os.Getenv("MRF_SECRET_KEY"); v != "" {
		c.Auth.SecretKey = v
	}
	if v := os.Getenv("MRF_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MRF_STORE_PATH"); v != "" {
		if c.Store == nil {
			c.Store = make(map[string]interface{})
		}
		c.Store["path"] = v
		delete(c.Store, "inmemory")
	}
	if v := os.Getenv("MRF_WORKERS"); v != "" {
		workers, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("bad MRF_WORKERS setting %q: %v", v, err)
		}
		c.Relax.Workers = workers
	}
	return nil
}

func (c *Config) validate() error {
	if _, err := c.compression(); err != nil {
		return err
	}
	if c.Relax.Workers < 0 {
		return fmt.Errorf("relax workers must be non-negative, got %d", c.Relax.Workers)
	}
	if _, err := c.storeConfig(); err != nil {
		return err
	}
	if c.Logging.Level != "" {
		if _, err := dvid.ParseLogMode(c.Logging.Level); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) compression() (dvid.Compression, error) {
	return dvid.ParseCompression(c.Relax.Compression)
}

func (c *Config) maxSteps() int {
	if c.Relax.MaxSteps <= 0 {
		return DefaultMaxSteps
	}
	return c.Relax.MaxSteps
}

// storeConfig returns the [store] section as a dvid.StoreConfig.
func (c *Config) storeConfig() (dvid.StoreConfig, error) {
	var config dvid.Config
	config.SetAll(c.Store)
	engine, found, err := config.GetString("engine")
	if err != nil {
		return dvid.StoreConfig{}, err
	}
	if !found || engine == "" {
		return dvid.StoreConfig{}, fmt.Errorf("[store] section must name an engine; available: %s", storage.EnginesAvailable())
	}
	return dvid.StoreConfig{Config: config, Engine: strings.ToLower(engine)}, nil
}

// Location returns the TOML file the configuration was loaded from.
func (c *Config) Location() string {
	return c.location
}
