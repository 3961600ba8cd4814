package dvid

import (
	"fmt"
	"strings"
)

// Config is a map of keyword to arbitrary data to specify configurations via keyword.
// Keywords are case-insensitive.
type Config map[string]interface{}

// NewConfig returns an empty Config.
func NewConfig() Config {
	return make(Config)
}

// SetAll replaces the configuration with the given map, lowercasing keys.
func (c *Config) SetAll(kv map[string]interface{}) {
	*c = make(Config, len(kv))
	for k, v := range kv {
		(*c)[strings.ToLower(k)] = v
	}
}

// GetAll returns the underlying map.
func (c Config) GetAll() map[string]interface{} {
	return c
}

// Set sets a keyword to a value.
func (c Config) Set(key string, value interface{}) {
	c[strings.ToLower(key)] = value
}

// Get returns a value for the keyword and whether it was found.
func (c Config) Get(key string) (interface{}, bool) {
	if c == nil {
		return nil, false
	}
	v, found := c[strings.ToLower(key)]
	return v, found
}

// GetString returns a string value for the keyword.
func (c Config) GetString(key string) (s string, found bool, err error) {
	var v interface{}
	if v, found = c.Get(key); !found {
		return
	}
	var ok bool
	if s, ok = v.(string); !ok {
		err = fmt.Errorf("setting for %q was not a string: %v", key, v)
	}
	return
}

// GetBool returns a bool value for the keyword.
func (c Config) GetBool(key string) (b bool, found bool, err error) {
	var v interface{}
	if v, found = c.Get(key); !found {
		return
	}
	var ok bool
	if b, ok = v.(bool); !ok {
		err = fmt.Errorf("setting for %q was not a bool: %v", key, v)
	}
	return
}

// GetInt returns an int value for the keyword.  TOML decodes integers as int64
// so several integer types are accepted.
func (c Config) GetInt(key string) (i int, found bool, err error) {
	var v interface{}
	if v, found = c.Get(key); !found {
		return
	}
	switch t := v.(type) {
	case int:
		i = t
	case int64:
		i = int(t)
	case int32:
		i = int(t)
	case uint64:
		i = int(t)
	case float64:
		i = int(t)
	default:
		err = fmt.Errorf("setting for %q was not an integer: %v", key, v)
	}
	return
}

// StoreConfig is a store-specific configuration where each store implementation
// defines the types of parameters it accepts.
type StoreConfig struct {
	Config

	// Engine is a simple name describing the engine, e.g., "badger"
	Engine string
}
