package config

import "time"

// Config is the runner daemon configuration.
type Config struct {
	Host           string       `json:"host"`
	Port           int          `json:"port"`
	LogLevel       string       `json:"logLevel"`
	MaxBodySize    int64        `json:"maxBodySize"`
	RequestTimeout int          `json:"requestTimeout"` // seconds
	Cache          *CacheConfig `json:"cache,omitempty"`
}

// CacheConfig controls the response cache that answers retried
// submissions of an already-executed batch.
type CacheConfig struct {
	Enabled bool `json:"enabled"`
	TTL     int  `json:"ttl"`  // seconds
	Size    int  `json:"size"` // number of entries
}

// GetRequestTimeoutDuration returns the request timeout as a Duration.
func (c *Config) GetRequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// IsCacheEnabled returns true if the response cache is configured and enabled.
func (c *Config) IsCacheEnabled() bool {
	return c.Cache != nil && c.Cache.Enabled
}

// GetTTLDuration returns the cache TTL as a Duration.
func (c *CacheConfig) GetTTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}
