package api

import (
	"fmt"
	"net"
	"time"
)

// Config defines runtime parameters for the HTTP API server.
type Config struct {
	ListenAddr        string        `mapstructure:"listen_addr"         yaml:"listen_addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"        yaml:"read_timeout"`
	// WriteTimeout must outlast the batch inclusion wait; zero disables it.
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"     yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes" yaml:"max_header_bytes"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"   yaml:"max_body_bytes"`
	EnableCORS      bool          `mapstructure:"enable_cors"      yaml:"enable_cors"`
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:        "127.0.0.1:8080",
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		MaxHeaderBytes:    1 << 20,  // 1MB
		MaxBodyBytes:      64 << 20, // 64MB
	}
}

// Validate checks the listen address and limits.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("invalid listen_addr %q: %w", c.ListenAddr, err)
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("max_body_bytes must not be negative")
	}
	return nil
}
