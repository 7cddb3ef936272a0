package batcher

import "time"

// Config holds batcher connection settings.
type Config struct {
	// URL overrides the network's default batcher endpoint.
	URL string `mapstructure:"url" yaml:"url"`

	DialTimeout      time.Duration `mapstructure:"dial_timeout"      yaml:"dial_timeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"     yaml:"write_timeout"`

	// WaitTimeout bounds the wait for batch inclusion. Zero waits until the
	// batcher answers or the connection drops.
	WaitTimeout time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`

	MinProtocolVersion uint16 `mapstructure:"min_protocol_version" yaml:"min_protocol_version"`
	MaxMessageSize     int64  `mapstructure:"max_message_size"     yaml:"max_message_size"`
}

func DefaultConfig() Config {
	return Config{
		DialTimeout:        10 * time.Second,
		HandshakeTimeout:   10 * time.Second,
		WriteTimeout:       20 * time.Second,
		WaitTimeout:        10 * time.Minute,
		MinProtocolVersion: 1,
		MaxMessageSize:     32 * 1024 * 1024,
	}
}
