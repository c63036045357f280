package status

import (
	"fmt"
	"net"
)

// Config holds status server configuration. The server is disabled when Addr
// is empty.
type Config struct {
	Addr         string `yaml:"addr" mapstructure:"addr"`
	ReadTimeout  int    `yaml:"read_timeout" mapstructure:"read_timeout"`   // seconds
	WriteTimeout int    `yaml:"write_timeout" mapstructure:"write_timeout"` // seconds
	IdleTimeout  int    `yaml:"idle_timeout" mapstructure:"idle_timeout"`   // seconds
}

// Enabled reports whether a listen address is configured.
func (c *Config) Enabled() bool { return c.Addr != "" }

// ApplyDefaults sets sensible default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 5
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Addr); err != nil {
			return fmt.Errorf("status.addr must be host:port (got: %q): %w", c.Addr, err)
		}
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("status.read_timeout must be non-negative (got: %d)", c.ReadTimeout)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("status.write_timeout must be non-negative (got: %d)", c.WriteTimeout)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("status.idle_timeout must be non-negative (got: %d)", c.IdleTimeout)
	}
	return nil
}
