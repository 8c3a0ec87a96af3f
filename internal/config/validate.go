package config

import (
	"fmt"
)

// Validate performs business-rule validation on the loaded
// configuration. Load calls it automatically.
func (c *Config) Validate() error {
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters (got %d)", len(c.Auth.JWTSecret))
	}
	if c.Limits.MaxWritesPerWindow < 0 {
		return fmt.Errorf("limits.max_writes_per_window must be >= 0 (got %d)", c.Limits.MaxWritesPerWindow)
	}
	if c.Limits.Window <= 0 {
		return fmt.Errorf("limits.window must be > 0 (got %v)", c.Limits.Window)
	}
	if c.Blob.Dir == "" {
		return fmt.Errorf("blob.dir must not be empty")
	}
	return nil
}
