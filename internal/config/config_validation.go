package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig wraps every validation failure so callers can match the
// class with [errors.Is].
var ErrInvalidConfig = errors.New("invalid configuration")

// validate applies defaults and rejects values the engine cannot run with.
func (c *Config) validate() error {
	if c.Storage.DSN == "" {
		c.Storage.DSN = "browser-sync.db"
	}
	if c.Server.Timeout <= 0 {
		c.Server.Timeout = 15 * time.Second
	}
	if c.Sync.Interval <= 0 {
		c.Sync.Interval = 5 * time.Minute
	}

	if c.Account.SaltHex != "" {
		if _, err := hex.DecodeString(c.Account.SaltHex); err != nil {
			return fmt.Errorf("%w: account salt is not valid hex: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}

// Salt decodes the account salt. Empty when unset.
func (c *Config) Salt() []byte {
	salt, err := hex.DecodeString(c.Account.SaltHex)
	if err != nil {
		return nil
	}
	return salt
}
