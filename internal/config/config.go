package config

import (
	"time"
)

// Config is the top-level configuration container for the sync client. It
// is populated by merging values from environment variables and an optional
// JSON file.
//
// Struct tags:
//   - envPrefix — prefix applied to all nested env tag lookups (caarlos0/env).
//   - env       — direct environment variable name for scalar fields.
type Config struct {
	// Account holds the key-derivation inputs for the per-account secret
	// key. The passphrase never leaves the device.
	Account Account `envPrefix:"ACCOUNT_" json:"account"`

	// Storage holds the local persistence settings.
	Storage Storage `envPrefix:"STORAGE_" json:"storage"`

	// Server holds the sync server endpoint settings.
	Server Server `envPrefix:"SERVER_" json:"server"`

	// Sync holds the sync scheduling settings.
	Sync Sync `envPrefix:"SYNC_" json:"sync"`

	// JSONFilePath is the optional path to a JSON configuration file.
	// When non-empty, the file is parsed and merged on top of the values
	// already loaded from environment variables.
	// Env: CONFIG
	JSONFilePath string `env:"CONFIG" json:"-"`
}

// Account holds the cryptographic account material.
type Account struct {
	// Passphrase is the account passphrase the secret key is derived
	// from. Must be kept confidential.
	// Env: ACCOUNT_PASSPHRASE
	Passphrase string `env:"PASSPHRASE" json:"passphrase"`

	// SaltHex is the hex-encoded account salt shared by all devices of
	// the account. Not a secret.
	// Env: ACCOUNT_SALT
	SaltHex string `env:"SALT" json:"salt"`
}

// Storage holds local store settings.
type Storage struct {
	// DSN is the sqlite file path of the local store, ":memory:" for an
	// ephemeral in-memory store, or a path ending in ".json" for the
	// JSON file store.
	// Env: STORAGE_DSN
	DSN string `env:"DSN" json:"dsn"`
}

// Server holds the sync server endpoint settings.
type Server struct {
	// BaseURL is the sync server endpoint.
	// Env: SERVER_BASE_URL
	BaseURL string `env:"BASE_URL" json:"base_url"`

	// Timeout bounds every round trip to the server (e.g. "15s").
	// Env: SERVER_TIMEOUT
	Timeout time.Duration `env:"TIMEOUT" json:"timeout"`
}

// Sync holds scheduling settings for the periodic sync jobs.
type Sync struct {
	// Interval is the pause between two sync cycles of one feature
	// (e.g. "5m").
	// Env: SYNC_INTERVAL
	Interval time.Duration `env:"INTERVAL" json:"interval"`

	// DeviceName is the human-readable name announced with the local
	// device's open-tab list.
	// Env: SYNC_DEVICE_NAME
	DeviceName string `env:"DEVICE_NAME" json:"device_name"`
}
