package medledger

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Config configures a vault instance. Zero values give a pure
// in-memory vault with content addressing and advisory consent.
type Config struct {
	// Paths contains data directories for the Badger-backed
	// collections. Empty means in-memory only. Currently only
	// Paths[0] is used.
	Paths []string `yaml:"paths"`
	// MinimumFreeGB is the free-space threshold checked before the
	// on-disk store opens. Zero disables the check.
	MinimumFreeGB int `yaml:"minimumFreeGb"`
	// ConsentMode is "advisory" (default) or "enforcing".
	ConsentMode string `yaml:"consentMode"`
	// Addressing is "content" (default) or "random". Random preserves
	// the legacy non-content-derived address scheme.
	Addressing string `yaml:"addressing"`
	// EncryptionKey is the hex-encoded 32-byte record key. A fresh
	// key is generated when empty; persistent deployments should pin
	// one.
	EncryptionKey string `yaml:"encryptionKey"`
	// DefaultExpiryHours applies to auto-filed consent requests that
	// do not specify their own window. Defaults to 24.
	DefaultExpiryHours int `yaml:"defaultExpiryHours"`
	// Logger is optional; a fresh logrus logger is used when nil.
	Logger *logrus.Logger `yaml:"-"`
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) logger() *logrus.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logrus.New()
}

func (c *Config) expiryHours() int {
	if c.DefaultExpiryHours > 0 {
		return c.DefaultExpiryHours
	}
	return 24
}
