package config

import "fmt"

// Store types accepted in core.store-type.
const (
	StoreTypeRedis  = "redis"
	StoreTypeBadger = "badger"
	StoreTypeSQLite = "sqlite"
	StoreTypeFile   = "file"
	StoreTypeRAM    = "ram"
)

// Config is the store configuration file.
type Config struct {
	Core             CoreConfig        `yaml:"core"`
	StoreDB          StoreDBConfig     `yaml:"store-db"`
	RedisConnections []RedisConnection `yaml:"redis-connection"`
}

// CoreConfig selects the backend.
type CoreConfig struct {
	StoreType     string `yaml:"store-type"`
	StoreLocation string `yaml:"store-location"`
}

// StoreDBConfig names the table and the connection profile.
type StoreDBConfig struct {
	ID    string `yaml:"id"`
	Table string `yaml:"table"`
}

// RedisConnection is one named connection profile.
type RedisConnection struct {
	ID             string `yaml:"id"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Password       string `yaml:"password"`
	Database       *int   `yaml:"database"`
	IdleTimeout    *int   `yaml:"idle-timeout"` // seconds
	MaxConnections int    `yaml:"max-connections"`
}

// DatabaseIndex returns the configured database, or 0.
func (c RedisConnection) DatabaseIndex() int {
	if c.Database == nil || *c.Database < 0 {
		return 0
	}
	return *c.Database
}

// PoolSize returns max-connections, defaulting to 1.
func (c RedisConnection) PoolSize() int {
	if c.MaxConnections <= 0 {
		return 1
	}
	return c.MaxConnections
}

// String renders the profile without its password.
func (c RedisConnection) String() string {
	return fmt.Sprintf("%s@%s:%d/%d", c.ID, c.Host, c.Port, c.DatabaseIndex())
}
