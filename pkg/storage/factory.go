package storage

import (
	"fmt"

	"github.com/pixelmuse/pixelmuse/pkg/config"
)

// NewProvider creates a storage provider based on the configuration
func NewProvider(cfg config.StorageConfig) (Provider, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemoryProvider(), nil
	case "postgres":
		return NewPostgreSQLProvider(PostgreSQLProviderConfig{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
			SSLMode:  cfg.Postgres.SSLMode,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
