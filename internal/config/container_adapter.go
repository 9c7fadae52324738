package config

import (
	"github.com/garyjia/expense-approval/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
		Auth: container.AuthConfig{
			JWTSecret:            c.Auth.JWTSecret,
			Issuer:               c.Auth.Issuer,
			TokenTTL:             c.Auth.TokenTTL,
			BootstrapSuperadmins: append([]string(nil), c.Auth.BootstrapSuperadmins...),
		},
		Cache: container.CacheConfig{
			Enabled:   c.Cache.Enabled,
			RedisAddr: c.Cache.RedisAddr,
			TTL:       c.Cache.TTL,
		},
		Payout: container.PayoutConfig{
			CompanyName: c.Payout.CompanyName,
			SheetName:   c.Payout.SheetName,
		},
	}
}
