package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/target/healwright/config"
)

// Infra holds the shared connections. Redis is nil unless configured.
type Infra struct {
	DB    *sql.DB
	Redis redis.UniversalClient
}

// Close closes every open connection.
func (i *Infra) Close() error {
	var errs []error
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ConnectInfra connects Postgres and, when configured, Redis.
func ConnectInfra(cfg *config.AppConfig, logger *slog.Logger) (*Infra, error) {
	dbCfg := DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: logger}

	db, err := ConnectDB(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	infra := &Infra{DB: db}

	if !cfg.Redis.Enabled() {
		logger.Info("redis not configured; suggestion cache and publish lock disabled")
		return infra, nil
	}
	client, err := ConnectRedis(dbCfg)
	if err != nil {
		if cerr := infra.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	infra.Redis = client
	return infra, nil
}
