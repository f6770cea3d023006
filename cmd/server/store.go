package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/JonMunkholm/sheetsync/internal/config"
	"github.com/JonMunkholm/sheetsync/internal/store"
)

// openStore connects the backend selected by cfg.Driver.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	switch strings.ToLower(cfg.Driver) {
	case config.DriverPostgres:
		pg, err := store.OpenPostgres(ctx, cfg.URL, store.PostgresOptions{
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
			MaxConnIdleTime: cfg.MaxConnIdleTime,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("connected to postgres", "database", databaseName(cfg.URL))
		return pg, nil

	case config.DriverMongo:
		m, err := store.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, store.MongoOptions{
			MaxPoolSize:     uint64(cfg.MaxConns),
			MinPoolSize:     uint64(cfg.MinConns),
			MaxConnIdleTime: cfg.MaxConnIdleTime,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("connected to mongodb", "database", cfg.MongoDatabase)
		return m, nil

	case config.DriverMemory:
		slog.Warn("using in-memory store; data is lost on restart")
		return store.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// databaseName extracts the database from a connection URL for logging.
func databaseName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}
