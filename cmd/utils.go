package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/rubiojr/datacatalog/pkg/config"
	"github.com/rubiojr/datacatalog/pkg/log"
	"github.com/rubiojr/datacatalog/pkg/query"
	"github.com/rubiojr/datacatalog/pkg/store"
)

// loadConfig reads the configuration and applies its logging settings.
func loadConfig(configPath string, debug bool) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := applyLogging(cfg, debug); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyLogging(cfg *config.Config, debug bool) error {
	log.SetConsole(cfg.LogFormat == "console")
	if err := log.SetLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("setting log level: %w", err)
	}
	log.SetGlobalDebug(debug)
	return nil
}

// openStore opens the backend the configuration selects.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendElastic:
		dialect, err := query.ParseDialect(cfg.Elastic.Dialect)
		if err != nil {
			return nil, err
		}
		st, err := store.NewElastic(store.ElasticConfig{
			Addresses: cfg.Elastic.Addresses,
			Username:  cfg.Elastic.Username,
			Password:  cfg.Elastic.Password,
			Index:     cfg.Elastic.Index,
			Dialect:   dialect,
			Transport: cleanhttp.DefaultPooledTransport(),
		})
		if err != nil {
			return nil, fmt.Errorf("creating elasticsearch store: %w", err)
		}
		return st, nil
	default:
		st, err := store.OpenSQLite(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return st, nil
	}
}

// httpClient returns a pooled client for talking to collaborator services.
func httpClient(timeout time.Duration) *http.Client {
	client := cleanhttp.DefaultPooledClient()
	client.Timeout = timeout
	return client
}

func closeStore(st store.Store) {
	if err := st.Close(); err != nil {
		fmt.Printf("Warning: failed to close store: %v\n", err)
	}
}
