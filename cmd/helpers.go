package cmd

import (
	"fmt"
	"time"

	"github.com/telegate/telegate/internal/config"
	"github.com/telegate/telegate/internal/store"
	"github.com/telegate/telegate/internal/vault"
)

// openStore opens the configured SQLite database behind the bounded
// write pool.
func openStore(cfg config.Config) (store.Gateway, error) {
	db, err := store.NewSQLite(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return store.NewPooled(db, cfg.Ingest.StoreWorkers), nil
}

// openVault builds the credential vault from the configured key,
// generating and persisting a fresh key on first use.
func openVault(cfg *config.Config, configPath string) (vault.Vault, error) {
	if cfg.Vault.Key == "" {
		key, err := vault.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("generating vault key: %w", err)
		}
		cfg.Vault.Key = key
		if err := config.Save(*cfg, configPath); err != nil {
			return nil, fmt.Errorf("saving vault key: %w", err)
		}
		fmt.Println("Generated a new vault key and saved it to the config")
	}
	return vault.NewSecretBox(cfg.Vault.Key)
}

func probeTimeout(cfg config.Config) time.Duration {
	return time.Duration(cfg.Provider.ProbeTimeoutS) * time.Second
}

func sendTimeout(cfg config.Config) time.Duration {
	return time.Duration(cfg.Provider.SendTimeoutS) * time.Second
}
