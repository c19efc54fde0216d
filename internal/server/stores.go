package server

import (
	"fmt"

	"github.com/valkey-io/valkey-go"

	"github.com/teemow/sharedcal/internal/config"
	"github.com/teemow/sharedcal/internal/logging"
	"github.com/teemow/sharedcal/internal/storage"
)

// Stores are the three shared documents: credentials, the idempotency
// table and the pending bootstrap state.
type Stores struct {
	Tokens      storage.Store
	Idempotency storage.Store
	State       storage.Store

	valkeyClient valkey.Client
}

// OpenStores opens the documents on the configured backend. recorder may be nil.
func OpenStores(cfg config.Config, logger logging.Logger, recorder storage.LockRecorder) (*Stores, error) {
	switch cfg.Storage.Type {
	case config.StorageTypeFile:
		return openFileStores(cfg.Storage, logger, recorder)
	case config.StorageTypeValkey:
		return openValkeyStores(cfg.Storage, logger, recorder)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}

func openFileStores(cfg config.StorageConfig, logger logging.Logger, recorder storage.LockRecorder) (*Stores, error) {
	open := func(path string) (storage.Store, error) {
		s, err := storage.NewFileStore(storage.FileConfig{
			Path:        path,
			LockTimeout: cfg.LockTimeout,
			Logger:      logger,
			Recorder:    recorder,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		return s, nil
	}

	var (
		stores Stores
		err    error
	)
	if stores.Tokens, err = open(cfg.TokenFile); err != nil {
		return nil, err
	}
	if stores.Idempotency, err = open(cfg.IdempotencyFile); err != nil {
		return nil, err
	}
	if stores.State, err = open(cfg.StateFile); err != nil {
		return nil, err
	}
	return &stores, nil
}

func openValkeyStores(cfg config.StorageConfig, logger logging.Logger, recorder storage.LockRecorder) (*Stores, error) {
	client, err := storage.NewValkeyClient(cfg.Valkey)
	if err != nil {
		return nil, err
	}

	open := func(name string) (storage.Store, error) {
		return storage.NewValkeyStore(client, storage.ValkeyStoreOptions{
			KeyPrefix:   cfg.Valkey.KeyPrefix,
			Name:        name,
			LockTTL:     cfg.Valkey.LockTTL,
			LockTimeout: cfg.LockTimeout,
			Logger:      logger,
			Recorder:    recorder,
		})
	}

	stores := Stores{valkeyClient: client}
	if stores.Tokens, err = open(cfg.TokenFile); err != nil {
		client.Close()
		return nil, err
	}
	if stores.Idempotency, err = open(cfg.IdempotencyFile); err != nil {
		client.Close()
		return nil, err
	}
	if stores.State, err = open(cfg.StateFile); err != nil {
		client.Close()
		return nil, err
	}
	return &stores, nil
}

// Close releases backend connections.
func (s *Stores) Close() error {
	if s != nil && s.valkeyClient != nil {
		s.valkeyClient.Close()
	}
	return nil
}
