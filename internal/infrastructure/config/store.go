package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// BrokerStore persists runtime broker configuration changes.
//
// The broker_config table holds a single row. When present it takes
// precedence over the YAML file on the next start, so a connection edit
// made through the API survives restarts without touching the config file.
type BrokerStore struct {
	db *sql.DB
}

// NewBrokerStore creates a store over an open database handle.
func NewBrokerStore(db *sql.DB) *BrokerStore {
	return &BrokerStore{db: db}
}

// Load reads the persisted broker configuration.
// Returns (nil, nil) when no configuration has been saved yet.
func (s *BrokerStore) Load(ctx context.Context) (*BrokerConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT host, port, tls, client_id, username, password, qos
		FROM broker_config
		WHERE id = 1`)

	var (
		cfg BrokerConfig
		tls int
	)
	err := row.Scan(&cfg.Host, &cfg.Port, &tls, &cfg.ClientID,
		&cfg.Username, &cfg.Password, &cfg.QoS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading broker config: %w", err)
	}

	cfg.TLS = tls != 0
	return &cfg, nil
}

// Save upserts the broker configuration row.
func (s *BrokerStore) Save(ctx context.Context, cfg BrokerConfig) error {
	tls := 0
	if cfg.TLS {
		tls = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO broker_config (id, host, port, tls, client_id, username, password, qos, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			host = excluded.host,
			port = excluded.port,
			tls = excluded.tls,
			client_id = excluded.client_id,
			username = excluded.username,
			password = excluded.password,
			qos = excluded.qos,
			updated_at = excluded.updated_at`,
		cfg.Host, cfg.Port, tls, cfg.ClientID, cfg.Username, cfg.Password, cfg.QoS,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving broker config: %w", err)
	}
	return nil
}

// Validate checks standalone broker settings, used when the configuration
// arrives from the API rather than the YAML file.
func (b *BrokerConfig) Validate() error {
	if b.Host == "" {
		return errors.New("broker host is required")
	}
	if b.Port < 1 || b.Port > 65535 {
		return errors.New("broker port must be between 1 and 65535")
	}
	if b.QoS < 0 || b.QoS > 2 {
		return errors.New("broker qos must be 0, 1, or 2")
	}
	return nil
}
