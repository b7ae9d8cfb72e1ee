// Package sqlite is an example persist.Writer backed by
// modernc.org/sqlite: a pure-Go driver requiring no cgo, matching the
// teacher's stated reason for preferring it over mattn/go-sqlite3 when
// cross-compilation matters.
//
// Schema: gateway_network and gateway_device are lookup tables keyed by
// public key; traffic rows reference them by integer id. No retention
// policy or garbage collector is implemented — that is explicitly out of
// scope.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"fractalnet.io/gatewayd/internal/domain"
	"fractalnet.io/gatewayd/internal/persist"
)

// Store is a modernc.org/sqlite-backed persist.Writer.
type Store struct {
	db *sql.DB
}

var _ persist.Writer = (*Store)(nil)

// Open opens (creating if necessary) a SQLite database at path and
// ensures its schema exists. path may be ":memory:" for tests.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn += "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening traffic database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to traffic database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing traffic schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
		CREATE TABLE IF NOT EXISTS gateway_network (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			public_key TEXT NOT NULL UNIQUE
		);
		CREATE TABLE IF NOT EXISTS gateway_device (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			public_key TEXT NOT NULL UNIQUE
		);
		CREATE TABLE IF NOT EXISTS traffic (
			network_id INTEGER NOT NULL REFERENCES gateway_network(id),
			device_id  INTEGER NOT NULL REFERENCES gateway_device(id),
			time       INTEGER NOT NULL,
			rx         INTEGER NOT NULL,
			rx_raw     INTEGER NOT NULL,
			tx         INTEGER NOT NULL,
			tx_raw     INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_traffic_time ON traffic(time);
	`
	_, err := s.db.Exec(schema)
	return err
}

// EnsureNetwork upserts a network's lookup row, a no-op if it already
// exists.
func (s *Store) EnsureNetwork(ctx context.Context, pub domain.PublicKey) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO gateway_network (public_key) VALUES (?) ON CONFLICT(public_key) DO NOTHING`,
		pub.String())
	return err
}

// EnsureDevice upserts a device's lookup row.
func (s *Store) EnsureDevice(ctx context.Context, pub domain.PublicKey) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO gateway_device (public_key) VALUES (?) ON CONFLICT(public_key) DO NOTHING`,
		pub.String())
	return err
}

// WriteTraffic inserts one tick's traffic rows in a single transaction,
// ensuring the lookup rows exist first.
func (s *Store) WriteTraffic(ctx context.Context, rows []persist.TrafficRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning traffic write: %w", err)
	}
	defer tx.Rollback()

	for _, row := range rows {
		networkID, err := upsertAndFetch(ctx, tx, "gateway_network", row.NetworkPublicKey.String())
		if err != nil {
			return err
		}
		deviceID, err := upsertAndFetch(ctx, tx, "gateway_device", row.DevicePublicKey.String())
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO traffic (network_id, device_id, time, rx, rx_raw, tx, tx_raw) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			networkID, deviceID, row.TimeUnix, row.Rx, row.RxRaw, row.Tx, row.TxRaw,
		); err != nil {
			return fmt.Errorf("inserting traffic row: %w", err)
		}
	}

	return tx.Commit()
}

func upsertAndFetch(ctx context.Context, tx *sql.Tx, table, publicKey string) (int64, error) {
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (public_key) VALUES (?) ON CONFLICT(public_key) DO NOTHING`, table),
		publicKey,
	); err != nil {
		return 0, fmt.Errorf("upserting %s: %w", table, err)
	}

	var id int64
	if err := tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE public_key = ?`, table), publicKey,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("fetching %s id: %w", table, err)
	}
	return id, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }
