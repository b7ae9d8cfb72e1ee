// Package persist defines the optional collaborator that durably records
// watchdog traffic observations: a row schema and a Writer interface the
// core emits to. internal/persist/sqlite provides one concrete adapter;
// retention and garbage collection are deliberately not implemented here.
package persist

import (
	"context"

	"fractalnet.io/gatewayd/internal/domain"
)

// TrafficRow is one traffic observation in the persistence write contract:
// network and device identified by their public keys, one delta/raw pair
// per direction.
type TrafficRow struct {
	NetworkPublicKey domain.PublicKey
	DevicePublicKey  domain.PublicKey
	TimeUnix         int64
	Rx               uint64
	RxRaw            uint64
	Tx               uint64
	TxRaw            uint64
}

// RowsFromRecords converts a tick's flat TrafficRecord list into the
// persistence row shape, carrying raw counters through unchanged.
func RowsFromRecords(records []domain.TrafficRecord) []TrafficRow {
	rows := make([]TrafficRow, len(records))
	for i, rec := range records {
		rows[i] = TrafficRow{
			NetworkPublicKey: rec.NetworkPublicKey,
			DevicePublicKey:  rec.DevicePublicKey,
			TimeUnix:         rec.TimeUnix,
			Rx:               rec.RxDelta,
			RxRaw:            rec.RxRaw,
			Tx:               rec.TxDelta,
			TxRaw:            rec.TxRaw,
		}
	}
	return rows
}

// Writer is the write contract the watchdog (or any other collaborator)
// emits traffic observations to. EnsureNetwork/EnsureDevice upsert the
// lookup tables a Writer's traffic rows reference; WriteTraffic appends
// rows for one tick.
type Writer interface {
	EnsureNetwork(ctx context.Context, pub domain.PublicKey) error
	EnsureDevice(ctx context.Context, pub domain.PublicKey) error
	WriteTraffic(ctx context.Context, rows []TrafficRow) error
	Close() error
}
