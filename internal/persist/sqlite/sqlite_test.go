package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"fractalnet.io/gatewayd/internal/domain"
	"fractalnet.io/gatewayd/internal/persist"
)

func mustPublicKey(t *testing.T) domain.PublicKey {
	t.Helper()
	k, err := wgtypes.GeneratePrivateKey()
	require.NoError(t, err)
	return domain.PublicKey(k.PublicKey())
}

func TestWriteTrafficInsertsRowsAndLookups(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	net := mustPublicKey(t)
	dev := mustPublicKey(t)

	rows := []persist.TrafficRow{
		{NetworkPublicKey: net, DevicePublicKey: dev, TimeUnix: 1000, Rx: 10, RxRaw: 10, Tx: 5, TxRaw: 5},
		{NetworkPublicKey: net, DevicePublicKey: dev, TimeUnix: 1010, Rx: 20, RxRaw: 30, Tx: 8, TxRaw: 13},
	}
	require.NoError(t, store.WriteTraffic(ctx, rows))

	var count int
	require.NoError(t, store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM traffic`).Scan(&count))
	assert.Equal(t, 2, count)

	var networkRows int
	require.NoError(t, store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM gateway_network`).Scan(&networkRows))
	assert.Equal(t, 1, networkRows, "writing two rows for the same network must not duplicate the lookup entry")
}

func TestWriteTrafficEmptyIsNoop(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.WriteTraffic(context.Background(), nil))
}

func TestEnsureNetworkAndDeviceAreIdempotent(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	net := mustPublicKey(t)

	require.NoError(t, store.EnsureNetwork(ctx, net))
	require.NoError(t, store.EnsureNetwork(ctx, net))

	var count int
	require.NoError(t, store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM gateway_network`).Scan(&count))
	assert.Equal(t, 1, count)
}
