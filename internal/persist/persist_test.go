package persist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"fractalnet.io/gatewayd/internal/domain"
)

func mustKey(t *testing.T) domain.PublicKey {
	t.Helper()
	k, err := wgtypes.GeneratePrivateKey()
	require.NoError(t, err)
	return domain.PublicKey(k.PublicKey())
}

func TestRowsFromRecordsCarriesRawCountersThrough(t *testing.T) {
	net := mustKey(t)
	dev := mustKey(t)

	records := []domain.TrafficRecord{
		{NetworkPublicKey: net, DevicePublicKey: dev, TimeUnix: 100, RxDelta: 50, RxRaw: 5000, TxDelta: 20, TxRaw: 2000},
	}

	rows := RowsFromRecords(records)
	require.Len(t, rows, 1)
	assert.Equal(t, net, rows[0].NetworkPublicKey)
	assert.Equal(t, dev, rows[0].DevicePublicKey)
	assert.Equal(t, uint64(50), rows[0].Rx)
	assert.Equal(t, uint64(5000), rows[0].RxRaw)
	assert.Equal(t, uint64(20), rows[0].Tx)
	assert.Equal(t, uint64(2000), rows[0].TxRaw)
}
