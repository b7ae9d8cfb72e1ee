package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

func TestTrafficAccumulatorBuild(t *testing.T) {
	netKey, err := wgtypes.GeneratePrivateKey()
	require.NoError(t, err)
	devKey, err := wgtypes.GeneratePrivateKey()
	require.NoError(t, err)

	acc := NewTrafficAccumulator(1000)
	acc.Add(TrafficRecord{
		NetworkPublicKey: PublicKey(netKey.PublicKey()),
		DevicePublicKey:  PublicKey(devKey.PublicKey()),
		TimeUnix:         1001,
		RxDelta:          2000,
		RxRaw:            2000,
		TxDelta:          3000,
		TxRaw:            3000,
	})

	info := acc.Build(1002)
	assert.Equal(t, int64(1000), info.StartTime)
	assert.Equal(t, int64(1002), info.StopTime)
	assert.Equal(t, uint64(2000), info.Traffic.Rx)
	assert.Equal(t, uint64(3000), info.Traffic.Tx)

	netTraffic, ok := info.Networks[PublicKey(netKey.PublicKey()).String()]
	require.True(t, ok)
	assert.Equal(t, uint64(2000), netTraffic.Traffic.Rx)

	devTraffic, ok := netTraffic.Devices[PublicKey(devKey.PublicKey()).String()]
	require.True(t, ok)
	assert.Equal(t, uint64(3000), devTraffic.Traffic.Tx)
	assert.Contains(t, devTraffic.Times, "1001")
}

func TestTrafficAccumulatorRecordsPreservesInsertionOrder(t *testing.T) {
	acc := NewTrafficAccumulator(0)
	acc.Add(TrafficRecord{TimeUnix: 1})
	acc.Add(TrafficRecord{TimeUnix: 2})
	records := acc.Records()
	require.Len(t, records, 2)
	assert.Equal(t, int64(1), records[0].TimeUnix)
	assert.Equal(t, int64(2), records[1].TimeUnix)
}
