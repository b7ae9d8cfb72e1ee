package watchdog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fractalnet.io/gatewayd/internal/broadcast"
	"fractalnet.io/gatewayd/internal/clock"
	"fractalnet.io/gatewayd/internal/domain"
	"fractalnet.io/gatewayd/internal/osprim"
	"fractalnet.io/gatewayd/internal/persist"
)

// fakeWriter is a minimal in-memory persist.Writer double.
type fakeWriter struct {
	networks map[domain.PublicKey]bool
	devices  map[domain.PublicKey]bool
	rows     []persist.TrafficRow
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{networks: map[domain.PublicKey]bool{}, devices: map[domain.PublicKey]bool{}}
}

func (f *fakeWriter) EnsureNetwork(ctx context.Context, pub domain.PublicKey) error {
	f.networks[pub] = true
	return nil
}

func (f *fakeWriter) EnsureDevice(ctx context.Context, pub domain.PublicKey) error {
	f.devices[pub] = true
	return nil
}

func (f *fakeWriter) WriteTraffic(ctx context.Context, rows []persist.TrafficRow) error {
	f.rows = append(f.rows, rows...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

var _ persist.Writer = (*fakeWriter)(nil)

func mustKey(t *testing.T, b byte) domain.PublicKey {
	t.Helper()
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = b
	}
	k, err := domain.NewPublicKey(raw)
	require.NoError(t, err)
	return k
}

func setup(t *testing.T) (*Watchdog, *osprim.Fake, *clock.MockClock, *broadcast.Subscription[domain.TrafficInfo], *broadcast.Subscription[domain.Event]) {
	t.Helper()
	fake := osprim.NewFake()
	mc := clock.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	trafficHub := broadcast.NewHub[domain.TrafficInfo]()
	eventHub := broadcast.NewHub[domain.Event]()
	w := New(fake, trafficHub, eventHub, WithClock(mc))

	require.NoError(t, fake.AddNamespace(context.Background(), "network-51820"))

	return w, fake, mc, trafficHub.Subscribe(4), eventHub.Subscribe(4)
}

func TestWatchdogEmitsConnectedOnFirstHandshake(t *testing.T) {
	w, fake, mc, _, events := setup(t)
	ctx := context.Background()

	netKey := mustKey(t, 1)
	peerKey := mustKey(t, 2)
	handshake := mc.Now()

	fake.SetStats("network-51820", "wg51820", domain.NetworkStats{
		PublicKey:  netKey,
		ListenPort: 51820,
		Peers: []domain.PeerStats{{
			PublicKey:       peerKey,
			LatestHandshake: &handshake,
			Endpoint:        &domain.Endpoint{Host: "203.0.113.5", Port: 4500},
			TransferRx:      100,
			TransferTx:      50,
		}},
	})

	require.NoError(t, w.Tick(ctx))

	select {
	case ev := <-events.C:
		assert.Equal(t, domain.EventPeerConnected, ev.Kind)
		assert.Equal(t, peerKey, ev.Peer)
	default:
		t.Fatal("expected a peer_connected event")
	}
}

func TestWatchdogEmitsTrafficDeltaOnSecondTick(t *testing.T) {
	w, fake, mc, traffic, _ := setup(t)
	ctx := context.Background()

	netKey := mustKey(t, 1)
	peerKey := mustKey(t, 2)
	handshake := mc.Now()

	fake.SetStats("network-51820", "wg51820", domain.NetworkStats{
		PublicKey:  netKey,
		ListenPort: 51820,
		Peers: []domain.PeerStats{{
			PublicKey:       peerKey,
			LatestHandshake: &handshake,
			Endpoint:        &domain.Endpoint{Host: "203.0.113.5", Port: 4500},
			TransferRx:      100,
			TransferTx:      50,
		}},
	})
	require.NoError(t, w.Tick(ctx))
	<-traffic.C // discard first (zero-delta) snapshot

	mc.Advance(10 * time.Second)
	fake.SetStats("network-51820", "wg51820", domain.NetworkStats{
		PublicKey:  netKey,
		ListenPort: 51820,
		Peers: []domain.PeerStats{{
			PublicKey:       peerKey,
			LatestHandshake: &handshake,
			Endpoint:        &domain.Endpoint{Host: "203.0.113.5", Port: 4500},
			TransferRx:      2000,
			TransferTx:      700,
		}},
	})
	require.NoError(t, w.Tick(ctx))

	info := <-traffic.C
	netStats, ok := info.Networks[netKey.String()]
	require.True(t, ok)
	assert.Equal(t, uint64(1900), netStats.Traffic.Rx)
	assert.Equal(t, uint64(650), netStats.Traffic.Tx)
}

// TestWatchdogSuppressesTrafficBelowThreshold covers P8: a delta under
// TrafficMinimum produces no traffic record, even though it is a genuine,
// non-negative delta.
func TestWatchdogSuppressesTrafficBelowThreshold(t *testing.T) {
	w, fake, mc, traffic, _ := setup(t)
	ctx := context.Background()

	netKey := mustKey(t, 1)
	peerKey := mustKey(t, 2)
	handshake := mc.Now()

	fake.SetStats("network-51820", "wg51820", domain.NetworkStats{
		PublicKey:  netKey,
		ListenPort: 51820,
		Peers: []domain.PeerStats{{
			PublicKey:       peerKey,
			LatestHandshake: &handshake,
			Endpoint:        &domain.Endpoint{Host: "203.0.113.5", Port: 4500},
			TransferRx:      100,
			TransferTx:      50,
		}},
	})
	require.NoError(t, w.Tick(ctx))
	<-traffic.C // discard first (zero-delta) snapshot

	mc.Advance(10 * time.Second)
	fake.SetStats("network-51820", "wg51820", domain.NetworkStats{
		PublicKey:  netKey,
		ListenPort: 51820,
		Peers: []domain.PeerStats{{
			PublicKey:       peerKey,
			LatestHandshake: &handshake,
			Endpoint:        &domain.Endpoint{Host: "203.0.113.5", Port: 4500},
			TransferRx:      300, // delta 200 + 100 = 300 total, well under 1024
			TransferTx:      150,
		}},
	})
	require.NoError(t, w.Tick(ctx))

	info := <-traffic.C
	_, ok := info.Networks[netKey.String()]
	assert.False(t, ok, "a sub-threshold delta must not appear in the published TrafficInfo")
}

func TestWatchdogWritesTrafficRecordsWhenWriterAttached(t *testing.T) {
	fake := osprim.NewFake()
	mc := clock.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	trafficHub := broadcast.NewHub[domain.TrafficInfo]()
	eventHub := broadcast.NewHub[domain.Event]()
	writer := newFakeWriter()
	w := New(fake, trafficHub, eventHub, WithClock(mc), WithWriter(writer))

	ctx := context.Background()
	require.NoError(t, fake.AddNamespace(ctx, "network-51820"))

	netKey := mustKey(t, 1)
	peerKey := mustKey(t, 2)
	handshake := mc.Now()

	fake.SetStats("network-51820", "wg51820", domain.NetworkStats{
		PublicKey:  netKey,
		ListenPort: 51820,
		Peers: []domain.PeerStats{{
			PublicKey:       peerKey,
			LatestHandshake: &handshake,
			Endpoint:        &domain.Endpoint{Host: "203.0.113.5", Port: 4500},
			TransferRx:      100,
			TransferTx:      50,
		}},
	})
	require.NoError(t, w.Tick(ctx))

	mc.Advance(10 * time.Second)
	fake.SetStats("network-51820", "wg51820", domain.NetworkStats{
		PublicKey:  netKey,
		ListenPort: 51820,
		Peers: []domain.PeerStats{{
			PublicKey:       peerKey,
			LatestHandshake: &handshake,
			Endpoint:        &domain.Endpoint{Host: "203.0.113.5", Port: 4500},
			TransferRx:      2000,
			TransferTx:      700,
		}},
	})
	require.NoError(t, w.Tick(ctx))

	require.Len(t, writer.rows, 1)
	assert.Equal(t, uint64(1900), writer.rows[0].Rx)
	assert.True(t, writer.networks[netKey])
	assert.True(t, writer.devices[peerKey])
}

func TestWatchdogEmitsDisconnectedWhenPeerDisappears(t *testing.T) {
	w, fake, mc, _, events := setup(t)
	ctx := context.Background()

	netKey := mustKey(t, 1)
	peerKey := mustKey(t, 2)
	handshake := mc.Now()

	fake.SetStats("network-51820", "wg51820", domain.NetworkStats{
		PublicKey:  netKey,
		ListenPort: 51820,
		Peers: []domain.PeerStats{{
			PublicKey:       peerKey,
			LatestHandshake: &handshake,
			Endpoint:        &domain.Endpoint{Host: "203.0.113.5", Port: 4500},
		}},
	})
	require.NoError(t, w.Tick(ctx))
	<-events.C // connected

	fake.SetStats("network-51820", "wg51820", domain.NetworkStats{
		PublicKey:  netKey,
		ListenPort: 51820,
		Peers:      nil,
	})
	require.NoError(t, w.Tick(ctx))

	ev := <-events.C
	assert.Equal(t, domain.EventPeerDisconnected, ev.Kind)
	assert.Equal(t, peerKey, ev.Peer)
}

func TestWatchdogTreatsStaleHandshakeAsDisconnected(t *testing.T) {
	w, fake, mc, _, events := setup(t)
	ctx := context.Background()

	netKey := mustKey(t, 1)
	peerKey := mustKey(t, 2)
	handshake := mc.Now()

	fake.SetStats("network-51820", "wg51820", domain.NetworkStats{
		PublicKey:  netKey,
		ListenPort: 51820,
		Peers: []domain.PeerStats{{
			PublicKey:       peerKey,
			LatestHandshake: &handshake,
			Endpoint:        &domain.Endpoint{Host: "203.0.113.5", Port: 4500},
		}},
	})
	require.NoError(t, w.Tick(ctx))
	<-events.C // connected

	mc.Advance(HandshakeTimeout + time.Second)
	fake.SetStats("network-51820", "wg51820", domain.NetworkStats{
		PublicKey:  netKey,
		ListenPort: 51820,
		Peers: []domain.PeerStats{{
			PublicKey:       peerKey,
			LatestHandshake: &handshake, // kernel still reports the old timestamp
			Endpoint:        &domain.Endpoint{Host: "203.0.113.5", Port: 4500},
		}},
	})
	require.NoError(t, w.Tick(ctx))

	ev := <-events.C
	assert.Equal(t, domain.EventPeerDisconnected, ev.Kind)
}
