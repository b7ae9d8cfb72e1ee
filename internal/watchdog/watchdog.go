// Package watchdog periodically samples every network's WireGuard counters,
// turning the raw samples into traffic deltas and peer connect/disconnect/
// endpoint-change events.
package watchdog

import (
	"context"
	"sync"
	"time"

	"fractalnet.io/gatewayd/internal/broadcast"
	"fractalnet.io/gatewayd/internal/clock"
	"fractalnet.io/gatewayd/internal/domain"
	"fractalnet.io/gatewayd/internal/logging"
	"fractalnet.io/gatewayd/internal/metrics"
	"fractalnet.io/gatewayd/internal/osprim"
	"fractalnet.io/gatewayd/internal/persist"
)

// HandshakeTimeout is how long since the last handshake before a peer is
// treated as having no handshake at all (i.e. disconnected), even if the
// kernel still reports a stale timestamp.
const HandshakeTimeout = 3 * time.Minute

// DefaultInterval is used when no interval is configured.
const DefaultInterval = 10 * time.Second

// TrafficMinimum is the smallest combined rx+tx delta worth recording; a
// tick that moved fewer bytes than this produces no traffic record (P8).
const TrafficMinimum = 1024

// Watchdog owns the per-network peer cache and drives one sampling pass per
// tick. It is not safe for concurrent Tick calls; Run serializes them on a
// single goroutine, matching the teacher's Collector.Start pattern.
type Watchdog struct {
	os       osprim.Interface
	clock    clock.Clock
	traffic  *broadcast.Hub[domain.TrafficInfo]
	events   *broadcast.Hub[domain.Event]
	interval time.Duration
	log      *logging.Logger
	writer   persist.Writer

	mu    sync.Mutex
	cache map[uint16]map[domain.PublicKey]cachedPeer

	stopCh  chan struct{}
	running bool
}

type cachedPeer domain.PeerStats

// Option configures a Watchdog.
type Option func(*Watchdog)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(w *Watchdog) { w.interval = d }
}

// WithClock overrides the real clock, used in tests to control handshake
// timeout evaluation deterministically.
func WithClock(c clock.Clock) Option {
	return func(w *Watchdog) { w.clock = c }
}

// WithWriter attaches an optional persistence collaborator: every tick's
// traffic records are written to it in addition to being published on the
// traffic hub. A nil writer (the default) disables persistence entirely.
func WithWriter(w2 persist.Writer) Option {
	return func(w *Watchdog) { w.writer = w2 }
}

// New constructs a Watchdog sampling os and publishing to traffic/events.
func New(os osprim.Interface, traffic *broadcast.Hub[domain.TrafficInfo], events *broadcast.Hub[domain.Event], opts ...Option) *Watchdog {
	w := &Watchdog{
		os:       os,
		clock:    &clock.RealClock{},
		traffic:  traffic,
		events:   events,
		interval: DefaultInterval,
		log:      logging.WithComponent("watchdog"),
		cache:    make(map[uint16]map[domain.PublicKey]cachedPeer),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks, ticking every interval until ctx is cancelled or Stop is
// called.
func (w *Watchdog) Run(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("starting watchdog", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil {
				w.log.Error("watchdog tick failed", "error", err)
			}
		}
	}
}

// Stop ends a running Run loop.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.running = false
	close(w.stopCh)
}

// Tick runs exactly one sampling pass over every managed network namespace,
// publishing at most one TrafficInfo and zero or more Events.
func (w *Watchdog) Tick(ctx context.Context) error {
	namespaces, err := w.os.ListNamespaces(ctx)
	if err != nil {
		metrics.Get().WatchdogTickErrors.WithLabelValues("list_namespaces").Inc()
		return err
	}

	acc := domain.NewTrafficAccumulator(0)

	for _, ns := range namespaces {
		port, ok := domain.PortFromNetnsName(ns.Name)
		if !ok {
			continue
		}
		if err := w.sampleNetwork(ctx, ns.Name, port, acc); err != nil {
			w.log.Error("sampling network failed", "namespace", ns.Name, "error", err)
			metrics.Get().WatchdogTickErrors.WithLabelValues("sample_network").Inc()
		}
	}

	w.traffic.Publish(acc.Build(w.clock.Now().Unix()))
	metrics.Get().WatchdogTicks.Inc()

	if w.writer != nil {
		if err := w.persistRecords(ctx, acc.Records()); err != nil {
			w.log.Error("writing traffic records failed", "error", err)
			metrics.Get().WatchdogTickErrors.WithLabelValues("persist").Inc()
		}
	}

	return nil
}

// persistRecords upserts each record's network/device lookup rows and
// writes the tick's rows in one batch. A persistence failure is logged and
// does not fail the tick: telemetry already went out on the broadcast
// hubs, and the writer is an optional collaborator.
func (w *Watchdog) persistRecords(ctx context.Context, records []domain.TrafficRecord) error {
	if len(records) == 0 {
		return nil
	}

	seenNetworks := make(map[domain.PublicKey]struct{})
	seenDevices := make(map[domain.PublicKey]struct{})
	for _, rec := range records {
		if _, ok := seenNetworks[rec.NetworkPublicKey]; !ok {
			seenNetworks[rec.NetworkPublicKey] = struct{}{}
			if err := w.writer.EnsureNetwork(ctx, rec.NetworkPublicKey); err != nil {
				return err
			}
		}
		if _, ok := seenDevices[rec.DevicePublicKey]; !ok {
			seenDevices[rec.DevicePublicKey] = struct{}{}
			if err := w.writer.EnsureDevice(ctx, rec.DevicePublicKey); err != nil {
				return err
			}
		}
	}

	return w.writer.WriteTraffic(ctx, persist.RowsFromRecords(records))
}

func (w *Watchdog) sampleNetwork(ctx context.Context, ns string, port uint16, acc *domain.TrafficAccumulator) error {
	ifName := domain.WireguardIfName(port)
	stats, err := w.os.WireguardStats(ctx, ns, ifName)
	if err != nil {
		return err
	}

	w.mu.Lock()
	entry, ok := w.cache[stats.ListenPort]
	if !ok {
		entry = make(map[domain.PublicKey]cachedPeer)
		w.cache[stats.ListenPort] = entry
	}
	w.mu.Unlock()

	seen := make(map[domain.PublicKey]struct{}, len(stats.Peers))
	for _, peer := range stats.Peers {
		seen[peer.PublicKey] = struct{}{}
		w.samplePeer(stats, peer, entry, acc)
	}

	for pub := range entry {
		if _, ok := seen[pub]; ok {
			continue
		}
		delete(entry, pub)
		w.events.Publish(domain.PeerDisconnected(stats.PublicKey, pub))
	}

	return nil
}

// samplePeer reconciles one peer's raw sample against the cache, emitting
// traffic deltas and connect/disconnect/endpoint-change events. Grounded on
// the original watchdog's peer loop: handshake normalization, counter
// invalidation, endpoint-change and handshake-transition detection all run
// unconditionally; only the traffic delta is skipped when counters look
// like they went backwards (a restarted WireGuard device resetting its
// counters).
func (w *Watchdog) samplePeer(stats domain.NetworkStats, raw domain.PeerStats, cache map[domain.PublicKey]cachedPeer, acc *domain.TrafficAccumulator) {
	peer := raw
	if peer.LatestHandshake != nil && w.clock.Since(*peer.LatestHandshake) > HandshakeTimeout {
		peer.LatestHandshake = nil
	}

	previous, hadPrevious := cache[peer.PublicKey]

	if hadPrevious {
		if previous.TransferRx > peer.TransferRx || previous.TransferTx > peer.TransferTx {
			w.log.Warn("counters went backwards, skipping traffic delta",
				"network", stats.PublicKey, "peer", peer.PublicKey)
		} else {
			rxDelta := peer.TransferRx - previous.TransferRx
			txDelta := peer.TransferTx - previous.TransferTx
			if rxDelta+txDelta >= TrafficMinimum {
				acc.Add(domain.TrafficRecord{
					NetworkPublicKey: stats.PublicKey,
					DevicePublicKey:  peer.PublicKey,
					TimeUnix:         w.clock.Now().Unix(),
					RxDelta:          rxDelta,
					RxRaw:            peer.TransferRx,
					TxDelta:          txDelta,
					TxRaw:            peer.TransferTx,
				})
			}
		}

		endpointChanged := !endpointsEqual(previous.Endpoint, peer.Endpoint)
		if endpointChanged && peer.Endpoint != nil {
			w.events.Publish(domain.PeerEndpointChanged(stats.PublicKey, peer.PublicKey, *peer.Endpoint))
		}

		switch {
		case previous.LatestHandshake != nil && peer.LatestHandshake == nil:
			w.events.Publish(domain.PeerDisconnected(stats.PublicKey, peer.PublicKey))
		case previous.LatestHandshake == nil && peer.LatestHandshake != nil:
			if peer.Endpoint != nil {
				w.events.Publish(domain.PeerConnected(stats.PublicKey, peer.PublicKey, *peer.Endpoint))
			}
		}
	} else if peer.LatestHandshake != nil && peer.Endpoint != nil {
		w.events.Publish(domain.PeerConnected(stats.PublicKey, peer.PublicKey, *peer.Endpoint))
	}

	cache[peer.PublicKey] = cachedPeer(peer)
}

func endpointsEqual(a, b *domain.Endpoint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
