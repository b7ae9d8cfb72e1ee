package domain

import "time"

// PeerStats is one peer's counters and session metadata as reported by the
// kernel, sampled by the watchdog.
type PeerStats struct {
	PublicKey           PublicKey
	PresharedKey        *PresharedKey
	Endpoint            *Endpoint
	AllowedIPs          []CIDR
	LatestHandshake     *time.Time
	TransferRx          uint64
	TransferTx          uint64
	PersistentKeepalive *time.Duration
}

// NetworkStats is one network's full WireGuard device snapshot as reported
// by the kernel.
type NetworkStats struct {
	PrivateKey PrivateKey
	PublicKey  PublicKey
	ListenPort uint16
	FWMark     *int
	Peers      []PeerStats
}
