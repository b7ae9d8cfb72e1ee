// Package osprim is the OS primitives layer: a stateless adapter over the
// host's network-namespace, link, address, bridge, WireGuard, firewall,
// and reverse-proxy operations. Every operation is a single shell-out or
// syscall sequence returning a typed result; none are retried here.
//
// A namespace parameter of "" means the root (default) namespace. All
// operations are safe to call concurrently except FirewallSave/
// FirewallRestore, which the caller must serialize externally (the
// reconciler does this with its firewall mutex).
package osprim

import (
	"context"

	"fractalnet.io/gatewayd/internal/domain"
)

// Namespace describes one network namespace visible on the host.
type Namespace struct {
	Name string
}

// Link describes one network interface as reported by the kernel.
type Link struct {
	IfIndex   int
	IfName    string
	MTU       int
	OperState string
}

// Interface is the full OS primitives surface named in §4.1. A concrete
// implementation (Linux, backed by netlink/netns/wgctrl/ethtool/nft) and a
// fake (in-memory, for reconciler/watchdog tests) both satisfy it.
type Interface interface {
	// Namespace
	ListNamespaces(ctx context.Context) ([]Namespace, error)
	NamespaceExists(ctx context.Context, name string) (bool, error)
	AddNamespace(ctx context.Context, name string) error
	DeleteNamespace(ctx context.Context, name string) error
	WriteNamespaceFile(ctx context.Context, ns, path string, contents []byte) error

	// Bridge
	BridgeExists(ctx context.Context, ns, name string) (bool, error)
	AddBridge(ctx context.Context, ns, name string) error

	// Link
	LinkShow(ctx context.Context, ns, name string) (Link, error)
	LinkUp(ctx context.Context, ns, name string) error
	LinkSetMaster(ctx context.Context, ns, name, master string) error
	LinkGetMaster(ctx context.Context, ns, name string) (string, error)
	LinkSetMTU(ctx context.Context, ns, name string, mtu int) error

	// Address
	AddrList(ctx context.Context, ns, name string) ([]string, error)
	AddrAdd(ctx context.Context, ns, name, cidr string) error

	// veth
	VethAdd(ctx context.Context, ns, outer, inner string) error
	VethExists(ctx context.Context, ns, inner string) (bool, error)

	// WireGuard
	WireguardCreate(ctx context.Context, ns, name string) error
	WireguardExists(ctx context.Context, ns, name string) (bool, error)
	WireguardSyncConf(ctx context.Context, ns, name string) error
	WireguardStats(ctx context.Context, ns, name string) (domain.NetworkStats, error)

	// Firewall -- caller must serialize Save/Restore externally.
	FirewallSave(ctx context.Context, ns string) (string, error)
	FirewallRestore(ctx context.Context, ns string, text string) error

	// Reverse proxy
	WriteProxyConfig(ctx context.Context, contents []byte) error
	ProxyReload(ctx context.Context) error
}
