//go:build linux

package osprim

import (
	"golang.zx2c4.com/wireguard/wgctrl"
)

// Linux implements Interface against the real kernel: vishvananda/netlink
// and vishvananda/netns for namespaces/links/addresses/veth/bridges,
// golang.zx2c4.com/wireguard/wgctrl for WireGuard device configuration,
// and the nft(8) CLI for firewall save/restore, matching the teacher's own
// preference for shelling to nft over the typed google/nftables library.
type Linux struct {
	// newWireguardClient opens the wgctrl.Client used by each WireGuard
	// operation; a fresh client is opened per call, inside the target
	// namespace. NewLinux sets it to wgctrl.New, which wgClient also falls
	// back to when it is nil.
	newWireguardClient func() (*wgctrl.Client, error)
}

// NewLinux constructs the real OS primitives adapter.
func NewLinux() *Linux {
	return &Linux{newWireguardClient: wgctrl.New}
}

var _ Interface = (*Linux)(nil)

// rootNamespaceSentinel is used internally to distinguish "no namespace
// requested" (root namespace) from a zero value that might accidentally
// match a real namespace name.
const rootNamespaceSentinel = ""

func isRoot(ns string) bool { return ns == rootNamespaceSentinel }
