package domain

import (
	"fmt"
	"net"
	"strings"
)

// NamespacePrefix marks network namespaces owned by this gateway; anything
// else on the host is left alone by the reconciler.
const NamespacePrefix = "network-"

// BridgeName is the single host-wide bridge every network's veth pair
// attaches to.
const BridgeName = "ensbr0"

// BridgeAddress is the bridge's own fixed address.
const BridgeAddress = "172.99.0.1/16"

// bridgeBase is the base of the per-network /16 address space; a network's
// veth inner address is this base plus its listen port.
var bridgeBase = net.IPv4(172, 99, 0, 0).To4()

// NetnsName derives a network's namespace name from its listen port. Names
// produced here are the only ones the reconciler will ever create or
// delete; any other "network-*" namespace found on the host that does not
// parse back to a managed port is left untouched.
func NetnsName(port uint16) string {
	return fmt.Sprintf("%s%d", NamespacePrefix, port)
}

// PortFromNetnsName is the inverse of NetnsName. ok is false if name does
// not have the reserved prefix or the suffix is not a valid port.
func PortFromNetnsName(name string) (port uint16, ok bool) {
	suffix, found := strings.CutPrefix(name, NamespacePrefix)
	if !found {
		return 0, false
	}
	var p int
	if _, err := fmt.Sscanf(suffix, "%d", &p); err != nil || p < 0 || p > 0xFFFF {
		return 0, false
	}
	// Reject anything Sscanf accepted as a leading numeric prefix of a
	// longer, non-numeric suffix (e.g. "51820x").
	if fmt.Sprintf("%d", p) != suffix {
		return 0, false
	}
	return uint16(p), true
}

// WireguardIfName derives the WireGuard interface name inside a network's
// namespace from its listen port.
func WireguardIfName(port uint16) string {
	return fmt.Sprintf("wg%d", port)
}

// VethName derives the veth pair name (identical on both the outer,
// root-namespace side and the inner, network-namespace side) from the
// listen port.
func VethName(port uint16) string {
	return fmt.Sprintf("veth%d", port)
}

// VethIPv4Net derives the inner veth address: the fixed /16 bridge base
// plus the listen port, keeping the /16 prefix length.
func VethIPv4Net(port uint16) CIDR {
	ip := net.IPv4(bridgeBase[0], bridgeBase[1], byte(port>>8), byte(port))
	return CIDR{IPNet: net.IPNet{IP: ip, Mask: net.CIDRMask(16, 32)}}
}
