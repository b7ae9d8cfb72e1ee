package domain

import (
	"fmt"
	"net"
)

// CIDR is a wire-friendly net.IPNet: it marshals/unmarshals as its string
// form ("10.0.0.1/24") instead of net.IPNet's zero-value struct encoding.
type CIDR struct {
	net.IPNet
}

// ParseCIDR parses a string such as "10.0.0.1/24" into a CIDR, keeping the
// host bits of the address (unlike net.ParseCIDR, which masks them).
func ParseCIDR(s string) (CIDR, error) {
	ip, network, err := net.ParseCIDR(s)
	if err != nil {
		return CIDR{}, err
	}
	ones, _ := network.Mask.Size()
	return CIDR{IPNet: net.IPNet{IP: ip, Mask: net.CIDRMask(ones, len(network.Mask)*8)}}, nil
}

// String renders the CIDR in its canonical "ip/prefixlen" form.
func (c CIDR) String() string {
	ones, _ := c.Mask.Size()
	return fmt.Sprintf("%s/%d", c.IP.String(), ones)
}

// MarshalText implements encoding.TextMarshaler.
func (c CIDR) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *CIDR) UnmarshalText(text []byte) error {
	parsed, err := ParseCIDR(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// CIDRFromIPNet wraps a *net.IPNet as reported by wgctrl's AllowedIPs.
func CIDRFromIPNet(n net.IPNet) CIDR { return CIDR{IPNet: n} }

// Endpoint is a peer's last-known UDP source, "host:port".
type Endpoint struct {
	Host string
	Port uint16
}

// String renders the endpoint as "host:port".
func (e Endpoint) String() string { return fmt.Sprintf("%s:%d", e.Host, e.Port) }

// MarshalText implements encoding.TextMarshaler.
func (e Endpoint) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Endpoint) UnmarshalText(text []byte) error {
	host, port, err := net.SplitHostPort(string(text))
	if err != nil {
		return err
	}
	var p uint16
	if _, err := fmt.Sscanf(port, "%d", &p); err != nil {
		return fmt.Errorf("invalid endpoint port %q: %w", port, err)
	}
	*e = Endpoint{Host: host, Port: p}
	return nil
}

// PeerState describes one remote WireGuard peer attached to a network.
type PeerState struct {
	AllowedIPs   []CIDR        `json:"allowed_ips"`
	PresharedKey *PresharedKey `json:"preshared_key,omitempty"`
	Endpoint     *Endpoint     `json:"endpoint,omitempty"`
}

// NetworkState is one WireGuard endpoint the gateway hosts, identified by
// its listen port.
type NetworkState struct {
	PrivateKey PrivateKey               `json:"private_key"`
	ListenPort uint16                   `json:"listen_port"`
	MTU        int                      `json:"mtu"`
	Address    []CIDR                   `json:"address"`
	Peers      map[PublicKey]PeerState  `json:"peers"`
	// Proxy maps an external URL ("https://host.example/") to the ordered
	// list of inner endpoints ("ip:port") reachable across the tunnel.
	Proxy map[string][]string `json:"proxy"`
}

// DefaultMTU is used when a NetworkState does not specify one.
const DefaultMTU = 1420

// GatewayConfig is the full desired state: every network the gateway
// should be hosting, keyed by listen port. Identity is the port, not the
// content: the same port appearing in two configs refers to the same
// network.
type GatewayConfig map[uint16]NetworkState

// GatewayConfigPartial is a differential update. A present (non-nil) value
// means upsert; a nil value is an explicit tombstone requesting deletion.
type GatewayConfigPartial map[uint16]*NetworkState

// Merge applies a partial update's upsert/tombstone semantics on top of a
// full config, returning the resulting config. c is not mutated.
func (c GatewayConfig) Merge(diff GatewayConfigPartial) GatewayConfig {
	out := make(GatewayConfig, len(c))
	for port, ns := range c {
		out[port] = ns
	}
	for port, ns := range diff {
		if ns == nil {
			delete(out, port)
			continue
		}
		out[port] = *ns
	}
	return out
}
