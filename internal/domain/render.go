package domain

import (
	"fmt"
	"net"
	"regexp"
	"sort"
	"strings"
)

// PersistentKeepaliveSeconds is fixed for every rendered peer.
const PersistentKeepaliveSeconds = 25

// firstProxyExternalPort is the base external port assigned to the first
// proxy mapping of a network; subsequent mappings get successive ports.
const firstProxyExternalPort = 2000

// sortedPeerKeys returns a network's peer public keys in a stable order,
// so rendered configuration text and iteration over peers is deterministic
// regardless of Go's randomized map iteration order.
func sortedPeerKeys(peers map[PublicKey]PeerState) []PublicKey {
	keys := make([]PublicKey, 0, len(peers))
	for k := range peers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}

// sortedProxyURLs returns a network's proxy URLs in a stable, sorted
// order.
func sortedProxyURLs(proxy map[string][]string) []string {
	urls := make([]string, 0, len(proxy))
	for u := range proxy {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// ToWireGuardConfig renders the canonical wg-quick-style text for a
// network: one [Interface] section followed by one [Peer] section per
// peer, in peer-key sort order, so the output is deterministic across
// calls with the same NetworkState.
func ToWireGuardConfig(ns NetworkState) string {
	var b strings.Builder

	fmt.Fprintf(&b, "[Interface]\n")
	fmt.Fprintf(&b, "ListenPort = %d\n", ns.ListenPort)
	fmt.Fprintf(&b, "PrivateKey = %s\n", wireEncode(ns.PrivateKey))

	for _, pub := range sortedPeerKeys(ns.Peers) {
		peer := ns.Peers[pub]
		b.WriteString("\n[Peer]\n")
		fmt.Fprintf(&b, "PublicKey = %s\n", pub.String())
		fmt.Fprintf(&b, "AllowedIPs = %s\n", joinCIDRs(peer.AllowedIPs))
		if peer.PresharedKey != nil {
			fmt.Fprintf(&b, "PresharedKey = %s\n", wireEncode(*peer.PresharedKey))
		}
		if peer.Endpoint != nil {
			fmt.Fprintf(&b, "Endpoint = %s\n", peer.Endpoint.String())
		}
		fmt.Fprintf(&b, "PersistentKeepalive = %d\n", PersistentKeepaliveSeconds)
	}

	return b.String()
}

// joinCIDRs renders each block truncated to its network address (host bits
// cleared) and joins them with ", ".
func joinCIDRs(cidrs []CIDR) string {
	parts := make([]string, len(cidrs))
	for i, c := range cidrs {
		truncated := CIDR{IPNet: net.IPNet{IP: c.IP.Mask(c.Mask), Mask: c.Mask}}
		parts[i] = truncated.String()
	}
	return strings.Join(parts, ", ")
}

// wireEncode renders a key's real base64 text for inclusion in a
// configuration file; unlike String(), which masks private/preshared keys
// for logs, the rendered .conf must carry the actual secret.
func wireEncode(k interface{ MarshalText() ([]byte, error) }) string {
	b, _ := k.MarshalText()
	return string(b)
}

// PortMapping is one (external-URL, external-port, inner-endpoint) triple
// flattened out of a network's Proxy map.
type PortMapping struct {
	URL           string
	ExternalPort  int
	InnerEndpoint string
}

// PortMappings enumerates a network's proxy entries, preserving
// (sorted) URL order and inner-list order, assigning successive external
// ports starting at 2000.
func PortMappings(ns NetworkState) []PortMapping {
	var out []PortMapping
	next := firstProxyExternalPort
	for _, url := range sortedProxyURLs(ns.Proxy) {
		for _, inner := range ns.Proxy[url] {
			out = append(out, PortMapping{URL: url, ExternalPort: next, InnerEndpoint: inner})
			next++
		}
	}
	return out
}

// FirewallMapping is one inbound/outbound port pair used to render the
// per-network firewall template.
type FirewallMapping struct {
	PortIn  int
	PortOut int
	IPOut   string
}

// PortConfig is the input to the per-network firewall template.
type PortConfig struct {
	InterfaceIn  string
	InterfaceOut string
	IPSource     string
	Mappings     []FirewallMapping
}

// BuildPortConfig derives the firewall-template input for a network.
func BuildPortConfig(port uint16, ns NetworkState) PortConfig {
	pc := PortConfig{
		InterfaceIn:  VethName(port),
		InterfaceOut: WireguardIfName(port),
	}
	if len(ns.Address) > 0 {
		pc.IPSource = ns.Address[0].String()
	}
	for _, m := range PortMappings(ns) {
		host, portStr, ok := strings.Cut(m.InnerEndpoint, ":")
		if !ok {
			host = m.InnerEndpoint
			portStr = ""
		}
		var innerPort int
		fmt.Sscanf(portStr, "%d", &innerPort)
		pc.Mappings = append(pc.Mappings, FirewallMapping{
			PortIn:  m.ExternalPort,
			PortOut: innerPort,
			IPOut:   host,
		})
	}
	return pc
}

// ForwardingSnapshot is the aggregate the reverse proxy needs to publish
// every network's Layer-7 forwarding in one pass.
type ForwardingSnapshot struct {
	HTTPSForwarding map[string]string             // external host -> upstream group
	HTTPSUpstream   map[string][]UpstreamEndpoint // group -> endpoints
	HTTPForwarding  map[string]string
	HTTPUpstream    map[string][]UpstreamEndpoint
	SSH             []UpstreamEndpoint // placeholder section, no per-host grouping
}

// UpstreamEndpoint is one inner-bridge-address/external-port pair serving
// a forwarding group.
type UpstreamEndpoint struct {
	Address string
	Port    int
}

// upstreamGroup stably encodes an external host into the group name used
// by both the forwarding map and the upstream map.
func upstreamGroup(host string) string {
	g := strings.ToLower(host)
	g = strings.ReplaceAll(g, ".", "_")
	return nonAlnum.ReplaceAllString(g, "_")
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9_]`)

// BuildForwardingSnapshot aggregates every network's proxy entries into
// the sections the reverse proxy consumes, plus any custom forwardings
// supplied out-of-band (GATEWAY_CUSTOM_FORWARDING, "url=host:port" pairs).
func BuildForwardingSnapshot(configs []GatewayConfig, custom map[string]string) ForwardingSnapshot {
	snap := ForwardingSnapshot{
		HTTPSForwarding: map[string]string{},
		HTTPSUpstream:   map[string][]UpstreamEndpoint{},
		HTTPForwarding:  map[string]string{},
		HTTPUpstream:    map[string][]UpstreamEndpoint{},
	}

	add := func(port uint16, ns NetworkState) {
		for _, m := range PortMappings(ns) {
			scheme, host := splitURLScheme(m.URL)
			group := upstreamGroup(host)
			ep := UpstreamEndpoint{Address: VethIPv4Net(port).IP.String(), Port: m.ExternalPort}
			switch scheme {
			case "https":
				snap.HTTPSForwarding[host] = group
				snap.HTTPSUpstream[group] = append(snap.HTTPSUpstream[group], ep)
			case "http":
				snap.HTTPForwarding[host] = group
				snap.HTTPUpstream[group] = append(snap.HTTPUpstream[group], ep)
			case "ssh":
				snap.SSH = append(snap.SSH, ep)
			}
		}
	}

	for _, cfg := range configs {
		for port, ns := range cfg {
			add(port, ns)
		}
	}

	for url, hostport := range custom {
		scheme, host := splitURLScheme(url)
		host0, portStr, _ := strings.Cut(hostport, ":")
		var p int
		fmt.Sscanf(portStr, "%d", &p)
		ep := UpstreamEndpoint{Address: host0, Port: p}
		group := upstreamGroup(host)
		switch scheme {
		case "https":
			snap.HTTPSForwarding[host] = group
			snap.HTTPSUpstream[group] = append(snap.HTTPSUpstream[group], ep)
		case "http":
			snap.HTTPForwarding[host] = group
			snap.HTTPUpstream[group] = append(snap.HTTPUpstream[group], ep)
		case "ssh":
			snap.SSH = append(snap.SSH, ep)
		}
	}

	return snap
}

func splitURLScheme(url string) (scheme, host string) {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return "", url
	}
	host = strings.TrimSuffix(rest, "/")
	return scheme, host
}

// RenderFirewallSave renders the nft save-file text for one network's port
// forwarding: a DNAT rule per mapping, inside a table named after the
// inbound veth interface so each namespace's ruleset is self-contained.
func RenderFirewallSave(pc PortConfig) string {
	var b strings.Builder

	table := "gw_" + pc.InterfaceIn
	fmt.Fprintf(&b, "table ip %s {\n", table)
	fmt.Fprintf(&b, "\tchain prerouting {\n")
	fmt.Fprintf(&b, "\t\ttype nat hook prerouting priority 0; policy accept;\n")
	for _, m := range pc.Mappings {
		fmt.Fprintf(&b, "\t\tiifname %q tcp dport %d counter packets 0 bytes 0 dnat to %s:%d\n",
			pc.InterfaceIn, m.PortIn, m.IPOut, m.PortOut)
	}
	b.WriteString("\t}\n")
	fmt.Fprintf(&b, "\tchain forward {\n")
	fmt.Fprintf(&b, "\t\ttype filter hook forward priority 0; policy accept;\n")
	fmt.Fprintf(&b, "\t\tiifname %q oifname %q counter packets 0 bytes 0 accept\n", pc.InterfaceIn, pc.InterfaceOut)
	fmt.Fprintf(&b, "\t\tiifname %q oifname %q counter packets 0 bytes 0 accept\n", pc.InterfaceOut, pc.InterfaceIn)
	b.WriteString("\t}\n")
	b.WriteString("}\n")

	return b.String()
}

var (
	commentOrBlankLine = regexp.MustCompile(`(?m)^\s*(#.*)?$\n?`)
	counterPair        = regexp.MustCompile(`counter packets \d+ bytes \d+`)
	bracketCounter     = regexp.MustCompile(`\[\d+:\d+\]`)
)

// NormalizeFirewallSave strips comment/empty lines and zeroes packet
// counters (nft's "counter packets N bytes N" stanzas and save-file "[n:m]"
// pairs) so two save-files that differ only in traffic counters compare
// equal, which is how the reconciler decides a firewall restore is
// unnecessary.
func NormalizeFirewallSave(text string) string {
	text = commentOrBlankLine.ReplaceAllString(text, "")
	text = counterPair.ReplaceAllString(text, "counter packets 0 bytes 0")
	text = bracketCounter.ReplaceAllString(text, "[0:0]")
	return text
}
