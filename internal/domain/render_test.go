package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

func mustKey(t *testing.T) wgtypes.Key {
	t.Helper()
	k, err := wgtypes.GeneratePrivateKey()
	require.NoError(t, err)
	return k
}

func TestToWireGuardConfigDeterministicPeerOrder(t *testing.T) {
	priv := mustKey(t)
	peerA := PublicKey(mustKey(t).PublicKey())
	peerB := PublicKey(mustKey(t).PublicKey())

	cidr, err := ParseCIDR("10.0.0.2/32")
	require.NoError(t, err)

	ns := NetworkState{
		PrivateKey: PrivateKey(priv),
		ListenPort: 51820,
		MTU:        DefaultMTU,
		Peers: map[PublicKey]PeerState{
			peerA: {AllowedIPs: []CIDR{cidr}},
			peerB: {AllowedIPs: []CIDR{cidr}},
		},
	}

	out1 := ToWireGuardConfig(ns)
	out2 := ToWireGuardConfig(ns)
	assert.Equal(t, out1, out2, "rendering must be deterministic across calls")

	assert.Contains(t, out1, "[Interface]")
	assert.Contains(t, out1, "ListenPort = 51820")
	assert.Contains(t, out1, "PersistentKeepalive = 25")

	// Peers appear in sorted-key order regardless of map insertion order.
	firstIdx := strings.Index(out1, peerA.String())
	secondIdx := strings.Index(out1, peerB.String())
	if peerA.String() < peerB.String() {
		assert.Less(t, firstIdx, secondIdx)
	} else {
		assert.Less(t, secondIdx, firstIdx)
	}
}

func TestToWireGuardConfigMasksNothingOnWire(t *testing.T) {
	priv := mustKey(t)
	ns := NetworkState{PrivateKey: PrivateKey(priv), ListenPort: 1}
	out := ToWireGuardConfig(ns)
	// The rendered .conf must carry the real private key, not "******" --
	// String() masks for logs, but wire rendering needs the true secret.
	assert.NotContains(t, out, "******")
	assert.Contains(t, out, priv.String())
}

func TestNormalizeFirewallSaveStripsCommentsAndCounters(t *testing.T) {
	a := "# generated\ntable inet filter {\n\tchain input { type filter hook input priority 0; policy accept;\n\t\tcounter packets 10 bytes 200 accept\n\t}\n}\n\n"
	b := "table inet filter {\n\tchain input { type filter hook input priority 0; policy accept;\n\t\tcounter packets 99 bytes 9999 accept\n\t}\n}\n"

	na := NormalizeFirewallSave(a)
	nb := NormalizeFirewallSave(b)
	assert.Equal(t, na, nb)
}

func TestNormalizeFirewallSaveZeroesCounterPairs(t *testing.T) {
	text := "table ip nat { chain postrouting { counter packets 5 bytes 400 masquerade } }"
	got := NormalizeFirewallSave(text)
	assert.Contains(t, got, "counter packets 0 bytes 0")
	assert.NotContains(t, got, "packets 5 bytes 400")
}

func TestRenderFirewallSaveNormalizesEqualAcrossCounterValues(t *testing.T) {
	pc := PortConfig{
		InterfaceIn:  "veth51820",
		InterfaceOut: "wg51820",
		Mappings:     []FirewallMapping{{PortIn: 2000, PortOut: 8080, IPOut: "172.99.202.108"}},
	}
	rendered := RenderFirewallSave(pc)
	assert.Equal(t, NormalizeFirewallSave(rendered), NormalizeFirewallSave(rendered))
	assert.Contains(t, rendered, "dnat to 172.99.202.108:8080")
}

func TestPortMappingsAssignsSuccessivePorts(t *testing.T) {
	ns := NetworkState{
		Proxy: map[string][]string{
			"https://a.example/": {"192.0.2.1:8080", "192.0.2.2:8080"},
			"https://b.example/": {"192.0.2.3:22"},
		},
	}

	mappings := PortMappings(ns)
	require.Len(t, mappings, 3)
	assert.Equal(t, 2000, mappings[0].ExternalPort)
	assert.Equal(t, 2001, mappings[1].ExternalPort)
	assert.Equal(t, 2002, mappings[2].ExternalPort)
	// sorted URL order: a.example before b.example
	assert.Equal(t, "https://a.example/", mappings[0].URL)
	assert.Equal(t, "https://a.example/", mappings[1].URL)
	assert.Equal(t, "https://b.example/", mappings[2].URL)
}

func TestBuildForwardingSnapshotGroupsByHost(t *testing.T) {
	cfgs := []GatewayConfig{
		{
			51820: NetworkState{
				Proxy: map[string][]string{
					"https://svc.example/": {"192.0.2.1:8080"},
				},
			},
		},
	}

	snap := BuildForwardingSnapshot(cfgs, nil)
	group, ok := snap.HTTPSForwarding["svc.example"]
	require.True(t, ok)
	require.Contains(t, snap.HTTPSUpstream, group)
	assert.Len(t, snap.HTTPSUpstream[group], 1)
	assert.Equal(t, 2000, snap.HTTPSUpstream[group][0].Port)
}
