package osprim_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fractalnet.io/gatewayd/internal/osprim"
)

func TestFakeNamespaceLifecycle(t *testing.T) {
	f := osprim.NewFake()
	ctx := context.Background()

	exists, err := f.NamespaceExists(ctx, "network-51820")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, f.AddNamespace(ctx, "network-51820"))

	exists, err = f.NamespaceExists(ctx, "network-51820")
	require.NoError(t, err)
	assert.True(t, exists)

	list, err := f.ListNamespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []osprim.Namespace{{Name: "network-51820"}}, list)

	require.NoError(t, f.DeleteNamespace(ctx, "network-51820"))
	exists, err = f.NamespaceExists(ctx, "network-51820")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFakeWireguardSyncConfRequiresWrittenFile(t *testing.T) {
	f := osprim.NewFake()
	ctx := context.Background()
	require.NoError(t, f.AddNamespace(ctx, "network-51820"))
	require.NoError(t, f.WireguardCreate(ctx, "network-51820", "wg51820"))

	err := f.WireguardSyncConf(ctx, "network-51820", "wg51820")
	assert.Error(t, err)

	require.NoError(t, f.WriteNamespaceFile(ctx, "network-51820", "wireguard/wg51820.conf", []byte("[Interface]\n")))
	err = f.WireguardSyncConf(ctx, "network-51820", "wg51820")
	require.NoError(t, err)

	conf, ok := f.SyncedConf("network-51820", "wg51820")
	require.True(t, ok)
	assert.Contains(t, string(conf), "[Interface]")
}

func TestFakeFirewallSaveRestoreRoundTrip(t *testing.T) {
	f := osprim.NewFake()
	ctx := context.Background()

	require.NoError(t, f.FirewallRestore(ctx, "network-51820", "table inet gateway {}\n"))
	saved, err := f.FirewallSave(ctx, "network-51820")
	require.NoError(t, err)
	assert.Equal(t, "table inet gateway {}\n", saved)
}

func TestFakeProxyReloadCounts(t *testing.T) {
	f := osprim.NewFake()
	ctx := context.Background()

	require.NoError(t, f.ProxyReload(ctx))
	require.NoError(t, f.ProxyReload(ctx))
	assert.Equal(t, 2, f.ProxyReloadCount)
}

func TestFakeVethAndAddr(t *testing.T) {
	f := osprim.NewFake()
	ctx := context.Background()
	require.NoError(t, f.AddNamespace(ctx, "network-51820"))
	require.NoError(t, f.VethAdd(ctx, "network-51820", "veth51820", "veth51820-ns"))

	exists, err := f.VethExists(ctx, "network-51820", "veth51820-ns")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, f.AddrAdd(ctx, "network-51820", "veth51820-ns", "172.99.202.108/16"))
	addrs, err := f.AddrList(ctx, "network-51820", "veth51820-ns")
	require.NoError(t, err)
	assert.Equal(t, []string{"172.99.202.108/16"}, addrs)
}
