//go:build linux

package osprim

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
	"golang.zx2c4.com/wireguard/wgctrl"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"fractalnet.io/gatewayd/internal/domain"
)

// withNamespace locks the calling goroutine to its OS thread and switches
// it into ns for the duration of fn, restoring the original namespace
// afterward. wgctrl opens a generic-netlink socket bound to whatever
// namespace the thread is in at creation time, so -- unlike the handleFor
// operations in link_linux.go -- WireGuard device access genuinely needs
// the thread to be inside the target namespace, matching the
// LockOSThread/netns.Set pattern in the teacher's setupNetworkNamespace.
func withNamespace(ns string, fn func() error) error {
	if isRoot(ns) {
		return fn()
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	origns, err := netns.Get()
	if err != nil {
		return fmt.Errorf("getting current namespace: %w", err)
	}
	defer origns.Close()

	target, err := netns.GetFromName(ns)
	if err != nil {
		return fmt.Errorf("%w: namespace %s", ErrNotFound, ns)
	}
	defer target.Close()

	if err := netns.Set(target); err != nil {
		return fmt.Errorf("entering namespace %s: %w", ns, err)
	}
	defer netns.Set(origns)

	return fn()
}

func (l *Linux) wgClient() (*wgctrl.Client, error) {
	if l.newWireguardClient != nil {
		return l.newWireguardClient()
	}
	return wgctrl.New()
}

// WireguardCreate adds the WireGuard link if it does not already exist.
// Creation itself is a plain netlink link-add (wgctrl has no "create"
// call; the kernel registers the wireguard link kind once the module is
// loaded), so it uses handleFor like the other link operations and does
// not need the namespace switch WireguardSyncConf/WireguardStats do.
func (l *Linux) WireguardCreate(ctx context.Context, ns, name string) error {
	exists, err := l.WireguardExists(ctx, ns, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	h, done, err := handleFor(ns)
	if err != nil {
		return err
	}
	defer done()

	link := &netlink.GenericLink{
		LinkAttrs: netlink.LinkAttrs{Name: name},
		LinkType:  "wireguard",
	}
	if err := h.LinkAdd(link); err != nil {
		return fmt.Errorf("creating wireguard link %s: %w", name, err)
	}
	return nil
}

func (l *Linux) WireguardExists(ctx context.Context, ns, name string) (bool, error) {
	h, done, err := handleFor(ns)
	if err != nil {
		return false, err
	}
	defer done()

	_, err = h.LinkByName(name)
	return err == nil, nil
}

// WireguardSyncConf reads the rendered .conf already written under
// /etc/netns/<ns>/wireguard/<name>.conf via WriteNamespaceFile, parses it
// with parseWireguardConf, and pushes the resulting private key, listen port,
// and peer set to the kernel, replacing (not merging) the existing peer
// list -- equivalent to "wg syncconf" but done in-process via wgctrl.
func (l *Linux) WireguardSyncConf(ctx context.Context, ns, name string) error {
	path := fmt.Sprintf("%s/%s/wireguard/%s.conf", etcNetnsDir, ns, name)
	contents, err := os.ReadFile(path)
	if err != nil {
		return &IOError{Op: "reading " + path, Err: err}
	}

	cfg, err := parseWireguardConf(contents)
	if err != nil {
		return &ParseError{Context: path, Err: err}
	}

	return withNamespace(ns, func() error {
		client, err := l.wgClient()
		if err != nil {
			return fmt.Errorf("opening wgctrl client in %s: %w", ns, err)
		}
		defer client.Close()

		if err := client.ConfigureDevice(name, cfg); err != nil {
			return fmt.Errorf("configuring wireguard device %s in %s: %w", name, ns, err)
		}
		return nil
	})
}

func (l *Linux) WireguardStats(ctx context.Context, ns, name string) (domain.NetworkStats, error) {
	var stats domain.NetworkStats

	err := withNamespace(ns, func() error {
		client, err := l.wgClient()
		if err != nil {
			return fmt.Errorf("opening wgctrl client in %s: %w", ns, err)
		}
		defer client.Close()

		dev, err := client.Device(name)
		if err != nil {
			return fmt.Errorf("reading wireguard device %s in %s: %w", name, ns, err)
		}

		pub, err := domain.NewPublicKey(dev.PublicKey[:])
		if err != nil {
			return &ParseError{Context: "device public key", Err: err}
		}
		priv, err := domain.NewPrivateKey(dev.PrivateKey[:])
		if err != nil {
			return &ParseError{Context: "device private key", Err: err}
		}

		stats = domain.NetworkStats{
			PrivateKey: priv,
			PublicKey:  pub,
			ListenPort: uint16(dev.ListenPort),
			Peers:      make([]domain.PeerStats, 0, len(dev.Peers)),
		}
		if dev.FirewallMark != 0 {
			fwmark := dev.FirewallMark
			stats.FWMark = &fwmark
		}

		for _, p := range dev.Peers {
			stats.Peers = append(stats.Peers, peerStatsFromDevice(p))
		}
		return nil
	})
	if err != nil {
		return domain.NetworkStats{}, err
	}
	return stats, nil
}

func peerStatsFromDevice(p wgtypes.Peer) domain.PeerStats {
	pub, _ := domain.NewPublicKey(p.PublicKey[:])

	ps := domain.PeerStats{
		PublicKey:  pub,
		AllowedIPs: make([]domain.CIDR, 0, len(p.AllowedIPs)),
		TransferRx: uint64(p.ReceiveBytes),
		TransferTx: uint64(p.TransmitBytes),
	}

	if p.PresharedKey != (wgtypes.Key{}) {
		psk, err := domain.NewPresharedKey(p.PresharedKey[:])
		if err == nil {
			ps.PresharedKey = &psk
		}
	}
	if p.Endpoint != nil {
		ep := domain.Endpoint{Host: p.Endpoint.IP.String(), Port: uint16(p.Endpoint.Port)}
		ps.Endpoint = &ep
	}
	if !p.LastHandshakeTime.IsZero() {
		t := p.LastHandshakeTime
		ps.LatestHandshake = &t
	}
	if p.PersistentKeepaliveInterval != 0 {
		d := p.PersistentKeepaliveInterval
		ps.PersistentKeepalive = &d
	}
	for _, ip := range p.AllowedIPs {
		ps.AllowedIPs = append(ps.AllowedIPs, domain.CIDRFromIPNet(ip))
	}

	return ps
}
