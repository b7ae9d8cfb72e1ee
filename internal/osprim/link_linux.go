//go:build linux

package osprim

import (
	"context"
	"fmt"

	"github.com/safchain/ethtool"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
)

// handleFor opens a netlink.Handle scoped to the named namespace (or the
// root namespace if ns is ""), without switching the calling goroutine's
// namespace -- vishvananda/netlink lets us target a namespace by handle
// directly, so link/address/bridge/veth operations never need the
// LockOSThread dance that WireGuard device configuration does.
func handleFor(ns string) (*netlink.Handle, func(), error) {
	if isRoot(ns) {
		h, err := netlink.NewHandle()
		if err != nil {
			return nil, nil, fmt.Errorf("opening root netlink handle: %w", err)
		}
		return h, h.Close, nil
	}

	nsHandle, err := netns.GetFromName(ns)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: namespace %s", ErrNotFound, ns)
	}

	h, err := netlink.NewHandleAt(nsHandle)
	if err != nil {
		nsHandle.Close()
		return nil, nil, fmt.Errorf("opening netlink handle in %s: %w", ns, err)
	}

	return h, func() {
		h.Close()
		nsHandle.Close()
	}, nil
}

func (l *Linux) BridgeExists(ctx context.Context, ns, name string) (bool, error) {
	h, done, err := handleFor(ns)
	if err != nil {
		return false, err
	}
	defer done()

	_, err = h.LinkByName(name)
	return err == nil, nil
}

func (l *Linux) AddBridge(ctx context.Context, ns, name string) error {
	exists, err := l.BridgeExists(ctx, ns, name)
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

	br := &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Name: name}}
	if err := h.LinkAdd(br); err != nil {
		return fmt.Errorf("creating bridge %s: %w", name, err)
	}
	return nil
}

func (l *Linux) LinkShow(ctx context.Context, ns, name string) (Link, error) {
	h, done, err := handleFor(ns)
	if err != nil {
		return Link{}, err
	}
	defer done()

	link, err := h.LinkByName(name)
	if err != nil {
		return Link{}, fmt.Errorf("%w: link %s", ErrNotFound, name)
	}

	attrs := link.Attrs()
	return Link{
		IfIndex:   attrs.Index,
		IfName:    attrs.Name,
		MTU:       attrs.MTU,
		OperState: attrs.OperState.String(),
	}, nil
}

func (l *Linux) LinkUp(ctx context.Context, ns, name string) error {
	h, done, err := handleFor(ns)
	if err != nil {
		return err
	}
	defer done()

	link, err := h.LinkByName(name)
	if err != nil {
		return fmt.Errorf("%w: link %s", ErrNotFound, name)
	}
	if err := h.LinkSetUp(link); err != nil {
		return fmt.Errorf("bringing up %s: %w", name, err)
	}
	return nil
}

func (l *Linux) LinkSetMaster(ctx context.Context, ns, name, master string) error {
	h, done, err := handleFor(ns)
	if err != nil {
		return err
	}
	defer done()

	link, err := h.LinkByName(name)
	if err != nil {
		return fmt.Errorf("%w: link %s", ErrNotFound, name)
	}
	masterLink, err := h.LinkByName(master)
	if err != nil {
		return fmt.Errorf("%w: master link %s", ErrNotFound, master)
	}
	if err := h.LinkSetMaster(link, masterLink); err != nil {
		return fmt.Errorf("attaching %s to %s: %w", name, master, err)
	}
	return nil
}

func (l *Linux) LinkGetMaster(ctx context.Context, ns, name string) (string, error) {
	h, done, err := handleFor(ns)
	if err != nil {
		return "", err
	}
	defer done()

	link, err := h.LinkByName(name)
	if err != nil {
		return "", fmt.Errorf("%w: link %s", ErrNotFound, name)
	}
	idx := link.Attrs().MasterIndex
	if idx == 0 {
		return "", nil
	}
	master, err := h.LinkByIndex(idx)
	if err != nil {
		return "", fmt.Errorf("resolving master of %s: %w", name, err)
	}
	return master.Attrs().Name, nil
}

func (l *Linux) LinkSetMTU(ctx context.Context, ns, name string, mtu int) error {
	h, done, err := handleFor(ns)
	if err != nil {
		return err
	}
	defer done()

	link, err := h.LinkByName(name)
	if err != nil {
		return fmt.Errorf("%w: link %s", ErrNotFound, name)
	}
	if err := h.LinkSetMTU(link, mtu); err != nil {
		return fmt.Errorf("setting mtu on %s: %w", name, err)
	}
	return nil
}

func (l *Linux) AddrList(ctx context.Context, ns, name string) ([]string, error) {
	h, done, err := handleFor(ns)
	if err != nil {
		return nil, err
	}
	defer done()

	link, err := h.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("%w: link %s", ErrNotFound, name)
	}
	addrs, err := h.AddrList(link, netlink.FAMILY_ALL)
	if err != nil {
		return nil, fmt.Errorf("listing addresses on %s: %w", name, err)
	}

	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.IPNet.String()
	}
	return out, nil
}

func (l *Linux) AddrAdd(ctx context.Context, ns, name, cidr string) error {
	h, done, err := handleFor(ns)
	if err != nil {
		return err
	}
	defer done()

	link, err := h.LinkByName(name)
	if err != nil {
		return fmt.Errorf("%w: link %s", ErrNotFound, name)
	}
	addr, err := netlink.ParseAddr(cidr)
	if err != nil {
		return fmt.Errorf("%w: address %s", ErrInvalidArgument, cidr)
	}
	if err := h.AddrAdd(link, addr); err != nil {
		if isExistsErr(err) {
			return nil
		}
		return fmt.Errorf("adding address %s to %s: %w", cidr, name, err)
	}
	return nil
}

// VethAdd creates a veth pair with the outer end in the root namespace and
// the inner end moved into ns, matching the pattern in the teacher's
// setupNetworkNamespace (its single fixed "veth-api-host"/"veth-api-ns"
// pair, generalized here to one pair per network).
func (l *Linux) VethAdd(ctx context.Context, ns, outer, inner string) error {
	rootHandle, rootDone, err := handleFor("")
	if err != nil {
		return err
	}
	defer rootDone()

	if _, err := rootHandle.LinkByName(outer); err == nil {
		return nil // already present
	}

	veth := &netlink.Veth{
		LinkAttrs: netlink.LinkAttrs{Name: outer},
		PeerName:  inner,
	}
	if err := rootHandle.LinkAdd(veth); err != nil {
		return fmt.Errorf("creating veth pair %s/%s: %w", outer, inner, err)
	}

	peer, err := rootHandle.LinkByName(inner)
	if err != nil {
		return fmt.Errorf("looking up veth peer %s: %w", inner, err)
	}

	nsHandle, err := netns.GetFromName(ns)
	if err != nil {
		return fmt.Errorf("%w: namespace %s", ErrNotFound, ns)
	}
	defer nsHandle.Close()

	if err := rootHandle.LinkSetNsFd(peer, int(nsHandle)); err != nil {
		return fmt.Errorf("moving %s into %s: %w", inner, ns, err)
	}

	disableTxOffload(outer)
	disableTxOffloadIn(ns, inner)

	return nil
}

func (l *Linux) VethExists(ctx context.Context, ns, inner string) (bool, error) {
	h, done, err := handleFor(ns)
	if err != nil {
		return false, err
	}
	defer done()

	_, err = h.LinkByName(inner)
	return err == nil, nil
}

// disableTxOffload disables TX checksum offload on a root-namespace
// interface. veth pairs whose peer lives in a different namespace corrupt
// checksums under hardware/software offload; matches the teacher's
// disableTxOffload in cmd/netns_linux.go.
func disableTxOffload(iface string) {
	e, err := ethtool.NewEthtool()
	if err != nil {
		return
	}
	defer e.Close()

	if err := e.Change(iface, map[string]bool{"tx-checksumming": false}); err != nil {
		_ = e.Change(iface, map[string]bool{
			"tcp-segmentation-offload": false,
			"generic-segmentation-offload": false,
			"generic-receive-offload":  false,
		})
	}
}

// disableTxOffloadIn disables TX offload on an interface that lives inside
// a non-root namespace; ethtool's ioctls are namespace-scoped by the
// calling thread's namespace, so this switches briefly.
func disableTxOffloadIn(ns, iface string) {
	withNamespace(ns, func() error {
		disableTxOffload(iface)
		return nil
	})
}

func isExistsErr(err error) bool {
	return err != nil && err.Error() == "file exists"
}
