package osprim

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"fractalnet.io/gatewayd/internal/domain"
)

// Fake is an in-memory Interface used by reconciler and watchdog tests. It
// has no dependency on the kernel, netlink, or external tools, so tests run
// unprivileged and deterministically.
type Fake struct {
	mu sync.Mutex

	namespaces map[string]bool
	files      map[string][]byte // "ns/path" -> contents
	bridges    map[string]bool   // "ns/name" -> exists
	links      map[string]Link   // "ns/name" -> link
	master     map[string]string // "ns/name" -> master name
	addrs      map[string][]string
	veths      map[string]bool // "ns/inner" -> exists

	wireguard map[string]*domain.NetworkStats // "ns/name" -> device state
	confs     map[string][]byte               // "ns/name" -> last synced .conf text

	firewall map[string]string // ns -> saved ruleset text

	ProxyConfig      []byte
	ProxyReloadCount int
	ProxyReloadErr   error
}

// NewFake constructs an empty Fake with the root namespace already present.
func NewFake() *Fake {
	return &Fake{
		namespaces: map[string]bool{"": true},
		files:      map[string][]byte{},
		bridges:    map[string]bool{},
		links:      map[string]Link{},
		master:     map[string]string{},
		addrs:      map[string][]string{},
		veths:      map[string]bool{},
		wireguard:  map[string]*domain.NetworkStats{},
		confs:      map[string][]byte{},
		firewall:   map[string]string{},
	}
}

var _ Interface = (*Fake)(nil)

func key(ns, name string) string { return ns + "/" + name }

func (f *Fake) ListNamespaces(ctx context.Context) ([]Namespace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Namespace
	for ns := range f.namespaces {
		if ns == "" {
			continue
		}
		out = append(out, Namespace{Name: ns})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *Fake) NamespaceExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.namespaces[name], nil
}

func (f *Fake) AddNamespace(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.namespaces[name] = true
	return nil
}

func (f *Fake) DeleteNamespace(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.namespaces[name] {
		return fmt.Errorf("%w: namespace %s", ErrNotFound, name)
	}
	delete(f.namespaces, name)
	for k := range f.files {
		if hasNSPrefix(k, name) {
			delete(f.files, k)
		}
	}
	for k := range f.wireguard {
		if hasNSPrefix(k, name) {
			delete(f.wireguard, k)
		}
	}
	delete(f.firewall, name)
	return nil
}

func hasNSPrefix(k, ns string) bool {
	prefix := ns + "/"
	return len(k) >= len(prefix) && k[:len(prefix)] == prefix
}

func (f *Fake) WriteNamespaceFile(ctx context.Context, ns, path string, contents []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(contents))
	copy(cp, contents)
	f.files[key(ns, path)] = cp
	return nil
}

func (f *Fake) BridgeExists(ctx context.Context, ns, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bridges[key(ns, name)], nil
}

func (f *Fake) AddBridge(ctx context.Context, ns, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bridges[key(ns, name)] = true
	f.links[key(ns, name)] = Link{IfName: name, OperState: "up"}
	return nil
}

func (f *Fake) LinkShow(ctx context.Context, ns, name string) (Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.links[key(ns, name)]
	if !ok {
		return Link{}, fmt.Errorf("%w: link %s", ErrNotFound, name)
	}
	return l, nil
}

func (f *Fake) LinkUp(ctx context.Context, ns, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.links[key(ns, name)]
	l.IfName = name
	l.OperState = "up"
	f.links[key(ns, name)] = l
	return nil
}

func (f *Fake) LinkSetMaster(ctx context.Context, ns, name, master string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.master[key(ns, name)] = master
	return nil
}

func (f *Fake) LinkGetMaster(ctx context.Context, ns, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.master[key(ns, name)], nil
}

func (f *Fake) LinkSetMTU(ctx context.Context, ns, name string, mtu int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.links[key(ns, name)]
	l.IfName = name
	l.MTU = mtu
	f.links[key(ns, name)] = l
	return nil
}

func (f *Fake) AddrList(ctx context.Context, ns, name string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.addrs[key(ns, name)]...), nil
}

func (f *Fake) AddrAdd(ctx context.Context, ns, name, cidr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(ns, name)
	for _, existing := range f.addrs[k] {
		if existing == cidr {
			return nil
		}
	}
	f.addrs[k] = append(f.addrs[k], cidr)
	return nil
}

func (f *Fake) VethAdd(ctx context.Context, ns, outer, inner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links[key("", outer)] = Link{IfName: outer, OperState: "up"}
	f.links[key(ns, inner)] = Link{IfName: inner, OperState: "up"}
	f.veths[key(ns, inner)] = true
	return nil
}

func (f *Fake) VethExists(ctx context.Context, ns, inner string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.veths[key(ns, inner)], nil
}

func (f *Fake) WireguardCreate(ctx context.Context, ns, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(ns, name)
	if _, ok := f.wireguard[k]; ok {
		return nil
	}
	f.wireguard[k] = &domain.NetworkStats{}
	f.links[k] = Link{IfName: name, OperState: "up"}
	return nil
}

func (f *Fake) WireguardExists(ctx context.Context, ns, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.wireguard[key(ns, name)]
	return ok, nil
}

// WireguardSyncConf in the fake just records the bytes already written via
// WriteNamespaceFile under the conventional path, so tests can assert on
// what would have been pushed to the kernel.
func (f *Fake) WireguardSyncConf(ctx context.Context, ns, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := fmt.Sprintf("wireguard/%s.conf", name)
	contents, ok := f.files[key(ns, path)]
	if !ok {
		return fmt.Errorf("%w: no config written for %s/%s", ErrNotFound, ns, name)
	}
	f.confs[key(ns, name)] = contents
	if f.wireguard[key(ns, name)] == nil {
		f.wireguard[key(ns, name)] = &domain.NetworkStats{}
	}
	return nil
}

func (f *Fake) WireguardStats(ctx context.Context, ns, name string) (domain.NetworkStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.wireguard[key(ns, name)]
	if !ok {
		return domain.NetworkStats{}, fmt.Errorf("%w: device %s/%s", ErrNotFound, ns, name)
	}
	return *s, nil
}

// SetStats lets a test seed the counters WireguardStats will return, to
// drive watchdog sampling scenarios.
func (f *Fake) SetStats(ns, name string, stats domain.NetworkStats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := stats
	f.wireguard[key(ns, name)] = &cp
}

func (f *Fake) SyncedConf(ns, name string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.confs[key(ns, name)]
	return b, ok
}

func (f *Fake) FirewallSave(ctx context.Context, ns string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.firewall[ns], nil
}

func (f *Fake) FirewallRestore(ctx context.Context, ns string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.firewall[ns] = text
	return nil
}

func (f *Fake) WriteProxyConfig(ctx context.Context, contents []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ProxyConfig = append([]byte(nil), contents...)
	return nil
}

func (f *Fake) ProxyReload(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ProxyReloadCount++
	return f.ProxyReloadErr
}
