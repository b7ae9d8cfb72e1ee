// Package reconcile drives the host's realized state (namespaces, links,
// addresses, the shared bridge, WireGuard interfaces, firewall tables, and
// reverse-proxy configuration) to match a declared GatewayConfig,
// idempotently and without tearing down established WireGuard sessions.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"fractalnet.io/gatewayd/internal/domain"
	"fractalnet.io/gatewayd/internal/gwstate"
	"fractalnet.io/gatewayd/internal/logging"
	"fractalnet.io/gatewayd/internal/metrics"
	"fractalnet.io/gatewayd/internal/osprim"
)

// Reconciler applies GatewayConfig/GatewayConfigPartial against an
// osprim.Interface, tracking realized state in a gwstate.State.
type Reconciler struct {
	os    osprim.Interface
	state *gwstate.State
	log   *logging.Logger

	// CustomForwarding supplies out-of-band forwarding entries
	// (GATEWAY_CUSTOM_FORWARDING) merged into every rendered proxy config.
	CustomForwarding map[string]string
}

// New constructs a Reconciler.
func New(os osprim.Interface, state *gwstate.State) *Reconciler {
	return &Reconciler{os: os, state: state, log: logging.WithComponent("reconciler")}
}

// Apply replaces the entire desired configuration, per §4.3's apply(full).
func (r *Reconciler) Apply(ctx context.Context, full domain.GatewayConfig) error {
	unlock := r.state.LockApply()
	defer unlock()

	start := time.Now()
	err := r.applyLocked(ctx, full)
	r.record("full", start, err)
	return err
}

func (r *Reconciler) applyLocked(ctx context.Context, full domain.GatewayConfig) error {
	if err := r.prelude(ctx, full); err != nil {
		return err
	}

	for port, ns := range full {
		if err := r.perNetwork(ctx, port, ns); err != nil {
			return fmt.Errorf("network %d: %w", port, err)
		}
	}

	if err := r.rewriteProxy(ctx, []domain.GatewayConfig{full}); err != nil {
		return err
	}

	r.state.SetRealized(full)
	metrics.Get().NetworksManaged.Set(float64(len(full)))
	return nil
}

// ApplyPartial upserts or tombstones individual networks, per §4.3's
// apply_partial(diff).
func (r *Reconciler) ApplyPartial(ctx context.Context, diff domain.GatewayConfigPartial) error {
	unlock := r.state.LockApply()
	defer unlock()

	start := time.Now()
	err := r.applyPartialLocked(ctx, diff)
	r.record("partial", start, err)
	return err
}

func (r *Reconciler) applyPartialLocked(ctx context.Context, diff domain.GatewayConfigPartial) error {
	desired := r.state.Realized().Merge(diff)

	if err := r.prelude(ctx, desired); err != nil {
		return err
	}

	realized := r.state.Realized()
	for port, value := range diff {
		if value == nil {
			exists, err := r.os.NamespaceExists(ctx, domain.NetnsName(port))
			if err != nil {
				return err
			}
			if exists {
				if err := r.os.DeleteNamespace(ctx, domain.NetnsName(port)); err != nil {
					return fmt.Errorf("deleting network %d: %w", port, err)
				}
			}
			delete(realized, port)
			continue
		}

		if err := r.perNetwork(ctx, port, *value); err != nil {
			return fmt.Errorf("network %d: %w", port, err)
		}
		realized[port] = *value
	}

	if err := r.rewriteProxy(ctx, []domain.GatewayConfig{realized}); err != nil {
		return err
	}

	r.state.SetRealized(realized)
	metrics.Get().NetworksManaged.Set(float64(len(realized)))
	return nil
}

// prelude ensures the shared bridge exists and removes every managed
// namespace whose port is not present in desired, before any per-network
// work runs — so a port freed this call can be reassigned within the same
// call.
func (r *Reconciler) prelude(ctx context.Context, desired domain.GatewayConfig) error {
	if err := r.os.AddBridge(ctx, "", domain.BridgeName); err != nil {
		return fmt.Errorf("ensuring bridge: %w", err)
	}
	if err := r.os.AddrAdd(ctx, "", domain.BridgeName, domain.BridgeAddress); err != nil {
		return fmt.Errorf("addressing bridge: %w", err)
	}
	if err := r.os.LinkUp(ctx, "", domain.BridgeName); err != nil {
		return fmt.Errorf("bringing up bridge: %w", err)
	}

	namespaces, err := r.os.ListNamespaces(ctx)
	if err != nil {
		return fmt.Errorf("listing namespaces: %w", err)
	}

	for _, ns := range namespaces {
		port, ok := domain.PortFromNetnsName(ns.Name)
		if !ok {
			continue
		}
		if _, wanted := desired[port]; wanted {
			continue
		}
		if err := r.os.DeleteNamespace(ctx, ns.Name); err != nil {
			return fmt.Errorf("deleting surplus namespace %s: %w", ns.Name, err)
		}
	}

	return nil
}

// perNetwork runs the namespace -> wireguard -> veth -> firewall pipeline
// for one network. Every step is idempotent and the order never changes,
// since each stage depends on the previous stage's side effects.
func (r *Reconciler) perNetwork(ctx context.Context, port uint16, ns domain.NetworkState) error {
	netns := domain.NetnsName(port)

	if err := r.stepNamespace(ctx, netns); err != nil {
		metrics.Get().ReconcileErrors.WithLabelValues("namespace").Inc()
		return fmt.Errorf("namespace: %w", err)
	}
	if err := r.stepWireguard(ctx, netns, port, ns); err != nil {
		metrics.Get().ReconcileErrors.WithLabelValues("wireguard").Inc()
		return fmt.Errorf("wireguard: %w", err)
	}
	if err := r.stepVeth(ctx, netns, port); err != nil {
		metrics.Get().ReconcileErrors.WithLabelValues("veth").Inc()
		return fmt.Errorf("veth: %w", err)
	}
	if err := r.stepFirewall(ctx, netns, port, ns); err != nil {
		metrics.Get().ReconcileErrors.WithLabelValues("firewall").Inc()
		return fmt.Errorf("firewall: %w", err)
	}
	return nil
}

func (r *Reconciler) stepNamespace(ctx context.Context, netns string) error {
	exists, err := r.os.NamespaceExists(ctx, netns)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return r.os.AddNamespace(ctx, netns)
}

func (r *Reconciler) stepWireguard(ctx context.Context, netns string, port uint16, ns domain.NetworkState) error {
	ifName := domain.WireguardIfName(port)

	exists, err := r.os.WireguardExists(ctx, netns, ifName)
	if err != nil {
		return err
	}
	if !exists {
		if err := r.os.WireguardCreate(ctx, netns, ifName); err != nil {
			return err
		}
	}

	mtu := ns.MTU
	if mtu == 0 {
		mtu = domain.DefaultMTU
	}
	link, err := r.os.LinkShow(ctx, netns, ifName)
	if err != nil {
		return err
	}
	if link.MTU != mtu {
		if err := r.os.LinkSetMTU(ctx, netns, ifName, mtu); err != nil {
			return err
		}
	}

	confPath := fmt.Sprintf("wireguard/%s.conf", ifName)
	if err := r.os.WriteNamespaceFile(ctx, netns, confPath, []byte(domain.ToWireGuardConfig(ns))); err != nil {
		return err
	}

	if err := r.os.LinkUp(ctx, netns, ifName); err != nil {
		return err
	}

	for _, addr := range ns.Address {
		if err := r.os.AddrAdd(ctx, netns, ifName, addr.String()); err != nil {
			return err
		}
	}

	return r.os.WireguardSyncConf(ctx, netns, ifName)
}

func (r *Reconciler) stepVeth(ctx context.Context, netns string, port uint16) error {
	vethName := domain.VethName(port)

	exists, err := r.os.VethExists(ctx, netns, vethName)
	if err != nil {
		return err
	}
	if !exists {
		if err := r.os.VethAdd(ctx, netns, vethName, vethName); err != nil {
			return err
		}
	}

	innerCIDR := domain.VethIPv4Net(port)
	addrs, err := r.os.AddrList(ctx, netns, vethName)
	if err != nil {
		return err
	}
	if !containsCIDR(addrs, innerCIDR.String()) {
		if err := r.os.AddrAdd(ctx, netns, vethName, innerCIDR.String()); err != nil {
			return err
		}
	}

	if err := r.os.LinkSetMaster(ctx, "", vethName, domain.BridgeName); err != nil {
		return err
	}
	if err := r.os.LinkUp(ctx, "", vethName); err != nil {
		return err
	}
	return r.os.LinkUp(ctx, netns, vethName)
}

func (r *Reconciler) stepFirewall(ctx context.Context, netns string, port uint16, ns domain.NetworkState) error {
	unlock := r.state.LockFirewall()
	defer unlock()

	pc := domain.BuildPortConfig(port, ns)
	desired := domain.NormalizeFirewallSave(domain.RenderFirewallSave(pc))

	current, err := r.os.FirewallSave(ctx, netns)
	if err != nil {
		return err
	}
	if domain.NormalizeFirewallSave(current) == desired {
		return nil
	}

	return r.os.FirewallRestore(ctx, netns, domain.RenderFirewallSave(pc))
}

func (r *Reconciler) rewriteProxy(ctx context.Context, configs []domain.GatewayConfig) error {
	snap := domain.BuildForwardingSnapshot(configs, r.CustomForwarding)
	if err := r.os.WriteProxyConfig(ctx, []byte(domain.RenderProxyConfig(snap))); err != nil {
		return fmt.Errorf("writing proxy config: %w", err)
	}
	if err := r.os.ProxyReload(ctx); err != nil {
		metrics.Get().ReconcileErrors.WithLabelValues("proxy").Inc()
		return fmt.Errorf("reloading proxy: %w", err)
	}
	return nil
}

func (r *Reconciler) record(kind string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		r.log.Error("reconcile failed", "kind", kind, "error", err)
	}
	metrics.Get().RecordReconcile(kind, outcome, time.Since(start).Seconds())
}

func containsCIDR(list []string, cidr string) bool {
	for _, c := range list {
		if c == cidr {
			return true
		}
	}
	return false
}
