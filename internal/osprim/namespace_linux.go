//go:build linux

package osprim

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/vishvananda/netns"
)

// netnsDir is where "ip netns" (and this adapter) keeps named namespace
// handles; vishvananda/netns.NewNamed/GetFromName/DeleteNamed already
// target this path, this constant is only used for listing.
const netnsDir = "/var/run/netns"

// etcNetnsDir is where per-namespace private file trees live, read by
// WireGuard's userspace tools and other namespace-scoped daemons.
const etcNetnsDir = "/etc/netns"

func (l *Linux) ListNamespaces(ctx context.Context) ([]Namespace, error) {
	entries, err := os.ReadDir(netnsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &IOError{Op: "reading " + netnsDir, Err: err}
	}

	out := make([]Namespace, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		out = append(out, Namespace{Name: e.Name()})
	}
	return out, nil
}

func (l *Linux) NamespaceExists(ctx context.Context, name string) (bool, error) {
	ns, err := netns.GetFromName(name)
	if err != nil {
		return false, nil
	}
	defer ns.Close()
	return true, nil
}

func (l *Linux) AddNamespace(ctx context.Context, name string) error {
	exists, err := l.NamespaceExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	// netns.NewNamed switches the calling OS thread into the new namespace
	// as a side effect, so we must restore the original before returning,
	// with the goroutine pinned to that thread until then.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	origns, err := netns.Get()
	if err != nil {
		return fmt.Errorf("getting current namespace: %w", err)
	}
	defer origns.Close()

	newns, err := netns.NewNamed(name)
	if err != nil {
		return fmt.Errorf("creating namespace %s: %w", name, err)
	}
	defer newns.Close()

	if err := netns.Set(origns); err != nil {
		return fmt.Errorf("restoring original namespace after creating %s: %w", name, err)
	}
	return nil
}

func (l *Linux) DeleteNamespace(ctx context.Context, name string) error {
	if err := netns.DeleteNamed(name); err != nil {
		return fmt.Errorf("deleting namespace %s: %w", name, err)
	}
	os.RemoveAll(filepath.Join(etcNetnsDir, name))
	return nil
}

// WriteNamespaceFile writes contents under /etc/netns/<ns>/<path>, the
// private file tree WireGuard's userspace tools (and WireguardSyncConf)
// read from for that namespace.
func (l *Linux) WriteNamespaceFile(ctx context.Context, ns, path string, contents []byte) error {
	full := filepath.Join(etcNetnsDir, ns, path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return &IOError{Op: "creating directory for " + full, Err: err}
	}
	if err := os.WriteFile(full, contents, 0600); err != nil {
		return &IOError{Op: "writing " + full, Err: err}
	}
	return nil
}
