//go:build linux

package osprim

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// proxyConfPath is the fixed location the external reverse-proxy process
// includes and reloads from.
const proxyConfPath = "/etc/nginx/conf.d/gatewayd.conf"

// nftPath is the nft(8) binary this adapter shells out to, following the
// teacher's firewall package (internal/firewall/atomic.go), which prefers
// a CLI round-trip over the typed google/nftables library so the saved
// ruleset text can be treated as an opaque, comparable blob.
const nftPath = "nft"

// nftCommand builds the argv to run nft inside ns: a bare nft invocation
// for the root namespace, or "ip netns exec <ns> nft ..." otherwise, since
// nft itself has no namespace flag.
func nftCommand(ns string, args ...string) *exec.Cmd {
	if isRoot(ns) {
		return exec.Command(nftPath, args...)
	}
	full := append([]string{"netns", "exec", ns, nftPath}, args...)
	return exec.Command("ip", full...)
}

func runTool(tool string, cmd *exec.Cmd, stdin []byte) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	if err := cmd.Run(); err != nil {
		return nil, &ToolFailedError{Tool: tool, Args: cmd.Args, Stderr: stderr.String(), Err: err}
	}
	return stdout.Bytes(), nil
}

// FirewallSave dumps the current ruleset as text. The reconciler normalizes
// this (domain.NormalizeFirewallSave) before comparing against a desired
// rendering, so formatting here does not need to match anything but nft's
// own canonical "list ruleset" output.
func (l *Linux) FirewallSave(ctx context.Context, ns string) (string, error) {
	out, err := runTool("nft", nftCommand(ns, "list", "ruleset"), nil)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// FirewallRestore loads text, as produced by a prior FirewallSave or by the
// reconciler's own rendering, replacing the namespace's ruleset wholesale:
// a leading "flush ruleset" makes nft drop the old rules in the same
// transaction. nft -f reads from stdin when given "-".
func (l *Linux) FirewallRestore(ctx context.Context, ns string, text string) error {
	_, err := runTool("nft", nftCommand(ns, "-f", "-"), []byte("flush ruleset\n"+text))
	if err != nil {
		return err
	}
	return nil
}

// WriteProxyConfig writes the rendered reverse-proxy fragment to its fixed
// path; ProxyReload must be called afterward to pick it up.
func (l *Linux) WriteProxyConfig(ctx context.Context, contents []byte) error {
	if err := os.MkdirAll(filepath.Dir(proxyConfPath), 0755); err != nil {
		return &IOError{Op: "creating proxy config directory", Err: err}
	}
	if err := os.WriteFile(proxyConfPath, contents, 0644); err != nil {
		return &IOError{Op: "writing " + proxyConfPath, Err: err}
	}
	return nil
}

// ProxyReload asks the reverse proxy to pick up a newly written forwarding
// snapshot. The gateway daemon itself only writes the snapshot file (see
// domain.BuildForwardingSnapshot); reloading the proxy process is this
// adapter's job since it is an OS-level operation (sending a signal /
// invoking the proxy's reload subcommand).
func (l *Linux) ProxyReload(ctx context.Context) error {
	_, err := runTool("nginx", exec.Command("nginx", "-s", "reload"), nil)
	if err != nil {
		return err
	}
	return nil
}
