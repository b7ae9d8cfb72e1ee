package osprim

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// parseWireguardConf reads back the wg-quick-style text produced by
// domain.ToWireGuardConfig and builds the wgctrl config used to push it to
// the kernel via ConfigureDevice. It only understands the keys that
// renderer emits; it is not a general wg-quick parser.
func parseWireguardConf(contents []byte) (wgtypes.Config, error) {
	var cfg wgtypes.Config
	var peer *wgtypes.PeerConfig
	var peers []wgtypes.PeerConfig

	flush := func() {
		if peer != nil {
			peers = append(peers, *peer)
			peer = nil
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(string(contents)))
	section := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") {
			flush()
			section = strings.Trim(line, "[]")
			if section == "Peer" {
				peer = &wgtypes.PeerConfig{ReplaceAllowedIPs: true}
			}
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch section {
		case "Interface":
			if err := applyInterfaceField(&cfg, key, value); err != nil {
				return cfg, err
			}
		case "Peer":
			if peer == nil {
				continue
			}
			if err := applyPeerField(peer, key, value); err != nil {
				return cfg, err
			}
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return cfg, err
	}

	cfg.ReplacePeers = true
	cfg.Peers = peers
	return cfg, nil
}

func applyInterfaceField(cfg *wgtypes.Config, key, value string) error {
	switch key {
	case "PrivateKey":
		k, err := wgtypes.ParseKey(value)
		if err != nil {
			return fmt.Errorf("parsing PrivateKey: %w", err)
		}
		cfg.PrivateKey = &k
	case "ListenPort":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("parsing ListenPort: %w", err)
		}
		cfg.ListenPort = &port
	}
	return nil
}

func applyPeerField(peer *wgtypes.PeerConfig, key, value string) error {
	switch key {
	case "PublicKey":
		k, err := wgtypes.ParseKey(value)
		if err != nil {
			return fmt.Errorf("parsing PublicKey: %w", err)
		}
		peer.PublicKey = k
	case "PresharedKey":
		k, err := wgtypes.ParseKey(value)
		if err != nil {
			return fmt.Errorf("parsing PresharedKey: %w", err)
		}
		peer.PresharedKey = &k
	case "AllowedIPs":
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			_, ipNet, err := net.ParseCIDR(part)
			if err != nil {
				return fmt.Errorf("parsing AllowedIPs entry %q: %w", part, err)
			}
			peer.AllowedIPs = append(peer.AllowedIPs, *ipNet)
		}
	case "Endpoint":
		host, portStr, err := net.SplitHostPort(value)
		if err != nil {
			return fmt.Errorf("parsing Endpoint %q: %w", value, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("parsing Endpoint port %q: %w", portStr, err)
		}
		addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			return fmt.Errorf("resolving Endpoint %q: %w", value, err)
		}
		peer.Endpoint = addr
	case "PersistentKeepalive":
		secs, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("parsing PersistentKeepalive: %w", err)
		}
		d := time.Duration(secs) * time.Second
		peer.PersistentKeepaliveInterval = &d
	}
	return nil
}
