package domain

import (
	"fmt"
	"sort"
	"strings"
)

// RenderProxyConfig renders a ForwardingSnapshot into an nginx-style
// configuration fragment: one upstream block per group, then one server
// block per external host mapping to its group, HTTPS section first. The
// external reverse-proxy process is expected to include this fragment and
// reload, picking up changes without restarting established connections to
// untouched upstreams.
func RenderProxyConfig(snap ForwardingSnapshot) string {
	var b strings.Builder

	writeUpstreams(&b, snap.HTTPSUpstream)
	writeUpstreams(&b, snap.HTTPUpstream)

	writeServers(&b, "https", snap.HTTPSForwarding)
	writeServers(&b, "http", snap.HTTPForwarding)

	if len(snap.SSH) > 0 {
		b.WriteString("\n# ssh\n")
		for _, ep := range sortedEndpoints(snap.SSH) {
			fmt.Fprintf(&b, "stream_upstream %s:%d;\n", ep.Address, ep.Port)
		}
	}

	return b.String()
}

func writeUpstreams(b *strings.Builder, groups map[string][]UpstreamEndpoint) {
	for _, group := range sortedKeys(groups) {
		fmt.Fprintf(b, "upstream %s {\n", group)
		for _, ep := range sortedEndpoints(groups[group]) {
			fmt.Fprintf(b, "    server %s:%d;\n", ep.Address, ep.Port)
		}
		b.WriteString("}\n")
	}
}

func writeServers(b *strings.Builder, scheme string, forwarding map[string]string) {
	for _, host := range sortedKeys(forwarding) {
		fmt.Fprintf(b, "\nserver {\n    listen %s;\n    server_name %s;\n    proxy_pass http://%s;\n}\n",
			schemeListen(scheme), host, forwarding[host])
	}
}

func schemeListen(scheme string) string {
	if scheme == "https" {
		return "443 ssl"
	}
	return "80"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedEndpoints(eps []UpstreamEndpoint) []UpstreamEndpoint {
	out := append([]UpstreamEndpoint(nil), eps...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Address != out[j].Address {
			return out[i].Address < out[j].Address
		}
		return out[i].Port < out[j].Port
	})
	return out
}
