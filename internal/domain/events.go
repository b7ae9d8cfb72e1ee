package domain

// EventKind discriminates the Event variants on the wire and on the
// broadcast hub.
type EventKind string

const (
	EventPeerConnected       EventKind = "peer_connected"
	EventPeerDisconnected    EventKind = "peer_disconnected"
	EventPeerEndpointChanged EventKind = "peer_endpoint_changed"
)

// Event is one peer lifecycle occurrence discovered by the watchdog:
// PeerConnected, PeerDisconnected, or PeerEndpointChanged. Kind
// discriminates which optional fields are meaningful; Endpoint is set for
// Connected and EndpointChanged, never for Disconnected.
type Event struct {
	Kind     EventKind `json:"kind"`
	Network  PublicKey `json:"network"`
	Peer     PublicKey `json:"peer"`
	Endpoint *Endpoint `json:"endpoint,omitempty"`
}

// PeerConnected builds a connect event.
func PeerConnected(network, peer PublicKey, endpoint Endpoint) Event {
	return Event{Kind: EventPeerConnected, Network: network, Peer: peer, Endpoint: &endpoint}
}

// PeerDisconnected builds a disconnect event.
func PeerDisconnected(network, peer PublicKey) Event {
	return Event{Kind: EventPeerDisconnected, Network: network, Peer: peer}
}

// PeerEndpointChanged builds an endpoint-change event.
func PeerEndpointChanged(network, peer PublicKey, endpoint Endpoint) Event {
	return Event{Kind: EventPeerEndpointChanged, Network: network, Peer: peer, Endpoint: &endpoint}
}
