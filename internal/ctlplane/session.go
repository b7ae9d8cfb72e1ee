package ctlplane

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"fractalnet.io/gatewayd/internal/broadcast"
	"fractalnet.io/gatewayd/internal/domain"
	"fractalnet.io/gatewayd/internal/logging"
	"fractalnet.io/gatewayd/internal/metrics"
)

// State is the session's connection state, per §4.5's
// Disconnected -> Connecting -> Connected -> Draining -> Disconnected
// machine.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// ReconnectDelay is the fixed delay between transport errors and the next
// dial attempt.
const ReconnectDelay = 1 * time.Second

// Applier is the subset of *reconcile.Reconciler the session dispatches
// inbound frames to. A narrow interface keeps this package testable
// without depending on osprim or gwstate.
type Applier interface {
	Apply(ctx context.Context, full domain.GatewayConfig) error
	ApplyPartial(ctx context.Context, diff domain.GatewayConfigPartial) error
}

// Session is the client side of the control-plane channel: it dials a
// manager URL, dispatches inbound Apply/ApplyPartial/Shutdown frames to an
// Applier, and forwards the gateway's traffic and event broadcast hubs
// outbound.
type Session struct {
	url      string
	token    string
	identity string

	applier Applier
	traffic *broadcast.Hub[domain.TrafficInfo]
	events  *broadcast.Hub[domain.Event]

	dialer *websocket.Dialer
	log    *logging.Logger

	state State
}

// Option configures a Session.
type Option func(*Session)

// WithDialer overrides the websocket.Dialer, for tests that substitute a
// fake transport.
func WithDialer(d *websocket.Dialer) Option {
	return func(s *Session) { s.dialer = d }
}

// New constructs a Session. url is the manager's ws(s):// endpoint; token
// is sent as a bearer Authorization header; identity distinguishes this
// gateway instance within the manager's account.
func New(url, token, identity string, applier Applier, traffic *broadcast.Hub[domain.TrafficInfo], events *broadcast.Hub[domain.Event], opts ...Option) *Session {
	s := &Session{
		url:      url,
		token:    token,
		identity: identity,
		applier:  applier,
		traffic:  traffic,
		events:   events,
		dialer:   websocket.DefaultDialer,
		log:      logging.WithComponent("ctlplane"),
		state:    StateDisconnected,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State reports the session's current connection state.
func (s *Session) State() State { return s.state }

func (s *Session) setState(st State) {
	s.state = st
	metrics.Get().SessionState.Set(float64(st))
}

// Run dials the manager and serves the session until ctx is canceled or a
// Shutdown frame is received. On any transport error it reconnects after
// ReconnectDelay, per §4.5.
func (s *Session) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			s.setState(StateDisconnected)
			return ctx.Err()
		}

		s.setState(StateConnecting)
		conn, err := s.dial(ctx)
		if err != nil {
			s.log.Warn("dial failed, retrying", "error", err, "delay", ReconnectDelay)
			metrics.Get().SessionReconnects.Inc()
			if !sleepOrDone(ctx, ReconnectDelay) {
				s.setState(StateDisconnected)
				return ctx.Err()
			}
			continue
		}

		s.setState(StateConnected)
		shutdown, err := s.serve(ctx, conn)
		conn.Close()

		if shutdown {
			s.setState(StateDraining)
			return nil
		}

		s.setState(StateDisconnected)
		if err != nil {
			s.log.Warn("session ended, reconnecting", "error", err, "delay", ReconnectDelay)
		}
		metrics.Get().SessionReconnects.Inc()
		if !sleepOrDone(ctx, ReconnectDelay) {
			return ctx.Err()
		}
	}
}

func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.token)
	header.Set("X-Gateway-Identity", s.identity)

	conn, _, err := s.dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return nil, fmt.Errorf("dialing control plane: %w", err)
	}
	return conn, nil
}

// serve multiplexes one connected session: received frames dispatch to the
// applier and produce one Apply response each; traffic/event hub
// subscriptions forward outbound. Returns shutdown=true if a Shutdown
// frame was received.
func (s *Session) serve(ctx context.Context, conn *websocket.Conn) (shutdown bool, err error) {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	trafficSub := s.traffic.Subscribe(0)
	defer trafficSub.Unsubscribe()
	eventSub := s.events.Subscribe(0)
	defer eventSub.Unsubscribe()

	inbound := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(inbound)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case inbound <- msg:
			case <-sctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-sctx.Done():
			return false, sctx.Err()

		case err := <-readErr:
			return false, fmt.Errorf("%w: %v", ErrChannel, err)

		case raw, ok := <-inbound:
			if !ok {
				continue
			}
			done, werr := s.handleInbound(sctx, conn, raw)
			if werr != nil {
				return false, werr
			}
			if done {
				return true, nil
			}

		case info := <-trafficSub.C:
			if err := writeEnvelope(conn, trafficFrame(info)); err != nil {
				return false, fmt.Errorf("%w: %v", ErrChannel, err)
			}

		case ev := <-eventSub.C:
			if err := writeEnvelope(conn, eventFrame(ev)); err != nil {
				return false, fmt.Errorf("%w: %v", ErrChannel, err)
			}
		}
	}
}

func (s *Session) handleInbound(ctx context.Context, conn *websocket.Conn, raw []byte) (shutdown bool, err error) {
	tag, id, full, diff, decodeErr := decodeInbound(raw)
	if decodeErr != nil {
		s.log.Error("dropping malformed frame", "error", decodeErr)
		return false, writeEnvelope(conn, errResult(uuid.NewString(), decodeErr.Error()))
	}

	switch tag {
	case FrameShutdown:
		s.log.Info("received shutdown, draining")
		return true, nil

	case FrameApply:
		start := time.Now()
		applyErr := s.applier.Apply(ctx, full)
		s.recordApply("full", start, applyErr)
		return false, writeEnvelope(conn, applyResponse(id, applyErr))

	case FrameApplyPartial:
		start := time.Now()
		applyErr := s.applier.ApplyPartial(ctx, diff)
		s.recordApply("partial", start, applyErr)
		return false, writeEnvelope(conn, applyResponse(id, applyErr))

	default:
		return false, nil
	}
}

func (s *Session) recordApply(kind string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.Get().RecordApplyRequest(kind, outcome, time.Since(start).Seconds())
}

func applyResponse(id string, err error) outboundEnvelope {
	if err != nil {
		return errResult(id, err.Error())
	}
	return okResult(id, "applied")
}

func writeEnvelope(conn *websocket.Conn, env outboundEnvelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}

// sleepOrDone waits d or until ctx is done, returning false if ctx ended
// the wait early.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
