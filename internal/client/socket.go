package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"courier-relay/internal/domain/envelope"
	"courier-relay/internal/router"
	relayerrors "courier-relay/pkg/errors"

	"github.com/gorilla/websocket"
)

// Event types surfaced by Next.
const (
	EventDelivery = router.TypeDelivery
	EventReceipt  = router.TypeReceipt
	EventError    = router.TypeError
)

// Event is one server frame, decoded. Which fields are set depends on
// Type.
type Event struct {
	Type        string
	Envelope    *envelope.Envelope // deliveries
	To          string             // receipts
	DeliveredTo int                // receipts
	Code        string             // error events
}

// Socket is an identified websocket session with the relay.
type Socket struct {
	conn    *websocket.Conn
	pending []Event
}

// Connect upgrades to the relay socket and identifies this device.
// Envelopes that were queued while the device was offline arrive
// before the identified ack; they are buffered and come out of Next
// first.
func (c *Client) Connect(ctx context.Context, deviceID string) (*Socket, error) {
	if c.token == "" {
		return nil, fmt.Errorf("connect: no token, log in first")
	}
	wsURL, err := socketURL(c.base)
	if err != nil {
		return nil, err
	}

	conn, res, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	if res != nil {
		res.Body.Close()
	}

	s := &Socket{conn: conn}
	err = conn.WriteJSON(router.IdentifyFrame{
		Type:     router.TypeIdentify,
		Token:    c.token,
		DeviceID: deviceID,
	})
	if err != nil {
		conn.Close()
		return nil, err
	}

	for {
		ev, err := s.read(ctx)
		if err != nil {
			conn.Close()
			return nil, err
		}
		switch ev.Type {
		case router.TypeIdentified:
			return s, nil
		case router.TypeDelivery:
			s.pending = append(s.pending, ev)
		case router.TypeError:
			conn.Close()
			return nil, fmt.Errorf("identify rejected: %w", ProtocolError(ev.Code))
		}
	}
}

// ProtocolError turns a wire error code into an error wrapping the
// matching sentinel, so callers can branch with errors.Is instead of
// comparing code strings.
func ProtocolError(code string) error {
	var base error
	switch code {
	case router.CodeAuthFailed:
		base = relayerrors.ErrUnauthorized
	case router.CodeUnknownDevice:
		base = relayerrors.ErrDeviceNotFound
	case router.CodeAlreadyIdentified:
		base = relayerrors.ErrAlreadyIdentified
	case router.CodeNotIdentified:
		base = relayerrors.ErrNotIdentified
	case router.CodeRecipientNotFound:
		base = relayerrors.ErrRecipientNotFound
	case router.CodeRateLimited:
		base = relayerrors.ErrRateLimited
	case router.CodeBackendFailure, router.CodeDeliveryFailed:
		base = relayerrors.ErrServiceUnavailable
	default:
		return fmt.Errorf("relay error %q", code)
	}
	return fmt.Errorf("%s: %w", code, base)
}

// Send relays one sealed envelope to the identity it is addressed to.
func (s *Socket) Send(env envelope.Envelope) error {
	return s.conn.WriteJSON(router.MessageFrame{
		Type:       router.TypeMessage,
		ToIdentity: env.To.Identity,
		Payload:    env,
	})
}

// Next returns the next server event. The read deadline comes from
// ctx; without one the call blocks until a frame arrives.
func (s *Socket) Next(ctx context.Context) (Event, error) {
	if len(s.pending) > 0 {
		ev := s.pending[0]
		s.pending = s.pending[1:]
		return ev, nil
	}
	return s.read(ctx)
}

func (s *Socket) Close() error {
	return s.conn.Close()
}

func (s *Socket) read(ctx context.Context) (Event, error) {
	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetReadDeadline(deadline)
	} else {
		s.conn.SetReadDeadline(time.Time{})
	}
	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		return Event{}, err
	}
	return decodeEvent(raw)
}

func decodeEvent(raw []byte) (Event, error) {
	var probe router.Frame
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Event{}, fmt.Errorf("malformed frame: %w", err)
	}

	switch probe.Type {
	case router.TypeDelivery:
		var f router.DeliveryFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return Event{}, err
		}
		return Event{Type: probe.Type, Envelope: &f.Envelope}, nil
	case router.TypeReceipt:
		var f router.ReceiptFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return Event{}, err
		}
		return Event{Type: probe.Type, To: f.To, DeliveredTo: f.DeliveredTo}, nil
	case router.TypeError:
		var f router.ErrorFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return Event{}, err
		}
		return Event{Type: probe.Type, Code: f.Error}, nil
	default:
		return Event{Type: probe.Type}, nil
	}
}

func socketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported relay scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}
