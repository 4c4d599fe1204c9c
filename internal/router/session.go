package router

import "courier-relay/internal/registry"

// State is a connection's position in the protocol lifecycle.
type State int

const (
	StateUnidentified State = iota
	StateIdentified
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnidentified:
		return "unidentified"
	case StateIdentified:
		return "identified"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Session is the per-connection protocol state. All mutation happens
// on the connection's read loop, via HandleFrame and HandleDisconnect,
// so the fields need no lock.
type Session struct {
	Conn       registry.Conn
	RemoteAddr string

	state    State
	identity string
	deviceID string
	epoch    uint64
}

func NewSession(conn registry.Conn, remoteAddr string) *Session {
	return &Session{Conn: conn, RemoteAddr: remoteAddr}
}

func (s *Session) State() State { return s.state }

func (s *Session) Identity() string { return s.identity }

func (s *Session) DeviceID() string { return s.deviceID }

func (s *Session) Identified() bool { return s.state == StateIdentified }
