package whatsapp

import "time"

// ConnectionState tracks the lifecycle of the single WhatsApp session.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateQRPending
	StateConnected
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateQRPending:
		return "qr_pending"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Status is a consistent snapshot of the connector state. Exactly one of
// QRCode and Identity is non-empty at any time: a session is either
// mid-pairing or authenticated, never both.
type Status struct {
	State           ConnectionState
	QRCode          string
	Identity        string
	LastConnectedAt time.Time
}

// Connected reports whether the session is usable for sends.
func (s Status) Connected() bool {
	return s.State == StateConnected
}

// QRAvailable reports whether a pairing code is waiting to be scanned.
func (s Status) QRAvailable() bool {
	return s.State == StateQRPending && s.QRCode != ""
}
