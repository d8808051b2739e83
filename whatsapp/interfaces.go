package whatsapp

import "context"

// Transport is the underlying connection to the messaging network. The
// production implementation wraps whatsmeow; tests substitute a fake so the
// state machine can be driven without a real session.
type Transport interface {
	// SetHandler registers the event sink. Must be called before Connect.
	SetHandler(EventHandler)

	// HasCredentials reports whether a persisted device identity exists.
	HasCredentials() bool

	// Connect starts dialing. It returns once the dial is underway;
	// pairing and connection outcomes arrive through the EventHandler.
	Connect(ctx context.Context) error

	// Disconnect closes the socket without touching stored credentials.
	Disconnect()

	// Logout revokes and deletes the stored credentials. The next
	// Connect starts a fresh pairing.
	Logout(ctx context.Context) error

	// SendText delivers a plain text message to a normalized number.
	SendText(ctx context.Context, number, text string) error

	// Identity returns the authenticated account number, or "".
	Identity() string
}

// EventHandler receives transport lifecycle events. The transport calls it
// from its own goroutines.
type EventHandler interface {
	OnQRCode(code string)
	OnConnected(identity string)
	OnDisconnected(loggedOut bool, reason string)
}
