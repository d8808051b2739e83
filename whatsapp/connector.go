package whatsapp

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ConnectorConfig carries the connector dependencies. Transport is required;
// everything else has a usable default.
type ConnectorConfig struct {
	Transport Transport

	// ReconnectDelay is the flat wait before re-dialing after an
	// unexpected loss. Reconnects repeat until Disconnect is called.
	ReconnectDelay time.Duration

	// CountryCode and LocalNumberLength drive recipient normalization.
	CountryCode       string
	LocalNumberLength int

	// OnConnected, when set, is notified after every successful
	// connection, outside the connector lock.
	OnConnected func(identity string)

	Logger zerolog.Logger
}

// Connector owns the lifecycle of the single outbound WhatsApp session:
// it establishes it, tracks its state, and re-establishes it after an
// unexpected loss. All state transitions happen under one mutex so HTTP
// handlers always read a consistent snapshot.
type Connector struct {
	transport Transport
	delay     time.Duration

	countryCode string
	localLength int
	onConnected func(string)
	log         zerolog.Logger

	mu            sync.Mutex
	state         ConnectionState
	qrCode        string
	identity      string
	lastConnected time.Time
	autoReconnect bool
	ctx           context.Context
	reconnectTmr  *time.Timer
}

func NewConnector(cfg ConnectorConfig) *Connector {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	c := &Connector{
		transport:   cfg.Transport,
		delay:       cfg.ReconnectDelay,
		countryCode: cfg.CountryCode,
		localLength: cfg.LocalNumberLength,
		onConnected: cfg.OnConnected,
		log:         cfg.Logger,
		state:       StateDisconnected,
		ctx:         context.Background(),
	}
	cfg.Transport.SetHandler(c)
	return c
}

// Status returns a consistent snapshot of the session state.
func (c *Connector) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:           c.state,
		QRCode:          c.qrCode,
		Identity:        c.identity,
		LastConnectedAt: c.lastConnected,
	}
}

// Connect starts the session: silent resumption when credentials exist,
// otherwise a fresh QR pairing. It is idempotent while a connection is
// underway or established.
func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateQRPending, StateConnected:
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.qrCode = ""
	c.identity = ""
	c.autoReconnect = true
	c.ctx = ctx
	c.mu.Unlock()

	if c.transport.HasCredentials() {
		c.log.Info().Msg("resuming stored whatsapp session")
	} else {
		c.log.Info().Msg("no stored credentials, starting qr pairing")
	}

	if err := c.transport.Connect(ctx); err != nil {
		c.mu.Lock()
		c.state = StateError
		c.mu.Unlock()
		c.log.Error().Err(err).Msg("whatsapp connect failed")
		return err
	}
	return nil
}

// Disconnect performs an explicit logout: credentials are revoked, the
// socket is closed, and auto-reconnect stays off until Connect is called
// again. Safe to call in any state.
func (c *Connector) Disconnect(ctx context.Context) {
	c.mu.Lock()
	c.autoReconnect = false
	if c.reconnectTmr != nil {
		c.reconnectTmr.Stop()
		c.reconnectTmr = nil
	}
	c.mu.Unlock()

	if err := c.transport.Logout(ctx); err != nil {
		c.log.Warn().Err(err).Msg("logout failed, closing socket anyway")
	}
	c.transport.Disconnect()

	c.mu.Lock()
	c.state = StateDisconnected
	c.qrCode = ""
	c.identity = ""
	c.mu.Unlock()
	c.log.Info().Msg("whatsapp disconnected")
}

// Reconnect discards the current session and credentials and starts a
// fresh pairing. Used when an operator wants to re-pair from scratch.
func (c *Connector) Reconnect(ctx context.Context) error {
	c.Disconnect(ctx)
	return c.Connect(ctx)
}

// Send normalizes the recipient and hands the text to the transport. It
// fails fast with ErrNotConnected when the session is down; it never
// retries internally. The normalized recipient is returned for logging.
func (c *Connector) Send(ctx context.Context, rawNumber, text string) (string, error) {
	c.mu.Lock()
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected {
		return "", ErrNotConnected
	}

	number, err := NormalizeNumber(rawNumber, c.countryCode, c.localLength)
	if err != nil {
		return "", &TransportError{Recipient: rawNumber, Err: err}
	}

	if err := c.transport.SendText(ctx, number, text); err != nil {
		return number, &TransportError{Recipient: number, Err: err}
	}
	return number, nil
}

// OnQRCode implements EventHandler. A pairing code replaces any previous
// identity: the session is mid-pairing now.
func (c *Connector) OnQRCode(code string) {
	c.mu.Lock()
	c.state = StateQRPending
	c.qrCode = code
	c.identity = ""
	c.mu.Unlock()
	c.log.Info().Msg("qr code received, waiting for scan")
}

// OnConnected implements EventHandler.
func (c *Connector) OnConnected(identity string) {
	c.mu.Lock()
	c.state = StateConnected
	c.qrCode = ""
	c.identity = identity
	c.lastConnected = time.Now()
	notify := c.onConnected
	c.mu.Unlock()

	c.log.Info().Str("identity", identity).Msg("whatsapp connected")
	if notify != nil {
		go notify(identity)
	}
}

// OnDisconnected implements EventHandler. A logout means the credentials
// were revoked remotely, so retrying with them would loop; any other cause
// schedules a reconnect after the flat delay.
func (c *Connector) OnDisconnected(loggedOut bool, reason string) {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.qrCode = ""
	c.identity = ""

	retry := c.autoReconnect && !loggedOut
	if loggedOut {
		c.autoReconnect = false
	}
	if retry {
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()

	c.log.Warn().
		Bool("logged_out", loggedOut).
		Bool("will_retry", retry).
		Str("reason", reason).
		Msg("whatsapp connection lost")
}

// scheduleReconnectLocked arms the flat-delay retry timer. Attempts repeat
// until one succeeds or the operator disconnects. Caller holds c.mu.
func (c *Connector) scheduleReconnectLocked() {
	ctx := c.ctx
	c.reconnectTmr = time.AfterFunc(c.delay, func() {
		c.mu.Lock()
		armed := c.autoReconnect
		c.mu.Unlock()
		if !armed {
			return
		}
		if err := c.Connect(ctx); err != nil {
			c.log.Warn().Err(err).Msg("reconnect attempt failed")
			c.mu.Lock()
			if c.autoReconnect {
				c.scheduleReconnectLocked()
			}
			c.mu.Unlock()
		}
	})
}
