package whatsapp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "modernc.org/sqlite"
)

// MeowTransport implements Transport on top of whatsmeow. Credentials live
// in the sqlstore container; deleting the database file forces re-pairing.
type MeowTransport struct {
	container *sqlstore.Container
	log       waLog.Logger

	mu      sync.Mutex
	client  *whatsmeow.Client
	handler EventHandler
}

// NewMeowTransport opens (or creates) the credential store at dbPath and
// prepares a client for the first stored device.
func NewMeowTransport(ctx context.Context, dbPath, logLevel string) (*MeowTransport, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create session store dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", dbPath)
	container, err := sqlstore.New(ctx, "sqlite", dsn, waLog.Stdout("Store", logLevel, true))
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	t := &MeowTransport{
		container: container,
		log:       waLog.Stdout("WA", logLevel, true),
	}
	if err := t.initClient(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *MeowTransport) initClient(ctx context.Context) error {
	device, err := t.container.GetFirstDevice(ctx)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("load device: %w", err)
		}
		device = t.container.NewDevice()
	}
	if device == nil {
		device = t.container.NewDevice()
	}

	client := whatsmeow.NewClient(device, t.log)
	client.AddEventHandler(t.handleEvent)
	t.client = client
	return nil
}

func (t *MeowTransport) SetHandler(h EventHandler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

func (t *MeowTransport) HasCredentials() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client != nil && t.client.Store.ID != nil
}

func (t *MeowTransport) Identity() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil && t.client.Store.ID != nil {
		return t.client.Store.ID.User
	}
	return ""
}

// Connect dials the websocket. With no stored credentials it also starts
// the QR pairing flow; codes are forwarded to the handler as they rotate.
func (t *MeowTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		if err := t.initClient(ctx); err != nil {
			return err
		}
	}
	if t.client.IsConnected() {
		return nil
	}

	if t.client.Store.ID == nil {
		// GetQRChannel must be called before Connect on a fresh device.
		qrChan, err := t.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("qr channel: %w", err)
		}
		go t.pumpQR(qrChan)
	}

	return t.client.Connect()
}

func (t *MeowTransport) pumpQR(ch <-chan whatsmeow.QRChannelItem) {
	for evt := range ch {
		switch evt.Event {
		case "code":
			if h := t.currentHandler(); h != nil {
				h.OnQRCode(evt.Code)
			}
		case "timeout":
			t.log.Warnf("QR pairing timed out")
			if h := t.currentHandler(); h != nil {
				h.OnDisconnected(false, "qr pairing timeout")
			}
		case "error":
			t.log.Errorf("QR pairing error: %v", evt.Error)
		}
		// "success" is followed by events.Connected on the main
		// event stream, handled there.
	}
}

func (t *MeowTransport) currentHandler() EventHandler {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handler
}

func (t *MeowTransport) handleEvent(evt interface{}) {
	h := t.currentHandler()
	if h == nil {
		return
	}
	switch v := evt.(type) {
	case *events.Connected:
		h.OnConnected(t.Identity())
	case *events.LoggedOut:
		h.OnDisconnected(true, "logged out by primary device")
	case *events.Disconnected:
		h.OnDisconnected(false, "connection closed")
	case *events.ConnectFailure:
		h.OnDisconnected(false, fmt.Sprintf("connect failure: %s", v.Reason))
	case *events.StreamReplaced:
		h.OnDisconnected(false, "stream replaced by another session")
	}
}

func (t *MeowTransport) Disconnect() {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client != nil {
		client.Disconnect()
	}
}

// Logout revokes and deletes the stored credentials. The client is dropped
// so the next Connect builds a fresh device and pairs again. The remote
// unlink needs a live socket; when it cannot be delivered the device row is
// deleted locally instead, so a later Connect can never resume the stale
// identity.
func (t *MeowTransport) Logout(ctx context.Context) error {
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.mu.Unlock()

	if client == nil {
		return nil
	}
	if client.Store.ID == nil {
		client.Disconnect()
		return nil
	}
	if err := client.Logout(ctx); err != nil {
		client.Disconnect()
		if derr := client.Store.Delete(ctx); derr != nil {
			return fmt.Errorf("logout: %v, delete stored device: %w", err, derr)
		}
		t.log.Warnf("Remote unlink failed (%v), stored device deleted locally", err)
	}
	return nil
}

func (t *MeowTransport) SendText(ctx context.Context, number, text string) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	jid := types.NewJID(number, types.DefaultUserServer)
	_, err := client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	return err
}

// Close shuts the socket and the credential store.
func (t *MeowTransport) Close() error {
	t.Disconnect()
	return t.container.Close()
}
