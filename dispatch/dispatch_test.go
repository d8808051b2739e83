package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barber-whatsapp-bridge/backend"
	"barber-whatsapp-bridge/templates"
	"barber-whatsapp-bridge/whatsapp"
)

type fakeConn struct {
	mu        sync.Mutex
	connected bool
	failFor   map[string]error
	sent      []string
	texts     []string
}

func (f *fakeConn) Send(ctx context.Context, rawNumber, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return "", whatsapp.ErrNotConnected
	}
	if err, ok := f.failFor[rawNumber]; ok {
		return rawNumber, &whatsapp.TransportError{Recipient: rawNumber, Err: err}
	}
	f.sent = append(f.sent, rawNumber)
	f.texts = append(f.texts, text)
	return rawNumber, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	records []backend.MessageRecord
}

func (n *recordingNotifier) LogMessage(rec backend.MessageRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.records = append(n.records, rec)
}

func (n *recordingNotifier) all() []backend.MessageRecord {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]backend.MessageRecord(nil), n.records...)
}

func newTestDispatcher(conn *fakeConn, relay *recordingNotifier) *Dispatcher {
	metrics := NewMetrics(prometheus.NewRegistry())
	return NewDispatcher(conn, relay, time.Millisecond, metrics, zerolog.Nop())
}

func confirmedData() map[string]string {
	return map[string]string{
		"client_name":  "Ana",
		"service_name": "Corte",
		"barber_name":  "Luis",
		"date":         "10/05/2025",
		"time":         "15:00",
		"price":        "20",
	}
}

func TestSendTemplateLogsSentRecord(t *testing.T) {
	conn := &fakeConn{connected: true}
	relay := &recordingNotifier{}
	d := newTestDispatcher(conn, relay)

	err := d.Send(context.Background(), SendInput{
		Phone:        "+15551230000",
		TemplateType: "appointment_confirmed",
		TemplateData: confirmedData(),
	})
	require.NoError(t, err)

	require.Len(t, conn.sent, 1)
	assert.Contains(t, conn.texts[0], "Corte")
	assert.Contains(t, conn.texts[0], "Luis")

	records := relay.all()
	require.Len(t, records, 1, "exactly one backend log call")
	assert.Equal(t, "sent", records[0].Status)
	assert.Equal(t, "appointment_confirmed", records[0].TemplateType)
	assert.Equal(t, "Cita Confirmada", records[0].TemplateTitle)
	require.NotNil(t, records[0].SentAt)
}

func TestSendWhileDisconnectedLogsNothing(t *testing.T) {
	conn := &fakeConn{connected: false}
	relay := &recordingNotifier{}
	d := newTestDispatcher(conn, relay)

	err := d.Send(context.Background(), SendInput{
		Phone:        "+15551230000",
		TemplateType: "appointment_confirmed",
		TemplateData: confirmedData(),
	})
	require.ErrorIs(t, err, whatsapp.ErrNotConnected)
	assert.Empty(t, relay.all(), "no send was attempted, nothing to audit")
}

func TestSendTransportFailureLogsFailedRecord(t *testing.T) {
	conn := &fakeConn{
		connected: true,
		failFor:   map[string]error{"51987654321": errors.New("recipient blocked")},
	}
	relay := &recordingNotifier{}
	d := newTestDispatcher(conn, relay)

	err := d.Send(context.Background(), SendInput{
		Phone:   "51987654321",
		Message: "hola",
	})
	require.Error(t, err)

	records := relay.all()
	require.Len(t, records, 1)
	assert.Equal(t, "failed", records[0].Status)
	assert.Contains(t, records[0].Error, "recipient blocked")
	assert.Nil(t, records[0].SentAt)
}

func TestSendValidation(t *testing.T) {
	conn := &fakeConn{connected: true}
	relay := &recordingNotifier{}
	d := newTestDispatcher(conn, relay)

	cases := []SendInput{
		{Message: "hola"},                                       // no phone
		{Phone: "51987654321"},                                  // neither message nor template
		{Phone: "51987654321", Message: "a", TemplateType: "b"}, // both
	}
	for _, in := range cases {
		err := d.Send(context.Background(), in)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "input %+v", in)
	}
	assert.Empty(t, conn.sent)
	assert.Empty(t, relay.all())
}

func TestSendUnknownTemplate(t *testing.T) {
	conn := &fakeConn{connected: true}
	d := newTestDispatcher(conn, &recordingNotifier{})

	err := d.Send(context.Background(), SendInput{
		Phone:        "51987654321",
		TemplateType: "no_such_template",
		TemplateData: confirmedData(),
	})
	var unknown *templates.UnknownTemplateError
	require.ErrorAs(t, err, &unknown)
	assert.Empty(t, conn.sent)
}

func TestSendBulkAttemptsEveryRecipient(t *testing.T) {
	conn := &fakeConn{
		connected: true,
		failFor:   map[string]error{"51922222222": errors.New("invalid recipient")},
	}
	relay := &recordingNotifier{}
	d := newTestDispatcher(conn, relay)

	recipients := []BulkRecipient{
		{Phone: "51911111111", Fields: map[string]string{"client_name": "Ana"}},
		{Phone: "51922222222", Fields: map[string]string{"client_name": "Bea"}},
		{Phone: "51933333333", Fields: map[string]string{"client_name": "Cleo"}},
	}
	results := d.SendBulk(context.Background(), recipients, SendInput{
		TemplateType: "appointment_reminder",
		TemplateData: map[string]string{
			"service_name": "Corte",
			"barber_name":  "Luis",
			"time":         "15:00",
		},
	})

	require.Len(t, results, 3, "one result entry per recipient")
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Error, "invalid recipient")
	assert.True(t, results[2].Success, "a failure must not abort the batch")

	assert.Equal(t, []string{"51911111111", "51933333333"}, conn.sent)
	assert.Len(t, relay.all(), 3, "every attempt is audited")
}

func TestSendBulkMissingFieldForOneRecipient(t *testing.T) {
	conn := &fakeConn{connected: true}
	d := newTestDispatcher(conn, &recordingNotifier{})

	recipients := []BulkRecipient{
		{Phone: "51911111111", Fields: map[string]string{"client_name": "Ana"}},
		{Phone: "51922222222"}, // no client_name anywhere
	}
	results := d.SendBulk(context.Background(), recipients, SendInput{
		TemplateType: "barber_new_appointment",
		TemplateData: map[string]string{
			"service_name": "Corte",
			"date":         "10/05/2025",
			"time":         "15:00",
		},
	})

	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Error, "client_name")
}

func TestSendBulkPacesSends(t *testing.T) {
	conn := &fakeConn{connected: true}
	metrics := NewMetrics(prometheus.NewRegistry())
	d := NewDispatcher(conn, &recordingNotifier{}, 30*time.Millisecond, metrics, zerolog.Nop())

	recipients := []BulkRecipient{
		{Phone: "51911111111"}, {Phone: "51922222222"}, {Phone: "51933333333"},
	}
	start := time.Now()
	d.SendBulk(context.Background(), recipients, SendInput{Message: "hola"})
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond, "two inter-message delays expected")
}
