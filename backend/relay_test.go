package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogMessagePushesRecord(t *testing.T) {
	received := make(chan MessageRecord, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/whatsapp/messages", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var rec MessageRecord
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rec))
		received <- rec
	}))
	defer srv.Close()

	relay := NewRelay(srv.URL, zerolog.Nop())
	now := time.Now()
	relay.LogMessage(MessageRecord{
		ToPhone:      "51987654321",
		Message:      "hola",
		TemplateType: "appointment_confirmed",
		Status:       "sent",
		SentAt:       &now,
		CreatedAt:    now,
	})

	select {
	case rec := <-received:
		assert.Equal(t, "51987654321", rec.ToPhone)
		assert.Equal(t, "sent", rec.Status)
		assert.Equal(t, "appointment_confirmed", rec.TemplateType)
	case <-time.After(2 * time.Second):
		t.Fatal("backend never received the log push")
	}
}

func TestLogMessageRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	received := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		received <- struct{}{}
	}))
	defer srv.Close()

	relay := NewRelay(srv.URL, zerolog.Nop())
	relay.LogMessage(MessageRecord{ToPhone: "51987654321", Status: "failed", CreatedAt: time.Now()})

	select {
	case <-received:
		assert.GreaterOrEqual(t, calls.Load(), int32(2))
	case <-time.After(5 * time.Second):
		t.Fatal("push was not retried")
	}
}

func TestLogMessageFailureIsNonFatal(t *testing.T) {
	// Unreachable backend: LogMessage must still return immediately.
	relay := NewRelay("http://127.0.0.1:1", zerolog.Nop())

	done := make(chan struct{})
	go func() {
		relay.LogMessage(MessageRecord{ToPhone: "51987654321", Status: "sent", CreatedAt: time.Now()})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("LogMessage blocked the caller")
	}
}

func TestPushStatus(t *testing.T) {
	received := make(chan map[string]interface{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/whatsapp/connection-status", r.URL.Path)
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		received <- payload
	}))
	defer srv.Close()

	relay := NewRelay(srv.URL, zerolog.Nop())
	relay.PushStatus(true, "51911111111")

	select {
	case payload := <-received:
		assert.Equal(t, true, payload["connected"])
		assert.Equal(t, "51911111111", payload["phone_number"])
	case <-time.After(2 * time.Second):
		t.Fatal("backend never received the status push")
	}
}

func TestFetchReminders(t *testing.T) {
	scheduled := time.Date(2025, 5, 10, 15, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/whatsapp/appointments/reminders", r.URL.Path)
		json.NewEncoder(w).Encode([]Reminder{{
			AppointmentID: "abc123",
			ClientName:    "Ana",
			ClientPhone:   "51987654321",
			BarberName:    "Luis",
			ServiceName:   "Corte",
			ScheduledAt:   scheduled,
		}})
	}))
	defer srv.Close()

	relay := NewRelay(srv.URL, zerolog.Nop())
	reminders, err := relay.FetchReminders(context.Background())
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	assert.Equal(t, "Ana", reminders[0].ClientName)
	assert.True(t, reminders[0].ScheduledAt.Equal(scheduled))
}

func TestFetchRemindersBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	relay := NewRelay(srv.URL, zerolog.Nop())
	_, err := relay.FetchReminders(context.Background())
	require.Error(t, err)
}
