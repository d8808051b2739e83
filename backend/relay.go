package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"barber-whatsapp-bridge/utils"
)

// MessageRecord is the per-attempt audit entry pushed to the appointment
// backend. Field names match the backend's whatsapp_messages collection.
type MessageRecord struct {
	ToPhone       string     `json:"to_phone"`
	Message       string     `json:"message"`
	TemplateType  string     `json:"template_type,omitempty"`
	TemplateTitle string     `json:"template_title,omitempty"`
	AppointmentID string     `json:"appointment_id,omitempty"`
	Status        string     `json:"status"`
	Error         string     `json:"error,omitempty"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Reminder is an appointment the backend wants reminded, as served by
// GET /api/whatsapp/appointments/reminders. The backend marks entries as
// reminder_sent when serving them, so the bridge does not deduplicate.
type Reminder struct {
	AppointmentID string    `json:"appointment_id"`
	ClientName    string    `json:"client_name"`
	ClientPhone   string    `json:"client_phone"`
	BarberName    string    `json:"barber_name"`
	ServiceName   string    `json:"service_name"`
	ScheduledAt   time.Time `json:"scheduled_at"`
}

// Relay pushes message outcomes and connection status to the appointment
// backend and fetches reminder candidates. Pushes are best-effort: they
// retry briefly in the background and never surface an error to the send
// path.
type Relay struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

func NewRelay(baseURL string, logger zerolog.Logger) *Relay {
	return &Relay{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     logger,
	}
}

// LogMessage pushes one send outcome. Fire-and-forget: it returns
// immediately and failures are only logged.
func (r *Relay) LogMessage(rec MessageRecord) {
	go func() {
		err := utils.WithRetry(context.Background(), func() error {
			return r.post("/api/whatsapp/messages", rec)
		}, utils.RelayRetryConfig())
		if err != nil {
			r.log.Warn().Err(err).Str("to", rec.ToPhone).Msg("message log push failed")
		}
	}()
}

// PushStatus tells the backend the session came up (or went down).
// Best-effort like LogMessage.
func (r *Relay) PushStatus(connected bool, phoneNumber string) {
	payload := map[string]interface{}{
		"connected":    connected,
		"phone_number": phoneNumber,
		"timestamp":    time.Now().UTC(),
	}
	go func() {
		err := utils.WithRetry(context.Background(), func() error {
			return r.post("/api/whatsapp/connection-status", payload)
		}, utils.RelayRetryConfig())
		if err != nil {
			r.log.Warn().Err(err).Msg("connection status push failed")
		}
	}()
}

// FetchReminders asks the backend for appointments inside the reminder
// window. Unlike the pushes this is synchronous: the scheduler wants the
// result.
func (r *Relay) FetchReminders(ctx context.Context) ([]Reminder, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/api/whatsapp/appointments/reminders", nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch reminders: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch reminders: backend returned %d", resp.StatusCode)
	}

	var reminders []Reminder
	if err := json.NewDecoder(resp.Body).Decode(&reminders); err != nil {
		return nil, fmt.Errorf("fetch reminders: decode: %w", err)
	}
	return reminders, nil
}

func (r *Relay) post(path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return backoff.Permanent(err)
	}

	resp, err := r.client.Post(r.baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("backend returned %d", resp.StatusCode)
	}
	return nil
}
