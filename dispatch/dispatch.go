package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"barber-whatsapp-bridge/backend"
	"barber-whatsapp-bridge/templates"
	"barber-whatsapp-bridge/whatsapp"
)

// ValidationError is malformed caller input: missing recipient, or a body
// that does not carry exactly one of message / template_type.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Connection is the slice of the session connector the dispatcher needs.
type Connection interface {
	Send(ctx context.Context, rawNumber, text string) (string, error)
}

// Notifier is the best-effort audit push to the appointment backend. It
// must never block and never return control-flow errors.
type Notifier interface {
	LogMessage(rec backend.MessageRecord)
}

// SendInput is one outbound message request, free-form or templated.
type SendInput struct {
	Phone         string
	Message       string
	TemplateType  string
	TemplateData  map[string]string
	AppointmentID string
}

// BulkRecipient is one entry of a bulk send; Fields overlays the shared
// template data for this recipient.
type BulkRecipient struct {
	Phone  string
	Fields map[string]string
}

// BulkResult is the per-recipient outcome of a bulk send.
type BulkResult struct {
	Phone   string `json:"phone_number"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Dispatcher orchestrates one send: validate, render, deliver, and push
// the outcome to the backend. Bulk sends go through the same path one
// recipient at a time with a minimum pacing delay, so the network never
// sees a burst.
type Dispatcher struct {
	conn    Connection
	relay   Notifier
	limiter *rate.Limiter
	metrics *Metrics
	log     zerolog.Logger
}

func NewDispatcher(conn Connection, relay Notifier, bulkDelay time.Duration, metrics *Metrics, logger zerolog.Logger) *Dispatcher {
	if bulkDelay <= 0 {
		bulkDelay = time.Second
	}
	return &Dispatcher{
		conn:    conn,
		relay:   relay,
		limiter: rate.NewLimiter(rate.Every(bulkDelay), 1),
		metrics: metrics,
		log:     logger,
	}
}

// Send validates, renders if a template was requested, and delivers one
// message. The outcome (sent or failed) is pushed to the backend relay
// asynchronously; a relay failure never fails this call. The only case
// with no relay push is a send that was never attempted.
func (d *Dispatcher) Send(ctx context.Context, in SendInput) error {
	if err := validate(in); err != nil {
		return err
	}

	text := in.Message
	if in.TemplateType != "" {
		rendered, err := templates.Render(in.TemplateType, in.TemplateData)
		if err != nil {
			return err
		}
		text = rendered
	}

	number, err := d.conn.Send(ctx, in.Phone, text)
	if errors.Is(err, whatsapp.ErrNotConnected) {
		// No send was attempted, so there is nothing to audit.
		return err
	}

	rec := backend.MessageRecord{
		ToPhone:       number,
		Message:       text,
		TemplateType:  in.TemplateType,
		AppointmentID: in.AppointmentID,
		CreatedAt:     time.Now().UTC(),
	}
	if tpl, ok := templates.Lookup(in.TemplateType); ok {
		rec.TemplateTitle = tpl.Title
	}
	if rec.ToPhone == "" {
		rec.ToPhone = in.Phone
	}

	if err != nil {
		rec.Status = "failed"
		rec.Error = err.Error()
		d.metrics.observe(in.TemplateType, false)
		d.relay.LogMessage(rec)
		d.log.Warn().Err(err).Str("to", in.Phone).Msg("message send failed")
		return err
	}

	now := time.Now().UTC()
	rec.Status = "sent"
	rec.SentAt = &now
	d.metrics.observe(in.TemplateType, true)
	d.relay.LogMessage(rec)
	d.log.Info().Str("to", number).Str("template", in.TemplateType).Msg("message sent")
	return nil
}

// SendBulk attempts every recipient exactly once, sequentially, pacing
// sends with the configured delay. One recipient failing never aborts the
// batch; the result slice always has one entry per recipient, in order.
func (d *Dispatcher) SendBulk(ctx context.Context, recipients []BulkRecipient, in SendInput) []BulkResult {
	results := make([]BulkResult, 0, len(recipients))
	for _, recipient := range recipients {
		// The limiter starts with one free token, so the first send goes
		// out immediately and every following one waits the full delay.
		if err := d.limiter.Wait(ctx); err != nil {
			results = append(results, BulkResult{Phone: recipient.Phone, Error: "cancelled"})
			continue
		}

		item := SendInput{
			Phone:         recipient.Phone,
			Message:       in.Message,
			TemplateType:  in.TemplateType,
			TemplateData:  mergeFields(in.TemplateData, recipient.Fields),
			AppointmentID: in.AppointmentID,
		}
		if fieldID := recipient.Fields["appointment_id"]; fieldID != "" {
			item.AppointmentID = fieldID
		}

		if err := d.Send(ctx, item); err != nil {
			results = append(results, BulkResult{Phone: recipient.Phone, Error: err.Error()})
			continue
		}
		results = append(results, BulkResult{Phone: recipient.Phone, Success: true})
	}
	return results
}

func validate(in SendInput) error {
	if in.Phone == "" {
		return &ValidationError{Reason: "phone_number is required"}
	}
	hasMessage := in.Message != ""
	hasTemplate := in.TemplateType != ""
	if hasMessage == hasTemplate {
		return &ValidationError{Reason: "exactly one of message or template_type is required"}
	}
	return nil
}

func mergeFields(base, overlay map[string]string) map[string]string {
	if len(overlay) == 0 {
		return base
	}
	merged := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}
