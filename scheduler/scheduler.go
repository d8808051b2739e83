package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"barber-whatsapp-bridge/backend"
	"barber-whatsapp-bridge/dispatch"
)

// RemindersSource yields the appointments the backend wants reminded.
type RemindersSource interface {
	FetchReminders(ctx context.Context) ([]backend.Reminder, error)
}

// Sender is the dispatch path reminders go through.
type Sender interface {
	Send(ctx context.Context, in dispatch.SendInput) error
}

// Scheduler polls the backend on a fixed low-frequency interval and pushes
// an appointment_reminder to each candidate. Failures are logged per
// recipient and not retried until the next tick; deduplication across
// ticks is the backend's job (it marks appointments when serving the
// reminder query).
type Scheduler struct {
	source   RemindersSource
	sender   Sender
	interval time.Duration
	log      zerolog.Logger
}

func New(source RemindersSource, sender Sender, interval time.Duration, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		source:   source,
		sender:   sender,
		interval: interval,
		log:      logger,
	}
}

// Run ticks until the context is cancelled. The first tick fires after one
// full interval, not at startup, so a crash-looping process does not spam.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sent, failed := s.RunOnce(ctx)
			if sent+failed > 0 {
				s.log.Info().Int("sent", sent).Int("failed", failed).Msg("reminder tick finished")
			}
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce performs a single tick: fetch candidates and attempt each one
// exactly once. A partial failure still completes the tick.
func (s *Scheduler) RunOnce(ctx context.Context) (sent, failed int) {
	reminders, err := s.source.FetchReminders(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("reminder fetch failed, waiting for next tick")
		return 0, 0
	}

	for _, reminder := range reminders {
		in := dispatch.SendInput{
			Phone:         reminder.ClientPhone,
			TemplateType:  "appointment_reminder",
			AppointmentID: reminder.AppointmentID,
			TemplateData: map[string]string{
				"client_name":  reminder.ClientName,
				"barber_name":  reminder.BarberName,
				"service_name": reminder.ServiceName,
				"date":         reminder.ScheduledAt.Format("02/01/2006"),
				"time":         reminder.ScheduledAt.Format("15:04"),
			},
		}
		if err := s.sender.Send(ctx, in); err != nil {
			failed++
			s.log.Warn().Err(err).
				Str("appointment_id", reminder.AppointmentID).
				Str("to", reminder.ClientPhone).
				Msg("reminder send failed")
			continue
		}
		sent++
	}
	return sent, failed
}
