package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"

	"barber-whatsapp-bridge/dispatch"
	"barber-whatsapp-bridge/templates"
	"barber-whatsapp-bridge/whatsapp"
)

// Session is the slice of the connector the HTTP surface needs.
type Session interface {
	Status() whatsapp.Status
	Disconnect(ctx context.Context)
	Reconnect(ctx context.Context) error
}

// Dispatcher is the send orchestration behind /send and /send-bulk.
type Dispatcher interface {
	Send(ctx context.Context, in dispatch.SendInput) error
	SendBulk(ctx context.Context, recipients []dispatch.BulkRecipient, in dispatch.SendInput) []dispatch.BulkResult
}

// Server is the bridge's HTTP facade. Every endpoint resolves to a JSON
// success or a typed JSON failure; nothing is left hanging.
type Server struct {
	session    Session
	dispatcher Dispatcher
	startedAt  time.Time
	log        zerolog.Logger
}

func NewServer(session Session, dispatcher Dispatcher, logger zerolog.Logger) *Server {
	return &Server{
		session:    session,
		dispatcher: dispatcher,
		startedAt:  time.Now(),
		log:        logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/status", s.handleStatus)
	r.Get("/qr", s.handleQR)
	r.Post("/send", s.handleSend)
	r.Post("/send-bulk", s.handleSendBulk)
	r.Post("/disconnect", s.handleDisconnect)
	r.Post("/reconnect", s.handleReconnect)
	r.Get("/templates", s.handleTemplates)
	r.Get("/health", s.handleHealth)
	r.Post("/schedule-notifications", s.handleScheduleNotifications)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.session.Status()

	resp := map[string]interface{}{
		"connected":    st.Connected(),
		"qr_available": st.QRAvailable(),
	}
	if st.Identity != "" {
		resp["phone_number"] = st.Identity
	}
	if !st.LastConnectedAt.IsZero() {
		resp["last_connection"] = st.LastConnectedAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	st := s.session.Status()

	if st.Connected() {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"qr":     nil,
			"reason": "already connected; pairing codes are single-use",
		})
		return
	}
	if !st.QRAvailable() {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"qr":     nil,
			"reason": "no pairing in progress",
		})
		return
	}

	png, err := qrcode.Encode(st.QRCode, qrcode.Medium, 256)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"qr":    nil,
			"error": "failed to encode qr code",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"qr": base64.StdEncoding.EncodeToString(png),
	})
}

type sendRequest struct {
	PhoneNumber   string            `json:"phone_number"`
	Message       string            `json:"message,omitempty"`
	TemplateType  string            `json:"template_type,omitempty"`
	TemplateData  map[string]string `json:"template_data,omitempty"`
	AppointmentID string            `json:"appointment_id,omitempty"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.dispatcher.Send(r.Context(), dispatch.SendInput{
		Phone:         req.PhoneNumber,
		Message:       req.Message,
		TemplateType:  req.TemplateType,
		TemplateData:  req.TemplateData,
		AppointmentID: req.AppointmentID,
	})
	if err != nil {
		status, msg := sendErrorStatus(err)
		writeJSON(w, status, map[string]interface{}{
			"success": false,
			"error":   msg,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Message sent",
	})
}

type bulkSendRequest struct {
	Recipients   []map[string]interface{} `json:"recipients"`
	Message      string                   `json:"message,omitempty"`
	TemplateType string                   `json:"template_type,omitempty"`
	TemplateData map[string]string        `json:"template_data,omitempty"`
}

func (s *Server) handleSendBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Recipients) == 0 {
		writeError(w, http.StatusBadRequest, "recipients is required")
		return
	}

	recipients := make([]dispatch.BulkRecipient, 0, len(req.Recipients))
	for _, raw := range req.Recipients {
		recipient := dispatch.BulkRecipient{Fields: map[string]string{}}
		for k, v := range raw {
			str, ok := v.(string)
			if !ok {
				str = fmt.Sprint(v)
			}
			if k == "phone_number" {
				recipient.Phone = str
				continue
			}
			recipient.Fields[k] = str
		}
		recipients = append(recipients, recipient)
	}

	results := s.dispatcher.SendBulk(r.Context(), recipients, dispatch.SendInput{
		Message:      req.Message,
		TemplateType: req.TemplateType,
		TemplateData: req.TemplateData,
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
	})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.session.Disconnect(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "WhatsApp disconnected",
	})
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Reconnect(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "reconnect failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Reconnecting; previous credentials discarded, scan the new QR code",
	})
}

// handleTemplates lists the notification catalog so the frontend can show
// what each template needs before calling /send.
func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	keys := templates.Keys()
	sort.Strings(keys)

	list := make([]map[string]interface{}, 0, len(keys))
	for _, key := range keys {
		tpl, ok := templates.Lookup(key)
		if !ok {
			continue
		}
		list = append(list, map[string]interface{}{
			"key":    key,
			"title":  tpl.Title,
			"fields": tpl.Fields,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"templates": list,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.session.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":             "ok",
		"whatsapp_status":    st.State.String(),
		"whatsapp_connected": st.Connected(),
		"uptime":             time.Since(s.startedAt).Round(time.Second).String(),
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
	})
}

type scheduleRequest struct {
	Appointments []struct {
		AppointmentID string `json:"appointment_id"`
		ClientName    string `json:"client_name"`
		ClientPhone   string `json:"client_phone"`
		BarberName    string `json:"barber_name"`
		BarberPhone   string `json:"barber_phone,omitempty"`
		ServiceName   string `json:"service_name"`
		Date          string `json:"date"`
		Time          string `json:"time"`
		Price         string `json:"price,omitempty"`
	} `json:"appointments"`
}

// handleScheduleNotifications fires the immediate confirmation for each
// appointment (client, plus barber when a barber phone is given). The 24h
// reminder is not queued here; the reminder scheduler picks it up from the
// backend's reminder query.
func (s *Server) handleScheduleNotifications(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Appointments) == 0 {
		writeError(w, http.StatusBadRequest, "appointments is required")
		return
	}

	dispatched := 0
	for _, appt := range req.Appointments {
		data := map[string]string{
			"client_name":  appt.ClientName,
			"barber_name":  appt.BarberName,
			"service_name": appt.ServiceName,
			"date":         appt.Date,
			"time":         appt.Time,
			"price":        appt.Price,
		}

		err := s.dispatcher.Send(r.Context(), dispatch.SendInput{
			Phone:         appt.ClientPhone,
			TemplateType:  "appointment_confirmed",
			TemplateData:  data,
			AppointmentID: appt.AppointmentID,
		})
		if err != nil {
			s.log.Warn().Err(err).Str("appointment_id", appt.AppointmentID).Msg("confirmation send failed")
		} else {
			dispatched++
		}

		if appt.BarberPhone != "" {
			err := s.dispatcher.Send(r.Context(), dispatch.SendInput{
				Phone:         appt.BarberPhone,
				TemplateType:  "barber_new_appointment",
				TemplateData:  data,
				AppointmentID: appt.AppointmentID,
			})
			if err != nil {
				s.log.Warn().Err(err).Str("appointment_id", appt.AppointmentID).Msg("barber notification failed")
			} else {
				dispatched++
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": fmt.Sprintf("%d notifications dispatched; reminders are sent by the hourly scheduler", dispatched),
	})
}

// sendErrorStatus maps dispatch errors onto the HTTP contract: caller
// mistakes are 4xx, a down session is 409, transport rejections are 502.
func sendErrorStatus(err error) (int, string) {
	var verr *dispatch.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, verr.Reason
	}
	var unknown *templates.UnknownTemplateError
	if errors.As(err, &unknown) {
		return http.StatusBadRequest, unknown.Error()
	}
	var missing *templates.MissingFieldError
	if errors.As(err, &missing) {
		return http.StatusBadRequest, missing.Error()
	}
	if errors.Is(err, whatsapp.ErrNotConnected) {
		return http.StatusConflict, "WhatsApp not connected"
	}
	var te *whatsapp.TransportError
	if errors.As(err, &te) {
		return http.StatusBadGateway, te.Error()
	}
	return http.StatusInternalServerError, err.Error()
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   msg,
	})
}
