package templates

import (
	"fmt"
	"strings"
)

// Template is a named notification text pattern. Fields lists the
// placeholder keys the body references; rendering fails if any is missing.
type Template struct {
	Title  string
	Body   string
	Fields []string
}

// Catalog is immutable after process start.
var catalog = map[string]Template{
	"appointment_confirmed": {
		Title:  "Cita Confirmada",
		Body:   "Tu cita para {service_name} con {barber_name} ha sido confirmada para el {date} a las {time}. ¡Te esperamos en Elite Barbershop! 💈",
		Fields: []string{"service_name", "barber_name", "date", "time"},
	},
	"appointment_reminder": {
		Title:  "Recordatorio de Cita",
		Body:   "🔔 Recordatorio: Tienes una cita mañana a las {time} para {service_name} con {barber_name}. ¡Te esperamos!",
		Fields: []string{"time", "service_name", "barber_name"},
	},
	"appointment_cancelled": {
		Title:  "Cita Cancelada",
		Body:   "Tu cita para {service_name} el {date} ha sido cancelada. Puedes reagendar cuando gustes.",
		Fields: []string{"service_name", "date"},
	},
	"appointment_created": {
		Title:  "Nueva Cita Agendada",
		Body:   "Has agendado una cita para {service_name} con {barber_name} el {date} a las {time}. Estado: Pendiente de confirmación.",
		Fields: []string{"service_name", "barber_name", "date", "time"},
	},
	"barber_new_appointment": {
		Title:  "Nueva Cita Recibida",
		Body:   "Tienes una nueva cita: {service_name} con {client_name} el {date} a las {time}. ¡Revisa tu agenda!",
		Fields: []string{"service_name", "client_name", "date", "time"},
	},
	"review_request": {
		Title:  "¿Cómo estuvo tu servicio?",
		Body:   "Esperamos que hayas disfrutado tu {service_name} con {barber_name}. ¡Nos encantaría conocer tu opinión!",
		Fields: []string{"service_name", "barber_name"},
	},
}

// UnknownTemplateError indicates the caller asked for a key the catalog
// does not carry.
type UnknownTemplateError struct {
	Key string
}

func (e *UnknownTemplateError) Error() string {
	return fmt.Sprintf("unknown template %q", e.Key)
}

// MissingFieldError indicates a required placeholder value was absent or
// empty. Rendering never substitutes blanks silently.
type MissingFieldError struct {
	Template string
	Field    string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("template %q requires field %q", e.Template, e.Field)
}

// Lookup returns the template for key, if present.
func Lookup(key string) (Template, bool) {
	t, ok := catalog[key]
	return t, ok
}

// Keys returns the catalog keys, mostly for diagnostics.
func Keys() []string {
	keys := make([]string, 0, len(catalog))
	for k := range catalog {
		keys = append(keys, k)
	}
	return keys
}

// Render formats the template identified by key with data. Extra data keys
// are ignored; missing required keys fail.
func Render(key string, data map[string]string) (string, error) {
	tpl, ok := catalog[key]
	if !ok {
		return "", &UnknownTemplateError{Key: key}
	}

	for _, field := range tpl.Fields {
		if strings.TrimSpace(data[field]) == "" {
			return "", &MissingFieldError{Template: key, Field: field}
		}
	}

	result := tpl.Body
	for k, v := range data {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result, nil
}
