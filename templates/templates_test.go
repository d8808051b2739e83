package templates

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullData() map[string]string {
	return map[string]string{
		"client_name":  "Ana",
		"barber_name":  "Luis",
		"service_name": "Corte",
		"date":         "10/05/2025",
		"time":         "15:00",
		"price":        "20",
	}
}

func TestRenderLeavesNoPlaceholders(t *testing.T) {
	for _, key := range Keys() {
		out, err := Render(key, fullData())
		require.NoError(t, err, "template %s", key)
		assert.NotContains(t, out, "{", "template %s left a placeholder: %s", key, out)
		assert.NotContains(t, out, "}", "template %s left a placeholder: %s", key, out)
	}
}

func TestRenderSubstitutesValues(t *testing.T) {
	out, err := Render("appointment_confirmed", fullData())
	require.NoError(t, err)
	assert.Contains(t, out, "Corte")
	assert.Contains(t, out, "Luis")
	assert.Contains(t, out, "10/05/2025")
	assert.Contains(t, out, "15:00")
}

func TestRenderMissingFieldFails(t *testing.T) {
	for _, key := range Keys() {
		tpl, ok := Lookup(key)
		require.True(t, ok)
		for _, field := range tpl.Fields {
			data := fullData()
			delete(data, field)

			_, err := Render(key, data)
			require.Error(t, err, "template %s should require %s", key, field)

			var missing *MissingFieldError
			require.ErrorAs(t, err, &missing)
			assert.Equal(t, field, missing.Field)
			assert.Equal(t, key, missing.Template)
		}
	}
}

func TestRenderEmptyFieldCountsAsMissing(t *testing.T) {
	data := fullData()
	data["barber_name"] = "   "

	_, err := Render("appointment_confirmed", data)
	var missing *MissingFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "barber_name", missing.Field)
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := Render("no_such_template", fullData())
	var unknown *UnknownTemplateError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "no_such_template", unknown.Key)
}

func TestRenderIgnoresExtraFields(t *testing.T) {
	data := fullData()
	data["unrelated"] = "value"

	out, err := Render("review_request", data)
	require.NoError(t, err)
	assert.False(t, strings.Contains(out, "unrelated"))
}
