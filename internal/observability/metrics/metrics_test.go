package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range metric.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
			matched++
		}
	}
	return matched == len(labels)
}

func TestMessagingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMessagingMetrics(reg)
	m.ObserveInbound("ok")
	m.ObserveInbound("ok")
	m.ObserveOutbound("reply", "sent")
	m.ObserveWebhookLatency("ok", 0.5)

	assert.Equal(t, 2.0, counterValue(t, reg, "clinic_messaging_inbound_webhook_total", map[string]string{"status": "ok"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "clinic_messaging_outbound_total", map[string]string{"template": "reply", "status": "sent"}))
}

func TestSchedulingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulingMetrics(reg)
	m.ObserveOperation("book", "ok")
	m.ObserveValidation("provisional")
	m.ObserveOpenSlots(12)
	m.ObserveCalendarSync("create", nil)
	m.ObserveCalendarSync("update", errors.New("timeout"))

	assert.Equal(t, 1.0, counterValue(t, reg, "clinic_appointments_operations_total", map[string]string{"operation": "book", "outcome": "ok"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "clinic_calendar_sync_total", map[string]string{"action": "update", "result": "error"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "clinic_slots_validations_total", map[string]string{"decision": "provisional"}))
}

func TestMetricsNilSafe(t *testing.T) {
	var m *MessagingMetrics
	m.ObserveInbound("status")
	m.ObserveOutbound("reply", "sent")
	m.ObserveWebhookLatency("status", 0.1)

	var s *SchedulingMetrics
	s.ObserveOperation("book", "ok")
	s.ObserveValidation("accepted")
	s.ObserveOpenSlots(1)
	s.ObserveCalendarSync("delete", nil)
}
